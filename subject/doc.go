// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package subject implements the observer graph shared by every node of
// hioload-npl: devices, protocols and application listeners.
//
// Each node has exactly one upstream target and any number of observers.
// Notifications travel downstream; reads and writes travel upstream until a
// device services them. Removal is deferred: nodes mark themselves during a
// notification pass and the dispatcher prunes them afterwards.
package subject
