// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package dispatcher implements the reactor at the root of every node graph.
//
// A Dispatcher owns one readiness poller and one worker goroutine. Devices
// attached to it are tracked in a slot arena; poller events carry a handle
// (slot index and generation) so events for a removed or recycled slot are
// dropped. Every notification, posted completion and invoked function runs
// on the worker goroutine. Marked nodes are pruned after each pass.
package dispatcher
