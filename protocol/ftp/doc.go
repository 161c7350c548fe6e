// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package ftp is an asynchronous FTP client built on the protocol framework.
//
// Operations are queued as jobs and executed strictly one at a time. Replies
// on the control channel drive a table based state machine (see Next); each
// transition yields an Action that the Client executes. Transfers use a
// passive mode data channel which is a separate socket device attached to
// the same dispatcher. Control and data channels can be protected with TLS,
// either implicitly on connect or explicitly through AUTH TLS.
package ftp
