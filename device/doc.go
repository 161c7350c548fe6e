// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package device provides the graph nodes that own native handles: files and
// TCP sockets, the latter optionally wrapped in TLS.
//
// Devices never block the dispatcher worker. Sockets are driven by readiness
// events; regular files perform positioned I/O immediately and post the
// completion to the dispatcher so that observers are always notified on the
// worker goroutine.
package device
