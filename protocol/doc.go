// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package protocol is the framing and state machine layer placed between a
// socket device and the application. Incoming bytes are appended one at a
// time and offered to a completion predicate; every complete frame becomes a
// Message that is recorded, handed to the state machine and re-broadcast to
// the protocol's observers. Frame boundaries do not depend on how the bytes
// were chunked on the wire.
package protocol
