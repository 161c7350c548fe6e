// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness poller behind the dispatcher, with
// implementations for epoll (Linux) and kqueue (Darwin, FreeBSD).
package reactor
