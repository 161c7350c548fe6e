//go:build linux || darwin || freebsd

// Command nplftp is a small FTP client built on the hioload-npl runtime.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(Version, Commit, BuildDate).ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
