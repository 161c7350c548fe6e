// control/logging.go
// Author: momentics <momentics@gmail.com>
//
// logrus logger construction from the [log] block.

package control

import (
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// NewLogger builds a logger from cfg. The returned close function releases
// the output file, if any.
func NewLogger(cfg LogConfig) (*log.Logger, func() error, error) {
	l := log.New()
	closer := func() error { return nil }

	if cfg.Level != "" {
		lvl, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		l.SetLevel(lvl)
	}
	l.SetReportCaller(cfg.ReportCaller)

	switch cfg.Format {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case "json":
		l.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log output: %w", err)
		}
		out = f
		closer = f.Close
	}
	l.SetOutput(out)
	return l, closer, nil
}
