//go:build linux || darwin || freebsd

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/momentics/hioload-npl/control"
	"github.com/momentics/hioload-npl/dispatcher"
	"github.com/momentics/hioload-npl/protocol/ftp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// session is one connected, logged in client.
type session struct {
	ctx     context.Context
	cfg     *control.Config
	logger  *log.Logger
	metrics *control.Metrics
	probes  *control.DebugProbes
	disp    *dispatcher.Dispatcher
	client  *ftp.Client
	server  *http.Server
	closers []func() error
}

// loadConfig reads the config file, then applies the flags set on cmd.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*control.Config, error) {
	cfg := control.DefaultConfig()
	if g.configPath != "" {
		var err error
		if cfg, err = control.Load(g.configPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.FTP.Host = g.host
	}
	if flags.Changed("port") {
		cfg.FTP.Port = g.port
	}
	if flags.Changed("user") {
		cfg.FTP.User = g.user
	}
	if flags.Changed("password") {
		cfg.FTP.Password = g.password
	}
	if flags.Changed("tls") {
		cfg.FTP.TLS = g.tls
	}
	if flags.Changed("insecure") {
		cfg.FTP.Insecure = g.insecure
	}
	if flags.Changed("protection") {
		cfg.FTP.Protection = g.protection
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = g.metricsAddr != ""
		cfg.Metrics.Listen = g.metricsAddr
	}
	if cfg.FTP.Host == "" {
		return nil, errors.New("no server host given")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clientOptions maps the [ftp] block onto client options.
func clientOptions(c control.FTPConfig) ([]ftp.Option, error) {
	opts := []ftp.Option{
		ftp.WithCredentials(c.User, c.Password),
		ftp.WithAccount(c.Account),
	}
	mode, ok := ftp.ParseTLSMode(c.TLS)
	if !ok {
		return nil, fmt.Errorf("unknown TLS mode %q", c.TLS)
	}
	if mode != ftp.TLSNone {
		opts = append(opts, ftp.WithTLS(mode, &tls.Config{InsecureSkipVerify: c.Insecure}))
	}
	switch c.Protection {
	case "clear":
		opts = append(opts, ftp.WithDataProtection(ftp.ProtectionClear))
	case "private":
		opts = append(opts, ftp.WithDataProtection(ftp.ProtectionPrivate))
	}
	return opts, nil
}

// openSession connects and waits for the login to finish.
func openSession(cmd *cobra.Command, g *globalFlags) (*session, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := control.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		logger:  logger,
		metrics: control.NewMetrics(cfg.Metrics),
		probes:  control.NewDebugProbes(),
		closers: []func() error{closeLog},
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	s.ctx = ctx
	s.closers = append(s.closers, func() error { cancel(); return nil })

	control.RegisterPlatformProbes(s.probes)
	store := control.NewConfigStore(cfg)
	s.probes.RegisterProbe("config", func() any { return store.GetSnapshot() })

	if s.metrics.Enabled() && cfg.Metrics.Listen != "" {
		s.serveMetrics(cfg.Metrics.Listen)
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(logger),
		dispatcher.WithMetrics(s.metrics),
		dispatcher.WithProbes(s.probes),
	}
	if cfg.Dispatcher.BatchSize > 0 {
		opts = append(opts, dispatcher.WithBatchSize(cfg.Dispatcher.BatchSize))
	}
	s.disp, err = dispatcher.New(opts...)
	if err != nil {
		s.close()
		return nil, err
	}

	copts, err := clientOptions(cfg.FTP)
	if err != nil {
		s.close()
		return nil, err
	}
	login := make(chan error, 1)
	copts = append(copts,
		ftp.WithLogger(logger),
		ftp.WithMetrics(s.metrics),
		ftp.WithLoginHandler(func(err error) { login <- err }),
	)
	s.client, err = ftp.Dial(s.disp, cfg.FTP.Host, cfg.FTP.Port, copts...)
	if err != nil {
		s.close()
		return nil, err
	}

	select {
	case err = <-login:
	case <-ctx.Done():
		err = fmt.Errorf("login: %w", ctx.Err())
	}
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Warn("metrics server failed")
		}
	}()
	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	})
}

// wait blocks until a reply arrives on ch. Negative replies become errors.
func (s *session) wait(op string, ch <-chan string) (string, error) {
	select {
	case reply := <-ch:
		if code := ftp.ReplyCode(reply); code == 0 || code >= 400 {
			return reply, fmt.Errorf("%s: %s", op, strings.TrimSpace(reply))
		}
		return reply, nil
	case <-s.ctx.Done():
		return "", fmt.Errorf("%s: %w", op, s.ctx.Err())
	}
}

func replyChan() (func(string), chan string) {
	ch := make(chan string, 1)
	return func(r string) { ch <- r }, ch
}

// close sends QUIT when connected and releases everything.
func (s *session) close() error {
	var errs *multierror.Error
	if s.client != nil && s.client.LoggedIn() {
		cb, ch := replyChan()
		if err := s.client.Quit(cb); err == nil {
			select {
			case <-ch:
			case <-time.After(2 * time.Second):
			}
		}
	}
	if s.disp != nil {
		if err := s.disp.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// run opens a session, runs fn and closes the session.
func run(cmd *cobra.Command, g *globalFlags, fn func(*session) error) (err error) {
	s, err := openSession(cmd, g)
	if err != nil {
		return err
	}
	defer func() {
		if g.probes {
			s.probes.LogState(s.logger)
		}
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
