// File: protocol/ftp/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux || darwin || freebsd

package ftp

import (
	"crypto/tls"

	log "github.com/sirupsen/logrus"
)

// TLSMode selects how the control channel is protected.
type TLSMode uint8

const (
	TLSNone TLSMode = iota
	TLSImplicit
	TLSExplicit
)

func (m TLSMode) String() string {
	switch m {
	case TLSImplicit:
		return "implicit"
	case TLSExplicit:
		return "explicit"
	}
	return "none"
}

// ParseTLSMode maps "none", "implicit" and "explicit" to a TLSMode.
func ParseTLSMode(s string) (TLSMode, bool) {
	switch s {
	case "", "none":
		return TLSNone, true
	case "implicit":
		return TLSImplicit, true
	case "explicit":
		return TLSExplicit, true
	}
	return TLSNone, false
}

// Metrics receives job outcomes.
type Metrics interface {
	ObserveJob(verb, result string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveJob(string, string) {}

// Option configures a Client.
type Option func(*Client) error

// WithTLS protects the control channel. A nil config uses defaults. A
// session cache is installed when missing so data channels can resume the
// control channel session, which many servers require.
func WithTLS(mode TLSMode, cfg *tls.Config) Option {
	return func(c *Client) error {
		c.tlsMode = mode
		if mode == TLSNone {
			c.tlsCfg = nil
			return nil
		}
		if cfg == nil {
			cfg = &tls.Config{}
		} else {
			cfg = cfg.Clone()
		}
		if cfg.ClientSessionCache == nil {
			cfg.ClientSessionCache = tls.NewLRUClientSessionCache(0)
		}
		c.tlsCfg = cfg
		return nil
	}
}

// WithDataProtection sets the default protection of data channels. It only
// has an effect together with WithTLS.
func WithDataProtection(p Protection) Option {
	return func(c *Client) error {
		c.dataProt = p
		return nil
	}
}

// WithCredentials sets the login user and password.
func WithCredentials(user, password string) Option {
	return func(c *Client) error {
		c.optUser, c.optPassword = user, password
		return nil
	}
}

// WithAccount sets the ACCT value sent when the server asks for it.
func WithAccount(account string) Option {
	return func(c *Client) error {
		c.account = account
		return nil
	}
}

// WithLogger sets the client logger, also used by its data channels.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Client) error {
		c.optLogger = l
		return nil
	}
}

// WithMetrics reports job outcomes to m.
func WithMetrics(m Metrics) Option {
	return func(c *Client) error {
		if m != nil {
			c.metrics = m
		}
		return nil
	}
}

// WithLoginHandler registers fn, called once the login sequence ends: nil on
// success, a *ProtocolError when the server refused it.
func WithLoginHandler(fn func(err error)) Option {
	return func(c *Client) error {
		c.onLogin = fn
		return nil
	}
}

// WithStateHandler registers fn for control state changes, named as
// State.String returns them.
func WithStateHandler(fn func(state string)) Option {
	return func(c *Client) error {
		c.onState = fn
		return nil
	}
}
