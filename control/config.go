// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML configuration, validation and a reloadable configuration store.

package control

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config is the file configuration.
type Config struct {
	Log        LogConfig        `toml:"log"`
	FTP        FTPConfig        `toml:"ftp"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
}

// LogConfig describes the [log] block.
type LogConfig struct {
	Level        string `toml:"level" validate:"omitempty,oneof=panic fatal error warn warning info debug trace"`
	Format       string `toml:"format" validate:"omitempty,oneof=text json"`
	Output       string `toml:"output"`
	ReportCaller bool   `toml:"report-caller"`
}

// FTPConfig describes the [ftp] block.
type FTPConfig struct {
	Host       string `toml:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port       int    `toml:"port" validate:"gte=0,lte=65535"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	Account    string `toml:"account"`
	TLS        string `toml:"tls" validate:"omitempty,oneof=none explicit implicit"`
	Insecure   bool   `toml:"insecure"`
	Protection string `toml:"protection" validate:"omitempty,oneof=clear private"`
}

// MetricsConfig describes the [metrics] block.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace" validate:"omitempty,alphanum"`
	Listen    string `toml:"listen" validate:"omitempty,hostname_port"`
}

// DispatcherConfig describes the [dispatcher] block.
type DispatcherConfig struct {
	BatchSize int `toml:"batch-size" validate:"gte=0,lte=4096"`
}

var validate = validator.New()

// DefaultConfig returns the values used for keys missing from a file.
func DefaultConfig() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text", Output: "stderr"},
		FTP:     FTPConfig{Port: 21, TLS: "none"},
		Metrics: MetricsConfig{Namespace: "npl"},
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load decodes and validates a TOML file on top of DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates TOML text.
func Parse(data string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigStore holds the current configuration and notifies listeners when it
// is replaced.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(*Config)
}

// NewConfigStore initializes a store with cfg, or the defaults when nil.
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: *cfg}
}

// Current returns a copy of the configuration.
func (cs *ConfigStore) Current() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c := cs.config
	return &c
}

// GetSnapshot returns the configuration as flat "section.key" values,
// without secrets.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	c := cs.Current()
	return map[string]any{
		"log.level":            c.Log.Level,
		"log.format":           c.Log.Format,
		"log.output":           c.Log.Output,
		"ftp.host":             c.FTP.Host,
		"ftp.port":             c.FTP.Port,
		"ftp.user":             c.FTP.User,
		"ftp.tls":              c.FTP.TLS,
		"ftp.protection":       c.FTP.Protection,
		"metrics.enabled":      c.Metrics.Enabled,
		"metrics.namespace":    c.Metrics.Namespace,
		"metrics.listen":       c.Metrics.Listen,
		"dispatcher.batchsize": c.Dispatcher.BatchSize,
	}
}

// SetConfig validates and installs cfg, then runs the reload listeners in
// registration order. An invalid cfg leaves the store unchanged.
func (cs *ConfigStore) SetConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = *cfg
	listeners := append([]func(*Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		c := *cfg
		fn(&c)
	}
	return nil
}

// OnReload registers a listener for configuration changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
