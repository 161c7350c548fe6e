// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging setup, metrics and debug introspection for
// applications built on the runtime.
//
// Provides:
//   - TOML configuration with validation and a reloadable store
//   - File watching for hot reload
//   - logrus logger construction from configuration
//   - Prometheus metrics on a private registry
//   - Named debug probes
package control
