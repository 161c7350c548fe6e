//go:build linux || darwin || freebsd

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// globalFlags override the configuration file.
type globalFlags struct {
	configPath  string
	host        string
	port        int
	user        string
	password    string
	tls         string
	insecure    bool
	protection  string
	verbose     bool
	metricsAddr string
	timeout     time.Duration
	probes      bool
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "nplftp",
		Short: "FTP client on the hioload-npl reactor",
		Long: `nplftp runs one FTP operation per invocation over a single-threaded
dispatcher. Plain FTP, explicit FTPS (AUTH TLS) and implicit FTPS are
supported; data channels are passive.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file path (TOML)")
	pf.StringVarP(&g.host, "host", "H", "", "server host")
	pf.IntVarP(&g.port, "port", "p", 0, "server port (default 21, 990 for implicit TLS)")
	pf.StringVarP(&g.user, "user", "u", "", "login user")
	pf.StringVar(&g.password, "password", "", "login password")
	pf.StringVar(&g.tls, "tls", "", "TLS mode: none, explicit or implicit")
	pf.BoolVar(&g.insecure, "insecure", false, "skip server certificate verification")
	pf.StringVar(&g.protection, "protection", "", "data channel protection: clear or private")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.DurationVar(&g.timeout, "timeout", time.Minute, "overall operation timeout")
	pf.BoolVar(&g.probes, "probes", false, "log runtime probes when done")

	rootCmd.AddCommand(newListCommand(g))
	rootCmd.AddCommand(newGetCommand(g))
	rootCmd.AddCommand(newPutCommand(g))
	rootCmd.AddCommand(newPwdCommand(g))
	rootCmd.AddCommand(newMkdirCommand(g))
	rootCmd.AddCommand(newRmdirCommand(g))
	rootCmd.AddCommand(newRmCommand(g))
	return rootCmd
}
