package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Hearth - event-driven HTTP/1.x server",
	Long: `Hearth serves HTTP/1.0 and HTTP/1.1 over an event-driven transport.

It provides:
  - Incremental request parsing with pipelining
  - Exact and template (/user/:id) routing
  - Non-blocking TLS termination with session resumption
  - Cookie sessions backed by memory or SQLite
  - Prometheus metrics and OpenTelemetry tracing`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
}
