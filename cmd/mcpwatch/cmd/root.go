// Package cmd provides the CLI commands for the mcpwatch gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpwatch/gateway/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpwatch",
	Short: "mcpwatch - MCP observability gateway",
	Long: `mcpwatch sits in front of one or more Model Context Protocol servers and
records every exchange for later inspection, without changing how clients or
servers speak to each other.

Quick start:
  1. Create a config file: mcpwatch.yaml
  2. Run: mcpwatch serve

Configuration:
  Config is loaded from mcpwatch.yaml in the current directory,
  $HOME/.mcpwatch/, or /etc/mcpwatch/.

  Environment variables can override config values with the MCPWATCH_ prefix.
  Example: MCPWATCH_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the gateway
  reset       Reset to clean state (remove the registry and capture store)
  hash-key    Generate SHA256 hash for an admin token
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpwatch.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
