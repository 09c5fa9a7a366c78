package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Warren - Embedded bot runtime",
	Long: `Warren hosts embedded bots in-process inside a messaging platform.

Each bot gets a capability-restricted handler (send, reply, config,
storage) bound to its identity, with a per-bot state-size quota and a
sliding-window rate limit on outbound messages. Incoming events and
outbound deliveries flow over Redis Pub/Sub, namespaced by instance.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
