package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	host    string
	port    int
	version = "dev" // Set by build
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "widgetgate",
	Short: "WidgetGate - Multi-tenant chat widget gateway",
	Long: `WidgetGate is an API gateway between embedded chat widgets and an
upstream chat-completion service.

It resolves public tenant identifiers to internal chatflow ids, enforces
per-tenant origin allow-lists, injects the upstream credential, resolves
caller identities against each tenant's OpenID Connect authority, and
relays buffered, streamed (SSE), and raw multipart traffic.`,
	Version: version,
	// Default to serve command when no subcommand is specified
	RunE: func(cmd *cobra.Command, args []string) error {
		// Execute serve command by default
		return serveCmd.RunE(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "widgetgate.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Server host address (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "Server port number (overrides config)")
}
