package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/widgetgate/widgetgate/pkg/config"
	"github.com/widgetgate/widgetgate/pkg/gateway"
	"github.com/widgetgate/widgetgate/pkg/logging"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the widget gateway server",
	Long: `Start the widgetgate server with the specified configuration.

The server will:
- Load the configuration file and build the tenant table
- Initialize the session cache (memory, LevelDB or Redis)
- Watch the configuration file for tenant hot reload
- Start relaying traffic to the upstream chat service
- Handle graceful shutdown on SIGTERM/SIGINT`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewFileLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Command-line flags beat the config file
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	// Setup logger with file output if configured
	level := logging.ParseLevel(cfg.Logging.Level)
	var fileRotationConfig *logging.FileRotationConfig
	if cfg.Logging.File != nil && cfg.Logging.File.Path != "" {
		fileRotationConfig = &logging.FileRotationConfig{
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAge:     cfg.Logging.File.MaxAge,
			Compress:   cfg.Logging.File.Compress,
		}
	}

	logger, err := logging.NewLoggerWithFile("main", level, cfg.Logging.Color, fileRotationConfig)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Starting widgetgate", "version", version)

	server, err := gateway.New(cfg, cfgFile, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}
