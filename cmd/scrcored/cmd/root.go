// Package cmd implements the CLI commands for scrcored.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/scrcore/internal/config"
	"github.com/jmylchreest/scrcore/internal/observability"
	"github.com/jmylchreest/scrcore/internal/version"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "scrcored",
	Short:   "Video ingest and recording core for a screen-mirroring capture stream",
	Version: version.Short(),
	Long: `scrcored accepts a capture connection carrying a framed H.264 stream,
decodes it for live display and/or records it to an MP4 or Matroska file.

Configuration is read from (in order of precedence) CLI flags, environment
variables prefixed SCRCORE_, and a config file (config.yaml by default).`,
}

// Execute adds all child commands to the root command and parses flags.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig reads the effective config, applying any CLI flag overrides
// for logging before the logger exists, so early startup logging honors
// them too.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = strings.ToLower(format)
	}

	return cfg, nil
}

// initLogging builds and installs the process-wide default logger.
func initLogging(cfg config.LoggingConfig) {
	logger := observability.NewLoggerWithWriter(cfg, os.Stderr)
	observability.SetDefault(logger)
}
