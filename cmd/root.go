// Package cmd defines the redclaw command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/internal/config"
	"github.com/redclawsec/redclaw/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "redclaw",
	Short:   "Redclaw is an autonomous penetration testing agent.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			observability.InitializeLogger(config.LoggerConfig{
				Level: "info", Format: "console", ServiceName: "redclaw",
			})
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = loaded

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting redclaw", zap.String("version", Version))
		return nil
	},
}

// Execute runs the CLI with a signal-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReportCmd())
}
