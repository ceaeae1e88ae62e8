// Package cmd provides the CLI commands for tello-renewal.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tello-renewal/internal/config"
	"tello-renewal/internal/logging"
)

// Version is set at build time with -ldflags "-X tello-renewal/cmd/cli/cmd.Version=..."
var Version = "dev"

var (
	cfgFile string
	verbose bool
	dryRun  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tello-renewal",
	Short: "Renew a Tello prepaid plan before it lapses",
	Long: `tello-renewal logs in to the Tello dashboard with a headless browser and
renews the plan when the renewal date is at most one day away. The outcome
is emailed to the account address.

Examples:
  tello-renewal
  tello-renewal --dry-run
  tello-renewal --config /etc/tello/config.yaml schedule`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	RunE:              runRenew,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "d", false, "walk the renewal flow without placing the order")

	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	config.Set(cfg)
	return nil
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// no config needed
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tello-renewal version %s\n", Version)
	},
}
