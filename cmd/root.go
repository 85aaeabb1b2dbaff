package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/markabak/internal/config"
	"github.com/kebairia/markabak/internal/logger"
)

var (
	// ConfigFile is the path to the YAML configuration.
	ConfigFile string

	cfg config.Config
	log logger.Logger = logger.Nop()

	// rootCmd is the base command for markabak.
	rootCmd = &cobra.Command{
		Use:   "markabak",
		Short: "Encrypted backup and restore for the marka database",
		Long: `markabak bundles the marka SQLite database into compressed,
encrypted artifacts, keeps them under a retention policy, ships them to
cloud storage and restores them atomically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(ConfigFile); err != nil {
				return err
			}
			l, err := logger.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			log = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
	}
)

// Execute runs the root command and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scheduleCmd)
}
