// tomato reviews source files against linters and coding guidelines, then
// drives an LLM repair loop until each file converges or runs out of budget.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"tomato/internal/config"
	"tomato/internal/logging"
)

var (
	// Global flags
	workspace  string
	configFile string
	verbose    bool

	// Loaded in PersistentPreRunE, shared by all subcommands.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tomato",
	Short: "tomato - iterative code review and repair",
	Long: `tomato runs static analyzers over source files, retrieves relevant
coding guidelines from a local knowledge base, asks an LLM to repair the
findings, and verifies every candidate before writing it back. Each file is
iterated until it is clean or the iteration budget runs out; originals are
backed up under .tomato/backup/ before the first edit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		workspace = abs

		if configFile != "" {
			cfg, err = config.LoadFile(configFile)
		} else {
			cfg, err = config.Load(workspace)
		}
		if err != nil {
			return err
		}

		if err := logging.Initialize(workspace, verbose || cfg.Logging.Debug); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		logging.Boot("tomato starting: workspace=%s", workspace)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace root directory")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (overrides workspace discovery)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
