// ctxpack assembles bounded, reproducible context packs from repository
// hints: changed files, failing tests, free-text targets, and explicit
// must/never-include ranges.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ctxpack/internal/config"
	"ctxpack/internal/pack"
)

// version identifies the assembler build in pack hashes. Stamped via
// -ldflags "-X main.version=..." at release time.
var version = "0.1.0-dev"

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger, initialized in PersistentPreRunE
	logger *zap.Logger

	// Process settings, loaded once before any command runs
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "ctxpack",
	Short: "ctxpack - deterministic context pack assembler",
	Long: `ctxpack turns repository hints (changed paths, failing tests, task
targets, explicit must/never-include ranges) into a budgeted, content-addressed
manifest of byte-range slices, suitable as a cache key for downstream prompt
assembly.

The pipeline is deterministic: identical inputs always produce identical slice
order and pack hash, regardless of discovery provider timing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		settings, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".ctxpack/config.yaml", "settings file path")
	rootCmd.AddCommand(assembleCmd)
}

// exitCode maps a command error to the process exit code: 2 when a
// non-droppable span was rejected under enforcement, 1 for everything else.
func exitCode(err error) int {
	var budgetErr *pack.BudgetError
	if errors.As(err, &budgetErr) {
		return 2
	}
	return 1
}

// reportError writes the error and, for budget failures, the overflow
// diagnostics.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "ERROR: %v\n", err)
	var budgetErr *pack.BudgetError
	if errors.As(err, &budgetErr) {
		for _, item := range budgetErr.Overflow {
			fmt.Fprintf(w, "  %s - %s\n", item.URI, item.Reason)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
