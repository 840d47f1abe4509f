// Package main implements the fileops CLI, a batched transactional
// file-operations engine. Command registration lives here; the run and
// validate-request implementations are split into cmd_run.go and
// cmd_validate.go for maintainability.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fileops/internal/logging"
)

var (
	verbose    bool
	workspace  string
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fileops",
	Short: "Batched, transactional file-operations engine",
	Long: `fileops executes a batch of file operations (create, edit, delete,
analyze, validate) from a single JSON request, scheduling independent
operations in parallel, enforcing path containment, and rolling back every
touched file when a transactional batch fails partway through.`,
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

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, aerr := filepath.Abs(ws); aerr == nil {
			ws = abs
		}
		workspace = ws

		if err := logging.Initialize(ws, verbose, nil, logLevelFromVerbose(), false); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func logLevelFromVerbose() string {
	if verbose {
		return "debug"
	}
	return "info"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default: <workspace>/.fileops/config.yaml)")

	rootCmd.AddCommand(runCmd, validateRequestCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fileops version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

// version is set at build time via -ldflags; defaults to "dev" otherwise.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
