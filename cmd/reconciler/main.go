package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jward/reconciler/internal/config"
)

var (
	flagConfig  string
	flagDB      string
	flagFormat  string
	flagVerbose bool

	logger *zap.Logger
	cfg    config.Config
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// errFindings makes the process exit 1 after error diagnostics were printed.
var errFindings = errors.New("error diagnostics found")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled && !errors.Is(err, errFindings) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "reconciler",
	Short:         "Re-analyse source files in the background as they change",
	Long:          "Reconciler binds a file to a set of analysis strategies (tree-sitter syntax checks, outline extraction and Risor check scripts) and re-runs them after edits settle.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}

		lc := zap.NewProductionConfig()
		lc.Encoding = "console"
		lc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		lc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if flagVerbose {
			lc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = lc.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		cfg, err = config.Resolve(flagConfig, ".")
		if err != nil {
			return err
		}
		if flagDB != "" {
			cfg.DB = flagDB
		}
		logger.Debug("configuration loaded", zap.String("path", cfg.Path), zap.String("db", cfg.DB))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "configuration file (default: nearest "+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides the configuration)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(diagnosticsCmd)
}
