// cmd/proteoflow/main.go
//
// Entry point for the proteoflow CLI. Every subcommand except init and
// catalog loads proteoflow.yaml, applies --set overrides and drives the
// SearchGUI/PeptideShaker pipeline through internal/stages.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/failure"
)

var (
	// Global flags
	configPath string
	verbose    bool
	sets       = keyValueFlag{}

	// Console logger for commands that run before a config is loaded.
	logger *zap.Logger

	// Set once subprocess output has been streamed to the terminal.
	outputEchoed bool
)

var rootCmd = &cobra.Command{
	Use:   "proteoflow",
	Short: "Run SearchGUI and PeptideShaker over one spectrum file",
	Long: `proteoflow orchestrates a proteomics identification run:

  1. decoy        build the concatenated target/decoy FASTA (FastaCLI)
  2. params       derive the identification parameter file
  3. search       run the search engines (SearchCLI)
  4. consolidate  build the PeptideShaker project (PeptideShakerCLI)
  5. reports      export tabular reports (ReportCLI)

Run "proteoflow init" to write an annotated proteoflow.yaml, then
"proteoflow run" to execute every stage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		cfg.DisableStacktrace = true
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
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
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.FileName, "Run configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Var(&sets, "set", "Identification parameter override (key=value, repeatable)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(decoyCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(exitCode(err))
	}
}

func reportError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	if fe, ok := failure.As(err); ok && fe.IsExternal() && !outputEchoed {
		if out := fe.Output(); out != "" {
			fmt.Fprintln(os.Stderr, out)
		}
	}
}

// exitCode maps configuration mistakes to 2 and everything else to 1.
func exitCode(err error) int {
	if errors.Is(err, failure.ErrConfig) {
		return 2
	}
	return 1
}
