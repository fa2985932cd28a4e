package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/macprof-analysis/pkg/config"
	"github.com/macprof-analysis/pkg/telemetry"
	"github.com/macprof-analysis/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger utils.Logger

	shutdownTelemetry telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "macprof",
	Short: "Symbolicate and summarize classic Mac OS sampling captures",
	Long: `macprof turns a sampling capture recorded on a classic Macintosh into a
per-function and per-line profile.

Captured return addresses are classified against the ROM map and the
application's code segments, symbolicated with llvm-addr2line or objdump,
and aggregated into inclusive and exclusive tallies, line samples and
stack traces.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			level = utils.LevelDebug
		}
		l := utils.NewDefaultLogger(level, os.Stderr)
		if cfg.Log.File != "" {
			if l, err = utils.NewFileLogger(level, cfg.Log.File); err != nil {
				return err
			}
		}
		l.SetFormat(utils.ParseLogFormat(cfg.Log.Format))
		logger = l

		shutdown, err := telemetry.Init(cmd.Context(), telemetry.NewConfig(cfg.Telemetry, Version))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		shutdownTelemetry = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTelemetry == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("Failed to flush traces: %v", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default ./macprof.yaml or ./configs/macprof.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Symbolicate a capture with llvm-addr2line
  ` + binName + ` analyze MyApp.prof MyApp.code.bin.gdb

  # Use objdump line tables and write a flame-graph input
  ` + binName + ` analyze MyApp.prof MyApp.code.bin.gdb --backend linetable --folded-path out.folded

  # List stored runs
  ` + binName + ` runs --limit 10`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return utils.OrNull(logger)
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
