package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/macprof-analysis/internal/analyzer"
	"github.com/macprof-analysis/internal/formatter"
	"github.com/macprof-analysis/internal/repository"
	"github.com/macprof-analysis/internal/storage"
	"github.com/macprof-analysis/pkg/config"
	"github.com/macprof-analysis/pkg/model"
)

var (
	// Analyze command flags
	runID        string
	backend      string
	reportFormat string
	analyzeFlags = pflag.NewFlagSet("analyze", pflag.ContinueOnError)
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture> <binary>",
	Short: "Symbolicate a capture and print its profile",
	Long: `Analyze decodes a capture, classifies every sampled address against the
ROM map and the binary's code segments, symbolicates the code addresses and
prints function tallies, per-line samples and stack traces.

Symbolication backends:
  - batch    : one llvm-addr2line call with JSON output (default)
  - linetable: objdump symbol table and decoded DWARF line table

Exports are written only when their path is set. With storage enabled they
are uploaded under <run-id>/; with a database enabled the run is recorded.`,
	Args: cobra.ExactArgs(2),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Example = `  ` + BinName() + ` analyze MyApp.prof MyApp.code.bin.gdb
  ` + BinName() + ` analyze MyApp.prof MyApp.code.bin.gdb --backend linetable --section-layout objdump
  ` + BinName() + ` analyze MyApp.prof MyApp.code.bin.gdb --samples-path samples.json.gz --pprof-path cpu.pb.gz`

	f := analyzeCmd.Flags()
	f.StringVar(&runID, "run-id", "", "Run identifier (generated if empty)")
	f.StringVarP(&backend, "backend", "b", "", "Symbolizer backend: "+analyzer.ValidBackends())
	f.StringVarP(&reportFormat, "format", "f", formatter.FormatText, "Report format: text or json")

	// Config overrides; applied only when set on the command line.
	analyzeFlags.String("addr2line", "", "Path to llvm-addr2line")
	analyzeFlags.String("objdump", "", "Path to objdump")
	analyzeFlags.String("section-layout", "", "Section layout: none or objdump")
	analyzeFlags.String("code-section-prefix", "", "Name prefix of per-segment code sections")
	analyzeFlags.String("source-root", "", "Directory relative line-table paths are resolved against")
	analyzeFlags.String("rom-maps", "", "Directory holding <Model>ROM.map files")
	analyzeFlags.String("rom-map", "", "Explicit ROM map file")
	analyzeFlags.StringP("output-dir", "o", "", "Directory relative export paths are written under, per run")
	analyzeFlags.String("samples-path", "", "Write per-line samples JSON (gzip when ending in .gz)")
	analyzeFlags.String("folded-path", "", "Write folded stacks for flame-graph tools")
	analyzeFlags.String("pprof-path", "", "Write a gzipped pprof profile")
	analyzeFlags.Int("function-width", 0, "Maximum displayed function name length")
	analyzeFlags.Int("filename-width", 0, "Maximum displayed file name length")
	analyzeFlags.String("inclusive-mode", "", "Inclusive counting: per_frame or per_stack")
	analyzeFlags.Bool("demangle", false, "Demangle C++ symbol names")
	f.AddFlagSet(analyzeFlags)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	if err := applyAnalyzeFlags(cfg, analyzeFlags); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reporter, err := formatter.New(reportFormat, &formatter.Options{
		FunctionMaxChars: cfg.Analysis.FunctionMaxChars,
		FilenameMaxChars: cfg.Analysis.FilenameMaxChars,
	})
	if err != nil {
		return err
	}

	opts := &analyzer.Options{Config: cfg, Logger: log}

	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		opts.Storage = store
		log.Info("Publishing exports to %s storage", cfg.Storage.Type)
	}

	if cfg.Database.Enabled {
		db, err := repository.Open(&cfg.Database, cfg.Telemetry.Enabled)
		if err != nil {
			return err
		}
		defer func() {
			if err := repository.Close(db); err != nil {
				log.Warn("Failed to close database: %v", err)
			}
		}()
		if err := repository.Migrate(db); err != nil {
			return err
		}
		opts.Repository = repository.NewGormRunRepository(db)
	}

	ana, err := analyzer.New(opts)
	if err != nil {
		return err
	}

	log.Info("Capture: %s", args[0])
	log.Info("Binary:  %s", args[1])
	log.Info("Backend: %s", cfg.Symbolizer.Backend)

	result, err := ana.Analyze(cmd.Context(), &model.AnalysisRequest{
		RunID:       runID,
		CaptureFile: args[0],
		BinaryFile:  args[1],
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	for _, f := range result.OutputFiles {
		if f.RemoteKey != "" {
			log.Info("Wrote %s: %s (published as %s)", f.Name, f.LocalPath, f.RemoteKey)
		} else {
			log.Info("Wrote %s: %s", f.Name, f.LocalPath)
		}
	}

	return reporter.Report(os.Stdout, result)
}

// applyAnalyzeFlags copies every flag the user set onto the loaded config.
func applyAnalyzeFlags(c *config.Config, fs *pflag.FlagSet) error {
	if backend != "" {
		b, err := analyzer.ParseBackend(backend)
		if err != nil {
			return err
		}
		c.Symbolizer.Backend = string(b)
	}

	stringFlags := map[string]*string{
		"addr2line":           &c.Symbolizer.Addr2LinePath,
		"objdump":             &c.Symbolizer.ObjdumpPath,
		"section-layout":      &c.Symbolizer.SectionLayout,
		"code-section-prefix": &c.Symbolizer.CodeSectionPrefix,
		"source-root":         &c.Symbolizer.SourceRoot,
		"rom-maps":            &c.ROM.MapsDir,
		"rom-map":             &c.ROM.MapFile,
		"output-dir":          &c.Analysis.OutputDir,
		"samples-path":        &c.Export.SamplesPath,
		"folded-path":         &c.Export.FoldedPath,
		"pprof-path":          &c.Export.PprofPath,
		"inclusive-mode":      &c.Analysis.InclusiveMode,
	}
	intFlags := map[string]*int{
		"function-width": &c.Analysis.FunctionMaxChars,
		"filename-width": &c.Analysis.FilenameMaxChars,
	}

	var err error
	// The flags are parsed through the command's own set, so only Changed
	// is reliable here.
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || !f.Changed {
			return
		}
		if dst, ok := stringFlags[f.Name]; ok {
			*dst, err = fs.GetString(f.Name)
			return
		}
		if dst, ok := intFlags[f.Name]; ok {
			*dst, err = fs.GetInt(f.Name)
			return
		}
		if f.Name == "demangle" {
			c.Analysis.Demangle, err = fs.GetBool(f.Name)
		}
	})
	return err
}
