// Package analyzer drives one capture through decoding, classification,
// symbolication, aggregation and export.
package analyzer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/macprof-analysis/internal/aggregator"
	"github.com/macprof-analysis/internal/capture"
	"github.com/macprof-analysis/internal/classifier"
	"github.com/macprof-analysis/internal/export"
	"github.com/macprof-analysis/internal/repository"
	"github.com/macprof-analysis/internal/rommap"
	"github.com/macprof-analysis/internal/storage"
	"github.com/macprof-analysis/internal/symbolizer"
	"github.com/macprof-analysis/pkg/config"
	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/telemetry"
	"github.com/macprof-analysis/pkg/utils"
)

// Stage names, also used as span names and timing keys.
const (
	StageDecode    = "decode"
	StageROMMap    = "rom_map"
	StageLayout    = "layout"
	StageClassify  = "classify"
	StageSymbolize = "symbolize"
	StageAggregate = "aggregate"
	StageExport    = "export"
	StagePublish   = "publish"
	StageSave      = "save"
)

// Options wires the analyzer to its collaborators. Storage and Repository
// are optional.
type Options struct {
	Config *config.Config

	// Runner executes the external symbolication tools.
	Runner symbolizer.CommandRunner

	// Fs serves ROM maps, the binary check and source files.
	Fs afero.Fs

	Storage    storage.Storage
	Repository repository.RunRepository

	Logger utils.Logger
	Clock  utils.Clock
}

// Analyzer runs the full pipeline for one capture at a time.
type Analyzer struct {
	cfg        *config.Config
	decoder    *capture.Decoder
	roms       *rommap.Loader
	layout     *symbolizer.SectionLayout
	symbolizer symbolizer.Symbolizer
	aggregator *aggregator.Aggregator
	publisher  *storage.Publisher
	repo       repository.RunRepository
	logger     utils.Logger
	clock      utils.Clock
}

// New validates the configuration and builds an Analyzer.
func New(opts *Options) (*Analyzer, error) {
	if opts == nil || opts.Config == nil {
		return nil, fmt.Errorf("analyzer config is required")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := utils.OrNull(opts.Logger)
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	runner := opts.Runner
	if runner == nil {
		runner = symbolizer.ExecRunner{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = utils.NewRealClock()
	}

	sym, err := NewSymbolizer(cfg, runner, fs, logger)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		cfg: cfg,
		decoder: capture.NewDecoder(&capture.DecoderOptions{
			ReturnBias: uint32(cfg.Analysis.ReturnBias),
			Logger:     logger,
		}),
		roms:       rommap.NewLoader(fs),
		layout:     symbolizer.NewSectionLayout(runner, cfg.Symbolizer.ObjdumpPath, cfg.Symbolizer.CodeSectionPrefix, logger),
		symbolizer: sym,
		aggregator: aggregator.New(&aggregator.Options{
			InclusiveMode:    model.InclusiveMode(cfg.Analysis.InclusiveMode),
			FilenameMaxChars: cfg.Analysis.FilenameMaxChars,
			Logger:           logger,
		}),
		repo:   opts.Repository,
		logger: logger,
		clock:  clock,
	}
	if opts.Storage != nil {
		a.publisher = storage.NewPublisher(opts.Storage, logger)
	}
	return a, nil
}

// Analyze runs every stage for req. Export, publish and save run only when
// configured.
func (a *Analyzer) Analyze(ctx context.Context, req *model.AnalysisRequest) (result *model.AnalysisResult, err error) {
	if req == nil || req.CaptureFile == "" || req.BinaryFile == "" {
		return nil, ErrMissingInput
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, span := telemetry.StartSpan(ctx, "analyze",
		attribute.String("run_id", runID),
		attribute.String("capture", req.CaptureFile),
		attribute.String("binary", req.BinaryFile),
		attribute.String("backend", a.symbolizer.Name()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	logger := a.logger.WithField("run_id", runID)
	timer := utils.NewTimer("analyze", utils.WithLogger(logger), utils.WithClock(a.clock))
	defer timer.PrintSummary()

	result = &model.AnalysisResult{
		RunID:       runID,
		CaptureFile: req.CaptureFile,
		BinaryFile:  req.BinaryFile,
		Backend:     model.Backend(a.symbolizer.Name()),
	}

	var capt *model.Capture
	if err := a.stage(ctx, timer, StageDecode, func(ctx context.Context) error {
		var err error
		capt, err = a.decoder.DecodeFile(ctx, req.CaptureFile)
		return err
	}); err != nil {
		return nil, err
	}
	result.Model = capt.Model
	result.TotalStacks = len(capt.Stacks)
	logger.Info("Decoded capture: model=%q segments=%d stacks=%d", capt.Model, len(capt.Segments), len(capt.Stacks))

	var firmware *rommap.SymbolTable
	if err := a.stage(ctx, timer, StageROMMap, func(context.Context) error {
		var err error
		firmware, err = a.loadROMMap(capt.Model)
		if err != nil {
			return err
		}
		capt.FirmwareSize = firmware.Size
		return nil
	}); err != nil {
		return nil, err
	}
	logger.Debug("ROM map: %d symbols, firmware size 0x%x", firmware.Len(), firmware.Size)

	if err := a.stage(ctx, timer, StageLayout, func(ctx context.Context) error {
		if a.cfg.EffectiveSectionLayout() == config.LayoutObjdump {
			return a.layout.Apply(ctx, req.BinaryFile, capt)
		}
		return symbolizer.ApplyNoLayout(capt)
	}); err != nil {
		return nil, err
	}

	cache := model.NewAddrCache()
	var kept []model.RawStack
	_ = a.stage(ctx, timer, StageClassify, func(context.Context) error {
		var stats classifier.Stats
		kept, stats = classifier.New(capt, firmware, cache, logger).ClassifyStacks(capt.Stacks)
		result.UnresolvedStacks = stats.Dropped()
		return nil
	})

	if err := a.stage(ctx, timer, StageSymbolize, func(ctx context.Context) error {
		n, err := symbolizer.Resolve(ctx, a.symbolizer, req.BinaryFile, cache)
		if err == nil {
			logger.Info("Symbolized %d addresses with %s", n, a.symbolizer.Name())
		}
		return err
	}); err != nil {
		return nil, err
	}
	result.Cache = cache

	_ = a.stage(ctx, timer, StageAggregate, func(context.Context) error {
		result.Aggregate = a.aggregator.Aggregate(kept, cache)
		return nil
	})
	logger.Info("Aggregated: usable=%d unusable=%d", result.UsableStacks(), result.UnusableStacks())

	outDir := req.OutputDir
	if outDir == "" && a.cfg.Analysis.OutputDir != "" {
		outDir = a.cfg.GetRunDir(runID)
	}
	if err := a.stage(ctx, timer, StageExport, func(context.Context) error {
		files, err := a.writeExports(result, req.BinaryFile, outDir)
		result.OutputFiles = files
		return err
	}); err != nil {
		return nil, err
	}

	if a.publisher != nil && len(result.OutputFiles) > 0 {
		if err := a.stage(ctx, timer, StagePublish, func(ctx context.Context) error {
			files, err := a.publisher.Publish(ctx, runID, result.OutputFiles)
			if err == nil {
				result.OutputFiles = files
			}
			return err
		}); err != nil {
			return nil, err
		}
	}

	result.AnalyzedAt = a.clock.Now()
	result.Timings = timer.ToMap()

	if a.repo != nil {
		if err := a.stage(ctx, timer, StageSave, func(ctx context.Context) error {
			return a.repo.SaveRun(ctx, result)
		}); err != nil {
			return nil, err
		}
		result.Timings = timer.ToMap()
	}

	return result, nil
}

// stage runs fn inside a span and a timed phase.
func (a *Analyzer) stage(ctx context.Context, timer *utils.Timer, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, name)
	phase := timer.Start(name)
	err := fn(ctx)
	phase.Stop()
	telemetry.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (a *Analyzer) loadROMMap(machine string) (*rommap.SymbolTable, error) {
	if a.cfg.ROM.MapFile != "" {
		return a.roms.LoadFile(a.cfg.ROM.MapFile)
	}
	return a.roms.LoadForModel(a.cfg.ROM.MapsDir, machine)
}

// writeExports writes every configured export. Relative paths are placed
// under outDir.
func (a *Analyzer) writeExports(result *model.AnalysisResult, binary, outDir string) ([]model.OutputFile, error) {
	agg := result.Aggregate
	exports := []struct {
		name  string
		path  string
		write func(path string) error
	}{
		{"samples", a.cfg.Export.SamplesPath, func(p string) error { return export.WriteSamples(agg, p) }},
		{"folded", a.cfg.Export.FoldedPath, func(p string) error { return export.WriteFoldedFile(agg, p) }},
		{"pprof", a.cfg.Export.PprofPath, func(p string) error { return export.WritePprofFile(agg, binary, p) }},
	}

	var files []model.OutputFile
	for _, e := range exports {
		if e.path == "" {
			continue
		}
		path := e.path
		if outDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(outDir, path)
		}
		if err := e.write(path); err != nil {
			return files, fmt.Errorf("%s export: %w", e.name, err)
		}
		files = append(files, model.OutputFile{Name: e.name, LocalPath: path})
	}
	return files, nil
}
