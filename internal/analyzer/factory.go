package analyzer

import (
	"github.com/spf13/afero"

	"github.com/macprof-analysis/internal/symbolizer"
	"github.com/macprof-analysis/pkg/config"
	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

// NewSymbolizer builds the backend named in cfg.
func NewSymbolizer(cfg *config.Config, runner symbolizer.CommandRunner, fs afero.Fs, logger utils.Logger) (symbolizer.Symbolizer, error) {
	backend, err := ParseBackend(cfg.Symbolizer.Backend)
	if err != nil {
		return nil, err
	}

	opts := &symbolizer.Options{
		Runner:     runner,
		Fs:         fs,
		SourceRoot: cfg.Symbolizer.SourceRoot,
		Demangle:   cfg.Analysis.Demangle,
		Logger:     logger,
	}

	switch backend {
	case model.BackendLineTable:
		opts.ToolPath = cfg.Symbolizer.ObjdumpPath
		return symbolizer.NewLineTableSymbolizer(opts), nil
	default:
		opts.ToolPath = cfg.Symbolizer.Addr2LinePath
		return symbolizer.NewBatchSymbolizer(opts), nil
	}
}
