// Package symbolizer resolves application code offsets to function names,
// source files, line numbers and source text.
//
// Two strategies are provided. BatchSymbolizer sends every offset to
// llvm-addr2line in one invocation. LineTableSymbolizer reads the symbol
// table and decoded DWARF line table once with objdump and answers lookups
// locally.
package symbolizer

import (
	"context"
	"os"

	"github.com/ianlancetaylor/demangle"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

// Resolution is what a symbolizer learned about one offset.
type Resolution struct {
	Symbol string
	// Location is nil when the tool reported no file and line.
	Location *model.SourceLocation
	Source   string
}

// Symbolizer resolves on-disk code offsets within binary. The result has one
// entry per offset, in order. With no offsets it only checks that binary
// exists.
type Symbolizer interface {
	Name() string
	Symbolize(ctx context.Context, binary string, offsets []uint32) ([]Resolution, error)
}

// Options holds the settings shared by both strategies.
type Options struct {
	// ToolPath is the llvm-addr2line or objdump executable.
	ToolPath string
	Runner   CommandRunner
	// Fs is used for the binary existence check and source reads.
	Fs afero.Fs
	// SourceRoot is prepended to relative source paths.
	SourceRoot string
	Demangle   bool
	Logger     utils.Logger
}

func (o *Options) withDefaults(tool string) *Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.ToolPath == "" {
		out.ToolPath = tool
	}
	if out.Runner == nil {
		out.Runner = ExecRunner{}
	}
	if out.Fs == nil {
		out.Fs = afero.NewOsFs()
	}
	out.Logger = utils.OrNull(out.Logger)
	return &out
}

// Resolve symbolizes every function address in cache that has no symbol yet
// and stores the results in place. It returns the number of addresses sent
// to the symbolizer. The binary is checked even when nothing is pending.
func Resolve(ctx context.Context, s Symbolizer, binary string, cache *model.AddrCache) (int, error) {
	pending := cache.Pending()
	if len(pending) == 0 {
		_, err := s.Symbolize(ctx, binary, nil)
		return 0, err
	}

	infos := lo.Map(pending, func(addr uint32, _ int) *model.AddrInfo {
		info, _ := cache.Get(addr)
		return info
	})
	offsets := lo.Map(infos, func(info *model.AddrInfo, _ int) uint32 { return info.Addr })

	results, err := s.Symbolize(ctx, binary, offsets)
	if err != nil {
		return 0, err
	}
	if len(results) != len(offsets) {
		return 0, apperrors.Newf(apperrors.CodeSymbolicationMismatch,
			"%s returned %d results for %d addresses", s.Name(), len(results), len(offsets))
	}

	for i, info := range infos {
		info.Symbol = results[i].Symbol
		info.Location = results[i].Location
		info.Source = results[i].Source
	}
	return len(offsets), nil
}

func checkBinary(fs afero.Fs, binary string) error {
	fi, err := fs.Stat(binary)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.Newf(apperrors.CodeMissingBinaryArtifact, "can't find binary: %s", binary)
		}
		return apperrors.Wrap(apperrors.CodeMissingBinaryArtifact, "stat binary "+binary, err)
	}
	if fi.IsDir() {
		return apperrors.Newf(apperrors.CodeMissingBinaryArtifact, "binary %s is a directory", binary)
	}
	return nil
}

// demangleName returns the demangled C++ name, or name itself when it is not
// mangled or demangling is off.
func demangleName(name string, enabled bool) string {
	if !enabled {
		return name
	}
	return demangle.Filter(name, demangle.NoClones)
}
