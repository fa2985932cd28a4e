package symbolizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
)

// DefaultAddr2Line is the llvm-addr2line executable name.
const DefaultAddr2Line = "llvm-addr2line"

// addr2lineResult is one element of llvm-addr2line --output-style=JSON.
type addr2lineResult struct {
	Address    string            `json:"Address"`
	ModuleName string            `json:"ModuleName"`
	Symbol     []addr2lineSymbol `json:"Symbol"`
}

type addr2lineSymbol struct {
	FunctionName string `json:"FunctionName"`
	FileName     string `json:"FileName"`
	Line         int    `json:"Line"`
	// Source is absent when the file could not be read.
	Source *string `json:"Source"`
}

// sourceMarker matches the "  10 >: " prefix llvm puts on the context line.
var sourceMarker = regexp.MustCompile(`^\s*\d+\s*>:\s?`)

// BatchSymbolizer resolves all offsets in a single llvm-addr2line call.
type BatchSymbolizer struct {
	opts *Options
}

// NewBatchSymbolizer creates a batch symbolizer.
func NewBatchSymbolizer(opts *Options) *BatchSymbolizer {
	return &BatchSymbolizer{opts: opts.withDefaults(DefaultAddr2Line)}
}

// Name returns the backend name.
func (b *BatchSymbolizer) Name() string {
	return string(model.BackendBatch)
}

// Symbolize implements Symbolizer. Every offset must map to exactly one
// function; zero or several candidates abort the run.
func (b *BatchSymbolizer) Symbolize(ctx context.Context, binary string, offsets []uint32) ([]Resolution, error) {
	if err := checkBinary(b.opts.Fs, binary); err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return nil, nil
	}

	args := []string{"--output-style=JSON", "--print-source-context-lines=1", "-f", "-e", binary}
	for _, off := range offsets {
		args = append(args, fmt.Sprintf("0x%x", off))
	}

	b.opts.Logger.Debug("Running %s on %d addresses", b.opts.ToolPath, len(offsets))
	out, err := b.opts.Runner.Run(ctx, b.opts.ToolPath, args...)
	if err != nil {
		return nil, err
	}

	entries, err := parseAddr2LineJSON(out)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(offsets) {
		return nil, apperrors.Newf(apperrors.CodeSymbolicationMismatch,
			"mis-matched data from addr2line: %d results for %d addresses", len(entries), len(offsets))
	}

	results := make([]Resolution, len(entries))
	for i, entry := range entries {
		switch len(entry.Symbol) {
		case 0:
			return nil, apperrors.Newf(apperrors.CodeNoSymbol, "code offset 0x%x has no associated symbol", offsets[i])
		case 1:
		default:
			return nil, apperrors.Newf(apperrors.CodeAmbiguousSymbol,
				"code offset 0x%x has %d associated symbols", offsets[i], len(entry.Symbol))
		}

		sym := entry.Symbol[0]
		// llvm-addr2line prints "??" when the address has no function.
		if sym.FunctionName == "" || sym.FunctionName == "??" {
			return nil, apperrors.Newf(apperrors.CodeNoSymbol, "code offset 0x%x has no associated symbol", offsets[i])
		}
		res := Resolution{Symbol: demangleName(sym.FunctionName, b.opts.Demangle)}
		if sym.FileName != "" && sym.Source != nil {
			res.Location = &model.SourceLocation{File: sym.FileName, Line: sym.Line}
			res.Source = cleanSourceLine(*sym.Source)
		}
		results[i] = res
	}
	return results, nil
}

// parseAddr2LineJSON accepts either a single JSON array or a stream of JSON
// objects, one per address; llvm emits the latter when reading stdin.
func parseAddr2LineJSON(out []byte) ([]addr2lineResult, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var entries []addr2lineResult
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSymbolicationMismatch, "decode addr2line output", err)
		}
		return entries, nil
	}

	var entries []addr2lineResult
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var entry addr2lineResult
		err := dec.Decode(&entry)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSymbolicationMismatch, "decode addr2line output", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// cleanSourceLine keeps only the code of the marked context line.
func cleanSourceLine(src string) string {
	for _, line := range strings.Split(src, "\n") {
		if sourceMarker.MatchString(line) {
			return sourceMarker.ReplaceAllString(line, "")
		}
	}
	return strings.TrimRight(src, "\n")
}
