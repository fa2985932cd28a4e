// Package aggregator turns symbolized stacks into sample tallies.
package aggregator

import (
	"path/filepath"

	"github.com/samber/lo"

	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

// DefaultFilenameMaxChars is the display width of file names.
const DefaultFilenameMaxChars = 14

// Options holds configuration options for aggregation.
type Options struct {
	InclusiveMode    model.InclusiveMode
	FilenameMaxChars int
	Logger           utils.Logger
}

// DefaultOptions returns default aggregation options.
func DefaultOptions() *Options {
	return &Options{
		InclusiveMode:    model.InclusivePerFrame,
		FilenameMaxChars: DefaultFilenameMaxChars,
	}
}

// Aggregator counts samples per function, per source line and per distinct
// stack.
type Aggregator struct {
	opts   *Options
	logger utils.Logger
}

// New creates an aggregator.
func New(opts *Options) *Aggregator {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.InclusiveMode == "" {
		opts.InclusiveMode = model.InclusivePerFrame
	}
	if opts.FilenameMaxChars <= 0 {
		opts.FilenameMaxChars = DefaultFilenameMaxChars
	}
	return &Aggregator{opts: opts, logger: utils.OrNull(opts.Logger)}
}

// Aggregate tallies stacks whose frames were all classified into cache. A
// stack with any frame lacking a symbol is counted as unusable and
// contributes to nothing else.
func (a *Aggregator) Aggregate(stacks []model.RawStack, cache *model.AddrCache) *model.AggregateResult {
	result := model.NewAggregateResult()

	for _, stack := range stacks {
		frames, ok := resolveFrames(stack, cache)
		if !ok {
			result.UnusableStacks++
			continue
		}
		result.UsableStacks++
		a.add(result, stack, frames)
	}

	a.logger.Info("Aggregated %d usable stacks (%d unusable), %d functions, %d distinct traces",
		result.UsableStacks, result.UnusableStacks, len(result.Inclusive), len(result.StackTraces))
	return result
}

func resolveFrames(stack model.RawStack, cache *model.AddrCache) ([]*model.AddrInfo, bool) {
	if len(stack) == 0 {
		return nil, false
	}
	frames := make([]*model.AddrInfo, len(stack))
	for i, addr := range stack {
		info, ok := cache.Get(addr)
		if !ok {
			return nil, false
		}
		frames[i] = info
	}
	return frames, lo.EveryBy(frames, func(f *model.AddrInfo) bool { return f.HasSymbol() })
}

func (a *Aggregator) add(result *model.AggregateResult, stack model.RawStack, frames []*model.AddrInfo) {
	symbols := lo.Map(frames, func(f *model.AddrInfo, _ int) string { return f.Symbol })

	result.Exclusive[symbols[0]]++

	inclusive := symbols
	if a.opts.InclusiveMode == model.InclusivePerStack {
		inclusive = lo.Uniq(symbols)
	}
	for _, sym := range inclusive {
		result.Inclusive[sym]++
	}

	for _, f := range frames {
		a.addLine(result, f)
	}

	outermostFirst := make([]string, len(symbols))
	for i, sym := range symbols {
		outermostFirst[len(symbols)-1-i] = sym
	}
	key := model.StackKey(outermostFirst)
	if st, ok := result.StackTraces[key]; ok {
		st.Count++
	} else {
		result.StackTraces[key] = &model.StackTrace{Symbols: outermostFirst, Count: 1}
	}

	result.Stacks = append(result.Stacks, model.ResolvedStack{Addrs: stack, Frames: frames})
}

// addLine counts one frame against its source line. Traps and frames without
// file and line are skipped.
func (a *Aggregator) addLine(result *model.AggregateResult, f *model.AddrInfo) {
	if f.Kind == model.AddrTrap || !f.HasLocation() {
		return
	}

	lines, ok := result.FunctionSamples[f.Symbol]
	if !ok {
		lines = make(model.FunctionLines)
		result.FunctionSamples[f.Symbol] = lines
	}

	key := model.LineKey{File: f.Location.File, Line: f.Location.Line}
	if s, ok := lines[key]; ok {
		s.Count++
		return
	}
	lines[key] = &model.FunctionSample{
		Symbol:   f.Symbol,
		FilePath: f.Location.File,
		FileName: utils.Truncate(filepath.Base(f.Location.File), a.opts.FilenameMaxChars),
		Line:     f.Location.Line,
		Source:   f.Source,
		Count:    1,
	}
}
