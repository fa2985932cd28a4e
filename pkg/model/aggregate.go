package model

import (
	"sort"
	"strings"
)

// InclusiveMode selects how recursion is counted in inclusive tallies.
type InclusiveMode string

const (
	// InclusivePerFrame counts a function once for every frame it occupies,
	// so a recursive function is counted once per stack level.
	InclusivePerFrame InclusiveMode = "per_frame"
	// InclusivePerStack counts a function at most once per stack.
	InclusivePerStack InclusiveMode = "per_stack"
)

// Tallies maps a function symbol to a sample count.
type Tallies map[string]int

// Total returns the sum of all counts.
func (t Tallies) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// TallyEntry is one row of a sorted tally.
type TallyEntry struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}

// Sorted returns entries by count descending, then symbol descending, the
// same order as sorting (count, symbol) pairs in reverse.
func (t Tallies) Sorted() []TallyEntry {
	entries := make([]TallyEntry, 0, len(t))
	for sym, n := range t {
		entries = append(entries, TallyEntry{Symbol: sym, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Symbol > entries[j].Symbol
	})
	return entries
}

// LineKey identifies a source line within a function.
type LineKey struct {
	File string
	Line int
}

// FunctionSample counts the samples landing on one source line of a function.
type FunctionSample struct {
	Symbol   string `json:"symbol"`
	FilePath string `json:"file_path"`
	// FileName is the display name: path base name truncated for reports.
	FileName string `json:"file"`
	Line     int    `json:"line"`
	Source   string `json:"source"`
	Count    int    `json:"count"`
}

// FunctionLines holds the per-line samples of one function.
type FunctionLines map[LineKey]*FunctionSample

// Total returns the number of samples attributed to the function's lines.
func (f FunctionLines) Total() int {
	total := 0
	for _, s := range f {
		total += s.Count
	}
	return total
}

// Sorted returns the samples by line ascending, then by path.
func (f FunctionLines) Sorted() []*FunctionSample {
	out := make([]*FunctionSample, 0, len(f))
	for _, s := range f {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].FilePath < out[j].FilePath
	})
	return out
}

// StackTrace is a distinct symbol sequence, outermost frame first.
type StackTrace struct {
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
}

// stackKeySep cannot appear in a symbol name.
const stackKeySep = "\x1f"

// StackKey returns the map key for an outermost-first symbol sequence.
func StackKey(symbols []string) string {
	return strings.Join(symbols, stackKeySep)
}

// ResolvedStack is a usable stack with its resolved frames, innermost first.
type ResolvedStack struct {
	Addrs  []uint32
	Frames []*AddrInfo
}

// AggregateResult is the output of sample aggregation.
type AggregateResult struct {
	Inclusive       Tallies
	Exclusive       Tallies
	FunctionSamples map[string]FunctionLines
	StackTraces     map[string]*StackTrace

	// Stacks are the usable stacks in capture order.
	Stacks []ResolvedStack

	UsableStacks   int
	UnusableStacks int
}

// NewAggregateResult creates an empty result.
func NewAggregateResult() *AggregateResult {
	return &AggregateResult{
		Inclusive:       make(Tallies),
		Exclusive:       make(Tallies),
		FunctionSamples: make(map[string]FunctionLines),
		StackTraces:     make(map[string]*StackTrace),
	}
}

// SortedStackTraces returns traces by count descending, ties broken by the
// symbol sequence descending.
func (r *AggregateResult) SortedStackTraces() []*StackTrace {
	out := make([]*StackTrace, 0, len(r.StackTraces))
	for _, st := range r.StackTraces {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return StackKey(out[i].Symbols) > StackKey(out[j].Symbols)
	})
	return out
}

// FunctionNames returns the functions with line samples, sorted by name.
func (r *AggregateResult) FunctionNames() []string {
	names := make([]string, 0, len(r.FunctionSamples))
	for name := range r.FunctionSamples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Percent returns count/total as a percentage truncated (not rounded) to two
// decimals. A zero total yields 0.
func Percent(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count*10000/total) / 100.0
}
