package symbolizer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/macprof-analysis/pkg/collections"
	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
)

// DefaultObjdump is the objdump executable name.
const DefaultObjdump = "objdump"

// Placeholder values for offsets with no line-table entry at or below them.
const (
	NoFile            = "NOFILE"
	placeholderPrefix = "unknown_"
)

// LineEntry is one row of the address-to-line index. A terminator marks the
// end of a block and carries no line or function.
type LineEntry struct {
	File       string
	Line       int
	Function   string
	Terminator bool
}

// LineTable maps code offsets to line entries with nearest-at-or-below
// lookups, and remembers the full path of every file base name it saw.
type LineTable struct {
	entries *collections.FloorMap[uint32, LineEntry]
	paths   map[string]string
}

// NewLineTable creates an empty table.
func NewLineTable() *LineTable {
	return &LineTable{
		entries: collections.NewFloorMap[uint32, LineEntry](),
		paths:   make(map[string]string),
	}
}

// Lookup returns the entry at or nearest below addr.
func (t *LineTable) Lookup(addr uint32) (LineEntry, bool) {
	_, e, ok := t.entries.Floor(addr)
	return e, ok
}

// Len returns the number of indexed addresses.
func (t *LineTable) Len() int {
	return t.entries.Len()
}

// FullPath maps a base name back to the path it was declared with.
func (t *LineTable) FullPath(name string) string {
	if p, ok := t.paths[name]; ok {
		return p
	}
	return name
}

var (
	// lineEntry matches "<file> <line|-> <0xaddr> [view] [stmt]". objdump
	// prints a zero address as a bare "0".
	lineEntry = regexp.MustCompile(`^(\S+)\s+(\d+|-)\s+(0x[0-9a-fA-F]+|0)(\s.*)?$`)
	// unitHeader matches "CU: ./src/main.c:".
	unitHeader = regexp.MustCompile(`^CU:\s+(.+):$`)
)

// lineDecodeState is threaded through the decode loop.
type lineDecodeState struct {
	file string
	// blockStart is set after a file switch or an end-of-block marker; the
	// next entry opens a new block.
	blockStart bool
	// blockValid is false for blocks starting at address zero, which is
	// where the linker leaves code it discarded.
	blockValid bool
	function   string
}

// ParseLineTable decodes "objdump --dwarf=decodedline -w" output. Block
// start addresses are matched against the functions of symbols; a valid
// block whose start is not a function is an OrphanBlock error.
func ParseLineTable(out []byte, symbols *SymbolTable) (*LineTable, error) {
	table := NewLineTable()
	st := lineDecodeState{blockStart: true}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Contents of") || strings.HasPrefix(line, "File name") {
			continue
		}

		if m := lineEntry.FindStringSubmatch(line); m != nil {
			if err := st.entry(table, symbols, m[1], m[2], m[3]); err != nil {
				return nil, fmt.Errorf("line table line %d: %w", lineNum, err)
			}
			continue
		}

		if m := unitHeader.FindStringSubmatch(line); m != nil {
			st.switchFile(table, m[1])
			continue
		}
		if strings.HasSuffix(line, ":") {
			st.switchFile(table, strings.TrimSuffix(line, ":"))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "read line table", err)
	}
	return table, nil
}

func (st *lineDecodeState) switchFile(table *LineTable, path string) {
	table.paths[filepath.Base(path)] = path
	st.file = path
	st.blockStart = true
}

func (st *lineDecodeState) entry(table *LineTable, symbols *SymbolTable, file, lineText, addrText string) error {
	addr64, err := strconv.ParseUint(addrText, 0, 32)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeParseError, "bad address "+addrText, err)
	}
	addr := uint32(addr64)

	if lineText == "-" {
		// Sequences are not listed in address order; a block that starts
		// where this one ends keeps its first row.
		if st.blockValid && !st.blockStart {
			if prev, ok := table.entries.Get(addr); !ok || prev.Terminator {
				table.entries.Put(addr, LineEntry{File: file, Terminator: true})
			}
		}
		st.blockStart = true
		return nil
	}

	if st.blockStart {
		st.blockStart = false
		if addr == 0 {
			st.blockValid = false
		} else {
			fn, ok := symbols.FunctionAt(addr)
			if !ok {
				return apperrors.Newf(apperrors.CodeOrphanBlock, "no function starts at block address 0x%x (%s)", addr, file)
			}
			st.blockValid = true
			st.function = fn
		}
	}
	if !st.blockValid {
		return nil
	}

	n, err := strconv.Atoi(lineText)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeParseError, "bad line number "+lineText, err)
	}
	table.entries.Put(addr, LineEntry{File: file, Line: n, Function: st.function})
	return nil
}

// LineTableSymbolizer resolves offsets from the binary's symbol table and
// decoded line table, both read once per Symbolize call.
type LineTableSymbolizer struct {
	opts        *Options
	sources     *SourceCache
	placeholder int
}

// NewLineTableSymbolizer creates a line-table symbolizer.
func NewLineTableSymbolizer(opts *Options) *LineTableSymbolizer {
	o := opts.withDefaults(DefaultObjdump)
	return &LineTableSymbolizer{
		opts:    o,
		sources: NewSourceCache(o.Fs, o.SourceRoot),
	}
}

// Name returns the backend name.
func (l *LineTableSymbolizer) Name() string {
	return string(model.BackendLineTable)
}

// Symbolize implements Symbolizer. Offsets with no entry at or below them,
// or that land past the end of a block, get a numbered placeholder symbol in
// file NOFILE at line 0.
func (l *LineTableSymbolizer) Symbolize(ctx context.Context, binary string, offsets []uint32) ([]Resolution, error) {
	if err := checkBinary(l.opts.Fs, binary); err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return nil, nil
	}

	table, err := l.Load(ctx, binary)
	if err != nil {
		return nil, err
	}

	results := make([]Resolution, len(offsets))
	placeholders := 0
	for i, off := range offsets {
		entry, ok := table.Lookup(off)
		if !ok || entry.Terminator {
			results[i] = l.newPlaceholder()
			placeholders++
			continue
		}

		path := table.FullPath(entry.File)
		results[i] = Resolution{
			Symbol:   entry.Function,
			Location: &model.SourceLocation{File: path, Line: entry.Line},
			Source:   strings.TrimSpace(l.sources.Text(path, entry.Line)),
		}
	}

	if placeholders > 0 {
		l.opts.Logger.Warn("%d addresses have no line table entry", placeholders)
	}
	return results, nil
}

// Load builds the line table for binary.
func (l *LineTableSymbolizer) Load(ctx context.Context, binary string) (*LineTable, error) {
	symOut, err := l.opts.Runner.Run(ctx, l.opts.ToolPath, "-t", "-w", binary)
	if err != nil {
		return nil, err
	}
	symbols, err := ParseSymbolTable(symOut, l.opts.Demangle)
	if err != nil {
		return nil, err
	}

	lineOut, err := l.opts.Runner.Run(ctx, l.opts.ToolPath, "--dwarf=decodedline", "-w", binary)
	if err != nil {
		return nil, err
	}
	table, err := ParseLineTable(lineOut, symbols)
	if err != nil {
		return nil, err
	}

	l.opts.Logger.Debug("Line table: %d functions, %d entries", symbols.Functions(), table.Len())
	return table, nil
}

func (l *LineTableSymbolizer) newPlaceholder() Resolution {
	l.placeholder++
	return Resolution{
		Symbol:   fmt.Sprintf("%s%d", placeholderPrefix, l.placeholder),
		Location: &model.SourceLocation{File: NoFile, Line: 0},
	}
}
