// Package rommap loads firmware symbol tables from MPW link maps of the
// machine ROM.
package rommap

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/macprof-analysis/pkg/collections"
	apperrors "github.com/macprof-analysis/pkg/errors"
)

// SymbolTable maps firmware-relative addresses to ROM routine names.
type SymbolTable struct {
	// Size is the length of the ROM segment, zero if the map has no size line.
	Size    uint32
	symbols *collections.FloorMap[uint32, string]
}

// NewSymbolTable creates an empty table of the given size.
func NewSymbolTable(size uint32) *SymbolTable {
	return &SymbolTable{Size: size, symbols: collections.NewFloorMap[uint32, string]()}
}

// Add registers a routine at a firmware-relative address.
func (t *SymbolTable) Add(addr uint32, name string) {
	t.symbols.Put(addr, name)
}

// Lookup returns the routine at or nearest below addr.
func (t *SymbolTable) Lookup(addr uint32) (string, bool) {
	_, name, ok := t.symbols.Floor(addr)
	return name, ok
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	return t.symbols.Len()
}

// FileName derives the map file name from a machine model string, e.g.
// "Macintosh SE/30" becomes "MacSE30ROM.map".
func FileName(model string) string {
	name := strings.ReplaceAll(model, " ", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "Macintosh", "Mac")
	return name + "ROM.map"
}

// Loader reads ROM maps through an afero filesystem.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a loader. A nil fs means the OS filesystem.
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// LoadForModel loads <mapsDir>/<FileName(model)>.
func (l *Loader) LoadForModel(mapsDir, model string) (*SymbolTable, error) {
	return l.LoadFile(filepath.Join(mapsDir, FileName(model)))
}

// LoadFile loads a map from an explicit path.
func (l *Loader) LoadFile(path string) (*SymbolTable, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, "open ROM map "+path, err)
	}
	defer f.Close()

	table, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ROM map %s: %w", path, err)
	}
	return table, nil
}

// Parse reads a map. Only entries inside a segment whose name starts with
// "ROM" are kept. Indented lines are segment headers (" seg", " size");
// unindented lines with at least three fields are symbols whose address is
// the hex number after the comma in the third field.
func Parse(r io.Reader) (*SymbolTable, error) {
	table := NewSymbolTable(0)
	inROM := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		words := strings.Fields(line)

		if strings.HasPrefix(line, " ") {
			if strings.HasPrefix(line, " seg") {
				inROM = len(words) > 1 && strings.HasPrefix(words[1], "ROM")
			}
			if strings.HasPrefix(line, " size") && inROM {
				if len(words) < 2 {
					return nil, apperrors.Newf(apperrors.CodeParseError, "line %d: size line has no value", lineNum)
				}
				// " size 00040000" and " size = 00040000" both occur.
				size, err := parseHex(words[min(2, len(words)-1)])
				if err != nil {
					return nil, apperrors.Wrap(apperrors.CodeParseError, fmt.Sprintf("line %d: bad size", lineNum), err)
				}
				table.Size = size
			}
			continue
		}

		if !inROM || len(words) < 3 {
			continue
		}

		_, addrText, ok := strings.Cut(words[2], ",")
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeParseError, "line %d: no address in %q", lineNum, words[2])
		}
		addr, err := parseHex(addrText)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeParseError, fmt.Sprintf("line %d: bad address", lineNum), err)
		}
		table.Add(addr, words[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "read ROM map", err)
	}

	return table, nil
}

func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}
