package symbolizer

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/macprof-analysis/pkg/errors"
)

// SymbolKind is the type column of an objdump symbol table entry.
type SymbolKind byte

const (
	KindFunction SymbolKind = 'F'
	KindObject   SymbolKind = 'O'
	KindFile     SymbolKind = 'f'
	KindOther    SymbolKind = ' '
)

// Symbol is one row of the symbol table.
type Symbol struct {
	Kind    SymbolKind
	Name    string
	Section string
	Size    uint32
}

// SymbolTable indexes symbols by address. At most one function may start at
// a given address.
type SymbolTable struct {
	byAddr    map[uint32][]Symbol
	functions map[uint32]string
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byAddr:    make(map[uint32][]Symbol),
		functions: make(map[uint32]string),
	}
}

// Add inserts a symbol. A second function at the same address is an error.
func (t *SymbolTable) Add(addr uint32, sym Symbol) error {
	if sym.Kind == KindFunction {
		if existing, ok := t.functions[addr]; ok {
			return apperrors.Newf(apperrors.CodeAmbiguousSymbol,
				"functions %s and %s both start at 0x%x", existing, sym.Name, addr)
		}
		t.functions[addr] = sym.Name
	}
	t.byAddr[addr] = append(t.byAddr[addr], sym)
	return nil
}

// FunctionAt returns the function starting exactly at addr.
func (t *SymbolTable) FunctionAt(addr uint32) (string, bool) {
	name, ok := t.functions[addr]
	return name, ok
}

// At returns every symbol at addr.
func (t *SymbolTable) At(addr uint32) []Symbol {
	return t.byAddr[addr]
}

// Functions returns the number of function symbols.
func (t *SymbolTable) Functions() int {
	return len(t.functions)
}

// symbolLine matches "objdump -t -w" rows:
//
//	00000004 g     F .text	00000010 foo
//
// The last of the seven flag characters is the symbol type.
var symbolLine = regexp.MustCompile(`^([0-9a-fA-F]+) (.{7}) (\S+)\s+([0-9a-fA-F]+)\s+(.+)$`)

// ParseSymbolTable parses "objdump -t -w" output.
func ParseSymbolTable(out []byte, demangle bool) (*SymbolTable, error) {
	table := NewSymbolTable()

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := symbolLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		addr, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			continue
		}
		size, err := strconv.ParseUint(m[4], 16, 32)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeParseError, "bad symbol size "+m[4], err)
		}

		fields := strings.Fields(m[5])
		name := fields[len(fields)-1]

		sym := Symbol{
			Kind:    SymbolKind(m[2][6]),
			Name:    demangleName(name, demangle),
			Section: m[3],
			Size:    uint32(size),
		}
		if err := table.Add(uint32(addr), sym); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "read symbol table", err)
	}
	return table, nil
}
