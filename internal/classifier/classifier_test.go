package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macprof-analysis/internal/rommap"
	"github.com/macprof-analysis/pkg/model"
)

func newTestClassifier(t *testing.T) (*Classifier, *model.AddrCache) {
	t.Helper()

	rom := rommap.NewSymbolTable(0x40000)
	rom.Add(0x0, "_Start")
	rom.Add(0x1a30, "_InitGraf")

	capture := &model.Capture{
		FirmwareBase: 0x40800000,
		FirmwareSize: rom.Size,
		Segments: []model.CodeSegment{
			{ID: 1, Start: 0x1000, End: 0x2000},
			{ID: 2, Start: 0x3000, End: 0x3800, SectionStart: 0x10000, SectionEnd: 0x10800},
		},
	}
	cache := model.NewAddrCache()
	return New(capture, rom, cache, nil), cache
}

func TestClassifier_Classify(t *testing.T) {
	c, _ := newTestClassifier(t)

	tests := []struct {
		name   string
		addr   uint32
		kind   model.AddrKind
		xlated uint32
		symbol string
	}{
		{"first segment start", 0x1004, model.AddrFunction, 0x1004, ""},
		{"second segment translated", 0x3010, model.AddrFunction, 0x10010, ""},
		{"segment end is exclusive", 0x2000, model.AddrUnresolved, 0x2000, ""},
		{"gap between segments", 0x2800, model.AddrUnresolved, 0x2800, ""},
		{"below every segment", 0x0400, model.AddrUnresolved, 0x0400, ""},
		{"firmware base", 0x40800000, model.AddrTrap, 0x0, "_Start"},
		{"firmware nearest below", 0x40801b00, model.AddrTrap, 0x1b00, "_InitGraf"},
		{"last firmware byte", 0x4083ffff, model.AddrTrap, 0x3ffff, "_InitGraf"},
		{"past firmware end", 0x40840000, model.AddrUnresolved, 0x40840000, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := c.Classify(tt.addr)
			assert.Equal(t, tt.kind, info.Kind)
			assert.Equal(t, tt.xlated, info.Addr)
			assert.Equal(t, tt.symbol, info.Symbol)
		})
	}
}

func TestClassifier_TrapWithoutSymbol(t *testing.T) {
	rom := rommap.NewSymbolTable(0x1000)
	rom.Add(0x800, "_Late")
	capture := &model.Capture{FirmwareBase: 0x400000, FirmwareSize: rom.Size}

	c := New(capture, rom, model.NewAddrCache(), nil)
	info := c.Classify(0x400010)
	assert.Equal(t, model.AddrTrap, info.Kind)
	assert.False(t, info.HasSymbol())
}

func TestClassifier_IsIdempotent(t *testing.T) {
	c, cache := newTestClassifier(t)

	first := c.Classify(0x1004)
	first.Symbol = "foo"
	second := c.Classify(0x1004)

	assert.Same(t, first, second)
	assert.Equal(t, "foo", second.Symbol)
	assert.Equal(t, 1, cache.Len())
}

func TestClassifier_ClassifyStacks(t *testing.T) {
	c, cache := newTestClassifier(t)

	stacks := []model.RawStack{
		{0x1004, 0x1100},
		{},
		{0x1004, 0x40840004, 0x1500},
		{0x40800010, 0x3010},
	}

	kept, stats := c.ClassifyStacks(stacks)

	require.Len(t, kept, 2)
	assert.Equal(t, stacks[0], kept[0])
	assert.Equal(t, stacks[3], kept[1])
	assert.Equal(t, Stats{TotalStacks: 4, EmptyStacks: 1, UnresolvedStacks: 1, KeptStacks: 2}, stats)
	assert.Equal(t, 2, stats.Dropped())
	assert.Equal(t, stats.TotalStacks, stats.KeptStacks+stats.Dropped())

	_, classified := cache.Get(0x1500)
	assert.False(t, classified, "frames after an unresolved address are skipped")
	assert.Equal(t, []uint32{0x1004, 0x1100, 0x3010}, cache.Pending())
}

func TestClassifier_ReturnAddressCorrection(t *testing.T) {
	c, _ := newTestClassifier(t)

	raw := uint32(0x1006)
	info := c.Classify(raw - model.ReturnAddressBias)
	assert.Equal(t, uint32(0x1004), info.Addr)
}
