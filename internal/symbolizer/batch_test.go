package symbolizer

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
)

const testBinary = "/build/App.code.bin.gdb"

func newBatch(t *testing.T, output string) (*BatchSymbolizer, *fakeRunner) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testBinary, []byte("ELF"), 0644))

	runner := newFakeRunner()
	runner.outputs["--output-style=JSON"] = output
	return NewBatchSymbolizer(&Options{ToolPath: "llvm-addr2line-19", Runner: runner, Fs: fs}), runner
}

func TestBatchSymbolizer_Symbolize(t *testing.T) {
	output := `[
{"Address":"0x4","ModuleName":"App","Symbol":[{"Column":3,"Discriminator":0,"FileName":"/src/a.c","FunctionName":"foo","Line":10,"Source":"9  : int y;\n10 >:   x = 1;\n11  : }\n","StartAddress":"0x0","StartFileName":"","StartLine":0}]},
{"Address":"0x20","ModuleName":"App","Symbol":[{"FileName":"","FunctionName":"bar","Line":0}]},
{"Address":"0x40","ModuleName":"App","Symbol":[{"FileName":"/src/b.c","FunctionName":"baz","Line":7}]}
]`
	b, runner := newBatch(t, output)

	results, err := b.Symbolize(context.Background(), testBinary, []uint32{0x4, 0x20, 0x40})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "foo", results[0].Symbol)
	assert.Equal(t, &model.SourceLocation{File: "/src/a.c", Line: 10}, results[0].Location)
	assert.Equal(t, "  x = 1;", results[0].Source)

	assert.Equal(t, "bar", results[1].Symbol)
	assert.Nil(t, results[1].Location, "no file name")

	assert.Equal(t, "baz", results[2].Symbol)
	assert.Nil(t, results[2].Location, "no source context")

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"llvm-addr2line-19", "--output-style=JSON", "--print-source-context-lines=1",
		"-f", "-e", testBinary, "0x4", "0x20", "0x40",
	}, runner.calls[0])
}

func TestBatchSymbolizer_ObjectStream(t *testing.T) {
	output := `{"Address":"0x4","Symbol":[{"FileName":"a.c","FunctionName":"foo","Line":1,"Source":"1 >: go();\n"}]}
{"Address":"0x8","Symbol":[{"FileName":"a.c","FunctionName":"foo","Line":2,"Source":"2 >: stop();\n"}]}
`
	b, _ := newBatch(t, output)

	results, err := b.Symbolize(context.Background(), testBinary, []uint32{0x4, 0x8})
	require.NoError(t, err)
	assert.Equal(t, "go();", results[0].Source)
	assert.Equal(t, "stop();", results[1].Source)
}

func TestBatchSymbolizer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		offsets []uint32
		code    string
	}{
		{
			name:    "length mismatch",
			output:  `[{"Address":"0x4","Symbol":[{"FunctionName":"foo"}]}]`,
			offsets: []uint32{0x4, 0x8},
			code:    apperrors.CodeSymbolicationMismatch,
		},
		{
			name:    "no symbol",
			output:  `[{"Address":"0x4","Symbol":[]}]`,
			offsets: []uint32{0x4},
			code:    apperrors.CodeNoSymbol,
		},
		{
			name:    "empty function name",
			output:  `[{"Address":"0x4","Symbol":[{"FunctionName":""}]}]`,
			offsets: []uint32{0x4},
			code:    apperrors.CodeNoSymbol,
		},
		{
			name:    "unknown function name",
			output:  `[{"Address":"0x4","Symbol":[{"FunctionName":"??","FileName":"??","Line":0}]}]`,
			offsets: []uint32{0x4},
			code:    apperrors.CodeNoSymbol,
		},
		{
			name:    "ambiguous",
			output:  `[{"Address":"0x4","Symbol":[{"FunctionName":"foo"},{"FunctionName":"foo_dup"}]}]`,
			offsets: []uint32{0x4},
			code:    apperrors.CodeAmbiguousSymbol,
		},
		{
			name:    "malformed json",
			output:  `[{"Address":`,
			offsets: []uint32{0x4},
			code:    apperrors.CodeSymbolicationMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newBatch(t, tt.output)
			_, err := b.Symbolize(context.Background(), testBinary, tt.offsets)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetErrorCode(err))
		})
	}
}

func TestBatchSymbolizer_MissingBinary(t *testing.T) {
	b, runner := newBatch(t, "[]")
	_, err := b.Symbolize(context.Background(), "/build/missing.gdb", []uint32{0x4})
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingBinaryArtifact(err))
	assert.Empty(t, runner.calls)
}

func TestBatchSymbolizer_Demangle(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testBinary, []byte("ELF"), 0644))
	runner := newFakeRunner()
	runner.outputs["--output-style=JSON"] = `[{"Address":"0x4","Symbol":[{"FunctionName":"_ZN6Window4DrawEv"}]}]`

	b := NewBatchSymbolizer(&Options{Runner: runner, Fs: fs, Demangle: true})
	results, err := b.Symbolize(context.Background(), testBinary, []uint32{0x4})
	require.NoError(t, err)
	assert.Equal(t, "Window::Draw()", results[0].Symbol)
	assert.Equal(t, DefaultAddr2Line, runner.calls[0][0])
}

func TestResolve_FillsCache(t *testing.T) {
	b, _ := newBatch(t, `[{"Address":"0x4","Symbol":[{"FileName":"a.c","FunctionName":"foo","Line":10,"Source":"10 >: x++;\n"}]}]`)

	cache := model.NewAddrCache()
	cache.Add(0x1004, &model.AddrInfo{Kind: model.AddrFunction, Addr: 0x4})
	cache.Add(0x40800010, &model.AddrInfo{Kind: model.AddrTrap, Addr: 0x10, Symbol: "_InitGraf"})

	n, err := Resolve(context.Background(), b, testBinary, cache)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, _ := cache.Get(0x1004)
	assert.Equal(t, "foo", info.Symbol)
	assert.Equal(t, &model.SourceLocation{File: "a.c", Line: 10}, info.Location)
	assert.Equal(t, "x++;", info.Source)
	assert.Empty(t, cache.Pending())

	n, err = Resolve(context.Background(), b, testBinary, cache)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type shortSymbolizer struct{}

func (shortSymbolizer) Name() string { return "short" }

func (shortSymbolizer) Symbolize(context.Context, string, []uint32) ([]Resolution, error) {
	return []Resolution{}, nil
}

func TestResolve_LengthMismatch(t *testing.T) {
	cache := model.NewAddrCache()
	cache.Add(0x1004, &model.AddrInfo{Kind: model.AddrFunction, Addr: 0x4})

	_, err := Resolve(context.Background(), shortSymbolizer{}, testBinary, cache)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSymbolicationMismatch, apperrors.GetErrorCode(err))
}

func TestResolve_NothingPendingStillChecksBinary(t *testing.T) {
	b, runner := newBatch(t, "[]")

	cache := model.NewAddrCache()
	cache.Add(0x40800010, &model.AddrInfo{Kind: model.AddrTrap, Addr: 0x10, Symbol: "_InitGraf"})

	n, err := Resolve(context.Background(), b, testBinary, cache)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, runner.calls)

	_, err = Resolve(context.Background(), b, "/build/missing.gdb", cache)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingBinaryArtifact(err))
}
