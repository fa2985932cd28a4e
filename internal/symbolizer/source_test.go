package symbolizer

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/macprof-analysis/pkg/errors"
)

func TestSourceCache_Line(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.c", []byte("one\ntwo\nthree"), 0644))

	cache := NewSourceCache(fs, "")

	text, err := cache.Line("/src/a.c", 2)
	require.NoError(t, err)
	assert.Equal(t, "two", text)

	text, err = cache.Line("/src/a.c", 3)
	require.NoError(t, err)
	assert.Equal(t, "three", text)

	_, err = cache.Line("/src/a.c", 4)
	assert.Equal(t, apperrors.CodeLineOutOfRange, apperrors.GetErrorCode(err))
	_, err = cache.Line("/src/a.c", 0)
	assert.Equal(t, apperrors.CodeLineOutOfRange, apperrors.GetErrorCode(err))

	_, err = cache.Line("/src/missing.c", 1)
	assert.Equal(t, apperrors.CodeMissingSourceFile, apperrors.GetErrorCode(err))
	assert.True(t, apperrors.IsRecoverable(err))
	assert.Empty(t, cache.Text("/src/missing.c", 1))
}

func TestSourceCache_ReadsFileOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/root/a.c", []byte("first\n"), 0644))

	cache := NewSourceCache(fs, "/root")
	assert.Equal(t, "first", cache.Text("a.c", 1))

	require.NoError(t, afero.WriteFile(fs, "/root/a.c", []byte("changed\n"), 0644))
	assert.Equal(t, "first", cache.Text("a.c", 1))
}
