package symbolizer

import (
	"bufio"
	"path/filepath"

	"github.com/spf13/afero"

	apperrors "github.com/macprof-analysis/pkg/errors"
)

// SourceCache reads single source lines, loading each file at most once per
// run. Missing files are remembered as missing.
type SourceCache struct {
	fs    afero.Fs
	root  string
	files map[string][]string
}

// NewSourceCache creates a cache reading from fs. Relative paths are
// resolved against root.
func NewSourceCache(fs afero.Fs, root string) *SourceCache {
	return &SourceCache{fs: fs, root: root, files: make(map[string][]string)}
}

// Line returns 1-based line n of path. It fails with MissingSourceFile or
// LineOutOfRange; both are recoverable.
func (c *SourceCache) Line(path string, n int) (string, error) {
	lines, ok := c.files[path]
	if !ok {
		lines = c.load(path)
		c.files[path] = lines
	}
	if lines == nil {
		return "", apperrors.Newf(apperrors.CodeMissingSourceFile, "source file %s not found", path)
	}
	if n < 1 || n > len(lines) {
		return "", apperrors.Newf(apperrors.CodeLineOutOfRange, "%s has no line %d", path, n)
	}
	return lines[n-1], nil
}

// Text returns line n of path, or "" when it cannot be read.
func (c *SourceCache) Text(path string, n int) string {
	text, _ := c.Line(path, n)
	return text
}

func (c *SourceCache) load(path string) []string {
	full := path
	if c.root != "" && !filepath.IsAbs(path) {
		full = filepath.Join(c.root, path)
	}

	f, err := c.fs.Open(full)
	if err != nil {
		return nil
	}
	defer f.Close()

	lines := []string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
