package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

// Publisher uploads the files a run wrote.
type Publisher struct {
	store  Storage
	logger utils.Logger
}

// NewPublisher creates a Publisher over store.
func NewPublisher(store Storage, logger utils.Logger) *Publisher {
	return &Publisher{store: store, logger: utils.OrNull(logger)}
}

// ObjectKey returns the key a run's artifact is stored under.
func ObjectKey(runID, localPath string) string {
	return path.Join(runID, filepath.Base(localPath))
}

// Publish uploads every file under <runID>/<basename> and returns the files
// with RemoteKey set. It stops at the first failed upload.
func (p *Publisher) Publish(ctx context.Context, runID string, files []model.OutputFile) ([]model.OutputFile, error) {
	out := make([]model.OutputFile, 0, len(files))
	for _, f := range files {
		key := ObjectKey(runID, f.LocalPath)
		if err := p.store.PutFile(ctx, key, f.LocalPath); err != nil {
			return out, fmt.Errorf("publish %s: %w", f.Name, err)
		}
		p.logger.Info("Published %s to %s", f.Name, p.store.URL(key))
		f.RemoteKey = key
		out = append(out, f)
	}
	return out, nil
}
