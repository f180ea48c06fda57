package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalArchive keeps processed exports on the local filesystem. Used when
// no object storage is configured.
type LocalArchive struct {
	dir string
}

func NewLocalArchive(dir string) *LocalArchive {
	return &LocalArchive{dir: dir}
}

func (l *LocalArchive) ArchiveExport(_ context.Context, channelID int64, name string, data []byte) (string, error) {
	dir := filepath.Join(l.dir, fmt.Sprintf("%d", channelID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return path, nil
}
