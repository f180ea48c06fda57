package storage

import "context"

// ArchiveClient persists processed export files so the raw documents
// survive export-directory cleanup.
type ArchiveClient interface {
	ArchiveExport(ctx context.Context, channelID int64, name string, data []byte) (string, error)
}

var (
	_ ArchiveClient = (*S3Client)(nil)
	_ ArchiveClient = (*LocalArchive)(nil)
)
