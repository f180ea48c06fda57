// Package importer walks a directory of export files and drives the
// parse, identity-upsert and message-insert pipeline for each one. A
// single bad file never aborts a batch; everything skipped or failed is
// reflected in a counter.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/madofuller/discordscraper/internal/export"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/security"
	"github.com/madofuller/discordscraper/internal/store"
)

// Store is the slice of the persistence layer the importer needs. Kept as
// an interface so the orchestration logic tests against a fake.
type Store interface {
	UpsertServer(ctx context.Context, serverID int64, name string, iconURL *string) error
	UpsertChannel(ctx context.Context, p store.ChannelParams) error
	UpsertUser(ctx context.Context, p store.UserParams) error
	UpsertSubnet(ctx context.Context, name string, description *string, tags []string) (int64, error)
	InsertMessage(ctx context.Context, m *models.Message) (bool, error)
	CreateBackfillJob(ctx context.Context, channelID int64) (int64, error)
	StartBackfillJob(ctx context.Context, jobID int64) error
	FinishBackfillJob(ctx context.Context, jobID int64, status string, imported int, errMsg *string) error
}

// Archiver uploads a processed export file to object storage. Optional.
type Archiver interface {
	ArchiveExport(ctx context.Context, channelID int64, name string, data []byte) (string, error)
}

// SubnetMapping names the subnet a channel belongs to, keyed by channel id.
type SubnetMapping map[int64]string

type Options struct {
	// FallbackServerID is used when an export document carries no guild
	// metadata. Zero means such files fail.
	FallbackServerID int64
	Subnets          SubnetMapping
	Archiver         Archiver
}

type Importer struct {
	log   *slog.Logger
	store Store
	opts  Options
}

func New(log *slog.Logger, st Store, opts Options) *Importer {
	return &Importer{log: log, store: st, opts: opts}
}

// Summary aggregates a whole batch run.
type Summary struct {
	Files            int
	FilesFailed      int
	Imported         int
	SkippedDuplicate int
	SkippedMalformed int
	Failed           int
}

// FileResult reports one file's import.
type FileResult struct {
	Path             string
	ChannelID        int64
	Imported         int
	SkippedDuplicate int
	SkippedMalformed int
	Failed           int
	Err              error
}

// Run processes every .json file under dir in lexical path order and
// aggregates counters. Per-file failures are recorded and the batch
// continues with the next file.
func (im *Importer) Run(ctx context.Context, dir string) (Summary, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("scan import dir %s: %w", dir, err)
	}
	sort.Strings(files)

	im.log.Info("import_started", "dir", dir, "files", len(files))

	var sum Summary
	for _, path := range files {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}

		res := im.ImportFile(ctx, path)
		sum.Files++
		sum.Imported += res.Imported
		sum.SkippedDuplicate += res.SkippedDuplicate
		sum.SkippedMalformed += res.SkippedMalformed
		sum.Failed += res.Failed
		if res.Err != nil {
			sum.FilesFailed++
			im.log.Error("import_file_failed", "file", path, "error", res.Err)
			continue
		}

		im.log.Info("import_file_done",
			"file", path,
			"channel_id", res.ChannelID,
			"imported", res.Imported,
			"skipped_duplicate", res.SkippedDuplicate,
			"skipped_malformed", res.SkippedMalformed,
		)
	}

	im.log.Info("import_finished",
		"files", sum.Files,
		"files_failed", sum.FilesFailed,
		"imported", sum.Imported,
		"skipped_duplicate", sum.SkippedDuplicate,
		"skipped_malformed", sum.SkippedMalformed,
		"failed", sum.Failed,
	)
	return sum, nil
}

// ImportFile runs one export document through the pipeline: metadata,
// parent upserts, then one insert-or-skip per message. Parents are always
// committed before the message row that references them.
func (im *Importer) ImportFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}

	f, err := os.Open(path)
	if err != nil {
		res.Err = fmt.Errorf("open export: %w", err)
		return res
	}
	defer f.Close()

	r := export.NewReader(f)
	doc, err := r.Meta()
	if err != nil {
		res.Err = err
		return res
	}

	channelID, err := security.ParseSnowflake(doc.Channel.ID)
	if err != nil {
		res.Err = fmt.Errorf("channel id: %w", err)
		return res
	}
	res.ChannelID = channelID

	serverID := im.opts.FallbackServerID
	serverName := "Unknown"
	var iconURL *string
	if doc.Guild.ID != "" {
		serverID, err = security.ParseSnowflake(doc.Guild.ID)
		if err != nil {
			res.Err = fmt.Errorf("guild id: %w", err)
			return res
		}
		serverName = doc.Guild.Name
		if doc.Guild.IconURL != "" {
			iconURL = &doc.Guild.IconURL
		}
	}
	if serverID == 0 {
		res.Err = errors.New("export has no guild metadata and no fallback server configured")
		return res
	}

	if err := im.store.UpsertServer(ctx, serverID, serverName, iconURL); err != nil {
		res.Err = err
		return res
	}

	var subnetID *int64
	if name, ok := im.opts.Subnets[channelID]; ok {
		id, err := im.store.UpsertSubnet(ctx, name, nil, nil)
		if err != nil {
			res.Err = err
			return res
		}
		subnetID = &id
	}

	channelName := doc.Channel.Name
	if channelName == "" {
		channelName = "Unknown"
	}
	err = im.store.UpsertChannel(ctx, store.ChannelParams{
		ChannelID: channelID,
		ServerID:  serverID,
		Name:      channelName,
		SubnetID:  subnetID,
		Topic:     doc.Channel.Topic,
		Category:  doc.Channel.Category,
		Position:  doc.Channel.Position,
	})
	if err != nil {
		res.Err = err
		return res
	}

	jobID, err := im.store.CreateBackfillJob(ctx, channelID)
	if err != nil {
		res.Err = err
		return res
	}
	if err := im.store.StartBackfillJob(ctx, jobID); err != nil {
		res.Err = err
		return res
	}

	im.importMessages(ctx, r, channelID, &res)

	status := models.JobCompleted
	var jobErr *string
	if res.Err != nil {
		status = models.JobFailed
		msg := res.Err.Error()
		jobErr = &msg
	}
	if err := im.store.FinishBackfillJob(ctx, jobID, status, res.Imported, jobErr); err != nil {
		im.log.Warn("backfill_job_finalize_failed", "job_id", jobID, "error", err)
	}

	if res.Err == nil && im.opts.Archiver != nil {
		im.archive(ctx, path, channelID)
	}
	return res
}

// importMessages drains the message stream. A malformed record skips just
// that record; a storage error aborts the rest of this file. Counters
// reflect exactly what committed.
func (im *Importer) importMessages(ctx context.Context, r *export.Reader, channelID int64, res *FileResult) {
	for {
		raw, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			res.Err = err
			return
		}

		rec, err := raw.Record()
		if err != nil {
			res.SkippedMalformed++
			im.log.Warn("message_skipped_malformed", "channel_id", channelID, "error", err)
			continue
		}

		// author must exist before the message row referencing it
		err = im.store.UpsertUser(ctx, store.UserParams{
			UserID:        rec.Author.ID,
			Username:      rec.Author.Username,
			Discriminator: rec.Author.Discriminator,
			DisplayName:   rec.Author.DisplayName,
			AvatarURL:     rec.Author.AvatarURL,
			Bot:           rec.Author.Bot,
		})
		if err != nil {
			res.Failed++
			res.Err = err
			return
		}

		inserted, err := im.store.InsertMessage(ctx, &models.Message{
			MessageID:          rec.MessageID,
			ChannelID:          channelID,
			UserID:             rec.Author.ID,
			Content:            rec.Content,
			Timestamp:          rec.Timestamp,
			EditedTimestamp:    rec.EditedTimestamp,
			MessageType:        rec.Type,
			Mentions:           rec.Mentions,
			Attachments:        rec.Attachments,
			Embeds:             rec.Embeds,
			Reactions:          rec.Reactions,
			ReferenceMessageID: rec.ReferenceMessageID,
		})
		if err != nil {
			res.Failed++
			res.Err = err
			return
		}
		if inserted {
			res.Imported++
		} else {
			res.SkippedDuplicate++
		}
	}
}

func (im *Importer) archive(ctx context.Context, path string, channelID int64) {
	data, err := os.ReadFile(path)
	if err != nil {
		im.log.Warn("archive_read_failed", "file", path, "error", err)
		return
	}
	url, err := im.opts.Archiver.ArchiveExport(ctx, channelID, filepath.Base(path), data)
	if err != nil {
		im.log.Warn("archive_upload_failed", "file", path, "error", err)
		return
	}
	im.log.Debug("export_archived", "file", path, "url", url)
}
