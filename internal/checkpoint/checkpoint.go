// Package checkpoint determines, per channel, the last message id already
// exported, by inspecting the export files on disk. It is advisory only:
// it bounds the next export request, while import-time dedup is guaranteed
// independently by the message uniqueness constraint.
package checkpoint

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/madofuller/discordscraper/internal/export"
)

type Tracker struct {
	log       *slog.Logger
	exportDir string
}

func New(log *slog.Logger, exportDir string) *Tracker {
	return &Tracker{log: log, exportDir: exportDir}
}

// SanitizeChannelName maps a channel name to its export directory name.
func SanitizeChannelName(name string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", ":", "-")
	return r.Replace(name)
}

// LastMessageID returns the final message id of the most recent export
// file for the channel, or ok=false when no usable export exists. Any
// read problem degrades to "no checkpoint"; correctness never depends on
// this value.
func (t *Tracker) LastMessageID(channelName string) (string, bool) {
	channelDir := filepath.Join(t.exportDir, SanitizeChannelName(channelName))

	entries, err := os.ReadDir(channelDir)
	if err != nil {
		return "", false
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", false
	}
	sort.Strings(files)

	last := filepath.Join(channelDir, files[len(files)-1])
	id, err := lastIDInFile(last)
	if err != nil {
		t.log.Warn("checkpoint_read_failed", "file", last, "error", err)
		return "", false
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// lastIDInFile streams the messages array and keeps the final id seen.
// Messages are written in chronological order by the export tool.
func lastIDInFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := export.NewReader(f)
	if _, err := r.Meta(); err != nil {
		return "", err
	}

	var lastID string
	for {
		m, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if m.ID != "" {
			lastID = m.ID
		}
	}
	return lastID, nil
}
