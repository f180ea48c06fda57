package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

type fakeJob struct {
	id        int64
	channelID int64
	status    string
	imported  int
	errMsg    *string
}

// fakeStore mimics the relational layer in memory, including the
// insert-or-skip semantics of the message snowflake key.
type fakeStore struct {
	servers  map[int64]string
	channels map[int64]store.ChannelParams
	users    map[int64]store.UserParams
	subnets  map[string]int64
	messages map[int64]*models.Message
	jobs     []*fakeJob

	insertErr error // injected storage failure
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		servers:  map[int64]string{},
		channels: map[int64]store.ChannelParams{},
		users:    map[int64]store.UserParams{},
		subnets:  map[string]int64{},
		messages: map[int64]*models.Message{},
	}
}

func (f *fakeStore) UpsertServer(_ context.Context, id int64, name string, _ *string) error {
	f.servers[id] = name
	return nil
}

func (f *fakeStore) UpsertChannel(_ context.Context, p store.ChannelParams) error {
	if _, ok := f.servers[p.ServerID]; !ok {
		return fmt.Errorf("referential integrity: server %d missing", p.ServerID)
	}
	f.channels[p.ChannelID] = p
	return nil
}

func (f *fakeStore) UpsertUser(_ context.Context, p store.UserParams) error {
	f.users[p.UserID] = p
	return nil
}

func (f *fakeStore) UpsertSubnet(_ context.Context, name string, _ *string, _ []string) (int64, error) {
	if id, ok := f.subnets[name]; ok {
		return id, nil
	}
	id := int64(len(f.subnets) + 1)
	f.subnets[name] = id
	return id, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, m *models.Message) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, ok := f.channels[m.ChannelID]; !ok {
		return false, fmt.Errorf("referential integrity: channel %d missing", m.ChannelID)
	}
	if _, ok := f.users[m.UserID]; !ok {
		return false, fmt.Errorf("referential integrity: user %d missing", m.UserID)
	}
	if _, ok := f.messages[m.MessageID]; ok {
		return false, nil // duplicate: expected no-op
	}
	f.messages[m.MessageID] = m
	return true, nil
}

func (f *fakeStore) CreateBackfillJob(_ context.Context, channelID int64) (int64, error) {
	j := &fakeJob{id: int64(len(f.jobs) + 1), channelID: channelID, status: models.JobPending}
	f.jobs = append(f.jobs, j)
	return j.id, nil
}

func (f *fakeStore) StartBackfillJob(_ context.Context, jobID int64) error {
	f.jobs[jobID-1].status = models.JobRunning
	return nil
}

func (f *fakeStore) FinishBackfillJob(_ context.Context, jobID int64, status string, imported int, errMsg *string) error {
	j := f.jobs[jobID-1]
	j.status = status
	j.imported = imported
	j.errMsg = errMsg
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func messageJSON(id int, authorID int, nickname string) string {
	return fmt.Sprintf(`{
		"id": "%d",
		"type": "Default",
		"timestamp": "2025-01-01T10:%02d:00Z",
		"content": "msg %d",
		"author": {"id": "%d", "name": "user%d", "nickname": %q, "isBot": false}
	}`, id, id%60, id, authorID, authorID, nickname)
}

func writeExportFile(t *testing.T, dir, name string, msgs ...string) string {
	t.Helper()
	doc := fmt.Sprintf(`{
		"guild": {"id": "100", "name": "Bittensor", "iconUrl": "https://cdn.example/i.png"},
		"channel": {"id": "200", "name": "subnet-23", "topic": "nuance"},
		"messages": [%s]
	}`, strings.Join(msgs, ","))

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_IdempotentImport(t *testing.T) {
	dir := t.TempDir()
	writeExportFile(t, dir, "subnet-23_001.json",
		messageJSON(301, 401, "Alice"),
		messageJSON(302, 401, "Alice"),
		messageJSON(303, 402, "Bob"),
	)

	fs := newFakeStore()
	im := New(testLogger(), fs, Options{})

	sum1, err := im.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum1.Imported != 3 || sum1.SkippedDuplicate != 0 {
		t.Fatalf("first run: imported=%d dup=%d", sum1.Imported, sum1.SkippedDuplicate)
	}

	sum2, err := im.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.messages) != 3 {
		t.Errorf("second run changed row count: %d", len(fs.messages))
	}
	if sum2.Imported != 0 || sum2.SkippedDuplicate != 3 {
		t.Errorf("second run: imported=%d dup=%d, want 0/3", sum2.Imported, sum2.SkippedDuplicate)
	}
	if sum2.Imported+sum2.SkippedDuplicate != 3 {
		t.Errorf("imported+skipped should equal total messages in file")
	}
}

func TestRun_OverlappingFiles(t *testing.T) {
	dir := t.TempDir()

	var a, b []string
	for id := 301; id <= 310; id++ {
		a = append(a, messageJSON(id, 401, "Alice"))
	}
	for id := 306; id <= 315; id++ {
		b = append(b, messageJSON(id, 401, "Alice"))
	}
	writeExportFile(t, dir, "subnet-23_001.json", a...)
	writeExportFile(t, dir, "subnet-23_002.json", b...)

	fs := newFakeStore()
	im := New(testLogger(), fs, Options{})

	sum, err := im.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.messages) != 15 {
		t.Errorf("expected 15 distinct messages, got %d", len(fs.messages))
	}
	if sum.Imported != 15 || sum.SkippedDuplicate != 5 {
		t.Errorf("imported=%d dup=%d, want 15/5", sum.Imported, sum.SkippedDuplicate)
	}
}

func TestImportFile_ParentBeforeChild(t *testing.T) {
	dir := t.TempDir()
	// same author seen twice; the later nickname must win
	path := writeExportFile(t, dir, "subnet-23_001.json",
		messageJSON(301, 401, "OldNick"),
		messageJSON(302, 401, "NewNick"),
	)

	fs := newFakeStore()
	im := New(testLogger(), fs, Options{})

	res := im.ImportFile(context.Background(), path)
	if res.Err != nil {
		t.Fatal(res.Err)
	}

	u, ok := fs.users[401]
	if !ok {
		t.Fatal("author row missing after import")
	}
	if u.DisplayName == nil || *u.DisplayName != "NewNick" {
		t.Errorf("expected last-seen nickname, got %v", u.DisplayName)
	}
	if _, ok := fs.channels[200]; !ok {
		t.Error("channel row missing after import")
	}
	if fs.servers[100] != "Bittensor" {
		t.Error("server row missing after import")
	}
}

func TestImportFile_MalformedRecordIsolation(t *testing.T) {
	dir := t.TempDir()
	noTimestamp := `{"id": "302", "content": "broken", "author": {"id": "401", "name": "alice"}}`
	path := writeExportFile(t, dir, "subnet-23_001.json",
		messageJSON(301, 401, "Alice"),
		noTimestamp,
		messageJSON(303, 401, "Alice"),
	)

	fs := newFakeStore()
	im := New(testLogger(), fs, Options{})

	res := im.ImportFile(context.Background(), path)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Imported != 2 || res.SkippedMalformed != 1 {
		t.Errorf("imported=%d malformed=%d, want 2/1", res.Imported, res.SkippedMalformed)
	}
	if len(fs.messages) != 2 {
		t.Errorf("expected 2 rows, got %d", len(fs.messages))
	}
}

func TestRun_BadFileDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a_corrupt.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeExportFile(t, dir, "b_good.json", messageJSON(301, 401, "Alice"))

	fs := newFakeStore()
	im := New(testLogger(), fs, Options{})

	sum, err := im.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Files != 2 || sum.FilesFailed != 1 {
		t.Errorf("files=%d failed=%d, want 2/1", sum.Files, sum.FilesFailed)
	}
	if sum.Imported != 1 {
		t.Errorf("good file should still import, got %d", sum.Imported)
	}
}

func TestImportFile_StorageFailureAbortsFileAndFailsJob(t *testing.T) {
	dir := t.TempDir()
	path := writeExportFile(t, dir, "subnet-23_001.json",
		messageJSON(301, 401, "Alice"),
		messageJSON(302, 401, "Alice"),
	)

	fs := newFakeStore()
	fs.insertErr = errors.New("connection reset")
	im := New(testLogger(), fs, Options{})

	res := im.ImportFile(context.Background(), path)
	if res.Err == nil {
		t.Fatal("expected storage error surfaced")
	}
	if res.Imported != 0 || res.Failed != 1 {
		t.Errorf("imported=%d failed=%d, want 0/1", res.Imported, res.Failed)
	}

	if len(fs.jobs) != 1 {
		t.Fatalf("expected one backfill job, got %d", len(fs.jobs))
	}
	j := fs.jobs[0]
	if j.status != models.JobFailed {
		t.Errorf("expected failed job, got %s", j.status)
	}
	if j.errMsg == nil {
		t.Error("expected job error message recorded")
	}
}

func TestImportFile_BackfillJobCompleted(t *testing.T) {
	dir := t.TempDir()
	path := writeExportFile(t, dir, "subnet-23_001.json", messageJSON(301, 401, "Alice"))

	fs := newFakeStore()
	im := New(testLogger(), fs, Options{})

	if res := im.ImportFile(context.Background(), path); res.Err != nil {
		t.Fatal(res.Err)
	}

	j := fs.jobs[0]
	if j.status != models.JobCompleted || j.imported != 1 {
		t.Errorf("job status=%s imported=%d, want completed/1", j.status, j.imported)
	}
	if j.channelID != 200 {
		t.Errorf("job bound to wrong channel: %d", j.channelID)
	}
}

func TestImportFile_SubnetLink(t *testing.T) {
	dir := t.TempDir()
	path := writeExportFile(t, dir, "subnet-23_001.json", messageJSON(301, 401, "Alice"))

	fs := newFakeStore()
	im := New(testLogger(), fs, Options{Subnets: SubnetMapping{200: "nuance-23"}})

	if res := im.ImportFile(context.Background(), path); res.Err != nil {
		t.Fatal(res.Err)
	}

	if _, ok := fs.subnets["nuance-23"]; !ok {
		t.Fatal("subnet row missing")
	}
	ch := fs.channels[200]
	if ch.SubnetID == nil || *ch.SubnetID != fs.subnets["nuance-23"] {
		t.Errorf("channel not linked to subnet: %v", ch.SubnetID)
	}
}
