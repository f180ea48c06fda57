package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/madofuller/discordscraper/internal/config"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

func testServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewServer(log, nil, nil, nil, cfg)
}

func TestAPIKeyRequired(t *testing.T) {
	s := testServer(t, config.Config{APIKey: "secret", CORSOrigins: []string{"*"}})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"valid key", "Bearer secret", http.StatusBadRequest}, // passes auth, fails validation
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/channels/notasnowflake/messages", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestAPIKeyDisabledWhenUnset(t *testing.T) {
	s := testServer(t, config.Config{CORSOrigins: []string{"*"}})

	req := httptest.NewRequest("GET", "/api/v1/messages/xyz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	// no API key configured: request reaches the handler and fails validation
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestInvalidSnowflakeParams(t *testing.T) {
	s := testServer(t, config.Config{CORSOrigins: []string{"*"}})

	paths := []string{
		"/api/v1/channels/abc/messages",
		"/api/v1/messages/0",
		"/api/v1/backfill-jobs?channel_id=-5",
	}

	for _, path := range paths {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestMessageFilterValidation(t *testing.T) {
	s := testServer(t, config.Config{CORSOrigins: []string{"*"}})

	cases := []struct {
		name  string
		query string
	}{
		{"limit too large", "limit=5000"},
		{"limit zero", "limit=0"},
		{"negative offset", "offset=-1"},
		{"bad before", "before=yesterday"},
		{"bad after", "after=12345"},
		{"bad author", "author_id=bob"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/channels/123456789/messages?"+tc.query, nil)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := testServer(t, config.Config{CORSOrigins: []string{"https://archive.example.com"}})

	req := httptest.NewRequest("OPTIONS", "/api/v1/subnets", nil)
	req.Header.Set("Origin", "https://archive.example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://archive.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	s := testServer(t, config.Config{CORSOrigins: []string{"https://archive.example.com"}})

	req := httptest.NewRequest("OPTIONS", "/api/v1/subnets", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q, want empty", got)
	}
}

func TestHealthzAlwaysOpen(t *testing.T) {
	s := testServer(t, config.Config{APIKey: "secret", CORSOrigins: []string{"*"}})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestUpdateMessageValidation(t *testing.T) {
	s := testServer(t, config.Config{CORSOrigins: []string{"*"}})

	cases := []struct {
		name string
		path string
		body string
	}{
		{"bad id", "/api/v1/messages/abc", `{"content": "x"}`},
		{"empty body", "/api/v1/messages/123456789", `{}`},
		{"malformed json", "/api/v1/messages/123456789", `{"content":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("PATCH", tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestDeleteMessageRejectsBadID(t *testing.T) {
	s := testServer(t, config.Config{CORSOrigins: []string{"*"}})

	req := httptest.NewRequest("DELETE", "/api/v1/messages/notanid", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

type fakeStore struct {
	messages map[int64]*models.Message
}

func newFakeStore(msgs ...models.Message) *fakeStore {
	fs := &fakeStore{messages: make(map[int64]*models.Message)}
	for i := range msgs {
		m := msgs[i]
		fs.messages[m.MessageID] = &m
	}
	return fs
}

func (f *fakeStore) Messages(_ context.Context, flt store.MessageFilter) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.messages {
		if flt.ChannelID != 0 && m.ChannelID != flt.ChannelID {
			continue
		}
		if m.Deleted && !flt.IncludeDeleted {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeStore) Message(_ context.Context, id int64) (*models.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) UpdateMessage(_ context.Context, id int64, content *string, editedAt *time.Time) (bool, error) {
	m, ok := f.messages[id]
	if !ok {
		return false, nil
	}
	if content != nil {
		m.Content = *content
	}
	if editedAt != nil {
		m.EditedTimestamp = editedAt
	}
	return true, nil
}

func (f *fakeStore) MarkDeleted(_ context.Context, id int64) (bool, error) {
	m, ok := f.messages[id]
	if !ok {
		return false, nil
	}
	now := time.Now()
	m.Deleted = true
	m.DeletedAt = &now
	return true, nil
}

func (f *fakeStore) ChannelStats(context.Context) ([]models.ChannelStats, error) { return nil, nil }
func (f *fakeStore) Subnets(context.Context) ([]models.Subnet, error)           { return nil, nil }
func (f *fakeStore) BackfillJobs(context.Context, int64, string) ([]models.BackfillJob, error) {
	return nil, nil
}

func testServerWithStore(t *testing.T, st Store) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewServer(log, nil, nil, st, config.Config{CORSOrigins: []string{"*"}})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestSoftDeletePreservesRow(t *testing.T) {
	fs := newFakeStore(models.Message{
		MessageID: 555, ChannelID: 123, UserID: 401,
		Content: "hello", Timestamp: time.Now().UTC(),
	})
	s := testServerWithStore(t, fs)

	if w := do(t, s, "DELETE", "/api/v1/messages/555", ""); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	// the row survives and reports its deletion
	w := do(t, s, "GET", "/api/v1/messages/555", "")
	if w.Code != http.StatusOK {
		t.Fatalf("fetch after delete status = %d", w.Code)
	}
	var got models.Message
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Deleted || got.DeletedAt == nil {
		t.Errorf("deleted=%v deleted_at=%v, want flag and timestamp set", got.Deleted, got.DeletedAt)
	}
	if got.Content != "hello" {
		t.Errorf("content lost on soft delete: %q", got.Content)
	}

	// hidden from the default listing, visible with include_deleted
	var listing struct {
		Count int `json:"count"`
	}
	w = do(t, s, "GET", "/api/v1/channels/123/messages", "")
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 0 {
		t.Errorf("deleted message in default listing, count=%d", listing.Count)
	}
	w = do(t, s, "GET", "/api/v1/channels/123/messages?include_deleted=true", "")
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 1 {
		t.Errorf("include_deleted listing count=%d, want 1", listing.Count)
	}

	// repeat delete idempotently re-applies; only a never-existent id is 404
	if w := do(t, s, "DELETE", "/api/v1/messages/555", ""); w.Code != http.StatusOK {
		t.Errorf("repeat delete status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := do(t, s, "DELETE", "/api/v1/messages/556", ""); w.Code != http.StatusNotFound {
		t.Errorf("delete of unknown id status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateMessageAppliesEdit(t *testing.T) {
	fs := newFakeStore(models.Message{
		MessageID: 555, ChannelID: 123, UserID: 401,
		Content: "before", Timestamp: time.Now().UTC(),
	})
	s := testServerWithStore(t, fs)

	if w := do(t, s, "PATCH", "/api/v1/messages/555", `{"content": "after"}`); w.Code != http.StatusOK {
		t.Fatalf("patch status = %d", w.Code)
	}

	w := do(t, s, "GET", "/api/v1/messages/555", "")
	var got models.Message
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Content != "after" {
		t.Errorf("content = %q, want %q", got.Content, "after")
	}
	if got.EditedTimestamp != nil {
		t.Error("edit timestamp overwritten by an update that did not carry one")
	}

	if w := do(t, s, "PATCH", "/api/v1/messages/777", `{"content": "x"}`); w.Code != http.StatusNotFound {
		t.Errorf("patch of unknown id status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListingEchoesEffectiveLimit(t *testing.T) {
	fs := newFakeStore(models.Message{
		MessageID: 555, ChannelID: 123, UserID: 401,
		Content: "hello", Timestamp: time.Now().UTC(),
	})
	s := testServerWithStore(t, fs)

	var listing struct {
		Limit int `json:"limit"`
	}

	// omitted limit: the applied default, not zero
	w := do(t, s, "GET", "/api/v1/channels/123/messages", "")
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Limit != 100 {
		t.Errorf("default limit echoed as %d, want 100", listing.Limit)
	}

	w = do(t, s, "GET", "/api/v1/channels/123/messages?limit=5", "")
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Limit != 5 {
		t.Errorf("explicit limit echoed as %d, want 5", listing.Limit)
	}
}
