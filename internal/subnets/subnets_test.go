package subnets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subnets.yaml")

	in := []Entry{
		{Name: "nuance-23", ChannelID: "1191833510021955695", Description: "nuance-23 channel", Tags: []string{"subnet"}},
		{Name: "general", ChannelID: "200"},
	}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out[0].Name != "nuance-23" || out[0].ChannelID != "1191833510021955695" {
		t.Errorf("unexpected first entry: %+v", out[0])
	}
	if len(out[0].Tags) != 1 || out[0].Tags[0] != "subnet" {
		t.Errorf("tags not preserved: %v", out[0].Tags)
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty list, got %d entries", len(entries))
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subnets.yaml")
	if err := os.WriteFile(path, []byte("subnets: {not: [a, list"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestMapping_DropsInvalidIDs(t *testing.T) {
	m := Mapping([]Entry{
		{Name: "good", ChannelID: "200"},
		{Name: "bad", ChannelID: "not-a-snowflake"},
	})
	if len(m) != 1 {
		t.Fatalf("expected 1 mapped entry, got %d", len(m))
	}
	if m[200] != "good" {
		t.Errorf("unexpected mapping: %v", m)
	}
}
