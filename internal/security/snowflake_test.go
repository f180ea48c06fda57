package security

import (
	"testing"
	"time"
)

func TestParseSnowflake_Valid(t *testing.T) {
	id, err := ParseSnowflake("1191833510021955695")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1191833510021955695 {
		t.Errorf("expected 1191833510021955695, got %d", id)
	}
}

func TestParseSnowflake_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"zero", "0"},
		{"letters", "abc123"},
		{"negative", "-5"},
		{"overflow", "99999999999999999999999999"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSnowflake(tc.input); err == nil {
				t.Errorf("expected error for %q", tc.input)
			}
		})
	}
}

func TestLimiterStoreBurstThenRefuse(t *testing.T) {
	s := NewLimiterStore(1, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !s.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst refused", i+1)
		}
	}
	if s.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}

	// separate clients get their own buckets
	if !s.Allow("10.0.0.2") {
		t.Error("fresh client refused")
	}
}
