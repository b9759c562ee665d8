package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "abc", "job_id", "j1", "dsn", "postgres://x", "dangling"})
	if len(out) != 7 {
		t.Fatalf("length: want=7 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api_key not redacted: %v", out[1])
	}
	if out[3] != "j1" {
		t.Fatalf("job_id altered: %v", out[3])
	}
	if out[5] != "[REDACTED]" {
		t.Fatalf("dsn not redacted: %v", out[5])
	}
	if out[6] != "dangling" {
		t.Fatalf("dangling key dropped: %v", out[6])
	}
}

func TestTokenKeysAreNotRedacted(t *testing.T) {
	out := sanitizeKVs([]interface{}{"token_count", 12})
	if out[1] != 12 {
		t.Fatalf("token_count should pass through, got %v", out[1])
	}
}
