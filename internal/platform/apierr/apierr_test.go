package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorMessageFallbacks(t *testing.T) {
	cause := errors.New("bad uuid")
	if got := BadRequest("invalid_project_id", cause).Error(); got != "bad uuid" {
		t.Fatalf("expected cause message, got %q", got)
	}
	if got := BadRequest("no_files", nil).Error(); got != "no files" {
		t.Fatalf("expected humanized code, got %q", got)
	}
	if got := (&Error{Status: 418}).Error(); got != "api error (418)" {
		t.Fatalf("unexpected status fallback %q", got)
	}
	if got := New(0, "", nil).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected default 500, got %d", got)
	}
}

func TestWithDetailsCopies(t *testing.T) {
	base := New(http.StatusConflict, "conflict", errors.New("dup"))
	withDetails := base.WithDetails([]string{"a.txt"})
	if base.Details != nil {
		t.Fatalf("WithDetails mutated the receiver")
	}
	if withDetails.Details == nil || withDetails.Code != "conflict" {
		t.Fatalf("unexpected copy %+v", withDetails)
	}
	if !errors.Is(withDetails, base.Err) {
		t.Fatalf("copy must unwrap to the original cause")
	}
}

func TestPublic(t *testing.T) {
	if !New(http.StatusNotFound, "not_found", nil).Public() {
		t.Fatalf("4xx must be public")
	}
	if New(http.StatusBadGateway, "upstream", nil).Public() {
		t.Fatalf("5xx must not be public")
	}
	var nilErr *Error
	if nilErr.Public() {
		t.Fatalf("nil must not be public")
	}
}
