package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifiedErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Corruption("inject_markers", "token %d out of range", 7))
	if !errors.Is(err, ErrCorruption) {
		t.Fatalf("expected ErrCorruption match, got %v", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("unexpected ErrConflict match")
	}
	if KindOf(err) != KindCorruption {
		t.Fatalf("kind: want=%s got=%s", KindCorruption, KindOf(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrUnsupportedMedia, http.StatusNotAcceptable},
		{New(KindConflict, "chunk", "exists"), http.StatusConflict},
		{fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{InvalidArgument("start_job", "bad"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v): want=%d got=%d", tc.err, tc.want, got)
		}
	}
}
