package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
)

func newWorkerClient(t *testing.T, h http.HandlerFunc) *modelworker.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	mw, err := modelworker.New(logger.Nop(), modelworker.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("modelworker.New: %v", err)
	}
	return mw
}

func TestCheckModelWorkerFailsOnMissingBaseRoute(t *testing.T) {
	mw := newWorkerClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	err := checkModelWorker(context.Background(), mw)
	if err == nil {
		t.Fatalf("expected startup check to fail")
	}
	if !strings.Contains(err.Error(), "status=404") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckModelWorkerAcceptsHealthyWorker(t *testing.T) {
	var path string
	mw := newWorkerClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if err := checkModelWorker(context.Background(), mw); err != nil {
		t.Fatalf("checkModelWorker: %v", err)
	}
	if path != "/health" {
		t.Fatalf("unexpected health path: %q", path)
	}
}
