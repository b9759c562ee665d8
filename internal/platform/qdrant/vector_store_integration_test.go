package qdrant

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

func TestVectorStoreIntegrationAgainstLocalQdrant(t *testing.T) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("QDRANT_INTEGRATION")))
	if raw != "1" && raw != "true" {
		t.Skip("set QDRANT_INTEGRATION=1 to run Qdrant integration tests")
	}
	baseURL := strings.TrimRight(os.Getenv("QDRANT_URL"), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:6333"
	}

	collection := "dats_it_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	vs, err := NewVectorStore(logger.Nop(), Config{
		URL:             baseURL,
		Collection:      collection,
		NamespacePrefix: "it",
		VectorDim:       3,
		AutoCreate:      true,
	})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	t.Cleanup(func() {
		req, _ := http.NewRequest(http.MethodDelete, baseURL+"/collections/"+collection, nil)
		if resp, err := http.DefaultClient.Do(req); err == nil {
			_ = resp.Body.Close()
		}
	})

	ctx := context.Background()
	ns := "project:it:sentence"
	if err := vs.Upsert(ctx, ns, []vectorstore.Vector{
		{ID: "d1:0", Values: []float32{1, 0, 0}, Metadata: map[string]any{"source_document_id": "d1"}},
		{ID: "d2:0", Values: []float32{0, 1, 0}, Metadata: map[string]any{"source_document_id": "d2"}},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := vs.QueryMatches(ctx, ns, []float32{1, 0, 0}, 5, map[string]any{"source_document_id": []string{"d1"}})
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "d1:0" {
		t.Fatalf("QueryMatches filtered: got=%+v", matches)
	}

	fetched, err := vs.Fetch(ctx, ns, []string{"d2:0"})
	if err != nil || len(fetched) != 1 {
		t.Fatalf("Fetch: %v %+v", err, fetched)
	}

	if err := vs.DeleteIDs(ctx, ns, []string{"d1:0"}); err != nil {
		t.Fatalf("DeleteIDs: %v", err)
	}
	matches, err = vs.QueryMatches(ctx, ns, []float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("QueryMatches after delete: %v", err)
	}
	for _, m := range matches {
		if m.ID == "d1:0" {
			t.Fatalf("deleted vector still returned")
		}
	}
}
