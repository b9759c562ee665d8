package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryQueryRanksByCosineAndFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ns := Namespace(uuid.New(), KindDocument)
	err := m.Upsert(ctx, ns, []Vector{
		{ID: "a", Values: []float32{1, 0}, Metadata: map[string]any{MetaDocType: "text"}},
		{ID: "b", Values: []float32{0.9, 0.1}, Metadata: map[string]any{MetaDocType: "image"}},
		{ID: "c", Values: []float32{0, 1}, Metadata: map[string]any{MetaDocType: "text"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := m.QueryMatches(ctx, ns, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected ranking: %+v", got)
	}

	got, err = m.QueryMatches(ctx, ns, []float32{1, 0}, 10, map[string]any{MetaDocType: []string{"text"}})
	if err != nil {
		t.Fatalf("QueryMatches filtered: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected filtered ranking: %+v", got)
	}
}

func TestMemoryFetchAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Upsert(ctx, "ns", []Vector{{ID: "x", Values: []float32{1}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, _ := m.Fetch(ctx, "ns", []string{"x", "missing"})
	if len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("Fetch: %+v", got)
	}
	if err := m.DeleteIDs(ctx, "ns", []string{"x"}); err != nil {
		t.Fatalf("DeleteIDs: %v", err)
	}
	if m.Len("ns") != 0 {
		t.Fatalf("expected empty namespace after delete")
	}
}

func TestSentenceVectorIDRoundTrip(t *testing.T) {
	doc := uuid.New()
	gotDoc, gotSent, err := ParseSentenceVectorID(SentenceVectorID(doc, 17))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gotDoc != doc || gotSent != 17 {
		t.Fatalf("round trip mismatch: %s %d", gotDoc, gotSent)
	}
	if _, _, err := ParseSentenceVectorID("nope"); err == nil {
		t.Fatalf("expected error for malformed id")
	}
}

func TestMean(t *testing.T) {
	got := Mean([][]float32{{1, 3}, {3, 5}})
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("Mean: %v", got)
	}
	if Mean(nil) != nil {
		t.Fatalf("Mean(nil) should be nil")
	}
}
