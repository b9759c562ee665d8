package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

func TestInstrumentVectorStorePassThrough(t *testing.T) {
	inner := &fakeInstrumentedInner{}
	vs := instrumentVectorStore("qdrant", inner)
	if vs == nil {
		t.Fatalf("instrumentVectorStore: expected non-nil wrapper")
	}

	err := vs.Upsert(context.Background(), "ns", []vectorstore.Vector{{ID: "v1", Values: []float32{1, 2, 3}}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	matches, err := vs.QueryMatches(context.Background(), "ns", []float32{1, 2, 3}, 3, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "v1" {
		t.Fatalf("QueryMatches: unexpected matches %+v", matches)
	}
	if _, err := vs.Fetch(context.Background(), "ns", []string{"v1"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	err = vs.DeleteIDs(context.Background(), "ns", []string{"v1"})
	if err != nil {
		t.Fatalf("DeleteIDs: %v", err)
	}

	if inner.upsertCalls != 1 || inner.queryMatchesCalls != 1 || inner.fetchCalls != 1 || inner.deleteCalls != 1 {
		t.Fatalf(
			"unexpected call counts: upsert=%d query_matches=%d fetch=%d delete=%d",
			inner.upsertCalls,
			inner.queryMatchesCalls,
			inner.fetchCalls,
			inner.deleteCalls,
		)
	}
}

func TestInstrumentVectorStoreErrorPassThrough(t *testing.T) {
	want := errors.New("delete failed")
	inner := &fakeInstrumentedInner{deleteErr: want}
	vs := instrumentVectorStore("qdrant", inner)

	err := vs.DeleteIDs(context.Background(), "ns", []string{"v1"})
	if !errors.Is(err, want) {
		t.Fatalf("DeleteIDs: expected wrapped error %v, got=%v", want, err)
	}
}

func TestInstrumentVectorStoreNil(t *testing.T) {
	if vs := instrumentVectorStore("memory", nil); vs != nil {
		t.Fatalf("expected nil wrapper for nil store, got=%T", vs)
	}
}

type fakeInstrumentedInner struct {
	upsertCalls       int
	queryMatchesCalls int
	fetchCalls        int
	deleteCalls       int

	deleteErr error
}

func (f *fakeInstrumentedInner) Upsert(_ context.Context, _ string, _ []vectorstore.Vector) error {
	f.upsertCalls++
	return nil
}

func (f *fakeInstrumentedInner) QueryMatches(_ context.Context, _ string, _ []float32, _ int, _ map[string]any) ([]vectorstore.Match, error) {
	f.queryMatchesCalls++
	return []vectorstore.Match{{ID: "v1", Score: 0.9}}, nil
}

func (f *fakeInstrumentedInner) Fetch(_ context.Context, _ string, ids []string) ([]vectorstore.Vector, error) {
	f.fetchCalls++
	out := make([]vectorstore.Vector, 0, len(ids))
	for _, id := range ids {
		out = append(out, vectorstore.Vector{ID: id})
	}
	return out, nil
}

func (f *fakeInstrumentedInner) DeleteIDs(_ context.Context, _ string, _ []string) error {
	f.deleteCalls++
	return f.deleteErr
}
