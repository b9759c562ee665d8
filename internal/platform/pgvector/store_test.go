package pgvector

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestBuildFilterSQL(t *testing.T) {
	doc := uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001")
	where, args, err := buildFilterSQL(map[string]any{
		"source_document_id": doc,
		"doctype":            []string{"text", "audio"},
		"sentence_id":        3,
	})
	if err != nil {
		t.Fatalf("buildFilterSQL: %v", err)
	}
	wantWhere := " AND metadata->>'doctype' IN ? AND metadata->>'sentence_id' = ? AND metadata->>'source_document_id' = ?"
	if where != wantWhere {
		t.Fatalf("where:\n got=%q\nwant=%q", where, wantWhere)
	}
	wantArgs := []any{[]string{"text", "audio"}, "3", doc.String()}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args: got=%v want=%v", args, wantArgs)
	}
}

func TestBuildFilterSQLRejectsUnsafeInput(t *testing.T) {
	cases := []map[string]any{
		{"x'; DROP TABLE t; --": "a"},
		{"doctype": []string{}},
		{"doctype": map[string]any{"$ne": "text"}},
	}
	for _, f := range cases {
		if _, _, err := buildFilterSQL(f); err == nil {
			t.Fatalf("expected error for %v", f)
		}
	}
	where, args, err := buildFilterSQL(nil)
	if err != nil || where != "" || args != nil {
		t.Fatalf("empty filter: %q %v %v", where, args, err)
	}
}

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("VECTOR_DIM", "")
	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("expected error without VECTOR_DIM")
	}
	t.Setenv("VECTOR_DIM", "384")
	t.Setenv("PGVECTOR_TABLE", "bad-name")
	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("expected error for invalid table name")
	}
	t.Setenv("PGVECTOR_TABLE", "")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Table != "dats_embeddings" || cfg.VectorDim != 384 {
		t.Fatalf("cfg: %+v", cfg)
	}
}
