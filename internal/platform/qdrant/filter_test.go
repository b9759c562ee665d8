package qdrant

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestTranslateFilterMapScalarsAndLists(t *testing.T) {
	docID := uuid.MustParse("6f1f2d7e-9c61-4a5b-8a53-0d4f2f6d6b11")
	got, err := translateFilterMap(map[string]any{
		"doctype":            "text",
		"source_document_id": []string{"a", "b"},
		"owner":              docID,
		"sentence_id":        map[string]any{"$ne": 0},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 3 || len(got.MustNot) != 1 {
		t.Fatalf("must=%d must_not=%d", len(got.Must), len(got.MustNot))
	}

	typeCond := findConditionByKey(got.Must, "doctype")
	if typeCond == nil || typeCond["match"].(map[string]any)["value"] != "text" {
		t.Fatalf("doctype condition: %v", typeCond)
	}
	docCond := findConditionByKey(got.Must, "source_document_id")
	anyVals, ok := docCond["match"].(map[string]any)["any"].([]any)
	if !ok || len(anyVals) != 2 || anyVals[0] != "a" {
		t.Fatalf("source_document_id any: %v", docCond)
	}
	ownerCond := findConditionByKey(got.Must, "owner")
	if ownerCond["match"].(map[string]any)["value"] != docID.String() {
		t.Fatalf("stringer values should be rendered: %v", ownerCond)
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	for _, filter := range []map[string]any{
		{"score": map[string]any{"$gt": 2}},
		{"$or": []any{}},
	} {
		_, err := translateFilterMap(filter)
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			t.Fatalf("expected OperationError for %v, got=%T", filter, err)
		}
		if opErr.Code != OperationErrorUnsupportedFilter {
			t.Fatalf("code: want=%q got=%q", OperationErrorUnsupportedFilter, opErr.Code)
		}
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
