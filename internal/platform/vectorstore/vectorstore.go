package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Store is the narrow contract every vector backend implements.
//
// Filters are flat: a scalar value means equality, a slice means "in".
// Scores are similarities, higher is closer.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error)
	Fetch(ctx context.Context, namespace string, ids []string) ([]Vector, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

type Kind string

const (
	KindSentence Kind = "sentence"
	KindDocument Kind = "document"
	KindImage    Kind = "image"
)

// Metadata keys written alongside every embedding.
const (
	MetaSourceDocumentID = "source_document_id"
	MetaSentenceID       = "sentence_id"
	MetaText             = "text"
	MetaDocType          = "doctype"
)

func Namespace(projectID uuid.UUID, kind Kind) string {
	return fmt.Sprintf("project:%s:%s", projectID.String(), kind)
}

func SentenceVectorID(docID uuid.UUID, sentenceID int) string {
	return fmt.Sprintf("%s:%d", docID.String(), sentenceID)
}

func DocumentVectorID(docID uuid.UUID) string {
	return docID.String()
}

// ParseSentenceVectorID is the inverse of SentenceVectorID.
func ParseSentenceVectorID(id string) (uuid.UUID, int, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return uuid.Nil, 0, fmt.Errorf("malformed sentence vector id %q", id)
	}
	docID, err := uuid.Parse(id[:i])
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("malformed sentence vector id %q: %w", id, err)
	}
	var n int
	if _, err := fmt.Sscanf(id[i+1:], "%d", &n); err != nil {
		return uuid.Nil, 0, fmt.Errorf("malformed sentence vector id %q: %w", id, err)
	}
	return docID, n, nil
}

// MatchesFilter reports whether metadata satisfies a flat filter.
func MatchesFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			if !containsString(w, fmt.Sprint(got)) {
				return false
			}
		case []any:
			found := false
			for _, v := range w {
				if fmt.Sprint(v) == fmt.Sprint(got) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if fmt.Sprint(want) != fmt.Sprint(got) {
				return false
			}
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Mean returns the element-wise mean of vectors, or nil when none are given.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	n := 0
	for _, v := range vectors {
		if len(v) != len(out) {
			continue
		}
		for i := range v {
			out[i] += v[i]
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return out
}
