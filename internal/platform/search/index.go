package search

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Document is the searchable projection of one SourceDocument.
type Document struct {
	SourceDocumentID uuid.UUID `json:"sdoc_id"`
	ProjectID        uuid.UUID `json:"project_id"`
	Filename         string    `json:"filename"`
	Name             string    `json:"name"`
	DocType          string    `json:"doctype"`
	Language         string    `json:"language"`
	Content          string    `json:"content"`
	Created          time.Time `json:"created"`
}

type Hit struct {
	SourceDocumentID uuid.UUID `json:"sdoc_id"`
	Score            float64   `json:"score"`
	Highlights       []string  `json:"highlights,omitempty"`
}

// Index is the full-text index contract. Entries are eventually consistent
// with the relational store.
type Index interface {
	EnsureIndex(ctx context.Context, projectID uuid.UUID) error
	IndexDocument(ctx context.Context, doc Document) error
	DeleteDocument(ctx context.Context, projectID, sdocID uuid.UUID) error
	Search(ctx context.Context, projectID uuid.UUID, query string, limit int) ([]Hit, error)
}

type noop struct{}

// Noop is used when no index is configured.
func Noop() Index { return noop{} }

func (noop) EnsureIndex(context.Context, uuid.UUID) error                { return nil }
func (noop) IndexDocument(context.Context, Document) error               { return nil }
func (noop) DeleteDocument(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (noop) Search(context.Context, uuid.UUID, string, int) ([]Hit, error) {
	return nil, nil
}
