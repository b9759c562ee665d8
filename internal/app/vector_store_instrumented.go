package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

// instrumentedVectorStore traces and times every call against the selected
// provider. Namespaces are per project, so spans carry the project scope.
type instrumentedVectorStore struct {
	provider string
	inner    vectorstore.Store
	metrics  *observability.Metrics
}

func instrumentVectorStore(provider string, inner vectorstore.Store) vectorstore.Store {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{
		provider: provider,
		inner:    inner,
		metrics:  observability.Current(),
	}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) (err error) {
	ctx, done := s.begin(ctx, "upsert", namespace, len(vectors))
	defer func() { done(err) }()
	return s.inner.Upsert(ctx, namespace, vectors)
}

func (s *instrumentedVectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) (out []vectorstore.Match, err error) {
	ctx, done := s.begin(ctx, "query_matches", namespace, topK)
	defer func() { done(err) }()
	return s.inner.QueryMatches(ctx, namespace, q, topK, filter)
}

func (s *instrumentedVectorStore) Fetch(ctx context.Context, namespace string, ids []string) (out []vectorstore.Vector, err error) {
	ctx, done := s.begin(ctx, "fetch", namespace, len(ids))
	defer func() { done(err) }()
	return s.inner.Fetch(ctx, namespace, ids)
}

func (s *instrumentedVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) (err error) {
	ctx, done := s.begin(ctx, "delete_ids", namespace, len(ids))
	defer func() { done(err) }()
	return s.inner.DeleteIDs(ctx, namespace, ids)
}

// begin opens a span for one operation; the returned func ends it and
// records the latency under a success/error status.
func (s *instrumentedVectorStore) begin(ctx context.Context, operation, namespace string, n int) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "vectorstore."+operation,
		attribute.String("vectorstore.provider", s.provider),
		attribute.String("vectorstore.namespace", namespace),
		attribute.Int("vectorstore.items", n),
	)
	return ctx, func(err error) {
		observability.EndSpan(span, err)
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.ObserveVectorOp(s.provider, operation, status, time.Since(start))
	}
}
