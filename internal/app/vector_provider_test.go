package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/pgvector"
	"github.com/yungbote/dats-backend/internal/platform/qdrant"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

func TestResolveVectorStoreQdrantSelected(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "dats")
	t.Setenv("QDRANT_NAMESPACE_PREFIX", "proj")
	t.Setenv("QDRANT_VECTOR_DIM", "768")

	orig := newQdrantVectorStore
	t.Cleanup(func() {
		newQdrantVectorStore = orig
	})

	stub := &fakeInstrumentedInner{}
	var captured qdrant.Config
	newQdrantVectorStore = func(_ *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
		captured = cfg
		return stub, nil
	}

	vs, err := resolveVectorStore(context.Background(), logger.Nop(), Config{VectorProvider: "qdrant"}, nil)
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if err := vs.Upsert(context.Background(), "ns", []vectorstore.Vector{{ID: "vec-1", Values: []float32{1, 2, 3}}}); err != nil {
		t.Fatalf("vector store upsert: %v", err)
	}
	if stub.upsertCalls != 1 {
		t.Fatalf("underlying qdrant store not called; upsert_calls=%d", stub.upsertCalls)
	}
	if captured.NamespacePrefix != "proj" {
		t.Fatalf("qdrant.NamespacePrefix: want=%q got=%q", "proj", captured.NamespacePrefix)
	}
}

func TestResolveVectorStoreMemory(t *testing.T) {
	orig := newQdrantVectorStore
	t.Cleanup(func() {
		newQdrantVectorStore = orig
	})
	newQdrantVectorStore = func(_ *logger.Logger, _ qdrant.Config) (vectorstore.Store, error) {
		t.Fatalf("qdrant must not be initialized in memory mode")
		return nil, nil
	}

	vs, err := resolveVectorStore(context.Background(), logger.Nop(), Config{VectorProvider: "memory"}, nil)
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	ctx := context.Background()
	if err := vs.Upsert(ctx, "ns", []vectorstore.Vector{{ID: "a", Values: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	matches, err := vs.QueryMatches(ctx, "ns", []float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestResolveVectorStorePGVectorPassesDB(t *testing.T) {
	t.Setenv("PGVECTOR_TABLE", "dats_embeddings")
	t.Setenv("VECTOR_DIM", "768")

	orig := newPGVectorStore
	t.Cleanup(func() {
		newPGVectorStore = orig
	})
	db := &gorm.DB{}
	var gotDB *gorm.DB
	var gotCfg pgvector.Config
	newPGVectorStore = func(_ context.Context, in *gorm.DB, _ *logger.Logger, cfg pgvector.Config) (vectorstore.Store, error) {
		gotDB = in
		gotCfg = cfg
		return &fakeInstrumentedInner{}, nil
	}

	if _, err := resolveVectorStore(context.Background(), logger.Nop(), Config{VectorProvider: "pgvector"}, db); err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if gotDB != db {
		t.Fatalf("pgvector store did not receive the application db")
	}
	if gotCfg.Table != "dats_embeddings" || gotCfg.VectorDim != 768 {
		t.Fatalf("unexpected pgvector config: %+v", gotCfg)
	}
}

func TestResolveVectorStoreConnectFailure(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_VECTOR_DIM", "768")

	orig := newQdrantVectorStore
	t.Cleanup(func() {
		newQdrantVectorStore = orig
	})
	newQdrantVectorStore = func(_ *logger.Logger, _ qdrant.Config) (vectorstore.Store, error) {
		return nil, fmt.Errorf("qdrant ready check failed: %w", &net.OpError{Op: "dial", Err: errors.New("connection refused")})
	}

	_, err := resolveVectorStore(context.Background(), logger.Nop(), Config{VectorProvider: "qdrant"}, nil)
	var got *VectorProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected VectorProviderBootstrapError, got=%T (%v)", err, err)
	}
	if got.Code != VectorProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", VectorProviderBootstrapErrorConnectFailed, got.Code)
	}
}

func TestResolveVectorStoreInvalidProvider(t *testing.T) {
	_, err := resolveVectorStore(context.Background(), logger.Nop(), Config{VectorProvider: "pinecone"}, nil)
	var got *VectorProviderConfigError
	if !errors.As(err, &got) || got.Code != VectorProviderConfigErrorInvalidProvider {
		t.Fatalf("expected invalid provider config error, got=%v", err)
	}
}

func TestClassifyVectorProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want VectorProviderBootstrapErrorCode
	}{
		{"config", &qdrant.ConfigError{Code: qdrant.ConfigErrorInvalidDistance}, VectorProviderBootstrapErrorConfig},
		{"refused", errors.New("dial tcp: connection refused"), VectorProviderBootstrapErrorConnectFailed},
		{"other", errors.New("pgvector requires postgres, got sqlite"), VectorProviderBootstrapErrorProviderInitFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := vectorProviderBootstrapErrorCode(classifyVectorProviderBootstrapError("qdrant", tc.err))
			if got != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, got)
			}
		})
	}
}
