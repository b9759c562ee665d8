package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/pgvector"
	"github.com/yungbote/dats-backend/internal/platform/qdrant"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

var (
	newQdrantVectorStore = func(log *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
		vs, err := qdrant.NewVectorStore(log, cfg)
		if err != nil {
			return nil, err
		}
		return vs, nil
	}
	newPGVectorStore = func(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg pgvector.Config) (vectorstore.Store, error) {
		vs, err := pgvector.New(ctx, db, log, cfg)
		if err != nil {
			return nil, err
		}
		return vs, nil
	}
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorConfig             VectorProviderBootstrapErrorCode = "config_invalid"
	VectorProviderBootstrapErrorConnectFailed      VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf(
		"vector provider bootstrap failed (code=%s provider=%q): %v",
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore selects the sentence/document embedding backend named by
// VECTOR_PROVIDER and wraps it with operation metrics.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg Config, db *gorm.DB) (vectorstore.Store, error) {
	pcfg, err := resolveVectorProviderConfig(cfg.VectorProvider)
	if err != nil {
		log.Error("Vector store provider selection failed", "provider", cfg.VectorProvider, "error", err)
		return nil, err
	}
	provider := string(pcfg.Provider)

	var vs vectorstore.Store
	switch pcfg.Provider {
	case VectorProviderQdrant:
		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"qdrant_url", pcfg.Qdrant.URL,
			"qdrant_collection", pcfg.Qdrant.Collection,
			"qdrant_namespace_prefix", pcfg.Qdrant.NamespacePrefix,
			"qdrant_vector_dim", pcfg.Qdrant.VectorDim,
		)
		vs, err = newQdrantVectorStore(log, pcfg.Qdrant)
	case VectorProviderPGVector:
		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"pgvector_table", pcfg.PGVector.Table,
			"vector_dim", pcfg.PGVector.VectorDim,
		)
		vs, err = newPGVectorStore(ctx, db, log, pcfg.PGVector)
	case VectorProviderMemory:
		log.Warn("Using in-memory vector store; embeddings are lost on restart")
		vs = vectorstore.NewMemory()
	}
	if err != nil {
		classified := classifyVectorProviderBootstrapError(provider, err)
		log.Error(
			"Vector store provider bootstrap failed",
			"provider", provider,
			"error_code", vectorProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return instrumentVectorStore(provider, vs), nil
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	code := VectorProviderBootstrapErrorProviderInitFailed
	var urlErr *neturl.Error
	var netErr net.Error
	var cfgErr *qdrant.ConfigError
	errLower := strings.ToLower(err.Error())
	switch {
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		code = VectorProviderBootstrapErrorConnectFailed
	case strings.Contains(errLower, "ready check failed"), strings.Contains(errLower, "connection refused"):
		code = VectorProviderBootstrapErrorConnectFailed
	case errors.As(err, &cfgErr):
		code = VectorProviderBootstrapErrorConfig
	}
	return &VectorProviderBootstrapError{
		Code:     code,
		Provider: provider,
		Cause:    err,
	}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return VectorProviderBootstrapErrorConnectFailed
}
