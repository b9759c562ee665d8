package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/dats-backend/internal/platform/pgvector"
	"github.com/yungbote/dats-backend/internal/platform/qdrant"
)

type VectorProvider string

const (
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderPGVector VectorProvider = "pgvector"
	// VectorProviderMemory keeps embeddings in process. Single-node dev only.
	VectorProviderMemory VectorProvider = "memory"
)

type VectorProviderConfigErrorCode string

const (
	VectorProviderConfigErrorInvalidProvider      VectorProviderConfigErrorCode = "invalid_provider"
	VectorProviderConfigErrorMissingQdrantURL     VectorProviderConfigErrorCode = "missing_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantURL     VectorProviderConfigErrorCode = "invalid_qdrant_url"
	VectorProviderConfigErrorMissingQdrantColl    VectorProviderConfigErrorCode = "missing_qdrant_collection"
	VectorProviderConfigErrorMissingQdrantVector  VectorProviderConfigErrorCode = "missing_qdrant_vector_dim"
	VectorProviderConfigErrorInvalidQdrantVector  VectorProviderConfigErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderConfigErrorUnknownQdrantFailure VectorProviderConfigErrorCode = "qdrant_config_error"
	VectorProviderConfigErrorPGVectorConfig       VectorProviderConfigErrorCode = "pgvector_config_error"
)

type VectorProviderConfigError struct {
	Code     VectorProviderConfigErrorCode
	Provider VectorProvider
	Cause    error
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf(
		"invalid vector provider config (code=%s provider=%q): %v",
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *VectorProviderConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type VectorProviderConfig struct {
	Provider VectorProvider
	Qdrant   qdrant.Config
	PGVector pgvector.Config
}

func resolveVectorProviderConfig(raw string) (VectorProviderConfig, error) {
	provider := VectorProvider(strings.ToLower(strings.TrimSpace(raw)))
	if provider == "" {
		provider = VectorProviderQdrant
	}
	switch provider {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return VectorProviderConfig{}, mapVectorProviderConfigError(err)
		}
		return VectorProviderConfig{Provider: provider, Qdrant: qcfg}, nil
	case VectorProviderPGVector:
		pcfg, err := pgvector.ResolveConfigFromEnv()
		if err != nil {
			return VectorProviderConfig{}, &VectorProviderConfigError{
				Code:     VectorProviderConfigErrorPGVectorConfig,
				Provider: provider,
				Cause:    err,
			}
		}
		return VectorProviderConfig{Provider: provider, PGVector: pcfg}, nil
	case VectorProviderMemory:
		return VectorProviderConfig{Provider: provider}, nil
	default:
		return VectorProviderConfig{}, &VectorProviderConfigError{
			Code:     VectorProviderConfigErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q (allowed: qdrant, pgvector, memory)", raw),
		}
	}
}

func mapVectorProviderConfigError(err error) error {
	code := VectorProviderConfigErrorUnknownQdrantFailure
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderConfigErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderConfigErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderConfigErrorMissingQdrantColl
		case qdrant.ConfigErrorMissingVectorDim:
			code = VectorProviderConfigErrorMissingQdrantVector
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderConfigErrorInvalidQdrantVector
		}
	}
	return &VectorProviderConfigError{
		Code:     code,
		Provider: VectorProviderQdrant,
		Cause:    err,
	}
}
