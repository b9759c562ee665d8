package qdrant

import (
	"errors"
	"testing"
)

func TestResolveConfigFromEnvValid(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "dats_sentences")
	t.Setenv("QDRANT_NAMESPACE_PREFIX", "")
	t.Setenv("QDRANT_VECTOR_DIM", "512")
	t.Setenv("QDRANT_DISTANCE", "")
	t.Setenv("QDRANT_AUTO_CREATE", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Collection != "dats_sentences" {
		t.Fatalf("Collection: want=%q got=%q", "dats_sentences", cfg.Collection)
	}
	if cfg.NamespacePrefix != "dats" {
		t.Fatalf("NamespacePrefix default: got=%q", cfg.NamespacePrefix)
	}
	if cfg.VectorDim != 512 {
		t.Fatalf("VectorDim: want=512 got=%d", cfg.VectorDim)
	}
	if cfg.Distance != "Cosine" || !cfg.AutoCreate {
		t.Fatalf("defaults: distance=%q auto_create=%v", cfg.Distance, cfg.AutoCreate)
	}
}

func TestResolveConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name string
		url  string
		dim  string
		dist string
		want ConfigErrorCode
	}{
		{"missing url", "", "512", "", ConfigErrorMissingURL},
		{"relative url", "qdrant:6333", "512", "", ConfigErrorInvalidURL},
		{"missing dim", "http://qdrant:6333", "", "", ConfigErrorMissingVectorDim},
		{"bad dim", "http://qdrant:6333", "abc", "", ConfigErrorInvalidVectorDim},
		{"zero dim", "http://qdrant:6333", "0", "", ConfigErrorInvalidVectorDim},
		{"bad distance", "http://qdrant:6333", "512", "hamming", ConfigErrorInvalidDistance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("QDRANT_URL", tc.url)
			t.Setenv("QDRANT_COLLECTION", "dats")
			t.Setenv("QDRANT_VECTOR_DIM", tc.dim)
			t.Setenv("QDRANT_DISTANCE", tc.dist)

			_, err := ResolveConfigFromEnv()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got=%T (%v)", err, err)
			}
			if cfgErr.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, cfgErr.Code)
			}
		})
	}
}
