package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/storage"
)

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageProviderBootstrapErrorCode
	}{
		{"invalid mode", &storage.ConfigError{Code: storage.ConfigErrorInvalidMode, Value: "bad-mode"}, StorageProviderBootstrapErrorInvalidMode},
		{"missing bucket", &storage.ConfigError{Code: storage.ConfigErrorMissingBucket, Value: "gcs"}, StorageProviderBootstrapErrorMissingBucket},
		{"missing emulator host", &storage.ConfigError{Code: storage.ConfigErrorMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{"invalid emulator host", &storage.ConfigError{Code: storage.ConfigErrorInvalidEmulatorHost, Value: "fake-gcs:4443"}, StorageProviderBootstrapErrorInvalidEmulatorHost},
		{"missing region", &storage.ConfigError{Code: storage.ConfigErrorMissingRegion}, StorageProviderBootstrapErrorMissingRegion},
		{"connect failed", errors.New("dial tcp: connection refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageProviderBootstrapError(storage.Config{Mode: storage.ModeGCSEmulator}, tc.err)

			var got *StorageProviderBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, got.Code)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected cause to be preserved")
			}
		})
	}
}

func TestResolveObjectStoreInvalidMode(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	t.Setenv("OBJECT_STORAGE_MODE", "invalid")
	_, err = resolveObjectStore(context.Background(), log)
	if err == nil {
		t.Fatalf("resolveObjectStore: expected error, got nil")
	}
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorInvalidMode {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidMode, got.Code)
	}
}

func TestResolveObjectStoreLocalMode(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	root := t.TempDir()
	t.Setenv("OBJECT_STORAGE_MODE", "local")
	t.Setenv("OBJECT_STORAGE_ROOT", root)
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	st, err := resolveObjectStore(context.Background(), log)
	if err != nil {
		t.Fatalf("resolveObjectStore: %v", err)
	}
	if err := st.Put(context.Background(), "projects/p/raw/a.txt", strings.NewReader("hello"), "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := st.Exists(context.Background(), "projects/p/raw/a.txt")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestResolveObjectStoreConnectFailure(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	origResolve, origNew := resolveStorageConfig, newObjectStore
	t.Cleanup(func() {
		resolveStorageConfig, newObjectStore = origResolve, origNew
	})
	resolveStorageConfig = func() (storage.Config, error) {
		return storage.Config{Mode: storage.ModeGCS, Bucket: "dats"}, nil
	}
	newObjectStore = func(context.Context, *logger.Logger, storage.Config) (storage.Store, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	_, err = resolveObjectStore(context.Background(), log)
	if code := storageProviderBootstrapErrorCode(err); code != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorConnectFailed, code)
	}
}
