package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

// ErrNotExist is returned (wrapped) by Open and Stat for missing keys.
var ErrNotExist = fs.ErrNotExist

// Store is the object store holding raw uploads and derived artifacts.
// Put returns only after the object is durable.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Updated     time.Time
}

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeS3          Mode = "s3"
)

type Config struct {
	Mode         Mode
	LocalRoot    string
	Bucket       string
	EmulatorHost string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
	ConfigErrorMissingRegion       ConfigErrorCode = "missing_region"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: local, gcs, gcs_emulator, s3)", e.Value)
	case ConfigErrorMissingBucket:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires OBJECT_STORAGE_BUCKET", e.Value)
	case ConfigErrorMissingEmulatorHost:
		return "OBJECT_STORAGE_MODE=\"gcs_emulator\" requires STORAGE_EMULATOR_HOST to be set"
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.Value)
	case ConfigErrorMissingRegion:
		return "OBJECT_STORAGE_MODE=\"s3\" requires AWS_REGION"
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		LocalRoot:    strings.TrimSpace(os.Getenv("OBJECT_STORAGE_ROOT")),
		Bucket:       strings.TrimSpace(os.Getenv("OBJECT_STORAGE_BUCKET")),
		EmulatorHost: strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")),
		S3Region:     strings.TrimSpace(os.Getenv("AWS_REGION")),
		S3Endpoint:   strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		S3AccessKey:  strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
		S3SecretKey:  strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
	}
	raw := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	switch Mode(strings.ToLower(raw)) {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ModeGCSEmulator
		} else {
			cfg.Mode = ModeLocal
		}
	case ModeLocal, ModeGCS, ModeGCSEmulator, ModeS3:
		cfg.Mode = Mode(strings.ToLower(raw))
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Value: raw}
	}
	if cfg.LocalRoot == "" {
		cfg.LocalRoot = "./data/objects"
	}
	return cfg, Validate(cfg)
}

func Validate(cfg Config) error {
	switch cfg.Mode {
	case ModeLocal:
		return nil
	case ModeGCS:
		if cfg.Bucket == "" {
			return &ConfigError{Code: ConfigErrorMissingBucket, Value: string(cfg.Mode)}
		}
	case ModeGCSEmulator:
		if cfg.Bucket == "" {
			return &ConfigError{Code: ConfigErrorMissingBucket, Value: string(cfg.Mode)}
		}
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost}
		}
		u, err := url.Parse(cfg.EmulatorHost)
		if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
			return &ConfigError{Code: ConfigErrorInvalidEmulatorHost, Value: cfg.EmulatorHost, Cause: err}
		}
	case ModeS3:
		if cfg.Bucket == "" {
			return &ConfigError{Code: ConfigErrorMissingBucket, Value: string(cfg.Mode)}
		}
		if cfg.S3Region == "" {
			return &ConfigError{Code: ConfigErrorMissingRegion}
		}
	default:
		return &ConfigError{Code: ConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
	return nil
}

// New builds the Store for cfg.Mode. Unreachable backends fail here so the
// process never starts serving without storage.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	var (
		st  Store
		err error
	)
	switch cfg.Mode {
	case ModeLocal:
		st, err = NewLocal(cfg.LocalRoot)
	case ModeGCS, ModeGCSEmulator:
		st, err = NewGCS(ctx, log, cfg)
	case ModeS3:
		st, err = NewS3(ctx, log, cfg)
	}
	if err != nil {
		return nil, err
	}
	log.Info("Object storage initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "root", cfg.LocalRoot)
	return st, nil
}

// RawKey is where an uploaded file is kept.
func RawKey(projectID uuid.UUID, filename string) string {
	return path.Join("projects", projectID.String(), "raw", cleanName(filename))
}

// UploadKey is a staging key for a file that has not been classified yet.
func UploadKey(projectID, preproJobID uuid.UUID, filename string) string {
	return path.Join("projects", projectID.String(), "uploads", preproJobID.String(), cleanName(filename))
}

func cleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." {
		return "unnamed"
	}
	return name
}

func validateKey(key string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", fmt.Errorf("object key required")
	}
	clean := path.Clean(k)
	if clean != k || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return clean, nil
}

func notExist(key string, cause error) error {
	if cause == nil {
		return fmt.Errorf("object %q: %w", key, ErrNotExist)
	}
	return fmt.Errorf("object %q: %w (%v)", key, ErrNotExist, cause)
}

// IsNotExist reports whether err signals a missing object.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// ReadAll reads a whole object into memory.
func ReadAll(ctx context.Context, st Store, key string) ([]byte, error) {
	rc, err := st.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
