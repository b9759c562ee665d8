package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/gcp"
)

// GCSStore keeps objects in one bucket. In emulator mode reads and stats go
// through the emulator's JSON API directly, writes use the SDK.
type GCSStore struct {
	log          *logger.Logger
	client       *gcs.Client
	bucket       string
	emulatorHost string
	http         *http.Client
}

func NewGCS(ctx context.Context, log *logger.Logger, cfg Config) (*GCSStore, error) {
	var opts []option.ClientOption
	emulator := ""
	if cfg.Mode == ModeGCSEmulator {
		emulator = strings.TrimRight(cfg.EmulatorHost, "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(gcp.ClientOptions(gcp.ServiceStorage), option.WithScopes(gcs.ScopeReadWrite))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{
		log:          log.With("service", "GCSStore"),
		client:       client,
		bucket:       cfg.Bucket,
		emulatorHost: emulator,
		http:         &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	k, err := validateKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	w := s.client.Bucket(s.bucket).Object(k).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %q: %w", k, err)
	}
	// The object is committed only when Close returns nil.
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit gcs object %q: %w", k, err)
	}
	return nil
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	// The reader outlives this call, so cancel is tied to Close.
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Minute)
	if s.emulatorHost != "" {
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, s.emulatorURL(k, true), nil)
		if err != nil {
			cancel()
			return nil, err
		}
		resp, err := s.http.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("emulator download: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			cancel()
			return nil, notExist(k, nil)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
	}
	r, err := s.client.Bucket(s.bucket).Object(k).NewReader(ctx2)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		cancel()
		return nil, notExist(k, err)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open gcs object %q: %w", k, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *GCSStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	k, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if s.emulatorHost != "" {
		return s.emulatorStat(ctx, k)
	}
	attrs, err := s.client.Bucket(s.bucket).Object(k).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, notExist(k, err)
	}
	if err != nil {
		return nil, fmt.Errorf("stat gcs object %q: %w", k, err)
	}
	return &ObjectInfo{Key: k, Size: attrs.Size, ContentType: attrs.ContentType, Updated: attrs.Updated}, nil
}

func (s *GCSStore) emulatorStat(ctx context.Context, key string) (*ObjectInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.emulatorURL(key, false), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emulator attrs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, notExist(key, nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("emulator attrs failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Size        string `json:"size"`
		ContentType string `json:"contentType"`
		Updated     string `json:"updated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode emulator attrs: %w", err)
	}
	size, _ := strconv.ParseInt(strings.TrimSpace(payload.Size), 10, 64)
	updated, _ := time.Parse(time.RFC3339, strings.TrimSpace(payload.Updated))
	return &ObjectInfo{Key: key, Size: size, ContentType: payload.ContentType, Updated: updated}, nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Stat(ctx, key)
	if IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	k, err := validateKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err = s.client.Bucket(s.bucket).Object(k).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %q: %w", k, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (s *GCSStore) emulatorURL(key string, media bool) string {
	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", s.emulatorHost, url.PathEscape(s.bucket), url.PathEscape(key))
	if media {
		u += "?alt=media"
	}
	return u
}
