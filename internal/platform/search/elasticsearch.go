package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/pkg/ctxutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

const (
	maxErrorBodyBytes = 1024
	maxResponseBytes  = 32 << 20
)

var sdocMappings = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"sdoc_id":    map[string]any{"type": "keyword"},
			"project_id": map[string]any{"type": "keyword"},
			"filename":   map[string]any{"type": "keyword"},
			"name":       map[string]any{"type": "text"},
			"doctype":    map[string]any{"type": "keyword"},
			"language":   map[string]any{"type": "keyword"},
			"content":    map[string]any{"type": "text"},
			"created":    map[string]any{"type": "date"},
		},
	},
}

// Elasticsearch keeps one index per project named <prefix>-project-<id>-sdocs.
type Elasticsearch struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

var _ Index = (*Elasticsearch)(nil)

func NewElasticsearch(log *logger.Logger, cfg Config) (*Elasticsearch, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	es := newElasticsearch(log, cfg, &http.Client{Timeout: 30 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := es.do(ctx, "ping", http.MethodGet, "/", nil, nil); err != nil {
		return nil, err
	}
	log.Info("Elasticsearch index selected", "url", es.baseURL, "index_prefix", cfg.IndexPrefix)
	return es, nil
}

func newElasticsearch(log *logger.Logger, cfg Config, client *http.Client) *Elasticsearch {
	return &Elasticsearch{
		log:     log.With("service", "ElasticsearchIndex"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    client,
	}
}

func (e *Elasticsearch) indexName(projectID uuid.UUID) string {
	return fmt.Sprintf("%s-project-%s-sdocs", e.cfg.IndexPrefix, projectID.String())
}

func (e *Elasticsearch) EnsureIndex(ctx context.Context, projectID uuid.UUID) error {
	const op = "ensure_index"
	name := e.indexName(projectID)
	err := e.do(ctx, op, http.MethodHead, "/"+name, nil, nil)
	if err == nil {
		return nil
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.StatusCode != http.StatusNotFound {
		return err
	}
	err = e.do(ctx, op, http.MethodPut, "/"+name, sdocMappings, nil)
	if errors.As(err, &oe) && oe.StatusCode == http.StatusBadRequest && strings.Contains(oe.Message, "resource_already_exists_exception") {
		return nil
	}
	if err == nil {
		e.log.Info("Created search index", "index", name)
	}
	return err
}

func (e *Elasticsearch) IndexDocument(ctx context.Context, doc Document) error {
	const op = "index_document"
	if doc.SourceDocumentID == uuid.Nil || doc.ProjectID == uuid.Nil {
		return opErr(op, OperationErrorValidation, "document and project ids are required", nil)
	}
	if err := e.EnsureIndex(ctx, doc.ProjectID); err != nil {
		return err
	}
	path := fmt.Sprintf("/%s/_doc/%s", e.indexName(doc.ProjectID), doc.SourceDocumentID)
	return e.do(ctx, op, http.MethodPut, path, doc, nil)
}

func (e *Elasticsearch) DeleteDocument(ctx context.Context, projectID, sdocID uuid.UUID) error {
	const op = "delete_document"
	path := fmt.Sprintf("/%s/_doc/%s", e.indexName(projectID), sdocID)
	err := e.do(ctx, op, http.MethodDelete, path, nil, nil)
	var oe *OperationError
	if errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID        string              `json:"_id"`
			Score     float64             `json:"_score"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elasticsearch) Search(ctx context.Context, projectID uuid.UUID, query string, limit int) ([]Hit, error) {
	const op = "search"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, opErr(op, OperationErrorValidation, "query is required", nil)
	}
	if limit <= 0 {
		limit = 20
	}
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"content", "name^2", "filename"},
			},
		},
		"highlight": map[string]any{"fields": map[string]any{"content": map[string]any{}}},
	}
	var resp searchResponse
	if err := e.do(ctx, op, http.MethodPost, "/"+e.indexName(projectID)+"/_search", body, &resp); err != nil {
		var oe *OperationError
		if errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			e.log.Warn("Skipping search hit with foreign id", "id", h.ID)
			continue
		}
		out = append(out, Hit{SourceDocumentID: id, Score: h.Score, Highlights: h.Highlight["content"]})
	}
	return out, nil
}

func (e *Elasticsearch) do(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, e.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Username != "" {
		req.SetBasicAuth(e.cfg.Username, e.cfg.Password)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "elasticsearch request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("elasticsearch http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode response failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
