package modelworker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/httpx"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

// ObserveFunc receives one call per HTTP attempt. status is the response
// code, or "error" when no response arrived.
type ObserveFunc func(op, status string, dur time.Duration)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	Observe    ObserveFunc
}

type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	observe    ObserveFunc
}

func New(log *logger.Logger, opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("model worker baseURL required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		log:        log.With("client", "ModelWorker"),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		timeout:    timeout,
		maxRetries: maxRetries,
		httpClient: hc,
		observe:    opts.Observe,
	}, nil
}

func NewFromEnv(log *logger.Logger, observe ObserveFunc) (*Client, error) {
	return New(log, Options{
		BaseURL:    envutil.String("MODEL_WORKER_URL", "http://localhost:8000"),
		APIKey:     envutil.String("MODEL_WORKER_API_KEY", ""),
		Timeout:    envutil.Duration("MODEL_WORKER_TIMEOUT", 10*time.Minute),
		MaxRetries: envutil.Int("MODEL_WORKER_MAX_RETRIES", 2),
		Observe:    observe,
	})
}

func (c *Client) BaseURL() string { return c.baseURL }

// Health fails when the worker's base route is missing.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, 10*time.Second, "health", http.MethodGet, "/health", nil, nil)
}

// Process tokenizes, sentence-splits and runs NER for every input in one call.
func (c *Client) Process(ctx context.Context, inputs []ProcessInput) ([]ProcessResult, error) {
	if len(inputs) == 0 {
		return []ProcessResult{}, nil
	}
	var resp processResponse
	if err := c.doJSON(ctx, c.timeout, "process", http.MethodPost, "/spacy/process", processRequest{Documents: inputs}, &resp); err != nil {
		return nil, err
	}
	byID := make(map[string]ProcessResult, len(resp.Documents))
	for _, d := range resp.Documents {
		byID[d.ID] = d
	}
	out := make([]ProcessResult, len(inputs))
	for i, in := range inputs {
		res, ok := byID[in.ID]
		if !ok {
			return nil, fmt.Errorf("process response missing document id=%s", in.ID)
		}
		conv, err := toByteOffsets(in.Text, res)
		if err != nil {
			return nil, fmt.Errorf("document id=%s: %w", in.ID, err)
		}
		out[i] = conv
	}
	return out, nil
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, language string) (*Transcription, error) {
	if language == "" {
		language = "auto"
	}
	req := transcribeRequest{
		Audio:    base64.StdEncoding.EncodeToString(audio),
		Filename: filename,
		Language: language,
	}
	var resp transcribeResponse
	if err := c.doJSON(ctx, c.timeout, "transcribe", http.MethodPost, "/whisper/transcribe", req, &resp); err != nil {
		return nil, err
	}
	out := &Transcription{Language: resp.Language, Confidence: resp.Confidence}
	for _, seg := range resp.Segments {
		for _, w := range seg.Words {
			if strings.TrimSpace(w.Text) == "" {
				continue
			}
			w.Text = strings.TrimSpace(w.Text)
			out.Words = append(out.Words, w)
		}
	}
	return out, nil
}

func (c *Client) DetectObjects(ctx context.Context, image []byte) ([]Detection, error) {
	var resp detectResponse
	req := imageRequest{Image: base64.StdEncoding.EncodeToString(image)}
	if err := c.doJSON(ctx, c.timeout, "detect", http.MethodPost, "/detr/detect", req, &resp); err != nil {
		return nil, err
	}
	return resp.Detections, nil
}

func (c *Client) Caption(ctx context.Context, image []byte) (string, error) {
	var resp captionResponse
	req := imageRequest{Image: base64.StdEncoding.EncodeToString(image)}
	if err := c.doJSON(ctx, c.timeout, "caption", http.MethodPost, "/blip2/caption", req, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Caption), nil
}

func (c *Client) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var resp embedResponse
	if err := c.doJSON(ctx, c.timeout, "embed_text", http.MethodPost, "/clip/embedding/text", embedTextRequest{Texts: normalizeStrings(texts)}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding response length mismatch: got %d want %d", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (c *Client) EmbedImage(ctx context.Context, images [][]byte) ([][]float32, error) {
	if len(images) == 0 {
		return [][]float32{}, nil
	}
	enc := make([]string, len(images))
	for i, img := range images {
		enc[i] = base64.StdEncoding.EncodeToString(img)
	}
	var resp embedResponse
	if err := c.doJSON(ctx, c.timeout, "embed_image", http.MethodPost, "/clip/embedding/image", embedImageRequest{Images: enc}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(images) {
		return nil, fmt.Errorf("embedding response length mismatch: got %d want %d", len(resp.Embeddings), len(images))
	}
	return resp.Embeddings, nil
}

func (c *Client) PDFToHTML(ctx context.Context, pdf []byte) (*PDFConversion, error) {
	var resp pdfResponse
	req := pdfRequest{PDF: base64.StdEncoding.EncodeToString(pdf)}
	if err := c.doJSON(ctx, c.timeout, "pdf_to_html", http.MethodPost, "/docling/pdf2html", req, &resp); err != nil {
		return nil, err
	}
	out := &PDFConversion{HTML: resp.HTML, Images: make(map[string][]byte, len(resp.Images))}
	for name, b64 := range resp.Images {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode extracted image %q: %w", name, err)
		}
		out.Images[name] = raw
	}
	return out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, op string, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx2.Err() != nil {
			return ctx2.Err()
		}

		req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		c.setHeaders(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.record(op, "error", start)
			if !httpx.IsRetryableError(err) {
				return err
			}
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 256<<20))
			_ = resp.Body.Close()
			c.record(op, strconv.Itoa(resp.StatusCode), start)
			if readErr != nil {
				return readErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				herr := parseHTTPError(op, resp.StatusCode, raw)
				if !herr.Retryable() {
					return herr
				}
				lastErr = herr
			} else {
				if out == nil {
					return nil
				}
				return json.Unmarshal(raw, out)
			}
		}

		if attempt < c.maxRetries {
			backoff := httpx.Backoff(attempt, 250*time.Millisecond, 10*time.Second)
			wait := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 30*time.Second))
			c.log.Warn("model worker call failed; retrying", "op", op, "attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx2.Done():
				return ctx2.Err()
			case <-time.After(wait):
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return lastErr
}

func (c *Client) record(op, status string, start time.Time) {
	if c.observe != nil {
		c.observe(op, status, time.Since(start))
	}
}

func normalizeStrings(inputs []string) []string {
	out := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		out[i] = s
	}
	return out
}
