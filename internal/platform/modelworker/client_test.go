package modelworker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(raw))),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	c, err := New(logger.Nop(), Options{
		BaseURL:    "http://worker.local",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestProcessConvertsCodePointOffsetsToBytes(t *testing.T) {
	text := "Zoë läuft."
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/spacy/process" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(200, map[string]any{
			"documents": []map[string]any{{
				"id":        "d1",
				"tokens":    []map[string]int{{"start": 0, "end": 3}, {"start": 4, "end": 9}, {"start": 9, "end": 10}},
				"sentences": []map[string]int{{"start": 0, "end": 10}},
				"entities":  []map[string]any{{"label": "PER", "start": 0, "end": 3, "start_token": 0, "end_token": 1}},
			}},
		}), nil
	})

	res, err := c.Process(context.Background(), []ProcessInput{{ID: "d1", Text: text, Language: "de"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	toks := res[0].Tokens
	if got := text[toks[0].Start:toks[0].End]; got != "Zoë" {
		t.Fatalf("token 0: %q", got)
	}
	if got := text[toks[1].Start:toks[1].End]; got != "läuft" {
		t.Fatalf("token 1: %q", got)
	}
	if res[0].Sentences[0].End != len(text) {
		t.Fatalf("sentence end: want=%d got=%d", len(text), res[0].Sentences[0].End)
	}
	if ent := res[0].Entities[0]; text[ent.Start:ent.End] != "Zoë" {
		t.Fatalf("entity: %+v", ent)
	}
}

func TestProcessRejectsOutOfRangeOffsets(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, map[string]any{
			"documents": []map[string]any{{"id": "d1", "tokens": []map[string]int{{"start": 0, "end": 99}}}},
		}), nil
	})
	if _, err := c.Process(context.Background(), []ProcessInput{{ID: "d1", Text: "abc"}}); err == nil {
		t.Fatalf("expected error for out of range offset")
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(422, map[string]any{"detail": "bad language"}), nil
	})
	_, err := c.EmbedText(context.Background(), []string{"a"})
	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if herr.StatusCode != 422 || herr.Message != "bad language" || herr.Operation != "embed_text" {
		t.Fatalf("unexpected error: %+v", herr)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 2 {
			return jsonResponse(503, map[string]any{"error": map[string]any{"message": "warming up"}}), nil
		}
		return jsonResponse(200, map[string]any{"embeddings": [][]float32{{1, 0}}}), nil
	})
	vecs, err := c.EmbedText(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vecs) != 1 || calls != 2 {
		t.Fatalf("vecs=%v calls=%d", vecs, calls)
	}
}

func TestPDFToHTMLDecodesImages(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		var body pdfRequest
		_ = json.NewDecoder(req.Body).Decode(&body)
		if raw, _ := base64.StdEncoding.DecodeString(body.PDF); string(raw) != "%PDF-1.4" {
			t.Fatalf("pdf not forwarded: %q", raw)
		}
		return jsonResponse(200, map[string]any{
			"html":   "<p>hi</p>",
			"images": map[string]string{"img_0.png": base64.StdEncoding.EncodeToString([]byte("png"))},
		}), nil
	})
	conv, err := c.PDFToHTML(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("PDFToHTML: %v", err)
	}
	if conv.HTML != "<p>hi</p>" || string(conv.Images["img_0.png"]) != "png" {
		t.Fatalf("unexpected conversion: %+v", conv)
	}
}

func TestTranscribeFlattensSegments(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, map[string]any{
			"language": "en",
			"segments": []map[string]any{
				{"words": []map[string]any{{"text": " Hello", "start_ms": 0, "end_ms": 400}}},
				{"words": []map[string]any{{"text": " ", "start_ms": 400, "end_ms": 410}, {"text": "world", "start_ms": 500, "end_ms": 900}}},
			},
		}), nil
	})
	tr, err := c.Transcribe(context.Background(), []byte("RIFF"), "a.wav", "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(tr.Words) != 2 || tr.Words[0].Text != "Hello" || tr.Words[1].StartMS != 500 {
		t.Fatalf("unexpected words: %+v", tr.Words)
	}
}

func TestEveryAttemptIsObserved(t *testing.T) {
	var calls int32
	var seen []string
	c, err := New(logger.Nop(), Options{
		BaseURL:    "http://worker.local",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) < 2 {
				return jsonResponse(503, map[string]any{"detail": "warming up"}), nil
			}
			return jsonResponse(200, map[string]any{"embeddings": [][]float32{{1, 0}}}), nil
		})},
		Observe: func(op, status string, dur time.Duration) {
			if dur < 0 {
				t.Errorf("negative duration for %s", op)
			}
			seen = append(seen, op+":"+status)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.EmbedText(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if strings.Join(seen, ",") != "embed_text:503,embed_text:200" {
		t.Fatalf("unexpected observations: %v", seen)
	}
}

func TestHealthFailsWithoutBaseRoute(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, map[string]any{"detail": "Not Found"}), nil
	})
	err := c.Health(context.Background())
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusNotFound || herr.Operation != "health" {
		t.Fatalf("expected 404 health error, got %v", err)
	}
}
