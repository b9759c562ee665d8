package search

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

func newTestES(fn roundTripFunc) *Elasticsearch {
	cfg := Config{URL: "http://es:9200", IndexPrefix: "dats", Username: "elastic", Password: "pw"}
	return newElasticsearch(logger.Nop(), cfg, &http.Client{Transport: fn})
}

func TestIndexDocumentCreatesMissingIndex(t *testing.T) {
	project := uuid.New()
	doc := uuid.New()
	var calls []string
	es := newTestES(func(r *http.Request) (*http.Response, error) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if u, p, ok := r.BasicAuth(); !ok || u != "elastic" || p != "pw" {
			t.Fatalf("missing basic auth")
		}
		if r.Method == http.MethodHead {
			return response(404, ""), nil
		}
		if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/_doc/"+doc.String()) {
			var got Document
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if got.Content != "hello world" {
				t.Fatalf("content: %q", got.Content)
			}
		}
		return response(200, `{}`), nil
	})

	err := es.IndexDocument(t.Context(), Document{SourceDocumentID: doc, ProjectID: project, Content: "hello world"})
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	index := "/dats-project-" + project.String() + "-sdocs"
	want := []string{"HEAD " + index, "PUT " + index, "PUT " + index + "/_doc/" + doc.String()}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls:\n got=%v\nwant=%v", calls, want)
	}
}

func TestDeleteMissingDocumentIsNoError(t *testing.T) {
	es := newTestES(func(r *http.Request) (*http.Response, error) {
		return response(404, `{"result":"not_found"}`), nil
	})
	if err := es.DeleteDocument(t.Context(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
}

func TestSearchParsesHits(t *testing.T) {
	doc := uuid.New()
	es := newTestES(func(r *http.Request) (*http.Response, error) {
		body := `{"hits":{"hits":[{"_id":"` + doc.String() + `","_score":2.5,"highlight":{"content":["<em>hello</em>"]}},{"_id":"junk","_score":1}]}}`
		return response(200, body), nil
	})
	hits, err := es.Search(t.Context(), uuid.New(), "hello", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].SourceDocumentID != doc || hits[0].Score != 2.5 || len(hits[0].Highlights) != 1 {
		t.Fatalf("hits: %+v", hits)
	}
}

func TestServerErrorIsTyped(t *testing.T) {
	es := newTestES(func(r *http.Request) (*http.Response, error) {
		return response(503, `unavailable`), nil
	})
	_, err := es.Search(t.Context(), uuid.New(), "x", 0)
	var oe *OperationError
	if !errors.As(err, &oe) || oe.StatusCode != 503 || oe.Code != OperationErrorRequestFailed {
		t.Fatalf("expected typed error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		cfg  Config
		code ConfigErrorCode
	}{
		{Config{IndexPrefix: "dats"}, ConfigErrorMissingURL},
		{Config{URL: "es:9200", IndexPrefix: "dats"}, ConfigErrorInvalidURL},
		{Config{URL: "http://es:9200", IndexPrefix: "Bad Prefix"}, ConfigErrorInvalidPrefix},
	}
	for _, tc := range cases {
		err := ValidateConfig(tc.cfg)
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Code != tc.code {
			t.Fatalf("%+v: want code %s, got %v", tc.cfg, tc.code, err)
		}
	}
	if err := ValidateConfig(Config{URL: "http://es:9200", IndexPrefix: "dats"}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
