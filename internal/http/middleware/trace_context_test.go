package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/dats-backend/internal/pkg/ctxutil"
)

func TestAttachTraceContextCarriesProjectID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/projects/:id/status", func(c *gin.Context) {
		got = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})
	r.GET("/jobs/:id", func(c *gin.Context) {
		got = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	const projectID = "7f9c2ba4-e88f-4e1b-9d57-2a4c3b6a1f00"
	req := httptest.NewRequest(http.MethodGet, "/projects/"+projectID+"/status", nil)
	req.Header.Set(headerRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got == nil || got.ProjectID != projectID || got.RequestID != "req-1" {
		t.Fatalf("unexpected trace data: %+v", got)
	}
	if rec.Header().Get(headerTraceID) == "" {
		t.Fatalf("trace id header missing")
	}

	got = nil
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+projectID, nil))
	if got == nil || got.ProjectID != "" {
		t.Fatalf("job routes must not set a project id: %+v", got)
	}
	if got.RequestID == "" {
		t.Fatalf("request id must be generated")
	}
}
