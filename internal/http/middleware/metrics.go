package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/dats-backend/internal/observability"
)

// Metrics records request counts and latency per route template. Probe
// traffic is skipped so it does not drown the preprocessing routes, and
// request bodies of POSTs are counted as upload volume.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/healthz" {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		if route == "" {
			route = "unknown"
		}
		if c.Request.Method == http.MethodPost && strings.HasPrefix(c.ContentType(), "multipart/") {
			m.ObserveUpload(route, c.Request.ContentLength)
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
