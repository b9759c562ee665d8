package modelworker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/dats-backend/internal/pkg/httpx"
)

type HTTPError struct {
	StatusCode int
	Operation  string
	Message    string
	Code       string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "model worker error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	if strings.TrimSpace(e.Code) != "" {
		return fmt.Sprintf("model worker error: op=%s status=%d code=%s message=%s", e.Operation, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("model worker error: op=%s status=%d message=%s", e.Operation, e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// Retryable reports whether the worker may succeed on a later attempt.
func (e *HTTPError) Retryable() bool {
	return httpx.IsRetryableHTTPStatus(e.StatusCode)
}

func parseHTTPError(op string, status int, raw []byte) *HTTPError {
	body := strings.TrimSpace(string(raw))

	var env struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
			Code    string `json:"code,omitempty"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if m := strings.TrimSpace(env.Error.Message); m != "" {
			return &HTTPError{StatusCode: status, Operation: op, Message: m, Code: strings.TrimSpace(env.Error.Code), Body: body}
		}
		if d := strings.TrimSpace(env.Detail); d != "" {
			return &HTTPError{StatusCode: status, Operation: op, Message: d, Body: body}
		}
	}
	return &HTTPError{StatusCode: status, Operation: op, Body: body}
}
