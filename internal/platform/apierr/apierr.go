package apierr

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is an error already classified for the HTTP surface: a status, a
// stable machine code and optional details such as per-file upload results.
type Error struct {
	Status  int
	Code    string
	Err     error
	Details any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return strings.ReplaceAll(e.Code, "_", " ")
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// Public reports whether the message may be shown to clients. Server-side
// failures are reported with a generic message only.
func (e *Error) Public() bool {
	return e != nil && e.Status > 0 && e.Status < http.StatusInternalServerError
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

func New(status int, code string, err error) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}
