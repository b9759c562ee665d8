package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks writes that would clobber existing state.
	ErrConflict = errors.New("conflict")
	// ErrUnsupportedMedia marks uploads whose type cannot be preprocessed.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrCorruption marks derived data that violates its own invariants.
	ErrCorruption = errors.New("corrupt data")
	// ErrAborted is returned by handlers that stop at a stage boundary after an abort.
	ErrAborted = errors.New("aborted")
)

type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidArgument  Kind = "invalid_argument"
	KindConflict         Kind = "conflict"
	KindUnsupportedMedia Kind = "unsupported_media"
	KindCorruption       Kind = "corruption"
	KindAborted          Kind = "aborted"
	KindExternal         Kind = "external"
	KindInternal         Kind = "internal"
)

// Error is a classified error. Op names the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match a classified error against the kind sentinels.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return sentinelFor(e.Kind) == target
}

func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Corruption(op, format string, args ...any) error {
	return &Error{Kind: KindCorruption, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func InvalidArgument(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindConflict:
		return ErrConflict
	case KindUnsupportedMedia:
		return ErrUnsupportedMedia
	case KindCorruption:
		return ErrCorruption
	case KindAborted:
		return ErrAborted
	default:
		return nil
	}
}

// KindOf classifies err, falling back to KindInternal.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnsupportedMedia):
		return KindUnsupportedMedia
	case errors.Is(err, ErrCorruption):
		return KindCorruption
	case errors.Is(err, ErrAborted):
		return KindAborted
	}
	return KindInternal
}

// HTTPStatus maps a classified error to the status the API layer returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusUnprocessableEntity
	case KindConflict, KindAborted:
		return http.StatusConflict
	case KindUnsupportedMedia:
		return http.StatusNotAcceptable
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
