package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
)

// Validator is implemented by job inputs that carry their own invariants.
type Validator interface {
	Validate() error
}

type bound[In any, Out any] struct {
	fn func(jc *Context, in In) (Out, error)
}

// Bind adapts a typed handler function. Payloads are decoded strictly: unknown
// fields are rejected, and In.Validate runs when In implements Validator.
func Bind[In any, Out any](fn func(jc *Context, in In) (Out, error)) Handler {
	return &bound[In, Out]{fn: fn}
}

func (b *bound[In, Out]) decode(payload []byte) (In, error) {
	var in In
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, apperrors.Wrap(apperrors.KindInvalidArgument, "decode job payload", err)
	}
	if v, ok := any(&in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return in, apperrors.Wrap(apperrors.KindInvalidArgument, "validate job payload", err)
		}
	}
	return in, nil
}

func (b *bound[In, Out]) Validate(payload []byte) error {
	_, err := b.decode(payload)
	return err
}

func (b *bound[In, Out]) Run(jc *Context) (any, error) {
	if jc == nil || jc.Job == nil {
		return nil, fmt.Errorf("job context missing")
	}
	in, err := b.decode(jc.Job.Payload)
	if err != nil {
		return nil, err
	}
	return b.fn(jc, in)
}
