package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/observability"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
)

// Base is the state every cargo shares. Cargo lives only for the duration of
// one job run and is never persisted; a retried payload restarts at stage one.
type Base struct {
	Payload *types.PreprocessingJobPayload
	Err     error
	Stage   string
	Aborted bool

	// Written by index and embed; removed again when persist does not commit.
	Indexed   bool
	VectorIDs map[string][]string
}

func (b *Base) base() *Base { return b }

func (b *Base) DocID() uuid.UUID { return b.Payload.SourceDocumentID }

func (b *Base) ProjectID() uuid.UUID { return b.Payload.ProjectID }

func (b *Base) Failed() bool { return b.Err != nil || b.Aborted }

func (b *Base) fail(stage string, err error) {
	b.Stage = stage
	b.Err = err
}

func (b *Base) trackVectors(namespace string, ids ...string) {
	if b.VectorIDs == nil {
		b.VectorIDs = map[string][]string{}
	}
	b.VectorIDs[namespace] = append(b.VectorIDs[namespace], ids...)
}

type cargo interface {
	base() *Base
}

// Stage is one named step. Run receives every cargo still alive and returns
// one error slot per cargo; a non-nil slot fails only that cargo.
type Stage[C cargo] struct {
	Name string
	Run  func(ctx context.Context, batch []C) []error
}

// Each lifts a per-cargo function into a stage.
func Each[C cargo](name string, fn func(ctx context.Context, c C) error) Stage[C] {
	return Stage[C]{Name: name, Run: func(ctx context.Context, batch []C) []error {
		errs := make([]error, len(batch))
		for i, c := range batch {
			errs[i] = fn(ctx, c)
		}
		return errs
	}}
}

// runStages advances the cargos through stages in order. Stage order is the
// contract: a stage never sees a cargo whose predecessor failed. abort is
// consulted between stages only.
func runStages[C cargo](ctx context.Context, modality string, stages []Stage[C], cargos []C, abort func() bool) {
	for _, st := range stages {
		live := make([]C, 0, len(cargos))
		for _, c := range cargos {
			if !c.base().Failed() {
				live = append(live, c)
			}
		}
		if len(live) == 0 {
			return
		}
		if abort != nil && abort() {
			for _, c := range live {
				c.base().Aborted = true
				c.base().Stage = st.Name
			}
			return
		}

		stageCtx, span := observability.StartSpan(ctx, "pipeline."+modality+"."+st.Name,
			attribute.Int("pipeline.batch_size", len(live)),
		)
		start := time.Now()
		errs := safeRun(stageCtx, st, live)
		failed := 0
		for i, c := range live {
			if errs[i] != nil {
				failed++
				c.base().fail(st.Name, errs[i])
			}
		}
		status := "ok"
		var spanErr error
		if failed > 0 {
			status = "error"
			spanErr = fmt.Errorf("%d of %d cargos failed", failed, len(live))
		}
		observability.EndSpan(span, spanErr)
		observability.Current().ObserveStage(modality, st.Name, status, time.Since(start))
	}
}

// safeRun turns a panicking stage into a failure of every cargo it was given.
func safeRun[C cargo](ctx context.Context, st Stage[C], live []C) (errs []error) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("stage %s panicked: %v", st.Name, r)
			errs = make([]error, len(live))
			for i := range errs {
				errs[i] = err
			}
		}
	}()
	errs = st.Run(ctx, live)
	if len(errs) != len(live) {
		err := fmt.Errorf("stage %s returned %d results for %d cargos", st.Name, len(errs), len(live))
		errs = make([]error, len(live))
		for i := range errs {
			errs[i] = err
		}
	}
	return errs
}

func failureMessage(b *Base) string {
	if b.Aborted {
		return "aborted before stage " + b.Stage
	}
	if b.Err == nil {
		return ""
	}
	if errors.Is(b.Err, apperrors.ErrAborted) {
		return "aborted"
	}
	return fmt.Sprintf("%s: %v", b.Stage, b.Err)
}
