package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/htmlx"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/localmedia"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
	"github.com/yungbote/dats-backend/internal/platform/search"
	"github.com/yungbote/dats-backend/internal/platform/storage"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
	"github.com/yungbote/dats-backend/internal/services/metadata"
)

const (
	JobPreprocessText  = "preprocess_text"
	JobPreprocessImage = "preprocess_image"
	JobPreprocessAudio = "preprocess_audio"
	JobPreprocessVideo = "preprocess_video"
)

// JobTypeFor maps a doctype to the job that preprocesses it.
func JobTypeFor(dt types.DocType) (string, error) {
	switch dt {
	case types.DocTypeText:
		return JobPreprocessText, nil
	case types.DocTypeImage:
		return JobPreprocessImage, nil
	case types.DocTypeAudio:
		return JobPreprocessAudio, nil
	case types.DocTypeVideo:
		return JobPreprocessVideo, nil
	}
	return "", fmt.Errorf("no preprocessing job for doctype %q", dt)
}

type TextModel interface {
	Process(ctx context.Context, inputs []modelworker.ProcessInput) ([]modelworker.ProcessResult, error)
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
}

type PDFConverter interface {
	PDFToHTML(ctx context.Context, pdf []byte) (*modelworker.PDFConversion, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (*modelworker.Transcription, error)
}

type Detector interface {
	DetectObjects(ctx context.Context, img []byte) ([]modelworker.Detection, error)
	Caption(ctx context.Context, img []byte) (string, error)
}

type ImageEmbedder interface {
	EmbedImage(ctx context.Context, images [][]byte) ([][]float32, error)
}

// Enqueuer is the slice of the job service the pipeline needs to schedule
// follow-up payloads.
type Enqueuer interface {
	Enqueue(dbc dbctx.Context, jobType string, projectID uuid.UUID, payload any) (*types.JobRun, error)
	Dispatch(ctx context.Context, runs ...*types.JobRun)
}

type Config struct {
	BulkThreshold    int
	ProcessBatchSize int
	EmbedBatchSize   int
	Concurrency      int
	PDFExtractor     string
	DefaultLanguage  string
	Readability      bool
	MediaDevice      types.Device
}

func ConfigFromEnv() Config {
	return Config{
		BulkThreshold:    envutil.Int("PREPRO_BULK_THRESHOLD", 8),
		ProcessBatchSize: envutil.Int("PREPRO_PROCESS_BATCH_SIZE", 32),
		EmbedBatchSize:   envutil.Int("PREPRO_EMBED_BATCH_SIZE", 64),
		Concurrency:      envutil.Int("PREPRO_CONCURRENCY", 4),
		PDFExtractor:     envutil.String("PREPRO_PDF_EXTRACTOR", "modelworker"),
		DefaultLanguage:  envutil.String("PREPRO_DEFAULT_LANGUAGE", "en"),
		Readability:      envutil.Bool("PREPRO_READABILITY", true),
		MediaDevice:      types.Device(envutil.String("PREPRO_MEDIA_DEVICE", string(types.DeviceCPU))),
	}
}

func (c Config) normalized() Config {
	if c.BulkThreshold < 1 {
		c.BulkThreshold = 8
	}
	if c.ProcessBatchSize < 1 {
		c.ProcessBatchSize = 32
	}
	if c.EmbedBatchSize < 1 {
		c.EmbedBatchSize = 64
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PDFExtractor == "" {
		c.PDFExtractor = "modelworker"
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "en"
	}
	if !c.MediaDevice.Valid() {
		c.MediaDevice = types.DeviceCPU
	}
	return c
}

type Deps struct {
	DB          *gorm.DB
	Log         *logger.Logger
	Repos       *repos.Set
	Storage     storage.Store
	Text        TextModel
	PDF         PDFConverter
	Transcriber Transcriber
	Detector    Detector
	Images      ImageEmbedder
	Media       localmedia.Tools
	Vectors     vectorstore.Store
	Index       search.Index
	Metadata    metadata.Service
	Jobs        Enqueuer
	Config      Config
}

type Pipeline struct {
	Deps
	log     *logger.Logger
	cfg     Config
	cleaner *htmlx.Cleaner
}

func New(d Deps) *Pipeline {
	if d.Index == nil {
		d.Index = search.Noop()
	}
	cfg := d.Config.normalized()
	return &Pipeline{
		Deps:    d,
		log:     d.Log.With("service", "PreprocessingPipeline"),
		cfg:     cfg,
		cleaner: htmlx.NewCleaner(cfg.Readability),
	}
}

// Input addresses the payloads one job run processes.
type Input struct {
	PreproJobID uuid.UUID   `json:"prepro_job_id"`
	PayloadIDs  []uuid.UUID `json:"payload_ids"`
}

func (in *Input) Validate() error {
	if in.PreproJobID == uuid.Nil {
		return fmt.Errorf("prepro_job_id required")
	}
	if len(in.PayloadIDs) == 0 {
		return fmt.Errorf("payload_ids required")
	}
	for _, id := range in.PayloadIDs {
		if id == uuid.Nil {
			return fmt.Errorf("payload_ids contains nil id")
		}
	}
	return nil
}

type Result struct {
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
	Aborted  int `json:"aborted"`
	Spawned  int `json:"spawned,omitempty"`
}

func (p *Pipeline) Register(reg *runtime.Registry) error {
	specs := []runtime.Spec{
		{Type: JobPreprocessText, Device: types.DeviceCPU, Priority: 10, Handler: runtime.Bind(p.handler(types.DocTypeText))},
		{Type: JobPreprocessImage, Device: p.cfg.MediaDevice, Priority: 10, Handler: runtime.Bind(p.handler(types.DocTypeImage))},
		{Type: JobPreprocessAudio, Device: p.cfg.MediaDevice, Priority: 10, Handler: runtime.Bind(p.handler(types.DocTypeAudio))},
		{Type: JobPreprocessVideo, Device: p.cfg.MediaDevice, Priority: 10, Handler: runtime.Bind(p.handler(types.DocTypeVideo))},
	}
	for _, s := range specs {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) handler(dt types.DocType) func(jc *runtime.Context, in Input) (Result, error) {
	return func(jc *runtime.Context, in Input) (Result, error) {
		return p.Run(jc, dt, in)
	}
}

// Run executes one job's payloads. Payload failures are isolated: the job
// itself only fails when nothing finished.
func (p *Pipeline) Run(jc *runtime.Context, dt types.DocType, in Input) (Result, error) {
	ctx := jc.Ctx
	dbc := dbctx.Of(ctx)
	var res Result

	job, err := p.Repos.PreproJobs.GetByID(dbc, in.PreproJobID, false)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, apperrors.New(apperrors.KindNotFound, "preprocess", "preprocessing job not found")
	}

	payloads := make([]*types.PreprocessingJobPayload, 0, len(in.PayloadIDs))
	for _, id := range in.PayloadIDs {
		pl, err := p.Repos.PreproJobs.GetPayload(dbc, id)
		if err != nil {
			return res, err
		}
		if pl == nil || pl.PreproJobID != job.ID {
			p.log.Warn("Skipping unknown payload", "payload_id", id, "prepro_job_id", job.ID)
			continue
		}
		if pl.Status.Terminal() {
			continue
		}
		if pl.DocType != dt {
			return res, apperrors.New(apperrors.KindInvalidArgument, "preprocess", fmt.Sprintf("payload %s is %s, not %s", pl.ID, pl.DocType, dt))
		}
		payloads = append(payloads, pl)
	}
	if job.Aborted {
		for _, pl := range payloads {
			p.finishPayload(ctx, &Base{Payload: pl, Aborted: true, Stage: "start"})
			res.Aborted++
		}
		return res, apperrors.New(apperrors.KindAborted, "preprocess", "preprocessing job aborted")
	}
	if len(payloads) == 0 {
		return res, nil
	}

	if err := p.Metadata.EnsureSystemMetadata(ctx, job.ProjectID); err != nil {
		return res, fmt.Errorf("ensure system metadata: %w", err)
	}

	started := make([]*types.PreprocessingJobPayload, 0, len(payloads))
	for _, pl := range payloads {
		ok, err := p.startPayload(ctx, jc.Job.ID, pl)
		if err != nil {
			return res, err
		}
		if ok {
			started = append(started, pl)
		}
	}
	jc.Progress("pipeline", 5, fmt.Sprintf("processing %d %s documents", len(started), dt))

	settings := job.Settings.Data()
	abort := func() bool {
		if jc.Aborted() {
			return true
		}
		j, err := p.Repos.PreproJobs.GetByID(dbctx.Of(ctx), job.ID, false)
		return err == nil && j != nil && j.Aborted
	}

	var bases []*Base
	switch dt {
	case types.DocTypeText:
		bases = p.runText(ctx, started, settings, abort)
	case types.DocTypeImage:
		bases = p.runImage(ctx, started, settings, abort)
	case types.DocTypeAudio:
		bases = p.runAudio(ctx, started, settings, abort)
	case types.DocTypeVideo:
		bases = p.runVideo(ctx, started, settings, abort)
	}

	for _, b := range bases {
		switch {
		case b.Aborted || (b.Err != nil && apperrors.KindOf(b.Err) == apperrors.KindAborted):
			p.finishPayload(ctx, b)
			res.Aborted++
		case b.Err != nil:
			p.finishPayload(ctx, b)
			res.Failed++
		default:
			res.Finished++
		}
	}
	jc.Progress("pipeline", 100, fmt.Sprintf("%d finished, %d failed, %d aborted", res.Finished, res.Failed, res.Aborted))

	if res.Aborted > 0 {
		return res, apperrors.New(apperrors.KindAborted, "preprocess", "preprocessing job aborted")
	}
	if res.Finished == 0 && res.Failed > 0 {
		return res, fmt.Errorf("all %d payloads failed", res.Failed)
	}
	return res, nil
}

func (p *Pipeline) startPayload(ctx context.Context, jobRunID uuid.UUID, pl *types.PreprocessingJobPayload) (bool, error) {
	var ok bool
	err := dbctx.Transaction(ctx, p.DB, func(dbc dbctx.Context) error {
		var err error
		ok, err = p.Repos.PreproJobs.TransitionPayload(dbc, pl.ID, types.PreproRunning, "")
		if err != nil || !ok {
			return err
		}
		if err := p.Repos.PreproJobs.UpdatePayload(dbc, pl.ID, map[string]interface{}{"job_run_id": jobRunID}); err != nil {
			return err
		}
		_, err = p.Repos.PreproJobs.RecomputeStatus(dbc, pl.PreproJobID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("start payload %s: %w", pl.ID, err)
	}
	if ok {
		pl.Status = types.PreproRunning
		pl.JobRunID = &jobRunID
		observability.Current().IncPayload(string(pl.DocType), string(types.PreproRunning))
	}
	return ok, nil
}

// finishPayload records a failed or aborted payload. Index entries and vectors
// written for it are removed first; committed siblings are untouched.
func (p *Pipeline) finishPayload(ctx context.Context, b *Base) {
	p.compensate(ctx, b)
	status := types.PreproError
	if b.Aborted || (b.Err != nil && apperrors.KindOf(b.Err) == apperrors.KindAborted) {
		status = types.PreproAborted
	}
	msg := failureMessage(b)
	err := dbctx.Transaction(ctx, p.DB, func(dbc dbctx.Context) error {
		if _, err := p.Repos.PreproJobs.TransitionPayload(dbc, b.Payload.ID, status, msg); err != nil {
			return err
		}
		doc, err := p.Repos.Documents.GetByID(dbc, b.DocID())
		if err != nil {
			return err
		}
		if doc != nil && doc.Status != types.DocStatusFinished {
			if err := p.Repos.Documents.UpdateStatus(dbc, doc.ID, types.DocStatusErroneous); err != nil {
				return err
			}
		}
		_, err = p.Repos.PreproJobs.RecomputeStatus(dbc, b.Payload.PreproJobID)
		return err
	})
	if err != nil {
		p.log.Error("Record payload failure failed", "payload_id", b.Payload.ID, "error", err)
	}
	observability.Current().IncPayload(string(b.Payload.DocType), string(status))
	p.log.Warn("Payload did not finish",
		"payload_id", b.Payload.ID,
		"filename", b.Payload.Filename,
		"status", status,
		"stage", b.Stage,
		"message", msg,
	)
}

func (p *Pipeline) compensate(ctx context.Context, b *Base) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if b.Indexed {
		if err := p.Index.DeleteDocument(ctx, b.ProjectID(), b.DocID()); err != nil {
			p.log.Warn("Remove index entry failed", "sdoc_id", b.DocID(), "error", err)
		}
		b.Indexed = false
	}
	for ns, ids := range b.VectorIDs {
		if err := p.Vectors.DeleteIDs(ctx, ns, ids); err != nil {
			p.log.Warn("Remove vectors failed", "sdoc_id", b.DocID(), "namespace", ns, "error", err)
		}
	}
	b.VectorIDs = nil
}
