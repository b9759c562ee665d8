package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/pipeline"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/storage"
)

type File struct {
	Filename string
	Data     []byte
}

type FileStatus string

const (
	FileAccepted    FileStatus = "accepted"
	FileArchive     FileStatus = "archive"
	FileUnsupported FileStatus = "unsupported"
	FileConflict    FileStatus = "conflict"
	FileRejected    FileStatus = "rejected"
	FileFailed      FileStatus = "failed"
)

// FileResult reports what happened to one uploaded file.
type FileResult struct {
	Filename string        `json:"filename"`
	Status   FileStatus    `json:"status"`
	DocType  types.DocType `json:"doctype,omitempty"`
	MimeType string        `json:"mime_type,omitempty"`
	Units    []string      `json:"units,omitempty"`
	Chunking string        `json:"chunking,omitempty"`
	Message  string        `json:"message,omitempty"`
}

type Config struct {
	PagesPerChunk         int
	BulkThreshold         int
	ArchiveMaxDepth       int
	ArchiveMaxMemberBytes int64
}

func ConfigFromEnv() Config {
	return Config{
		PagesPerChunk:         envutil.Int("PREPRO_PAGES_PER_CHUNK", 10),
		BulkThreshold:         envutil.Int("PREPRO_BULK_THRESHOLD", 8),
		ArchiveMaxDepth:       envutil.Int("PREPRO_ARCHIVE_MAX_DEPTH", 3),
		ArchiveMaxMemberBytes: int64(envutil.Int("PREPRO_ARCHIVE_MAX_MEMBER_MB", 512)) << 20,
	}
}

// Scheduler is the part of the job service ingestion drives.
type Scheduler interface {
	Enqueue(dbc dbctx.Context, jobType string, projectID uuid.UUID, payload any) (*types.JobRun, error)
	Dispatch(ctx context.Context, runs ...*types.JobRun)
	Abort(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
}

type Service interface {
	// StartPreprocessing classifies files, writes them to storage and creates
	// one PreprocessingJob. Unsupported files are reported per file; the call
	// fails only when no file was accepted.
	StartPreprocessing(ctx context.Context, projectID uuid.UUID, files []File, settings types.PreproSettings) (*types.PreprocessingJob, []FileResult, error)
	GetJob(ctx context.Context, id uuid.UUID) (*types.PreprocessingJob, error)
	// RetryPayloads re-enqueues ERROR and ABORTED payloads. They restart at
	// the first stage.
	RetryPayloads(ctx context.Context, preproJobID uuid.UUID) (*types.PreprocessingJob, error)
	AbortPreprocessing(ctx context.Context, preproJobID uuid.UUID) (*types.PreprocessingJob, error)
	Register(reg *runtime.Registry) error
}

type service struct {
	db      *gorm.DB
	log     *logger.Logger
	repos   *repos.Set
	storage storage.Store
	jobs    Scheduler
	cfg     Config
	pdf     Chunker
	noop    Chunker

	// uploads serializes collision check, storage write and commit per
	// project so two uploads of one filename cannot both pass the check.
	uploads sync.Map // uuid.UUID -> *sync.Mutex
}

func (s *service) lockProject(projectID uuid.UUID) func() {
	v, _ := s.uploads.LoadOrStore(projectID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func NewService(db *gorm.DB, baseLog *logger.Logger, set *repos.Set, st storage.Store, jobs Scheduler, cfg Config) Service {
	if cfg.PagesPerChunk <= 0 {
		cfg.PagesPerChunk = 10
	}
	if cfg.BulkThreshold <= 0 {
		cfg.BulkThreshold = 8
	}
	if cfg.ArchiveMaxDepth <= 0 {
		cfg.ArchiveMaxDepth = 3
	}
	if cfg.ArchiveMaxMemberBytes <= 0 {
		cfg.ArchiveMaxMemberBytes = 512 << 20
	}
	log := baseLog.With("service", "IngestionService")
	return &service{
		db:      db,
		log:     log,
		repos:   set,
		storage: st,
		jobs:    jobs,
		cfg:     cfg,
		pdf:     NewPDFChunker(log),
		noop:    NewNoopChunker(log),
	}
}

// unit is one future payload.
type unit struct {
	Filename string
	Data     []byte
	Class    Class
	Key      string
}

type plannedFile struct {
	result  *FileResult
	units   []unit
	folder  string
	archive *unit
}

func (s *service) StartPreprocessing(ctx context.Context, projectID uuid.UUID, files []File, settings types.PreproSettings) (*types.PreprocessingJob, []FileResult, error) {
	const op = "start preprocessing"
	if len(files) == 0 {
		return nil, nil, apperrors.New(apperrors.KindInvalidArgument, op, "no files")
	}
	project, err := s.repos.Projects.GetByID(dbctx.Of(ctx), projectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, apperrors.New(apperrors.KindNotFound, op, "project not found")
	}
	if settings.PagesPerChunk <= 0 {
		settings.PagesPerChunk = s.cfg.PagesPerChunk
	}

	job := &types.PreprocessingJob{ID: uuid.New(), ProjectID: projectID, Settings: datatypes.NewJSONType(settings)}
	unlock := s.lockProject(projectID)
	planned, err := s.plan(ctx, projectID, files, settings, true)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	s.store(ctx, job, planned)
	if !anyAccepted(planned) {
		unlock()
		results := collectResults(planned)
		return nil, results, noneAcceptedError(op, results)
	}

	runs, err := s.commit(ctx, job, true, planned)
	unlock()
	// commit fills in the unit names of chunked files.
	results := collectResults(planned)
	if err != nil {
		return nil, results, err
	}
	s.jobs.Dispatch(ctx, runs...)
	s.log.Info("Preprocessing started",
		"prepro_job_id", job.ID,
		"project_id", projectID,
		"files", len(files),
		"jobs", len(runs),
	)
	out, err := s.GetJob(ctx, job.ID)
	return out, results, err
}

// plan classifies, chunks and collision-checks files. Nothing is written.
func (s *service) plan(ctx context.Context, projectID uuid.UUID, files []File, settings types.PreproSettings, allowArchives bool) ([]*plannedFile, error) {
	planned := make([]*plannedFile, 0, len(files))
	for _, f := range files {
		name := cleanFilename(f.Filename)
		pf := &plannedFile{result: &FileResult{Filename: name}}
		planned = append(planned, pf)
		if name == "" {
			pf.reject(FileRejected, "missing filename")
			continue
		}
		if len(f.Data) == 0 {
			pf.reject(FileRejected, "empty file")
			continue
		}
		class := Classify(name, f.Data)
		pf.result.MimeType = class.MimeType
		switch {
		case !class.Supported():
			pf.reject(FileUnsupported, fmt.Sprintf("unsupported mime type %s", class.MimeType))
			continue
		case class.Archive != "":
			if !allowArchives {
				pf.reject(FileRejected, "nested archive")
				continue
			}
			pf.result.Status = FileArchive
			pf.archive = &unit{Filename: name, Data: f.Data, Class: class}
			continue
		}
		pf.result.DocType = class.DocType

		var chunker Chunker
		if class.DocType == types.DocTypeText {
			chunker = s.noop
			if class.IsPDF() {
				chunker = s.pdf
			}
		}
		if chunker == nil {
			pf.units = []unit{{Filename: name, Data: f.Data, Class: class}}
		} else {
			res, err := chunker.Chunk(ctx, name, f.Data, settings.PagesPerChunk)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				pf.reject(FileFailed, err.Error())
				continue
			}
			pf.result.Chunking = res.Reason
			if res.Chunked {
				pf.folder = strings.TrimSuffix(name, path.Ext(name))
			}
			for _, c := range res.Chunks {
				pf.units = append(pf.units, unit{Filename: c.Filename, Data: c.Data, Class: class})
			}
			if len(res.Skipped) > 0 {
				pf.result.Message = fmt.Sprintf("skipped unrenderable chunks: %s", strings.Join(res.Skipped, ", "))
			}
		}
		pf.result.Status = FileAccepted
	}
	return planned, s.checkCollisions(ctx, projectID, planned)
}

// checkCollisions fails a whole file when any of its units would overwrite a
// file backing an existing document, a payload that has not run yet, or
// another file of the same batch.
func (s *service) checkCollisions(ctx context.Context, projectID uuid.UUID, planned []*plannedFile) error {
	var names []string
	for _, pf := range planned {
		for _, u := range pf.units {
			names = append(names, u.Filename)
		}
	}
	if len(names) == 0 {
		return nil
	}
	taken, err := s.repos.Documents.FilenamesTaken(dbctx.Of(ctx), projectID, names)
	if err != nil {
		return fmt.Errorf("check filenames: %w", err)
	}
	inFlight, err := s.repos.PreproJobs.ActiveFilenames(dbctx.Of(ctx), projectID, names)
	if err != nil {
		return fmt.Errorf("check in-flight filenames: %w", err)
	}
	existing := make(map[string]string, len(taken)+len(inFlight))
	for _, n := range inFlight {
		existing[n] = "is still being preprocessed"
	}
	for _, n := range taken {
		existing[n] = "already exists in project"
	}
	seen := map[string]bool{}
	for _, pf := range planned {
		if pf.result.Status != FileAccepted {
			continue
		}
		for _, u := range pf.units {
			if why, ok := existing[u.Filename]; ok {
				pf.reject(FileConflict, fmt.Sprintf("%s %s", u.Filename, why))
				break
			}
			if seen[u.Filename] {
				pf.reject(FileConflict, fmt.Sprintf("%s appears twice in this upload", u.Filename))
				break
			}
		}
		for _, u := range pf.units {
			seen[u.Filename] = true
		}
	}
	return nil
}

// store writes accepted units before any job row references them. A file
// whose write fails is dropped as a whole.
func (s *service) store(ctx context.Context, job *types.PreprocessingJob, planned []*plannedFile) {
	for _, pf := range planned {
		if pf.archive != nil {
			pf.archive.Key = storage.UploadKey(job.ProjectID, job.ID, pf.archive.Filename)
			if err := s.storage.Put(ctx, pf.archive.Key, bytes.NewReader(pf.archive.Data), pf.archive.Class.MimeType); err != nil {
				s.log.Error("Store archive failed", "filename", pf.archive.Filename, "error", err)
				pf.archive = nil
				pf.reject(FileFailed, "storage write failed")
			}
			continue
		}
		if pf.result.Status != FileAccepted {
			continue
		}
		for i := range pf.units {
			u := &pf.units[i]
			u.Key = storage.RawKey(job.ProjectID, u.Filename)
			if err := s.storage.Put(ctx, u.Key, bytes.NewReader(u.Data), u.Class.MimeType); err != nil {
				s.log.Error("Store file failed", "filename", u.Filename, "error", err)
				s.removeUnits(ctx, pf.units[:i])
				pf.reject(FileFailed, "storage write failed")
				break
			}
		}
	}
}

func (s *service) removeUnits(ctx context.Context, units []unit) {
	for _, u := range units {
		if u.Key == "" {
			continue
		}
		if err := s.storage.Delete(ctx, u.Key); err != nil && !storage.IsNotExist(err) {
			s.log.Warn("Remove stored file failed", "key", u.Key, "error", err)
		}
	}
}

// commit creates the job rows, payloads and job runs in one transaction. The
// returned runs must be dispatched after the call returns.
func (s *service) commit(ctx context.Context, job *types.PreprocessingJob, createJob bool, planned []*plannedFile) ([]*types.JobRun, error) {
	var runs []*types.JobRun
	err := dbctx.Transaction(ctx, s.db, func(dbc dbctx.Context) error {
		if createJob {
			if err := s.repos.PreproJobs.Create(dbc, job); err != nil {
				return fmt.Errorf("create preprocessing job: %w", err)
			}
		}
		var payloads []*types.PreprocessingJobPayload
		for _, pf := range planned {
			if pf.archive != nil {
				run, err := s.jobs.Enqueue(dbc, JobExtractArchive, job.ProjectID, ArchiveInput{
					PreproJobID: job.ID,
					StorageKey:  pf.archive.Key,
					Filename:    pf.archive.Filename,
				})
				if err != nil {
					return err
				}
				runs = append(runs, run)
				continue
			}
			if pf.result.Status != FileAccepted {
				continue
			}
			var folderID *uuid.UUID
			if pf.folder != "" {
				folder := &types.SourceDocumentFolder{ProjectID: job.ProjectID, Name: pf.folder}
				if err := s.repos.Folders.Create(dbc, folder); err != nil {
					return fmt.Errorf("create folder: %w", err)
				}
				folderID = &folder.ID
			}
			for _, u := range pf.units {
				payloads = append(payloads, &types.PreprocessingJobPayload{
					PreproJobID: job.ID,
					ProjectID:   job.ProjectID,
					FolderID:    folderID,
					Filename:    u.Filename,
					StorageKey:  u.Key,
					DocType:     u.Class.DocType,
					MimeType:    u.Class.MimeType,
				})
				pf.result.Units = append(pf.result.Units, u.Filename)
			}
		}
		if len(payloads) > 0 {
			if err := s.repos.PreproJobs.AddPayloads(dbc, payloads); err != nil {
				return fmt.Errorf("add payloads: %w", err)
			}
			queued, err := s.enqueuePayloads(dbc, job.ProjectID, job.ID, payloads)
			if err != nil {
				return err
			}
			runs = append(runs, queued...)
		}
		_, err := s.repos.PreproJobs.RecomputeStatus(dbc, job.ID)
		return err
	})
	if err != nil {
		for _, pf := range planned {
			s.removeUnits(ctx, pf.units)
		}
		return nil, err
	}
	return runs, nil
}

// enqueuePayloads creates one run per payload, except that text payloads
// above the bulk threshold share a single run so the model worker sees them
// as one batch.
func (s *service) enqueuePayloads(dbc dbctx.Context, projectID, preproJobID uuid.UUID, payloads []*types.PreprocessingJobPayload) ([]*types.JobRun, error) {
	var order []types.DocType
	byType := map[types.DocType][]*types.PreprocessingJobPayload{}
	for _, p := range payloads {
		if _, ok := byType[p.DocType]; !ok {
			order = append(order, p.DocType)
		}
		byType[p.DocType] = append(byType[p.DocType], p)
	}
	var runs []*types.JobRun
	for _, dt := range order {
		jobType, err := pipeline.JobTypeFor(dt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidArgument, "enqueue payloads", err)
		}
		group := byType[dt]
		var batches [][]*types.PreprocessingJobPayload
		if dt == types.DocTypeText && len(group) > s.cfg.BulkThreshold {
			batches = [][]*types.PreprocessingJobPayload{group}
		} else {
			for _, p := range group {
				batches = append(batches, []*types.PreprocessingJobPayload{p})
			}
		}
		for _, batch := range batches {
			ids := make([]uuid.UUID, len(batch))
			for i, p := range batch {
				ids[i] = p.ID
			}
			run, err := s.jobs.Enqueue(dbc, jobType, projectID, pipeline.Input{PreproJobID: preproJobID, PayloadIDs: ids})
			if err != nil {
				return nil, err
			}
			for _, p := range batch {
				if err := s.repos.PreproJobs.UpdatePayload(dbc, p.ID, map[string]interface{}{"job_run_id": run.ID}); err != nil {
					return nil, err
				}
				p.JobRunID = &run.ID
			}
			runs = append(runs, run)
		}
	}
	return runs, nil
}

func (s *service) GetJob(ctx context.Context, id uuid.UUID) (*types.PreprocessingJob, error) {
	job, err := s.repos.PreproJobs.GetByID(dbctx.Of(ctx), id, true)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "get preprocessing job", "preprocessing job not found")
	}
	return job, nil
}

func (s *service) RetryPayloads(ctx context.Context, preproJobID uuid.UUID) (*types.PreprocessingJob, error) {
	const op = "retry payloads"
	job, err := s.GetJob(ctx, preproJobID)
	if err != nil {
		return nil, err
	}
	var runs []*types.JobRun
	err = dbctx.Transaction(ctx, s.db, func(dbc dbctx.Context) error {
		reset, err := s.repos.PreproJobs.ResetFailedPayloads(dbc, preproJobID)
		if err != nil {
			return err
		}
		if len(reset) == 0 {
			return apperrors.New(apperrors.KindConflict, op, "no failed payloads to retry")
		}
		runs, err = s.enqueuePayloads(dbc, job.ProjectID, preproJobID, reset)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.jobs.Dispatch(ctx, runs...)
	s.log.Info("Preprocessing retried", "prepro_job_id", preproJobID, "jobs", len(runs))
	return s.GetJob(ctx, preproJobID)
}

// AbortPreprocessing flags the job and every non-terminal payload. Stages
// already committed stay committed; running payloads stop at their next stage
// boundary.
func (s *service) AbortPreprocessing(ctx context.Context, preproJobID uuid.UUID) (*types.PreprocessingJob, error) {
	job, err := s.GetJob(ctx, preproJobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.New(apperrors.KindConflict, "abort preprocessing", fmt.Sprintf("preprocessing job already %s", job.Status))
	}
	if err := s.repos.PreproJobs.MarkAborted(dbctx.Of(ctx), preproJobID); err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	for _, p := range job.Payloads {
		if p.Status != types.PreproWaiting || p.JobRunID == nil || seen[*p.JobRunID] {
			continue
		}
		seen[*p.JobRunID] = true
		if _, err := s.jobs.Abort(ctx, *p.JobRunID); err != nil && apperrors.KindOf(err) != apperrors.KindConflict {
			s.log.Warn("Abort job run failed", "job_id", *p.JobRunID, "error", err)
		}
	}
	s.log.Info("Preprocessing aborted", "prepro_job_id", preproJobID)
	return s.GetJob(ctx, preproJobID)
}

func (pf *plannedFile) reject(status FileStatus, msg string) {
	pf.result.Status = status
	pf.result.Message = msg
	pf.units = nil
	pf.folder = ""
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func collectResults(planned []*plannedFile) []FileResult {
	out := make([]FileResult, len(planned))
	for i, pf := range planned {
		out[i] = *pf.result
	}
	return out
}

func anyAccepted(planned []*plannedFile) bool {
	for _, pf := range planned {
		if pf.archive != nil || pf.result.Status == FileAccepted {
			return true
		}
	}
	return false
}

func noneAcceptedError(op string, results []FileResult) error {
	unsupported, conflicts := 0, 0
	for _, r := range results {
		switch r.Status {
		case FileUnsupported:
			unsupported++
		case FileConflict:
			conflicts++
		}
	}
	switch {
	case unsupported == len(results):
		return apperrors.New(apperrors.KindUnsupportedMedia, op, "no file has a supported type")
	case conflicts > 0:
		return apperrors.New(apperrors.KindConflict, op, "every supported file collides with an existing document")
	}
	return apperrors.New(apperrors.KindInvalidArgument, op, "no file could be accepted")
}
