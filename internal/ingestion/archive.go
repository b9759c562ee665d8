package ingestion

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/storage"
)

const JobExtractArchive = "extract_archive"

type ArchiveInput struct {
	PreproJobID uuid.UUID `json:"prepro_job_id"`
	StorageKey  string    `json:"storage_key"`
	Filename    string    `json:"filename"`
}

func (in *ArchiveInput) Validate() error {
	if in.PreproJobID == uuid.Nil {
		return errors.New("prepro_job_id required")
	}
	if in.StorageKey == "" {
		return errors.New("storage_key required")
	}
	return nil
}

type ArchiveResult struct {
	Members  int          `json:"members"`
	Accepted int          `json:"accepted"`
	Files    []FileResult `json:"files"`
}

func (s *service) Register(reg *runtime.Registry) error {
	return reg.Register(runtime.Spec{
		Type:     JobExtractArchive,
		Device:   types.DeviceCPU,
		Priority: 20,
		Handler:  runtime.Bind(s.extractArchive),
	})
}

func (s *service) extractArchive(jc *runtime.Context, in ArchiveInput) (ArchiveResult, error) {
	const op = "extract archive"
	ctx := jc.Ctx
	var out ArchiveResult

	job, err := s.repos.PreproJobs.GetByID(dbctx.Of(ctx), in.PreproJobID, false)
	if err != nil {
		return out, err
	}
	if job == nil {
		return out, apperrors.New(apperrors.KindNotFound, op, "preprocessing job not found")
	}
	if job.Aborted {
		return out, apperrors.New(apperrors.KindAborted, op, "preprocessing job aborted")
	}
	settings := job.Settings.Data()

	jc.Progress("read_archive", 5, in.Filename)
	data, err := storage.ReadAll(ctx, s.storage, in.StorageKey)
	if err != nil {
		return out, fmt.Errorf("read archive: %w", err)
	}
	class := Classify(in.Filename, data)
	if class.Archive == "" {
		return out, s.failEmpty(jc, job, apperrors.New(apperrors.KindUnsupportedMedia, op, fmt.Sprintf("%s is not an archive (%s)", in.Filename, class.MimeType)))
	}

	ex := &expander{log: jc.Log, maxDepth: s.cfg.ArchiveMaxDepth, maxMember: s.cfg.ArchiveMaxMemberBytes}
	files, err := ex.expand(in.Filename, data, class.Archive, 1)
	if err != nil {
		return out, s.failEmpty(jc, job, apperrors.Wrap(apperrors.KindCorruption, op, err))
	}
	out.Members = len(files)
	if err := jc.CheckAbort(); err != nil {
		return out, err
	}

	jc.Progress("classify", 30, fmt.Sprintf("%d members", len(files)))
	unlock := s.lockProject(job.ProjectID)
	planned, err := s.plan(ctx, job.ProjectID, files, settings, false)
	if err != nil {
		unlock()
		return out, err
	}
	s.store(ctx, job, planned)
	out.Files = append(collectResults(planned), ex.skipped...)
	if !anyAccepted(planned) {
		unlock()
		return out, s.failEmpty(jc, job, noneAcceptedError(op, out.Files))
	}
	if err := jc.CheckAbort(); err != nil {
		for _, pf := range planned {
			s.removeUnits(ctx, pf.units)
		}
		unlock()
		return out, err
	}

	jc.Progress("enqueue", 80, "")
	runs, err := s.commit(ctx, job, false, planned)
	unlock()
	if err != nil {
		return out, err
	}
	out.Files = append(collectResults(planned), ex.skipped...)
	s.jobs.Dispatch(ctx, runs...)
	for _, r := range out.Files {
		if r.Status == FileAccepted {
			out.Accepted++
		}
	}

	if !settings.KeepArchive {
		if err := s.storage.Delete(ctx, in.StorageKey); err != nil && !storage.IsNotExist(err) {
			jc.Log.Warn("Delete archive failed", "key", in.StorageKey, "error", err)
		}
	}
	jc.Log.Info("Archive extracted",
		"prepro_job_id", job.ID,
		"filename", in.Filename,
		"members", out.Members,
		"accepted", out.Accepted,
		"jobs", len(runs),
	)
	return out, nil
}

// failEmpty marks a job that will never receive payloads as errored, so it
// does not sit in WAITING forever.
func (s *service) failEmpty(jc *runtime.Context, job *types.PreprocessingJob, cause error) error {
	payloads, err := s.repos.PreproJobs.ListPayloads(dbctx.Of(jc.Ctx), job.ID)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		if err := s.repos.PreproJobs.SetStatus(dbctx.Of(jc.Ctx), job.ID, types.PreproError); err != nil {
			jc.Log.Warn("Set preprocessing job status failed", "prepro_job_id", job.ID, "error", err)
		}
	}
	return cause
}

// expander unpacks archives into flat member files. Members that cannot be
// read are skipped with a warning and reported in skipped.
type expander struct {
	log       *logger.Logger
	maxDepth  int
	maxMember int64
	skipped   []FileResult
}

func (e *expander) expand(name string, data []byte, format ArchiveFormat, depth int) ([]File, error) {
	switch format {
	case ArchiveZip:
		return e.expandZip(name, data, depth)
	case ArchiveTar:
		return e.expandTar(name, bytes.NewReader(data), depth)
	case ArchiveTarGz:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", name, err)
		}
		defer zr.Close()
		return e.expandTar(name, zr, depth)
	}
	return nil, fmt.Errorf("unknown archive format %q", format)
}

func (e *expander) expandZip(name string, data []byte, depth int) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", name, err)
	}
	var files []File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || skipMember(f.Name) {
			continue
		}
		if e.maxMember > 0 && f.UncompressedSize64 > uint64(e.maxMember) {
			e.skip(f.Name, fmt.Sprintf("member larger than %d bytes", e.maxMember))
			continue
		}
		rc, err := f.Open()
		if err != nil {
			e.skip(f.Name, err.Error())
			continue
		}
		body, err := e.readMember(rc)
		rc.Close()
		if err != nil {
			e.skip(f.Name, err.Error())
			continue
		}
		files = append(files, e.member(f.Name, body, depth)...)
	}
	return files, nil
}

func (e *expander) expandTar(name string, r io.Reader, depth int) ([]File, error) {
	tr := tar.NewReader(r)
	var files []File
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(files) == 0 {
				return nil, fmt.Errorf("read tar %s: %w", name, err)
			}
			// A truncated stream still yields the members read so far.
			e.log.Warn("Archive truncated", "archive", name, "error", err)
			break
		}
		if hdr.Typeflag != tar.TypeReg || skipMember(hdr.Name) {
			continue
		}
		if e.maxMember > 0 && hdr.Size > e.maxMember {
			e.skip(hdr.Name, fmt.Sprintf("member larger than %d bytes", e.maxMember))
			continue
		}
		body, err := e.readMember(tr)
		if err != nil {
			e.skip(hdr.Name, err.Error())
			continue
		}
		files = append(files, e.member(hdr.Name, body, depth)...)
	}
	return files, nil
}

// member recurses into nested archives while depth allows. Deeper archives
// are returned as plain files and rejected by the planner.
func (e *expander) member(name string, body []byte, depth int) []File {
	base := cleanFilename(name)
	class := Classify(base, body)
	if class.Archive == "" || depth >= e.maxDepth {
		return []File{{Filename: base, Data: body}}
	}
	nested, err := e.expand(base, body, class.Archive, depth+1)
	if err != nil {
		e.skip(name, err.Error())
		return nil
	}
	return nested
}

func (e *expander) readMember(r io.Reader) ([]byte, error) {
	if e.maxMember <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, e.maxMember+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > e.maxMember {
		return nil, fmt.Errorf("member larger than %d bytes", e.maxMember)
	}
	return body, nil
}

func (e *expander) skip(name, reason string) {
	e.log.Warn("Skipping archive member", "member", name, "reason", reason)
	e.skipped = append(e.skipped, FileResult{Filename: name, Status: FileRejected, Message: reason})
}

func skipMember(name string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	for _, part := range strings.Split(name, "/") {
		if part == "__MACOSX" {
			return true
		}
	}
	base := path.Base(name)
	return strings.HasPrefix(base, ".")
}
