package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/http/response"
	"github.com/yungbote/dats-backend/internal/ingestion"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

const defaultMaxUploadBytes int64 = 512 << 20

type PreprocessingHandler struct {
	log            *logger.Logger
	ingestion      ingestion.Service
	maxUploadBytes int64
}

func NewPreprocessingHandler(log *logger.Logger, ing ingestion.Service, maxUploadBytes int64) *PreprocessingHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &PreprocessingHandler{
		log:            log.With("handler", "PreprocessingHandler"),
		ingestion:      ing,
		maxUploadBytes: maxUploadBytes,
	}
}

// POST /projects/:id/preprocess
//
// multipart form: one or more "files" parts and an optional "settings" JSON
// part ({"pages_per_chunk": 10, "keep_archive": false, "tag_ids": [...]}).
func (h *PreprocessingHandler) StartPreprocessing(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	form := c.Request.MultipartForm

	var settings types.PreproSettings
	if v := form.Value["settings"]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
		dec := json.NewDecoder(strings.NewReader(v[0]))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_settings", err)
			return
		}
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		response.RespondError(c, http.StatusBadRequest, "no_files", nil)
		return
	}
	files := make([]ingestion.File, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			h.log.Error("cannot open uploaded file", "filename", fh.Filename, "error", err)
			response.RespondError(c, http.StatusBadRequest, "could_not_read_files", fmt.Errorf("%s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			h.log.Error("cannot read uploaded file", "filename", fh.Filename, "error", err)
			response.RespondError(c, http.StatusBadRequest, "could_not_read_files", fmt.Errorf("%s: %w", fh.Filename, err))
			return
		}
		files = append(files, ingestion.File{Filename: fh.Filename, Data: data})
	}

	job, results, err := h.ingestion.StartPreprocessing(c.Request.Context(), projectID, files, settings)
	if err != nil {
		response.Error(c, err, gin.H{"files": results})
		return
	}
	response.RespondAccepted(c, gin.H{"prepro_job": job, "files": results})
}

// GET /prepro/:id
func (h *PreprocessingHandler) GetJob(c *gin.Context) {
	id, ok := preproID(c)
	if !ok {
		return
	}
	job, err := h.ingestion.GetJob(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondOK(c, gin.H{"prepro_job": job})
}

// POST /prepro/:id/abort
func (h *PreprocessingHandler) Abort(c *gin.Context) {
	id, ok := preproID(c)
	if !ok {
		return
	}
	job, err := h.ingestion.AbortPreprocessing(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondOK(c, gin.H{"prepro_job": job})
}

// POST /prepro/:id/retry
func (h *PreprocessingHandler) Retry(c *gin.Context) {
	id, ok := preproID(c)
	if !ok {
		return
	}
	job, err := h.ingestion.RetryPayloads(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondAccepted(c, gin.H{"prepro_job": job})
}

func preproID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_prepro_job_id", err)
		return uuid.Nil, false
	}
	return id, true
}
