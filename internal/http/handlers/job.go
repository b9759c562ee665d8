package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/http/response"
	"github.com/yungbote/dats-backend/internal/jobs"
)

type JobHandler struct {
	jobs jobs.Service
}

func NewJobHandler(jobs jobs.Service) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	out := gin.H{"job": job}
	if raw := strings.TrimSpace(c.Query("events")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_events_limit", err)
			return
		}
		events, err := h.jobs.Events(c.Request.Context(), jobID, limit)
		if err != nil {
			response.Error(c, err, nil)
			return
		}
		out["events"] = events
	}
	response.RespondOK(c, out)
}

// POST /jobs/:id/abort
func (h *JobHandler) AbortJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Abort(c.Request.Context(), jobID)
	if err != nil {
		response.Error(c, err, gin.H{"job": job})
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /projects/:id/jobs?type=
func (h *JobHandler) ListProjectJobs(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	runs, err := h.jobs.ListByProjectAndType(c.Request.Context(), projectID, strings.TrimSpace(c.Query("type")))
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondOK(c, gin.H{"jobs": runs})
}
