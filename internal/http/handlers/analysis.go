package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/analysis/cota"
	"github.com/yungbote/dats-backend/internal/analysis/duplicates"
	"github.com/yungbote/dats-backend/internal/analysis/tagrec"
	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/http/response"
	"github.com/yungbote/dats-backend/internal/jobs"
)

// AnalysisHandler starts the derived-artifact jobs and serves their review
// surfaces. Job inputs are passed through untouched; the job registry
// validates them.
type AnalysisHandler struct {
	jobs   jobs.Service
	tagrec tagrec.Service
	cota   cota.Service
}

func NewAnalysisHandler(jobs jobs.Service, tags tagrec.Service, cotas cota.Service) *AnalysisHandler {
	return &AnalysisHandler{jobs: jobs, tagrec: tags, cota: cotas}
}

// POST /projects/:id/duplicates
func (h *AnalysisHandler) DetectDuplicates(c *gin.Context) {
	h.startProjectJob(c, duplicates.JobDetectDuplicates)
}

// POST /projects/:id/tag-recommendations
func (h *AnalysisHandler) RecommendTags(c *gin.Context) {
	h.startProjectJob(c, tagrec.JobRecommendTags)
}

// GET /projects/:id/tag-recommendations
func (h *AnalysisHandler) PendingRecommendations(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	recs, err := h.tagrec.Pending(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondOK(c, gin.H{"recommendations": recs})
}

type reviewRequest struct {
	Reviews []tagrec.Review `json:"reviews"`
}

// POST /tag-recommendations/review
func (h *AnalysisHandler) ReviewRecommendations(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	recs, err := h.tagrec.Review(c.Request.Context(), req.Reviews)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondOK(c, gin.H{"recommendations": recs})
}

type createCOTARequest struct {
	Name     string              `json:"name"`
	Concepts []types.COTAConcept `json:"concepts"`
}

// POST /projects/:id/cotas
func (h *AnalysisHandler) CreateCOTA(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	var req createCOTARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	row, err := h.cota.Create(c.Request.Context(), projectID, req.Name, req.Concepts)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondCreated(c, gin.H{"cota": row})
}

// GET /cotas/:id
func (h *AnalysisHandler) GetCOTA(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_cota_id", err)
		return
	}
	row, err := h.cota.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	space, err := h.cota.SearchSpace(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondOK(c, gin.H{"cota": row, "search_space": space})
}

type refineCOTARequest struct {
	TopK int `json:"top_k,omitempty"`
}

// POST /cotas/:id/refine
func (h *AnalysisHandler) RefineCOTA(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_cota_id", err)
		return
	}
	var req refineCOTARequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	row, err := h.cota.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	run, err := h.jobs.StartJob(c.Request.Context(), cota.JobRefineCOTA, row.ProjectID, cota.Input{COTAID: row.ID, TopK: req.TopK})
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondAccepted(c, gin.H{"job": run})
}

func (h *AnalysisHandler) startProjectJob(c *gin.Context, jobType string) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	run, err := h.jobs.StartJob(c.Request.Context(), jobType, projectID, json.RawMessage(raw))
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondAccepted(c, gin.H{"job": run})
}
