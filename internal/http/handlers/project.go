package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/dats-backend/internal/domain"
	"github.com/yungbote/dats-backend/internal/http/response"
	"github.com/yungbote/dats-backend/internal/platform/search"
	"github.com/yungbote/dats-backend/internal/services/metadata"
)

type ProjectHandler struct {
	metadata metadata.Service
	index    search.Index
}

func NewProjectHandler(md metadata.Service, index search.Index) *ProjectHandler {
	if index == nil {
		index = search.Noop()
	}
	return &ProjectHandler{metadata: md, index: index}
}

type createMetadataRequest struct {
	Key         string         `json:"key"`
	DocType     types.DocType  `json:"doctype"`
	MetaType    types.MetaType `json:"metatype"`
	ReadOnly    bool           `json:"read_only"`
	Description string         `json:"description"`
}

// POST /projects/:id/metadata
func (h *ProjectHandler) CreateMetadata(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	var req createMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	def, err := h.metadata.CreateProjectMetadata(c.Request.Context(), &types.ProjectMetadata{
		ProjectID:   projectID,
		Key:         req.Key,
		DocType:     req.DocType,
		MetaType:    req.MetaType,
		ReadOnly:    req.ReadOnly,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondCreated(c, gin.H{"metadata": def})
}

// GET /projects/:id/search?q=&limit=
func (h *ProjectHandler) Search(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_query", errors.New("q required"))
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be between 1 and 200"))
			return
		}
		limit = n
	}
	hits, err := h.index.Search(c.Request.Context(), projectID, query, limit)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	response.RespondOK(c, gin.H{"hits": hits})
}
