package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/dats-backend/internal/http/response"
	"github.com/yungbote/dats-backend/internal/status"
)

type StatusHandler struct {
	status status.Service
}

func NewStatusHandler(svc status.Service) *StatusHandler {
	return &StatusHandler{status: svc}
}

// GET /projects/:id/status
func (h *StatusHandler) ProjectStatus(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	st, err := h.status.ProjectStatus(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.RespondOK(c, st)
}
