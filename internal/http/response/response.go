package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/dats-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error   APIError `json:"error"`
	Details any      `json:"details,omitempty"`
}

// RespondError writes a client error whose status and code the handler has
// already decided. A nil err falls back to the humanized code.
func RespondError(c *gin.Context, status int, code string, err error) {
	write(c, apierr.New(status, code, err), nil)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

func write(c *gin.Context, ae *apierr.Error, details any) {
	msg := internalMessage
	if ae.Public() {
		msg = ae.Error()
	}
	if details == nil {
		details = ae.Details
	}
	c.JSON(ae.Status, ErrorEnvelope{
		Error:   APIError{Message: msg, Code: ae.Code},
		Details: details,
	})
}
