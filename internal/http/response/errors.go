package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yungbote/dats-backend/internal/pkg/errors"
	"github.com/yungbote/dats-backend/internal/platform/apierr"
)

const internalMessage = "internal error"

// FromError classifies err for the client. Unclassified errors keep their
// cause for logging but expose only a generic message.
func FromError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(err)
	if kind == apperrors.KindInternal || kind == apperrors.KindCorruption {
		return apierr.New(http.StatusInternalServerError, string(apperrors.KindInternal), err)
	}
	return apierr.New(status, string(kind), err)
}

// Error writes err through FromError. details, when non-nil, is attached to
// the envelope.
func Error(c *gin.Context, err error, details any) {
	_ = c.Error(err)
	write(c, FromError(err), details)
}
