package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/orchestrator"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindValidation:
		return http.StatusBadRequest
	case models.ErrKindAPIKeyMissing, models.ErrKindAPIKeyInvalid:
		return http.StatusUnauthorized
	case models.ErrKindBudgetExceeded:
		return http.StatusPaymentRequired
	case models.ErrKindRateLimited:
		return http.StatusTooManyRequests
	case models.ErrKindCancelled:
		return http.StatusConflict
	case models.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case models.ErrKindModelUnavailable, models.ErrKindNoModelAvailable, models.ErrKindSystemOverload:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders any error as the typed error body. Unclassified errors
// stay in logs and surface as internal_error.
func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, orchestrator.ErrNotFound) {
		ue := models.NewUserError(models.ErrKindValidation, "analysis not found")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: *ue})
		return
	}

	var ue *models.UserError
	if !errors.As(err, &ue) {
		s.logger.Error("Unclassified error at API boundary", "error", err)
		ue = models.NewUserError(models.ErrKindInternal, "internal error")
	}
	c.JSON(statusFor(ue.Kind), ErrorResponse{Error: *ue})
}
