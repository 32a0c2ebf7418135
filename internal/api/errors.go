package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/middleware"
)

// respondError maps a service error onto the HTTP error envelope
func (s *Server) respondError(c *gin.Context, err error) {
	apiErr, status := toAPIError(err, middleware.GetRequestID(c))

	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"request_id": apiErr.RequestID,
			"code":       apiErr.Code,
			"status":     status,
		}).WithError(err).Error("Request failed")
	}

	writeError(c, apiErr, status)
}

func writeError(c *gin.Context, apiErr *domain.APIError, status int) {
	c.AbortWithStatusJSON(status, gin.H{"error": apiErr})
}

// toAPIError picks the envelope and status for err. Storage and internal
// details never reach the client.
func toAPIError(err error, requestID string) (*domain.APIError, int) {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		apiErr := domain.NewAPIError(pe.Kind, pe.Message, requestID)
		apiErr.Details = pe.Violations
		switch pe.Kind {
		case domain.ErrInvalidInput:
			return apiErr, http.StatusBadRequest
		case domain.ErrModelUnavailable:
			apiErr.Reason = pe.Reason
			return apiErr, modelStatus(pe.Reason)
		case domain.ErrMalformedModelOutput:
			apiErr.RawResponse = pe.RawText
			return apiErr, http.StatusBadGateway
		case domain.ErrSchemaMismatch:
			apiErr.RawResponse = pe.RawText
			apiErr.RawValue = pe.RawValue
			return apiErr, http.StatusBadGateway
		case domain.ErrPersistenceFailure:
			return apiErr, http.StatusInternalServerError
		case domain.ErrResourceNotFound:
			return apiErr, http.StatusNotFound
		}
	}

	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewAPIError(domain.ErrResourceNotFound, "analysis not found", requestID), http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		apiErr := domain.NewAPIError(domain.ErrModelUnavailable, "request timed out", requestID)
		apiErr.Reason = domain.ReasonTimeout
		return apiErr, http.StatusGatewayTimeout
	}

	return domain.NewAPIError(domain.ErrInternalServer, "internal server error", requestID), http.StatusInternalServerError
}

func modelStatus(reason domain.ModelFailureReason) int {
	switch reason {
	case domain.ReasonAuthentication:
		return http.StatusUnauthorized
	case domain.ReasonTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
