package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/middleware"
)

type statusUpdateRequest struct {
	Status string `json:"status"`
}

// handleHealth reports liveness only
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   s.deps.Version,
	})
}

// handleReady checks the store and reports breaker states. An open breaker
// does not fail readiness because lookups degrade to absent data.
func (s *Server) handleReady(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			ready = false
			checks["store"] = "unavailable"
			s.logger.WithError(err).Warn("Readiness check: store unreachable")
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "disabled"
	}

	if s.deps.Breakers != nil {
		checks["breakers"] = s.deps.Breakers.BreakerStates()
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

// handleAnalyze runs the full pipeline on a submitted intake record
func (s *Server) handleAnalyze(c *gin.Context) {
	requestID := middleware.GetRequestID(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiErr := domain.NewAPIError(domain.ErrInvalidInput, "request body is too large", requestID)
			writeError(c, apiErr, http.StatusRequestEntityTooLarge)
			return
		}
		writeError(c, domain.NewAPIError(domain.ErrInvalidInput, "failed to read request body", requestID), http.StatusBadRequest)
		return
	}

	outcome, err := s.deps.Analyzer.Analyze(c.Request.Context(), body, requestID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"analysisId":    outcome.AnalysisID,
		"treatmentPlan": outcome.Result,
		"metadata":      outcome.Metadata,
	})
}

// handleListAnalyses lists stored analyses newest first
func (s *Server) handleListAnalyses(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		s.respondError(c, err)
		return
	}

	filter := domain.AnalysisFilter{
		Status:    domain.ReviewStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		RiskScore: domain.RiskScore(strings.ToUpper(strings.TrimSpace(c.Query("riskScore")))),
		Limit:     limit,
		Offset:    offset,
	}

	records, err := s.deps.Reviews.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	normalized := filter.Normalized()
	c.JSON(http.StatusOK, gin.H{
		"analyses": records,
		"count":    len(records),
		"limit":    normalized.Limit,
		"offset":   normalized.Offset,
	})
}

// handleGetAnalysis returns one stored analysis
func (s *Server) handleGetAnalysis(c *gin.Context) {
	record, err := s.deps.Reviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleUpdateStatus moves an analysis to a new review status
func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewInvalidInputError([]*domain.ValidationError{
			domain.NewValidationError("(root)", "request body must be a JSON object with a status field", nil),
		}))
		return
	}

	record, err := s.deps.Reviews.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      record.ID,
		"status":  record.Status,
	})
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.NewInvalidInputError([]*domain.ValidationError{
			domain.NewValidationError(name, "must be a non-negative integer", raw),
		})
	}
	return v, nil
}
