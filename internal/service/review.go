package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/domain"
)

// ReviewService exposes stored analyses to reviewers and moves them between
// review states.
type ReviewService struct {
	store  domain.AnalysisStore
	logger *logrus.Logger
}

// NewReviewService creates a new review service
func NewReviewService(store domain.AnalysisStore, logger *logrus.Logger) *ReviewService {
	return &ReviewService{store: store, logger: logger}
}

// Get returns one stored analysis
func (r *ReviewService) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	record, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, r.storeError("get", id, err)
	}
	return record, nil
}

// List returns stored analyses newest first
func (r *ReviewService) List(ctx context.Context, filter domain.AnalysisFilter) ([]*domain.AnalysisRecord, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewInvalidInputError([]*domain.ValidationError{
			domain.NewValidationError("status", statusChoices(), filter.Status),
		})
	}
	if filter.RiskScore != "" && !filter.RiskScore.IsValid() {
		return nil, domain.NewInvalidInputError([]*domain.ValidationError{
			domain.NewValidationError("riskScore", "must be one of [LOW MEDIUM HIGH]", filter.RiskScore),
		})
	}
	records, err := r.store.List(ctx, filter.Normalized())
	if err != nil {
		return nil, r.storeError("list", "", err)
	}
	return records, nil
}

// UpdateStatus moves an analysis to a new review status. The raw value is
// checked against the allowed set before the store is touched.
func (r *ReviewService) UpdateStatus(ctx context.Context, id, rawStatus string) (*domain.AnalysisRecord, error) {
	status, err := domain.ParseReviewStatus(rawStatus)
	if err != nil {
		return nil, domain.NewInvalidInputError([]*domain.ValidationError{
			domain.NewValidationError("status", statusChoices(), rawStatus),
		})
	}

	record, err := r.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, r.storeError("update_status", id, err)
	}

	r.logger.WithFields(logrus.Fields{
		"analysis_id": id,
		"status":      status,
	}).Info("Analysis review status updated")

	return record, nil
}

func statusChoices() string {
	return fmt.Sprintf("must be one of %v", domain.ReviewStatuses())
}

// storeError keeps not-found distinguishable and hides every other storage
// failure behind PersistenceFailure.
func (r *ReviewService) storeError(op, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"operation":   op,
		"analysis_id": id,
	}).WithError(err).Error("Analysis store operation failed")
	return domain.NewPersistenceError(err)
}
