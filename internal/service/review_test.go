package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/treatment-plan-assistant/internal/domain"
)

func TestReviewService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("approved then read back", func(t *testing.T) {
		store := new(MockStore)
		approved := &domain.AnalysisRecord{ID: "a-1", Status: domain.StatusApproved}
		store.On("UpdateStatus", ctx, "a-1", domain.StatusApproved).Return(approved, nil).Once()
		store.On("Get", ctx, "a-1").Return(approved, nil).Once()

		svc := NewReviewService(store, quietLogger())
		updated, err := svc.UpdateStatus(ctx, "a-1", "Approved")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusApproved, updated.Status)

		read, err := svc.Get(ctx, "a-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusApproved, read.Status)
		store.AssertExpectations(t)
	})

	t.Run("unknown status rejected before write", func(t *testing.T) {
		store := new(MockStore)
		svc := NewReviewService(store, quietLogger())

		_, err := svc.UpdateStatus(ctx, "a-1", "urgent")

		require.Error(t, err)
		assert.Equal(t, domain.ErrInvalidInput, domain.KindOf(err))
		pe := err.(*domain.PipelineError)
		require.Len(t, pe.Violations, 1)
		assert.Equal(t, "must be one of [pending approved modified rejected]", pe.Violations[0].Message)
		store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown id", func(t *testing.T) {
		store := new(MockStore)
		store.On("UpdateStatus", ctx, "missing", domain.StatusRejected).
			Return(nil, fmt.Errorf("analysis missing: %w", domain.ErrNotFound))

		_, err := NewReviewService(store, quietLogger()).UpdateStatus(ctx, "missing", "rejected")

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, domain.ErrResourceNotFound, domain.KindOf(err))
	})

	t.Run("storage failure is hidden", func(t *testing.T) {
		store := new(MockStore)
		store.On("UpdateStatus", ctx, "a-1", domain.StatusModified).
			Return(nil, errors.New("connection refused on 10.0.0.5:5432"))

		_, err := NewReviewService(store, quietLogger()).UpdateStatus(ctx, "a-1", "modified")

		require.Error(t, err)
		assert.Equal(t, domain.ErrPersistenceFailure, domain.KindOf(err))
		assert.Equal(t, "failed to persist analysis", err.(*domain.PipelineError).Message)
	})
}

func TestReviewService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes paging", func(t *testing.T) {
		store := new(MockStore)
		expected := domain.AnalysisFilter{Status: domain.StatusPending, Limit: domain.MaxListLimit}
		store.On("List", ctx, expected).Return([]*domain.AnalysisRecord{{ID: "a-1"}}, nil).Once()

		records, err := NewReviewService(store, quietLogger()).List(ctx, domain.AnalysisFilter{
			Status: domain.StatusPending,
			Limit:  5000,
			Offset: -3,
		})

		require.NoError(t, err)
		assert.Len(t, records, 1)
		store.AssertExpectations(t)
	})

	t.Run("rejects unknown filters", func(t *testing.T) {
		store := new(MockStore)
		svc := NewReviewService(store, quietLogger())

		_, err := svc.List(ctx, domain.AnalysisFilter{Status: "urgent"})
		assert.Equal(t, domain.ErrInvalidInput, domain.KindOf(err))

		_, err = svc.List(ctx, domain.AnalysisFilter{RiskScore: "CRITICAL"})
		assert.Equal(t, domain.ErrInvalidInput, domain.KindOf(err))

		store.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}
