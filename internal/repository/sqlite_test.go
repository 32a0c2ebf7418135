package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treatment-plan-assistant/internal/database"
	"github.com/treatment-plan-assistant/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newAnalysis(name string, risk domain.RiskScore, createdAt time.Time) *domain.AnalysisRecord {
	return &domain.AnalysisRecord{
		ID:               uuid.NewString(),
		PatientName:      name,
		PrimaryComplaint: "Persistent headache",
		RiskScore:        risk,
		Status:           domain.StatusPending,
		TreatmentPlan:    json.RawMessage(`{"riskScore":"` + string(risk) + `"}`),
		PatientData:      json.RawMessage(`{"patientName":"` + name + `"}`),
		Metadata:         json.RawMessage(`{"provider":"openrouter","model":"gpt-4o"}`),
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func createTestStore(t *testing.T) *SQLiteAnalysisRepository {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "analyses.db"), logger)
	require.NoError(t, err)
	require.NoError(t, database.EnsureSQLiteSchema(ctx, db, logger))

	store := NewSQLiteAnalysisRepository(db, logger)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteAnalysisRepository_CreateAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 2, 10, 9, 30, 0, 123456789, time.UTC)
	record := newAnalysis("Alice Nguyen", domain.RiskLow, created)
	require.NoError(t, store.Create(ctx, record))

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.PatientName, got.PatientName)
	assert.Equal(t, record.PrimaryComplaint, got.PrimaryComplaint)
	assert.Equal(t, domain.RiskLow, got.RiskScore)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.JSONEq(t, string(record.TreatmentPlan), string(got.TreatmentPlan))
	assert.JSONEq(t, string(record.Metadata), string(got.Metadata))
	assert.True(t, created.Equal(got.CreatedAt))

	_, err = store.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteAnalysisRepository_List(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	low := newAnalysis("Alice Nguyen", domain.RiskLow, base)
	medium := newAnalysis("Brian Lopez", domain.RiskMedium, base.Add(time.Hour))
	high := newAnalysis("Dana Kim", domain.RiskHigh, base.Add(2*time.Hour))
	for _, r := range []*domain.AnalysisRecord{low, medium, high} {
		require.NoError(t, store.Create(ctx, r))
	}
	_, err := store.UpdateStatus(ctx, high.ID, domain.StatusRejected)
	require.NoError(t, err)

	all, err := store.List(ctx, domain.AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{high.ID, medium.ID, low.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending, err := store.List(ctx, domain.AnalysisFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	medOnly, err := store.List(ctx, domain.AnalysisFilter{RiskScore: domain.RiskMedium})
	require.NoError(t, err)
	require.Len(t, medOnly, 1)
	assert.Equal(t, "Brian Lopez", medOnly[0].PatientName)

	page, err := store.List(ctx, domain.AnalysisFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, medium.ID, page[0].ID)
}

func TestSQLiteAnalysisRepository_UpdateStatus(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	record := newAnalysis("Brian Lopez", domain.RiskMedium, time.Now().Add(-time.Minute))
	require.NoError(t, store.Create(ctx, record))

	updated, err := store.UpdateStatus(ctx, record.ID, domain.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, updated.Status)
	assert.True(t, updated.UpdatedAt.After(record.UpdatedAt))

	read, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, read.Status)

	_, err = store.UpdateStatus(ctx, "missing", domain.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.UpdateStatus(ctx, record.ID, domain.ReviewStatus("urgent"))
	assert.ErrorIs(t, err, domain.ErrInvalidReviewStatus)

	read, err = store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, read.Status)
}

func setupMockStore(t *testing.T) (*SQLiteAnalysisRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteAnalysisRepository(db, testLogger()), mock
}

func TestSQLiteAnalysisRepository_DriverErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("insert failure is wrapped", func(t *testing.T) {
		store, mock := setupMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `analysis_runs`")).
			WillReturnError(errors.New("disk I/O error"))

		err := store.Create(ctx, newAnalysis("Alice Nguyen", domain.RiskLow, time.Now()))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "creating analysis")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update of unknown id", func(t *testing.T) {
		store, mock := setupMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `analysis_runs`")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := store.UpdateStatus(ctx, "missing", domain.StatusApproved)

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list query failure", func(t *testing.T) {
		store, mock := setupMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
			WillReturnError(errors.New("database is locked"))

		_, err := store.List(ctx, domain.AnalysisFilter{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing analyses")
	})

	t.Run("corrupt timestamp", func(t *testing.T) {
		store, mock := setupMockStore(t)
		rows := sqlmock.NewRows([]string{
			"id", "patient_name", "primary_complaint", "risk_score", "status",
			"treatment_plan", "patient_data", "metadata", "created_at", "updated_at",
		}).AddRow("a-1", "Alice", "Cough", "LOW", "pending", "{}", "{}", "{}", "yesterday", "today")
		mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WillReturnRows(rows)

		_, err := store.Get(ctx, "a-1")

		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})
}
