package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/domain"
)

// sqliteTimeLayout sorts lexically in chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteAnalysisRepository stores analysis runs in an embedded SQLite file.
type SQLiteAnalysisRepository struct {
	db   *sql.DB
	goqu *goqu.Database
	log  *logrus.Logger
}

// NewSQLiteAnalysisRepository wraps an open SQLite handle. The schema must
// already exist.
func NewSQLiteAnalysisRepository(db *sql.DB, logger *logrus.Logger) *SQLiteAnalysisRepository {
	return &SQLiteAnalysisRepository{
		db:   db,
		goqu: goqu.New("sqlite3", db),
		log:  logger,
	}
}

// Create inserts a new analysis run
func (r *SQLiteAnalysisRepository) Create(ctx context.Context, record *domain.AnalysisRecord) error {
	query, args, err := r.goqu.Insert(analysisTable).Rows(goqu.Record{
		"id":                record.ID,
		"patient_name":      record.PatientName,
		"primary_complaint": record.PrimaryComplaint,
		"risk_score":        string(record.RiskScore),
		"status":            string(record.Status),
		"treatment_plan":    blob(record.TreatmentPlan, "{}"),
		"patient_data":      blob(record.PatientData, "{}"),
		"metadata":          blob(record.Metadata, "{}"),
		"created_at":        formatSQLiteTime(record.CreatedAt),
		"updated_at":        formatSQLiteTime(record.UpdatedAt),
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("building analysis insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.log.WithField("analysis_id", record.ID).WithError(err).Error("Failed to create analysis")
		return fmt.Errorf("creating analysis: %w", err)
	}
	return nil
}

// Get retrieves an analysis run by its ID
func (r *SQLiteAnalysisRepository) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	query, args, err := r.goqu.From(analysisTable).
		Select(analysisColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building analysis select: %w", err)
	}

	record, err := scanSQLiteAnalysis(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s not found: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting analysis by ID: %w", err)
	}
	return record, nil
}

// List retrieves analysis runs newest first
func (r *SQLiteAnalysisRepository) List(ctx context.Context, filter domain.AnalysisFilter) ([]*domain.AnalysisRecord, error) {
	filter = filter.Normalized()
	query, args, err := listFilter(r.goqu.From(analysisTable).Select(analysisColumns...), filter).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building analysis list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.AnalysisRecord, 0)
	for rows.Next() {
		record, err := scanSQLiteAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analyses: %w", err)
	}
	return records, nil
}

// UpdateStatus sets the review status and returns the updated run
func (r *SQLiteAnalysisRepository) UpdateStatus(ctx context.Context, id string, status domain.ReviewStatus) (*domain.AnalysisRecord, error) {
	if !status.IsValid() {
		return nil, domain.ErrInvalidReviewStatus
	}

	query, args, err := r.goqu.Update(analysisTable).
		Set(goqu.Record{
			"status":     string(status),
			"updated_at": formatSQLiteTime(time.Now()),
		}).
		Where(goqu.Ex{"id": id}).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building status update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating analysis status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking updated rows: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("analysis %s not found: %w", id, domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id": id,
		"status":      status,
	}).Info("Analysis status updated")

	return r.Get(ctx, id)
}

// Ping checks the database connection
func (r *SQLiteAnalysisRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection
func (r *SQLiteAnalysisRepository) Close() error {
	return r.db.Close()
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func scanSQLiteAnalysis(s scanner) (*domain.AnalysisRecord, error) {
	var row analysisRow
	var createdAt, updatedAt string
	err := s.Scan(
		&row.id, &row.patientName, &row.primaryComplaint, &row.riskScore, &row.status,
		&row.treatmentPlan, &row.patientData, &row.metadata, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	created, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	updated, err := time.Parse(sqliteTimeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return row.record(created, updated), nil
}
