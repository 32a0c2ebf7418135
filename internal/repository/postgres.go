package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/domain"
)

// PostgresAnalysisRepository stores analysis runs in PostgreSQL
type PostgresAnalysisRepository struct {
	db      *pgxpool.Pool
	dialect goqu.DialectWrapper
	log     *logrus.Logger
}

// NewPostgresAnalysisRepository creates a new PostgreSQL analysis repository
func NewPostgresAnalysisRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresAnalysisRepository {
	return &PostgresAnalysisRepository{
		db:      db,
		dialect: goqu.Dialect("postgres"),
		log:     logger,
	}
}

// Create inserts a new analysis run
func (r *PostgresAnalysisRepository) Create(ctx context.Context, record *domain.AnalysisRecord) error {
	query, args, err := r.dialect.Insert(analysisTable).Rows(goqu.Record{
		"id":                record.ID,
		"patient_name":      record.PatientName,
		"primary_complaint": record.PrimaryComplaint,
		"risk_score":        string(record.RiskScore),
		"status":            string(record.Status),
		"treatment_plan":    blob(record.TreatmentPlan, "{}"),
		"patient_data":      blob(record.PatientData, "{}"),
		"metadata":          blob(record.Metadata, "{}"),
		"created_at":        record.CreatedAt,
		"updated_at":        record.UpdatedAt,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("building analysis insert: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"analysis_id": record.ID,
			"error":       err,
		}).Error("Failed to create analysis")
		return fmt.Errorf("creating analysis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"risk_score":  record.RiskScore,
	}).Info("Analysis created successfully")

	return nil
}

// Get retrieves an analysis run by its ID
func (r *PostgresAnalysisRepository) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	query, args, err := r.dialect.From(analysisTable).
		Select(analysisColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building analysis select: %w", err)
	}

	record, err := scanPostgresAnalysis(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis %s not found: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"analysis_id": id,
			"error":       err,
		}).Error("Failed to get analysis by ID")
		return nil, fmt.Errorf("getting analysis by ID: %w", err)
	}

	return record, nil
}

// List retrieves analysis runs newest first
func (r *PostgresAnalysisRepository) List(ctx context.Context, filter domain.AnalysisFilter) ([]*domain.AnalysisRecord, error) {
	filter = filter.Normalized()
	query, args, err := listFilter(r.dialect.From(analysisTable).Select(analysisColumns...), filter).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building analysis list: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.AnalysisRecord, 0)
	for rows.Next() {
		record, err := scanPostgresAnalysis(rows)
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
func (r *PostgresAnalysisRepository) UpdateStatus(ctx context.Context, id string, status domain.ReviewStatus) (*domain.AnalysisRecord, error) {
	if !status.IsValid() {
		return nil, domain.ErrInvalidReviewStatus
	}

	query, args, err := r.dialect.Update(analysisTable).
		Set(goqu.Record{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id}).
		Returning(analysisColumns...).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building status update: %w", err)
	}

	record, err := scanPostgresAnalysis(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis %s not found: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("updating analysis status: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id": id,
		"status":      status,
	}).Info("Analysis status updated")

	return record, nil
}

// Ping checks the database connection
func (r *PostgresAnalysisRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller
func (r *PostgresAnalysisRepository) Close() error {
	return nil
}

func scanPostgresAnalysis(s scanner) (*domain.AnalysisRecord, error) {
	var row analysisRow
	var createdAt, updatedAt time.Time
	err := s.Scan(
		&row.id, &row.patientName, &row.primaryComplaint, &row.riskScore, &row.status,
		&row.treatmentPlan, &row.patientData, &row.metadata, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row.record(createdAt.UTC(), updatedAt.UTC()), nil
}
