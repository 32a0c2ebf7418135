package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/validation"
)

//go:embed fixtures/analyses.yaml
var defaultFixture []byte

// Sample is one analysis run as written in a fixture file
type Sample struct {
	ID            string                 `yaml:"id"`
	Status        string                 `yaml:"status"`
	CreatedAt     time.Time              `yaml:"createdAt"`
	PatientData   map[string]interface{} `yaml:"patientData"`
	TreatmentPlan map[string]interface{} `yaml:"treatmentPlan"`
}

type fixture struct {
	Analyses []Sample `yaml:"analyses"`
}

// DefaultFixture returns the built-in sample runs
func DefaultFixture() []byte {
	return defaultFixture
}

// Load parses and checks fixture YAML. Every sample must carry a treatment
// plan that passes the same validation as a model reply.
func Load(data []byte) ([]*domain.AnalysisRecord, error) {
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed fixture: %w", err)
	}

	v := validation.New()
	records := make([]*domain.AnalysisRecord, 0, len(f.Analyses))
	for i, sample := range f.Analyses {
		record, err := toRecord(v, sample)
		if err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", i, sample.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func toRecord(v *validation.Validator, sample Sample) (*domain.AnalysisRecord, error) {
	if sample.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	status, err := domain.ParseReviewStatus(sample.Status)
	if err != nil {
		return nil, err
	}

	patientJSON, err := json.Marshal(sample.PatientData)
	if err != nil {
		return nil, fmt.Errorf("encoding patient data: %w", err)
	}
	intake, err := v.ParseIntake(patientJSON)
	if err != nil {
		return nil, err
	}

	planJSON, err := json.Marshal(sample.TreatmentPlan)
	if err != nil {
		return nil, fmt.Errorf("encoding treatment plan: %w", err)
	}
	result, err := v.ParseTreatmentResult(string(planJSON))
	if err != nil {
		return nil, err
	}

	createdAt := sample.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(domain.AnalysisMetadata{
		Provider:                 "seed",
		Model:                    "fixture",
		EnrichedMedicationsCount: len(intake.CurrentMedications),
		Timestamp:                createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	return &domain.AnalysisRecord{
		ID:               sample.ID,
		PatientName:      intake.PatientName,
		PrimaryComplaint: intake.ComplaintText(),
		RiskScore:        result.RiskScore,
		Status:           status,
		TreatmentPlan:    planJSON,
		PatientData:      patientJSON,
		Metadata:         metadata,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}, nil
}

// Seed inserts records that are not already stored and returns how many were
// created. Re-running it is a no-op.
func Seed(ctx context.Context, store domain.AnalysisStore, records []*domain.AnalysisRecord, logger *logrus.Logger) (int, error) {
	created := 0
	for _, record := range records {
		_, err := store.Get(ctx, record.ID)
		if err == nil {
			logger.WithField("analysis_id", record.ID).Debug("Seed analysis already present")
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, fmt.Errorf("checking seed analysis %s: %w", record.ID, err)
		}

		if err := store.Create(ctx, record); err != nil {
			return created, fmt.Errorf("creating seed analysis %s: %w", record.ID, err)
		}
		created++
	}

	logger.WithFields(logrus.Fields{
		"created": created,
		"total":   len(records),
	}).Info("Seed analyses loaded")

	return created, nil
}
