package repository

import (
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/treatment-plan-assistant/internal/domain"
)

const analysisTable = "analysis_runs"

var analysisColumns = []interface{}{
	"id", "patient_name", "primary_complaint", "risk_score", "status",
	"treatment_plan", "patient_data", "metadata", "created_at", "updated_at",
}

// scanner is an interface for sql.Row, sql.Rows and pgx.Row
type scanner interface {
	Scan(dest ...interface{}) error
}

// analysisRow is the column layout shared by both stores. Blob columns are
// read as text so each driver can hand back its native JSON representation.
type analysisRow struct {
	id, patientName, primaryComplaint, riskScore, status string
	treatmentPlan, patientData, metadata                 string
}

func (r *analysisRow) record(createdAt, updatedAt time.Time) *domain.AnalysisRecord {
	return &domain.AnalysisRecord{
		ID:               r.id,
		PatientName:      r.patientName,
		PrimaryComplaint: r.primaryComplaint,
		RiskScore:        domain.RiskScore(r.riskScore),
		Status:           domain.ReviewStatus(r.status),
		TreatmentPlan:    json.RawMessage(r.treatmentPlan),
		PatientData:      json.RawMessage(r.patientData),
		Metadata:         json.RawMessage(r.metadata),
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
}

func blob(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

// listFilter applies the optional status and risk filters plus paging,
// newest first.
func listFilter(ds *goqu.SelectDataset, filter domain.AnalysisFilter) *goqu.SelectDataset {
	where := goqu.Ex{}
	if filter.Status != "" {
		where["status"] = string(filter.Status)
	}
	if filter.RiskScore != "" {
		where["risk_score"] = string(filter.RiskScore)
	}
	if len(where) > 0 {
		ds = ds.Where(where)
	}
	return ds.
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(filter.Limit)).
		Offset(uint(filter.Offset))
}
