package domain

import (
	"encoding/json"
	"time"
)

// AnalysisRecord is a persisted analysis run. The three blob fields are kept
// as raw JSON so stores can treat them as opaque.
type AnalysisRecord struct {
	ID               string          `json:"id"`
	PatientName      string          `json:"patientName"`
	PrimaryComplaint string          `json:"primaryComplaint"`
	RiskScore        RiskScore       `json:"riskScore"`
	Status           ReviewStatus    `json:"status"`
	TreatmentPlan    json.RawMessage `json:"treatmentPlan"`
	PatientData      json.RawMessage `json:"patientData"`
	Metadata         json.RawMessage `json:"metadata"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// AnalysisMetadata describes how a run was produced. EnrichedMedicationsCount
// counts every reported medication; MedicationsWithData only those a lookup
// answered.
type AnalysisMetadata struct {
	Provider                 string    `json:"provider"`
	Model                    string    `json:"model"`
	EnrichedMedicationsCount int       `json:"enrichedMedicationsCount"`
	MedicationsWithData      int       `json:"medicationsWithData"`
	Timestamp                time.Time `json:"timestamp"`
	RequestID                string    `json:"requestId,omitempty"`
}

// AnalysisFilter narrows a listing. Zero values mean "no constraint".
type AnalysisFilter struct {
	Status    ReviewStatus
	RiskScore RiskScore
	Limit     int
	Offset    int
}

// Default and maximum page sizes for listings.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalized clamps the paging values into the supported range.
func (f AnalysisFilter) Normalized() AnalysisFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// AnalysisOutcome is what a successful pipeline run returns to the caller.
type AnalysisOutcome struct {
	AnalysisID string                   `json:"analysisId"`
	Result     *TreatmentAnalysisResult `json:"treatmentPlan"`
	Metadata   AnalysisMetadata         `json:"metadata"`
}
