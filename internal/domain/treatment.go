package domain

// TreatmentAnalysisResult is the validated model output. Keys without
// omitempty must be present in a reply, but their strings may be empty.
type TreatmentAnalysisResult struct {
	TreatmentPlan                  *TreatmentPlan         `json:"treatmentPlan" validate:"required"`
	RiskScore                      RiskScore              `json:"riskScore" validate:"required,oneof=LOW MEDIUM HIGH"`
	SafetyFlags                    []SafetyFlag           `json:"safetyFlags" validate:"required,dive"`
	Alternatives                   []AlternativeTreatment `json:"alternatives" validate:"required,dive"`
	Rationale                      string                 `json:"rationale"`
	Confidence                     *float64               `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`
	Citations                      []string               `json:"citations,omitempty"`
	SpecialistConsultationRequired *bool                  `json:"specialistConsultationRequired,omitempty"`
	MonitoringRecommendations      []string               `json:"monitoringRecommendations,omitempty"`
}

// TreatmentPlan is the proposed regimen.
type TreatmentPlan struct {
	Medications             []Medication `json:"medications" validate:"required,dive"`
	Duration                string       `json:"duration"`
	SpecialInstructions     string       `json:"specialInstructions,omitempty"`
	FollowUpRecommendations []string     `json:"followUpRecommendations,omitempty"`
	LifestyleModifications  []string     `json:"lifestyleModifications,omitempty"`
}

// Medication is one entry of the proposed regimen.
type Medication struct {
	Name                string `json:"name"`
	GenericName         string `json:"genericName,omitempty"`
	BrandName           string `json:"brandName,omitempty"`
	Dosage              string `json:"dosage"`
	Frequency           string `json:"frequency"`
	Duration            string `json:"duration"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
	Purpose             string `json:"purpose"`
}

// SafetyFlag is a concern the model raised about the plan.
type SafetyFlag struct {
	Severity            FlagSeverity `json:"severity" validate:"required,oneof=critical warning info"`
	Type                FlagType     `json:"type" validate:"required,oneof=drug-interaction allergy-conflict contraindication dosage-concern age-related other"`
	Title               string       `json:"title"`
	Description         string       `json:"description"`
	AffectedMedications []string     `json:"affectedMedications,omitempty"`
	Recommendation      string       `json:"recommendation,omitempty"`
}

// AlternativeTreatment is a different approach the reviewer may consider.
type AlternativeTreatment struct {
	Approach       string       `json:"approach"`
	Medications    []Medication `json:"medications,omitempty" validate:"omitempty,dive"`
	Pros           []string     `json:"pros" validate:"required"`
	Cons           []string     `json:"cons" validate:"required"`
	AppropriateFor string       `json:"appropriateFor,omitempty"`
}

// CriticalFlags returns the flags marked critical, in model order.
func (r *TreatmentAnalysisResult) CriticalFlags() []SafetyFlag {
	var out []SafetyFlag
	for _, f := range r.SafetyFlags {
		if f.Severity == FlagCritical {
			out = append(out, f)
		}
	}
	return out
}
