package domain

import (
	"errors"
	"strings"
)

// Severity grades a condition, an allergy or the chief complaint.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// WeightUnit is the unit the patient's weight was entered in.
type WeightUnit string

const (
	WeightKg  WeightUnit = "kg"
	WeightLbs WeightUnit = "lbs"
)

// HeightUnit is the unit the patient's height was entered in.
type HeightUnit string

const (
	HeightCm     HeightUnit = "cm"
	HeightInches HeightUnit = "inches"
)

// SmokingStatus captures tobacco use.
type SmokingStatus string

const (
	SmokingNever   SmokingStatus = "never"
	SmokingFormer  SmokingStatus = "former"
	SmokingCurrent SmokingStatus = "current"
)

// AlcoholConsumption captures drinking frequency.
type AlcoholConsumption string

const (
	AlcoholNever      AlcoholConsumption = "never"
	AlcoholOccasional AlcoholConsumption = "occasional"
	AlcoholModerate   AlcoholConsumption = "moderate"
	AlcoholFrequent   AlcoholConsumption = "frequent"
)

// ExerciseFrequency captures physical activity level.
type ExerciseFrequency string

const (
	ExerciseSedentary  ExerciseFrequency = "sedentary"
	ExerciseLight      ExerciseFrequency = "light"
	ExerciseModerate   ExerciseFrequency = "moderate"
	ExerciseActive     ExerciseFrequency = "active"
	ExerciseVeryActive ExerciseFrequency = "very-active"
)

// ImpactOnLife describes how much the complaint affects daily living.
type ImpactOnLife string

const (
	ImpactMinimal     ImpactOnLife = "minimal"
	ImpactModerate    ImpactOnLife = "moderate"
	ImpactSignificant ImpactOnLife = "significant"
	ImpactSevere      ImpactOnLife = "severe"
)

// RiskScore is the model's coarse overall safety classification for a plan.
type RiskScore string

const (
	RiskLow    RiskScore = "LOW"
	RiskMedium RiskScore = "MEDIUM"
	RiskHigh   RiskScore = "HIGH"
)

// FlagSeverity is the three-tier severity of a safety flag.
type FlagSeverity string

const (
	FlagCritical FlagSeverity = "critical"
	FlagWarning  FlagSeverity = "warning"
	FlagInfo     FlagSeverity = "info"
)

// FlagType categorises a safety flag.
type FlagType string

const (
	FlagDrugInteraction  FlagType = "drug-interaction"
	FlagAllergyConflict  FlagType = "allergy-conflict"
	FlagContraindication FlagType = "contraindication"
	FlagDosageConcern    FlagType = "dosage-concern"
	FlagAgeRelated       FlagType = "age-related"
	FlagOther            FlagType = "other"
)

// ReviewStatus is the reviewer-controlled state of a persisted analysis.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusModified ReviewStatus = "modified"
	StatusRejected ReviewStatus = "rejected"
)

// Sentinel errors shared across layers
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidReviewStatus = errors.New("invalid review status")
)

// IsValid reports whether r is one of the three accepted risk levels.
func (r RiskScore) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known review status.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusModified, StatusRejected:
		return true
	default:
		return false
	}
}

// ParseReviewStatus normalises user input into a ReviewStatus. Values outside
// the enum are rejected with ErrInvalidReviewStatus.
func ParseReviewStatus(raw string) (ReviewStatus, error) {
	s := ReviewStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", ErrInvalidReviewStatus
	}
	return s, nil
}

// ReviewStatuses lists every status in display order.
func ReviewStatuses() []ReviewStatus {
	return []ReviewStatus{StatusPending, StatusApproved, StatusModified, StatusRejected}
}
