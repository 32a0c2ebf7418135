package domain

// PatientIntakeRecord is the structured questionnaire submitted for analysis.
// Nothing downstream of validation mutates it.
type PatientIntakeRecord struct {
	PatientID          string              `json:"patientId,omitempty"`
	PatientName        string              `json:"patientName" validate:"required"`
	SubmittedAt        string              `json:"submittedAt,omitempty"`
	MedicalConditions  []MedicalCondition  `json:"medicalConditions" validate:"required,dive"`
	Allergies          []Allergy           `json:"allergies" validate:"required,dive"`
	PastSurgeries      []string            `json:"pastSurgeries,omitempty"`
	FamilyHistory      []string            `json:"familyHistory,omitempty"`
	CurrentMedications []CurrentMedication `json:"currentMedications" validate:"required,dive"`
	HealthMetrics      *HealthMetrics      `json:"healthMetrics" validate:"required"`
	LifestyleFactors   *LifestyleFactors   `json:"lifestyleFactors" validate:"required"`
	PrimaryComplaint   *PrimaryComplaint   `json:"primaryComplaint" validate:"required"`
}

// MedicalCondition is a diagnosed or self-reported condition.
type MedicalCondition struct {
	Name          string   `json:"name" validate:"required"`
	DiagnosedDate string   `json:"diagnosedDate,omitempty"`
	Severity      Severity `json:"severity,omitempty" validate:"omitempty,oneof=mild moderate severe"`
}

// Allergy is a known allergen and the reaction it causes.
type Allergy struct {
	Allergen string   `json:"allergen" validate:"required"`
	Reaction string   `json:"reaction" validate:"required"`
	Severity Severity `json:"severity" validate:"required,oneof=mild moderate severe"`
}

// CurrentMedication is a medication the patient reports taking.
type CurrentMedication struct {
	Name      string `json:"name" validate:"required"`
	Dosage    string `json:"dosage" validate:"required"`
	Frequency string `json:"frequency" validate:"required"`
	Duration  string `json:"duration,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}

// BloodPressure is a systolic/diastolic reading in mmHg.
type BloodPressure struct {
	Systolic  *float64 `json:"systolic" validate:"required,min=0"`
	Diastolic *float64 `json:"diastolic" validate:"required,min=0"`
}

// HealthMetrics holds demographics and vitals. Pointers distinguish an
// absent value from a legitimate zero.
type HealthMetrics struct {
	Age           *float64       `json:"age" validate:"required,min=0,max=150"`
	Weight        *float64       `json:"weight" validate:"required,min=0"`
	WeightUnit    WeightUnit     `json:"weightUnit" validate:"required,oneof=kg lbs"`
	Height        *float64       `json:"height,omitempty" validate:"omitempty,min=0"`
	HeightUnit    HeightUnit     `json:"heightUnit,omitempty" validate:"omitempty,oneof=cm inches"`
	BMI           *float64       `json:"bmi,omitempty" validate:"omitempty,min=0"`
	BloodPressure *BloodPressure `json:"bloodPressure,omitempty" validate:"omitempty"`
	HeartRate     *float64       `json:"heartRate,omitempty" validate:"omitempty,min=0"`
	BloodGlucose  *float64       `json:"bloodGlucose,omitempty" validate:"omitempty,min=0"`
}

// LifestyleFactors captures habits relevant to prescribing.
type LifestyleFactors struct {
	SmokingStatus      SmokingStatus      `json:"smokingStatus" validate:"required,oneof=never former current"`
	PacksPerDay        *float64           `json:"packsPerDay,omitempty" validate:"omitempty,min=0"`
	AlcoholConsumption AlcoholConsumption `json:"alcoholConsumption" validate:"required,oneof=never occasional moderate frequent"`
	DrinksPerWeek      *float64           `json:"drinksPerWeek,omitempty" validate:"omitempty,min=0"`
	ExerciseFrequency  ExerciseFrequency  `json:"exerciseFrequency" validate:"required,oneof=sedentary light moderate active very-active"`
	DietType           string             `json:"dietType,omitempty"`
	SleepHours         *float64           `json:"sleepHours,omitempty" validate:"omitempty,min=0,max=24"`
}

// PrimaryComplaint is the reason for the visit.
type PrimaryComplaint struct {
	Complaint       string       `json:"complaint" validate:"required"`
	Severity        Severity     `json:"severity" validate:"required,oneof=mild moderate severe"`
	Duration        string       `json:"duration" validate:"required"`
	ImpactOnLife    ImpactOnLife `json:"impactOnLife" validate:"required,oneof=minimal moderate significant severe"`
	AdditionalNotes string       `json:"additionalNotes,omitempty"`
}

// ComplaintText returns the chief complaint or an empty string when the
// record carries none.
func (p *PatientIntakeRecord) ComplaintText() string {
	if p == nil || p.PrimaryComplaint == nil {
		return ""
	}
	return p.PrimaryComplaint.Complaint
}
