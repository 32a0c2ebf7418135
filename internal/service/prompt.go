package service

import (
	"strconv"
	"strings"

	"github.com/treatment-plan-assistant/internal/domain"
)

// ModelTemperature is the sampling temperature for every analysis call.
const ModelTemperature = 0.3

// SystemPrompt is the fixed instruction sent with every analysis request. It
// restricts the model to the patient data and label text in the user prompt.
const SystemPrompt = `# Role
You are a clinical decision support assistant. You analyze patient intake data and draft safe treatment recommendations for a licensed physician to review. You never prescribe directly.

# CLOSED-LOOP KNOWLEDGE RESTRICTION
⚠️  Operate in closed-loop mode:
- Use ONLY the patient information and the FDA drug label text supplied in the user message.
- Do NOT rely on outside pharmacology knowledge or training data for interactions, contraindications or dosing.
- Do NOT recommend a medication for which no FDA label text was supplied unless you flag that limitation.
- When label data is missing for a drug, say so explicitly and treat it as a safety concern.
- Every clinical claim in your rationale must be traceable to a supplied label section.

# Task
For the patient described, produce:
1. A treatment plan: medications (generic and brand names), dosage with units, frequency, duration, special instructions and purpose of each.
2. A drug-drug interaction check between current medications and anything you recommend, based only on the supplied DRUG INTERACTIONS sections.
3. A contraindication check against the patient's conditions, allergies (including cross-sensitivities named in the labels), age and lifestyle.
4. Dosages justified by the supplied DOSAGE AND ADMINISTRATION sections, adjusted for age and weight where the label says so.
5. A risk score:
   - LOW: no relevant interactions or contraindications, standard monitoring.
   - MEDIUM: considerations present that need enhanced monitoring, or polypharmacy.
   - HIGH: a critical interaction, an absolute contraindication, a boxed warning, or several risk factors together.
6. Two or three alternative approaches with pros and cons, including non-drug options where relevant.
7. A rationale that cites the label sections it relies on and names any decision made without label support.

# Safety Rules
- Assign HIGH risk when the supplied data shows any of: a contraindication matching the patient's conditions or allergies, an interaction with a current medication, a boxed warning, age or weight outside the labelled range, or several applicable warnings.
- For HIGH risk, set specialistConsultationRequired to true.
- When label data is missing for a drug, use at least MEDIUM risk, state "Limited FDA data available" in the rationale, and recommend physician verification.
- Do not assume members of a drug class behave alike unless the label says so.
- Check GERIATRIC USE for patients over 65, PEDIATRIC USE for children and PREGNANCY when relevant.

# Safety flag severities
- critical: must be resolved before the plan is used.
- warning: needs monitoring or a dose adjustment.
- info: worth noting, no action required.

# Output Format
Respond with a single JSON object and nothing else. Use exactly this structure:

{
  "treatmentPlan": {
    "medications": [
      {
        "name": "Generic Name (Brand Name)",
        "genericName": "generic",
        "brandName": "Brand",
        "dosage": "50mg",
        "frequency": "Once daily",
        "duration": "12 weeks",
        "specialInstructions": "Take with food",
        "purpose": "Treatment of the condition"
      }
    ],
    "duration": "12 weeks with follow-up",
    "specialInstructions": "Overall instructions",
    "followUpRecommendations": ["Follow-up visit in 4 weeks"],
    "lifestyleModifications": ["Increase physical activity"]
  },
  "riskScore": "LOW|MEDIUM|HIGH",
  "safetyFlags": [
    {
      "severity": "critical|warning|info",
      "type": "drug-interaction|allergy-conflict|contraindication|dosage-concern|age-related|other",
      "title": "Short title",
      "description": "What the risk is and which label text shows it",
      "affectedMedications": ["Medication A"],
      "recommendation": "Action to take"
    }
  ],
  "alternatives": [
    {
      "approach": "Alternative approach",
      "medications": [
        {"name": "Medication", "dosage": "dose", "frequency": "frequency", "duration": "duration", "purpose": "purpose"}
      ],
      "pros": ["Benefit"],
      "cons": ["Drawback"],
      "appropriateFor": "When this alternative fits"
    }
  ],
  "rationale": "Why this plan fits this patient, citing the supplied label sections",
  "confidence": 0.85,
  "citations": ["FDA label: Metformin, CONTRAINDICATIONS"],
  "specialistConsultationRequired": false,
  "monitoringRecommendations": ["Check blood pressure at each visit"]
}

# Before answering, verify
- Every current medication was checked against every recommendation.
- Every allergy and condition was checked against the supplied contraindications.
- The risk score matches the flags you raised.
- At least two alternatives are present.
- The reply is valid JSON in the structure above.
`

const taskInstructions = "=== TASK ===\n" +
	"Based ONLY on the patient information and FDA drug label data provided above, " +
	"generate a comprehensive, safety-checked treatment plan.\n\n" +
	"YOU MUST:\n" +
	"1. Check for drug interactions between current medications and any new recommendations\n" +
	"2. Check for contraindications based on patient's conditions and allergies\n" +
	"3. Verify dosages are appropriate for patient's age, weight, and health status\n" +
	"4. Flag any safety concerns (critical, warning, or info severity)\n" +
	"5. Provide alternative treatments if primary recommendation has safety issues\n" +
	"6. Include lifestyle modifications based on patient's current lifestyle factors\n" +
	"7. Include follow-up recommendations for monitoring\n\n" +
	"IMPORTANT: Always include lifestyleModifications array (even if empty) and " +
	"followUpRecommendations array in your response.\n\n" +
	"RESPOND ONLY IN VALID JSON FORMAT matching the schema defined in the system prompt."

// ComposeUserPrompt joins the rendered patient record, the label context
// summary and the task instructions. Identical input yields identical text.
func ComposeUserPrompt(record *domain.PatientIntakeRecord, enriched *domain.EnrichedContext) string {
	summary := NoMedicationsSummary
	if enriched != nil && enriched.Summary != "" {
		summary = enriched.Summary
	}
	return FormatPatientData(record) + "\n\n" + summary + "\n\n" + taskInstructions
}

// FormatPatientData renders the intake record as the patient section of the
// prompt. Empty surgery and family history lists are left out entirely.
func FormatPatientData(record *domain.PatientIntakeRecord) string {
	var b strings.Builder
	b.WriteString("=== PATIENT INFORMATION ===\n\n")

	writeHealthMetrics(&b, record.HealthMetrics)
	writeConditions(&b, record.MedicalConditions)
	writeAllergies(&b, record.Allergies)
	writeList(&b, "## PAST SURGERIES", record.PastSurgeries)
	writeList(&b, "## FAMILY HISTORY", record.FamilyHistory)
	writeLifestyle(&b, record.LifestyleFactors)
	writeMedications(&b, record.CurrentMedications)
	writeComplaint(&b, record.PrimaryComplaint)

	return b.String()
}

func writeHealthMetrics(b *strings.Builder, m *domain.HealthMetrics) {
	b.WriteString("## DEMOGRAPHICS & HEALTH METRICS\n")
	if m == nil {
		b.WriteString("\n")
		return
	}
	b.WriteString("Age: " + num(m.Age) + " years\n")
	b.WriteString("Weight: " + num(m.Weight) + " " + string(m.WeightUnit) + "\n")
	if present(m.Height) {
		b.WriteString("Height: " + num(m.Height) + " " + string(m.HeightUnit) + "\n")
	}
	if present(m.BMI) {
		b.WriteString("BMI: " + num(m.BMI) + "\n")
	}
	if bp := m.BloodPressure; bp != nil {
		b.WriteString("Blood Pressure: " + num(bp.Systolic) + "/" + num(bp.Diastolic) + " mmHg\n")
	}
	if present(m.HeartRate) {
		b.WriteString("Heart Rate: " + num(m.HeartRate) + " bpm\n")
	}
	if present(m.BloodGlucose) {
		b.WriteString("Blood Glucose: " + num(m.BloodGlucose) + " mg/dL\n")
	}
	b.WriteString("\n")
}

func writeConditions(b *strings.Builder, conditions []domain.MedicalCondition) {
	b.WriteString("## MEDICAL CONDITIONS\n")
	if len(conditions) == 0 {
		b.WriteString("None reported\n")
	}
	for _, c := range conditions {
		b.WriteString("- " + c.Name)
		if c.Severity != "" {
			b.WriteString(" (Severity: " + string(c.Severity) + ")")
		}
		if c.DiagnosedDate != "" {
			b.WriteString(" [Diagnosed: " + c.DiagnosedDate + "]")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeAllergies(b *strings.Builder, allergies []domain.Allergy) {
	b.WriteString("## KNOWN ALLERGIES\n")
	if len(allergies) == 0 {
		b.WriteString("No known allergies\n")
	}
	for _, a := range allergies {
		b.WriteString("- Allergen: " + a.Allergen + "\n")
		b.WriteString("  Reaction: " + a.Reaction + "\n")
		b.WriteString("  Severity: " + string(a.Severity) + "\n")
	}
	b.WriteString("\n")
}

func writeList(b *strings.Builder, header string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(header + "\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\n")
}

func writeLifestyle(b *strings.Builder, l *domain.LifestyleFactors) {
	b.WriteString("## LIFESTYLE FACTORS\n")
	if l == nil {
		b.WriteString("\n")
		return
	}
	b.WriteString("Smoking: " + string(l.SmokingStatus))
	if present(l.PacksPerDay) {
		b.WriteString(" (" + num(l.PacksPerDay) + " packs/day)")
	}
	b.WriteString("\n")

	b.WriteString("Alcohol: " + string(l.AlcoholConsumption))
	if present(l.DrinksPerWeek) {
		b.WriteString(" (" + num(l.DrinksPerWeek) + " drinks/week)")
	}
	b.WriteString("\n")

	b.WriteString("Exercise: " + string(l.ExerciseFrequency) + "\n")
	if l.DietType != "" {
		b.WriteString("Diet: " + l.DietType + "\n")
	}
	if present(l.SleepHours) {
		b.WriteString("Sleep: " + num(l.SleepHours) + " hours/night\n")
	}
	b.WriteString("\n")
}

func writeMedications(b *strings.Builder, meds []domain.CurrentMedication) {
	b.WriteString("## CURRENT MEDICATIONS\n")
	if len(meds) == 0 {
		b.WriteString("None reported\n")
	}
	for _, m := range meds {
		b.WriteString("- " + m.Name + ": " + m.Dosage + ", " + m.Frequency)
		if m.Duration != "" {
			b.WriteString(", Duration: " + m.Duration)
		}
		if m.Purpose != "" {
			b.WriteString(" (Purpose: " + m.Purpose + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeComplaint(b *strings.Builder, c *domain.PrimaryComplaint) {
	b.WriteString("## PRIMARY COMPLAINT\n")
	if c == nil {
		b.WriteString("\n")
		return
	}
	b.WriteString("Chief Complaint: " + c.Complaint + "\n")
	b.WriteString("Severity: " + string(c.Severity) + "\n")
	b.WriteString("Duration: " + c.Duration + "\n")
	b.WriteString("Impact on Life: " + string(c.ImpactOnLife) + "\n")
	if c.AdditionalNotes != "" {
		b.WriteString("Additional Notes: " + c.AdditionalNotes + "\n")
	}
	b.WriteString("\n")
}

// present reports whether an optional measurement carries a non-zero value.
// Zero readings are treated like absent ones, matching the intake form.
func present(v *float64) bool {
	return v != nil && *v != 0
}

func num(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
