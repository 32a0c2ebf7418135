package domain

// RxNormData is the normalized identifier for a free-text drug name.
type RxNormData struct {
	RxCUI   string `json:"rxcui"`
	Name    string `json:"name"`
	Synonym string `json:"synonym,omitempty"`
	TTY     string `json:"tty,omitempty"`
}

// DrugLabel is the structured label bundle from openFDA. Every list is
// non-nil once a label has been found; a missing section is an empty list.
type DrugLabel struct {
	BoxedWarning            []string `json:"boxed_warning"`
	Contraindications       []string `json:"contraindications"`
	DrugInteractions        []string `json:"drug_interactions"`
	Warnings                []string `json:"warnings"`
	WarningsAndCautions     []string `json:"warnings_and_cautions"`
	DosageAndAdministration []string `json:"dosage_and_administration"`
	Pregnancy               []string `json:"pregnancy"`
	NursingMothers          []string `json:"nursing_mothers"`
	PediatricUse            []string `json:"pediatric_use"`
	GeriatricUse            []string `json:"geriatric_use"`
	AdverseReactions        []string `json:"adverse_reactions"`
	Overdosage              []string `json:"overdosage"`
}

// Normalize replaces nil sections with empty lists.
func (l *DrugLabel) Normalize() {
	for _, s := range []*[]string{
		&l.BoxedWarning, &l.Contraindications, &l.DrugInteractions, &l.Warnings,
		&l.WarningsAndCautions, &l.DosageAndAdministration, &l.Pregnancy,
		&l.NursingMothers, &l.PediatricUse, &l.GeriatricUse,
		&l.AdverseReactions, &l.Overdosage,
	} {
		if *s == nil {
			*s = []string{}
		}
	}
}

// MedicationEnrichment is the per-medication lookup result. Lookup failures
// are recorded in Errors; the entry itself always exists.
type MedicationEnrichment struct {
	Medication CurrentMedication `json:"medication"`
	RxNorm     *RxNormData       `json:"rxnorm,omitempty"`
	Label      *DrugLabel        `json:"label,omitempty"`
	Errors     []string          `json:"errors"`
}

// HasLabel reports whether a label was found for the medication.
func (m *MedicationEnrichment) HasLabel() bool {
	return m.Label != nil
}

// EnrichedContext aggregates the intake record, one enrichment per current
// medication in input order, and the rendered summary.
type EnrichedContext struct {
	Record      *PatientIntakeRecord   `json:"-"`
	Medications []MedicationEnrichment `json:"medications"`
	Summary     string                 `json:"summary"`
}

// EnrichedCount is the number of medications that received any reference
// data. It is not the enrichedMedicationsCount metadata, which counts entries.
func (e *EnrichedContext) EnrichedCount() int {
	n := 0
	for _, m := range e.Medications {
		if m.RxNorm != nil || m.HasLabel() {
			n++
		}
	}
	return n
}
