package service

import (
	"strings"

	"github.com/treatment-plan-assistant/internal/domain"
)

const (
	labelContextHeader = "=== FDA DRUG LABEL DATA FOR CURRENT MEDICATIONS ===\n\n"
	warningMarker      = "⚠️  "
)

var medicationSeparator = strings.Repeat("=", 80)

// labelSection is one rendered block of a drug label. Sections are listed in
// safety priority order: the most decision-relevant text comes first.
type labelSection struct {
	header  string
	entries func(*domain.DrugLabel) []string
}

var labelSections = []labelSection{
	{warningMarker + "BLACK BOX WARNING", func(l *domain.DrugLabel) []string { return l.BoxedWarning }},
	{"CONTRAINDICATIONS", func(l *domain.DrugLabel) []string { return l.Contraindications }},
	{"DRUG INTERACTIONS", func(l *domain.DrugLabel) []string { return l.DrugInteractions }},
	{"WARNINGS", func(l *domain.DrugLabel) []string { return l.Warnings }},
	{"DOSAGE AND ADMINISTRATION", func(l *domain.DrugLabel) []string { return l.DosageAndAdministration }},
	{"PREGNANCY", func(l *domain.DrugLabel) []string { return l.Pregnancy }},
	{"PEDIATRIC USE", func(l *domain.DrugLabel) []string { return l.PediatricUse }},
	{"GERIATRIC USE", func(l *domain.DrugLabel) []string { return l.GeriatricUse }},
}

// BuildLabelContextSummary renders the enrichment results as the reference
// block shown to the model, one section per medication in input order.
func BuildLabelContextSummary(meds []domain.MedicationEnrichment) string {
	if len(meds) == 0 {
		return NoMedicationsSummary
	}

	var b strings.Builder
	b.WriteString(labelContextHeader)

	for i := range meds {
		writeMedicationSection(&b, &meds[i])
	}

	return b.String()
}

func writeMedicationSection(b *strings.Builder, med *domain.MedicationEnrichment) {
	in := med.Medication
	b.WriteString("MEDICATION: " + in.Name + "\n")
	b.WriteString("Current Dosage: " + in.Dosage + ", " + in.Frequency + "\n")
	if in.Duration != "" {
		b.WriteString("Duration: " + in.Duration + "\n")
	}
	if med.RxNorm != nil {
		b.WriteString("RxNorm Name: " + med.RxNorm.Name + "\n")
		b.WriteString("RxCUI: " + med.RxNorm.RxCUI + "\n")
	}
	b.WriteString("\n")

	switch {
	case med.HasLabel():
		for _, section := range labelSections {
			entries := section.entries(med.Label)
			if len(entries) == 0 {
				continue
			}
			b.WriteString(section.header + ":\n")
			for _, entry := range entries {
				b.WriteString(entry + "\n")
			}
			b.WriteString("\n")
		}
	case len(med.Errors) > 0:
		b.WriteString(warningMarker + "Could not retrieve FDA data for this medication.\n")
		b.WriteString("Errors: " + strings.Join(med.Errors, ", ") + "\n\n")
	default:
		b.WriteString(warningMarker + "No FDA label data available for this medication.\n\n")
	}

	b.WriteString(medicationSeparator + "\n\n")
}
