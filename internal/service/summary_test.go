package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treatment-plan-assistant/internal/domain"
)

func TestBuildLabelContextSummary_SectionOrder(t *testing.T) {
	label := &domain.DrugLabel{
		GeriatricUse:            []string{"Use caution in the elderly"},
		DrugInteractions:        []string{"NSAIDs may increase bleeding"},
		Pregnancy:               []string{"Contraindicated in pregnancy"},
		BoxedWarning:            []string{"May cause major or fatal bleeding"},
		Warnings:                []string{"Tissue necrosis"},
		Contraindications:       []string{"Active bleeding"},
		DosageAndAdministration: []string{"2 to 5 mg daily"},
		PediatricUse:            []string{"Not established"},
		AdverseReactions:        []string{"Not rendered"},
	}
	summary := BuildLabelContextSummary([]domain.MedicationEnrichment{{
		Medication: domain.CurrentMedication{Name: "Warfarin", Dosage: "5mg", Frequency: "daily", Duration: "2 years"},
		Label:      label,
		Errors:     []string{},
	}})

	headers := []string{
		"BLACK BOX WARNING:", "CONTRAINDICATIONS:", "DRUG INTERACTIONS:", "WARNINGS:",
		"DOSAGE AND ADMINISTRATION:", "PREGNANCY:", "PEDIATRIC USE:", "GERIATRIC USE:",
	}
	last := -1
	for _, h := range headers {
		idx := strings.Index(summary, h)
		assert.Greater(t, idx, last, "%s out of order", h)
		last = idx
	}
	assert.Less(t, strings.Index(summary, "May cause major or fatal bleeding"), strings.Index(summary, "NSAIDs may increase bleeding"))
	assert.NotContains(t, summary, "Not rendered")
	assert.Contains(t, summary, "Duration: 2 years\n")
}

func TestBuildLabelContextSummary_ExactLayout(t *testing.T) {
	summary := BuildLabelContextSummary([]domain.MedicationEnrichment{
		{
			Medication: domain.CurrentMedication{Name: "Metformin", Dosage: "500mg", Frequency: "twice daily"},
			RxNorm:     &domain.RxNormData{RxCUI: "6809", Name: "metformin"},
			Label:      &domain.DrugLabel{Contraindications: []string{"Severe renal impairment"}},
		},
		{
			Medication: domain.CurrentMedication{Name: "Herbal tea", Dosage: "1 cup", Frequency: "daily"},
			Errors:     []string{"RxNorm: timeout", "FDA: timeout"},
		},
	})

	sep := strings.Repeat("=", 80)
	expected := "=== FDA DRUG LABEL DATA FOR CURRENT MEDICATIONS ===\n\n" +
		"MEDICATION: Metformin\n" +
		"Current Dosage: 500mg, twice daily\n" +
		"RxNorm Name: metformin\n" +
		"RxCUI: 6809\n" +
		"\n" +
		"CONTRAINDICATIONS:\n" +
		"Severe renal impairment\n" +
		"\n" +
		sep + "\n\n" +
		"MEDICATION: Herbal tea\n" +
		"Current Dosage: 1 cup, daily\n" +
		"\n" +
		"⚠️  Could not retrieve FDA data for this medication.\n" +
		"Errors: RxNorm: timeout, FDA: timeout\n\n" +
		sep + "\n\n"
	assert.Equal(t, expected, summary)
}

func TestBuildLabelContextSummary_Empty(t *testing.T) {
	assert.Equal(t, NoMedicationsSummary, BuildLabelContextSummary(nil))
}
