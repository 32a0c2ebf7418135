package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/domain"
)

// NoMedicationsSummary is the context summary used when the patient reports
// no current medications.
const NoMedicationsSummary = "Patient is not currently taking any medications."

// EnrichmentService augments every current medication with RxNorm and
// openFDA reference data.
type EnrichmentService struct {
	resolver    domain.IdentifierResolver
	fetcher     domain.LabelFetcher
	concurrency int
	logger      *logrus.Logger
}

// NewEnrichmentService creates a new enrichment service. A concurrency below
// two enriches medications one at a time.
func NewEnrichmentService(
	resolver domain.IdentifierResolver,
	fetcher domain.LabelFetcher,
	concurrency int,
	logger *logrus.Logger,
) *EnrichmentService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &EnrichmentService{
		resolver:    resolver,
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Enrich looks up every medication of the record and renders the label
// context summary. It never fails: lookup problems are recorded on the
// affected medication and the pass continues.
func (s *EnrichmentService) Enrich(ctx context.Context, record *domain.PatientIntakeRecord) *domain.EnrichedContext {
	meds := record.CurrentMedications
	if len(meds) == 0 {
		return &domain.EnrichedContext{
			Record:      record,
			Medications: []domain.MedicationEnrichment{},
			Summary:     NoMedicationsSummary,
		}
	}

	start := time.Now()
	results := make([]domain.MedicationEnrichment, len(meds))

	if s.concurrency == 1 || len(meds) == 1 {
		for i, med := range meds {
			results[i] = s.enrichOne(ctx, med)
		}
	} else {
		// Each worker writes only its own slot, so input order is kept
		// regardless of completion order.
		sem := make(chan struct{}, s.concurrency)
		var wg sync.WaitGroup
		for i, med := range meds {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, med domain.CurrentMedication) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = s.enrichOne(ctx, med)
			}(i, med)
		}
		wg.Wait()
	}

	enriched := &domain.EnrichedContext{
		Record:      record,
		Medications: results,
	}
	enriched.Summary = BuildLabelContextSummary(results)

	s.logger.WithFields(logrus.Fields{
		"medications": len(results),
		"enriched":    enriched.EnrichedCount(),
		"duration":    time.Since(start),
	}).Info("Medication enrichment completed")

	return enriched
}

func (s *EnrichmentService) enrichOne(ctx context.Context, med domain.CurrentMedication) domain.MedicationEnrichment {
	entry := domain.MedicationEnrichment{
		Medication: med,
		Errors:     []string{},
	}

	rx, err := s.safeResolve(ctx, med.Name)
	if err != nil {
		entry.Errors = append(entry.Errors, fmt.Sprintf("RxNorm: %v", err))
		s.logLookupFailure("rxnorm", med.Name, err)
	}
	entry.RxNorm = rx

	label, err := s.safeFetch(ctx, med.Name)
	if err != nil {
		entry.Errors = append(entry.Errors, fmt.Sprintf("FDA: %v", err))
		s.logLookupFailure("openfda", med.Name, err)
	}
	if label != nil {
		label.Normalize()
	}
	entry.Label = label

	return entry
}

func (s *EnrichmentService) safeResolve(ctx context.Context, name string) (rx *domain.RxNormData, err error) {
	if s.resolver == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			rx, err = nil, fmt.Errorf("panic during lookup: %v", r)
		}
	}()
	return s.resolver.ResolveDrug(ctx, name)
}

func (s *EnrichmentService) safeFetch(ctx context.Context, name string) (label *domain.DrugLabel, err error) {
	if s.fetcher == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			label, err = nil, fmt.Errorf("panic during lookup: %v", r)
		}
	}()
	return s.fetcher.FetchLabel(ctx, name)
}

func (s *EnrichmentService) logLookupFailure(service, drug string, err error) {
	s.logger.WithFields(logrus.Fields{
		"service": service,
		"drug":    drug,
	}).WithError(err).Warn("Reference lookup failed, continuing without data")
}
