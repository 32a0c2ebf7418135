package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/validation"
)

const instrumentationName = "github.com/treatment-plan-assistant/internal/service"

// PipelineState names a step of one analysis request.
type PipelineState string

// Pipeline states. Done and Failed are terminal.
const (
	StateReceived        PipelineState = "received"
	StateValidated       PipelineState = "validated"
	StateEnriching       PipelineState = "enriching"
	StateComposed        PipelineState = "composed"
	StateAwaitingModel   PipelineState = "awaiting_model"
	StateParsed          PipelineState = "parsed"
	StateMalformedOutput PipelineState = "malformed_output"
	StateSchemaOk        PipelineState = "schema_ok"
	StateSchemaMismatch  PipelineState = "schema_mismatch"
	StateDone            PipelineState = "done"
	StateFailed          PipelineState = "failed"
)

// AnalyzerService runs one intake record through validation, enrichment,
// the model call and response validation, then persists the run.
type AnalyzerService struct {
	validator  *validation.Validator
	enrichment *EnrichmentService
	model      domain.ChatModel
	store      domain.AnalysisStore
	logger     *logrus.Logger
	tracer     trace.Tracer
	runs       metric.Int64Counter
	now        func() time.Time
}

// NewAnalyzerService creates a new analyzer. A nil store runs the pipeline
// without persisting the result.
func NewAnalyzerService(
	validator *validation.Validator,
	enrichment *EnrichmentService,
	model domain.ChatModel,
	store domain.AnalysisStore,
	logger *logrus.Logger,
) *AnalyzerService {
	runs, err := otel.Meter(instrumentationName).Int64Counter(
		"tpa.analysis.runs",
		metric.WithDescription("Analysis requests by terminal state and error kind"),
	)
	if err != nil {
		logger.WithError(err).Warn("Failed to create analysis run counter")
	}
	return &AnalyzerService{
		validator:  validator,
		enrichment: enrichment,
		model:      model,
		store:      store,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		runs:       runs,
		now:        time.Now,
	}
}

// Analyze validates the raw intake payload and runs the full pipeline.
func (a *AnalyzerService) Analyze(ctx context.Context, payload []byte, requestID string) (*domain.AnalysisOutcome, error) {
	ctx, span := a.tracer.Start(ctx, "analysis.run", trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()

	run := a.logger.WithField("request_id", requestID)
	a.transition(run, StateReceived)

	record, err := a.validator.ParseIntake(payload)
	if err != nil {
		return nil, a.fail(ctx, span, run, err)
	}
	a.transition(run, StateValidated)

	outcome, err := a.analyzeRecord(ctx, run, record, requestID)
	if err != nil {
		return nil, a.fail(ctx, span, run, err)
	}

	span.SetAttributes(
		attribute.String("analysis.id", outcome.AnalysisID),
		attribute.String("analysis.risk_score", string(outcome.Result.RiskScore)),
	)
	a.count(ctx, StateDone, "")
	a.transition(run, StateDone)
	return outcome, nil
}

func (a *AnalyzerService) analyzeRecord(
	ctx context.Context,
	run *logrus.Entry,
	record *domain.PatientIntakeRecord,
	requestID string,
) (*domain.AnalysisOutcome, error) {
	a.transition(run, StateEnriching)
	enrichCtx, enrichSpan := a.tracer.Start(ctx, "analysis.enrich",
		trace.WithAttributes(attribute.Int("medications.count", len(record.CurrentMedications))))
	enriched := a.enrichment.Enrich(enrichCtx, record)
	enrichSpan.SetAttributes(attribute.Int("medications.enriched", enriched.EnrichedCount()))
	enrichSpan.End()

	userPrompt := ComposeUserPrompt(record, enriched)
	a.transition(run, StateComposed)

	a.transition(run, StateAwaitingModel)
	raw, err := a.callModel(ctx, userPrompt)
	if err != nil {
		return nil, err
	}

	result, err := a.validator.ParseTreatmentResult(raw)
	if err != nil {
		if errors.Is(err, &domain.PipelineError{Kind: domain.ErrMalformedModelOutput}) {
			a.transition(run, StateMalformedOutput)
		} else {
			a.transition(run, StateParsed)
			a.transition(run, StateSchemaMismatch)
		}
		return nil, err
	}
	a.transition(run, StateParsed)
	a.transition(run, StateSchemaOk)

	metadata := domain.AnalysisMetadata{
		Provider:                 a.model.Provider(),
		Model:                    a.model.Model(),
		EnrichedMedicationsCount: len(enriched.Medications),
		MedicationsWithData:      enriched.EnrichedCount(),
		Timestamp:                a.now().UTC(),
		RequestID:                requestID,
	}

	id, err := a.persist(ctx, record, result, metadata)
	if err != nil {
		return nil, err
	}

	run.WithFields(logrus.Fields{
		"analysis_id":   id,
		"risk_score":    result.RiskScore,
		"safety_flags":  len(result.SafetyFlags),
		"critical":      len(result.CriticalFlags()),
		"enriched_meds": metadata.EnrichedMedicationsCount,
	}).Info("Treatment analysis completed")

	return &domain.AnalysisOutcome{
		AnalysisID: id,
		Result:     result,
		Metadata:   metadata,
	}, nil
}

func (a *AnalyzerService) callModel(ctx context.Context, userPrompt string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "analysis.model",
		trace.WithAttributes(
			attribute.String("llm.provider", a.model.Provider()),
			attribute.String("llm.model", a.model.Model()),
		))
	defer span.End()

	raw, err := a.model.Complete(ctx, domain.ChatRequest{
		System:      SystemPrompt,
		User:        userPrompt,
		Temperature: ModelTemperature,
		JSONMode:    true,
	})
	if err != nil {
		var pe *domain.PipelineError
		if !errors.As(err, &pe) {
			err = domain.NewModelUnavailableError(domain.ReasonUnavailable, "model request failed", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return "", err
	}
	return raw, nil
}

func (a *AnalyzerService) persist(
	ctx context.Context,
	record *domain.PatientIntakeRecord,
	result *domain.TreatmentAnalysisResult,
	metadata domain.AnalysisMetadata,
) (string, error) {
	if a.store == nil {
		return "", nil
	}
	ctx, span := a.tracer.Start(ctx, "analysis.persist")
	defer span.End()

	analysis, err := newAnalysisRecord(record, result, metadata)
	if err != nil {
		return "", domain.NewPersistenceError(err)
	}
	if err := a.store.Create(ctx, analysis); err != nil {
		span.RecordError(err)
		var pe *domain.PipelineError
		if errors.As(err, &pe) {
			return "", err
		}
		return "", domain.NewPersistenceError(err)
	}
	return analysis.ID, nil
}

func newAnalysisRecord(
	record *domain.PatientIntakeRecord,
	result *domain.TreatmentAnalysisResult,
	metadata domain.AnalysisMetadata,
) (*domain.AnalysisRecord, error) {
	plan, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode treatment plan: %w", err)
	}
	patient, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patient data: %w", err)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return &domain.AnalysisRecord{
		ID:               uuid.NewString(),
		PatientName:      record.PatientName,
		PrimaryComplaint: record.ComplaintText(),
		RiskScore:        result.RiskScore,
		Status:           domain.StatusPending,
		TreatmentPlan:    plan,
		PatientData:      patient,
		Metadata:         meta,
		CreatedAt:        metadata.Timestamp,
		UpdatedAt:        metadata.Timestamp,
	}, nil
}

func (a *AnalyzerService) transition(run *logrus.Entry, state PipelineState) {
	run.WithField("state", state).Debug("Analysis state transition")
}

func (a *AnalyzerService) fail(ctx context.Context, span trace.Span, run *logrus.Entry, err error) error {
	kind := domain.KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	a.count(ctx, StateFailed, kind)

	entry := run.WithField("kind", kind).WithError(err)
	if kind == domain.ErrInvalidInput {
		entry.Info("Analysis request rejected")
	} else {
		entry.Error("Analysis request failed")
	}
	a.transition(run, StateFailed)
	return err
}

func (a *AnalyzerService) count(ctx context.Context, state PipelineState, kind domain.ErrorKind) {
	if a.runs == nil {
		return
	}
	a.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(state)),
		attribute.String("error.kind", string(kind)),
	))
}
