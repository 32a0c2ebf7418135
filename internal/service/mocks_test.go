package service

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/treatment-plan-assistant/internal/domain"
)

// MockResolver is a mock implementation of domain.IdentifierResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ResolveDrug(ctx context.Context, name string) (*domain.RxNormData, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RxNormData), args.Error(1)
}

// MockFetcher is a mock implementation of domain.LabelFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchLabel(ctx context.Context, name string) (*domain.DrugLabel, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DrugLabel), args.Error(1)
}

// MockStore is a mock implementation of domain.AnalysisStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, record *domain.AnalysisRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockStore) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisRecord), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, filter domain.AnalysisFilter) ([]*domain.AnalysisRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AnalysisRecord), args.Error(1)
}

func (m *MockStore) UpdateStatus(ctx context.Context, id string, status domain.ReviewStatus) (*domain.AnalysisRecord, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisRecord), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

// fakeModel returns a canned reply and records every request it sees.
type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []domain.ChatRequest
}

func (f *fakeModel) Complete(_ context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeModel) Provider() string { return "openrouter" }

func (f *fakeModel) Model() string { return "openai/gpt-4o" }

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func float(v float64) *float64 {
	return &v
}

func intakeWithMeds(meds ...domain.CurrentMedication) *domain.PatientIntakeRecord {
	if meds == nil {
		meds = []domain.CurrentMedication{}
	}
	return &domain.PatientIntakeRecord{
		PatientName:        "Maria Gonzalez",
		MedicalConditions:  []domain.MedicalCondition{{Name: "Type 2 Diabetes", Severity: domain.SeverityModerate}},
		Allergies:          []domain.Allergy{},
		CurrentMedications: meds,
		HealthMetrics: &domain.HealthMetrics{
			Age:        float(54),
			Weight:     float(82.5),
			WeightUnit: domain.WeightKg,
		},
		LifestyleFactors: &domain.LifestyleFactors{
			SmokingStatus:      domain.SmokingFormer,
			AlcoholConsumption: domain.AlcoholOccasional,
			ExerciseFrequency:  domain.ExerciseLight,
		},
		PrimaryComplaint: &domain.PrimaryComplaint{
			Complaint:    "Persistent lower back pain",
			Severity:     domain.SeverityModerate,
			Duration:     "3 weeks",
			ImpactOnLife: domain.ImpactSignificant,
		},
	}
}
