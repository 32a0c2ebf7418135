package domain

import (
	"context"
)

// IdentifierResolver maps a free-text drug name to an RxNorm concept. A nil
// result with a nil error means no concept was found. A non-nil error is an
// upstream lookup failure: callers degrade to absent data and never
// escalate it.
type IdentifierResolver interface {
	ResolveDrug(ctx context.Context, name string) (*RxNormData, error)
}

// LabelFetcher fetches the structured openFDA label for a drug name under
// the same contract as IdentifierResolver.
type LabelFetcher interface {
	FetchLabel(ctx context.Context, name string) (*DrugLabel, error)
}

// ChatRequest is one chat-style completion call
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	JSONMode    bool
}

// ChatModel sends a completion request and returns the raw reply text
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Provider() string
	Model() string
}

// AnalysisStore is the persistence boundary for analysis runs
type AnalysisStore interface {
	Create(ctx context.Context, record *AnalysisRecord) error
	Get(ctx context.Context, id string) (*AnalysisRecord, error)
	List(ctx context.Context, filter AnalysisFilter) ([]*AnalysisRecord, error)
	UpdateStatus(ctx context.Context, id string, status ReviewStatus) (*AnalysisRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetLookupConfig() *LookupConfig
	GetLLMConfig() *LLMConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
