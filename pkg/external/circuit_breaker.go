package external

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/treatment-plan-assistant/internal/domain"
)

// Upstream service names used for breakers, cache keys and log fields
const (
	ServiceRxNorm  = "RxNorm"
	ServiceOpenFDA = "openFDA"
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `json:"max_requests"`
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"`
	MinRequests  uint32        `json:"min_requests"`
	FailureRatio float64       `json:"failure_ratio"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

// DefaultCircuitBreakerConfig trips after three requests with at least 60%
// failures and probes again after a minute.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
		CacheTTL:     24 * time.Hour,
	}
}

// ResilientLookupClient wraps the reference lookup clients with circuit
// breakers and an optional read-through cache.
type ResilientLookupClient struct {
	resolver domain.IdentifierResolver
	fetcher  domain.LabelFetcher
	cache    LookupCache
	cacheTTL time.Duration
	logger   *logrus.Logger

	rxNormBreaker  *gobreaker.CircuitBreaker
	openFDABreaker *gobreaker.CircuitBreaker
}

// cachedLookup is the serialized cache entry. Data may be nil to remember a
// miss.
type cachedLookup[T any] struct {
	Data     *T        `json:"data"`
	CachedAt time.Time `json:"cached_at"`
}

// NewResilientLookupClient creates a resilient lookup client. cache may be nil.
func NewResilientLookupClient(
	resolver domain.IdentifierResolver,
	fetcher domain.LabelFetcher,
	cache LookupCache,
	config CircuitBreakerConfig,
	logger *logrus.Logger,
) *ResilientLookupClient {
	return &ResilientLookupClient{
		resolver:       resolver,
		fetcher:        fetcher,
		cache:          cache,
		cacheTTL:       config.CacheTTL,
		logger:         logger,
		rxNormBreaker:  newBreaker(ServiceRxNorm, config, logger),
		openFDABreaker: newBreaker(ServiceOpenFDA, config, logger),
	}
}

func newBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// ResolveDrug resolves name through the cache and the RxNorm breaker. Every
// failure comes back as an UpstreamLookupFailure.
func (r *ResilientLookupClient) ResolveDrug(ctx context.Context, name string) (*domain.RxNormData, error) {
	return lookup(ctx, r, r.rxNormBreaker, ServiceRxNorm, name, r.resolver.ResolveDrug)
}

// FetchLabel fetches the label for name through the cache and the openFDA
// breaker.
func (r *ResilientLookupClient) FetchLabel(ctx context.Context, name string) (*domain.DrugLabel, error) {
	return lookup(ctx, r, r.openFDABreaker, ServiceOpenFDA, name, r.fetcher.FetchLabel)
}

// BreakerStates reports the current state of each upstream breaker
func (r *ResilientLookupClient) BreakerStates() map[string]string {
	return map[string]string{
		ServiceRxNorm:  r.rxNormBreaker.State().String(),
		ServiceOpenFDA: r.openFDABreaker.State().String(),
	}
}

func lookup[T any](
	ctx context.Context,
	r *ResilientLookupClient,
	breaker *gobreaker.CircuitBreaker,
	service, name string,
	call func(context.Context, string) (*T, error),
) (*T, error) {
	key := lookupKey(service, name)
	if data, ok := cacheGet[T](ctx, r, key); ok {
		return data, nil
	}

	result, err := breaker.Execute(func() (interface{}, error) {
		return call(ctx, name)
	})
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"service": service,
			"drug":    name,
			"state":   breaker.State().String(),
			"error":   err,
		}).Warn("Reference lookup failed")
		return nil, domain.NewUpstreamLookupError(service, name, err)
	}

	data, _ := result.(*T)
	cacheSet(ctx, r, key, data)
	return data, nil
}

func cacheGet[T any](ctx context.Context, r *ResilientLookupClient, key string) (*T, bool) {
	if r.cache == nil {
		return nil, false
	}

	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"key": key, "error": err}).Debug("Lookup cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry cachedLookup[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	return entry.Data, true
}

func cacheSet[T any](ctx context.Context, r *ResilientLookupClient, key string, data *T) {
	if r.cache == nil {
		return
	}

	raw, err := json.Marshal(cachedLookup[T]{Data: data, CachedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.cacheTTL); err != nil {
		r.logger.WithFields(logrus.Fields{"key": key, "error": err}).Debug("Lookup cache write failed")
	}
}
