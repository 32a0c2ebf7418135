package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treatment-plan-assistant/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestRxNormClient_ResolveDrug(t *testing.T) {
	tests := []struct {
		name          string
		searchStatus  int
		searchBody    string
		propsStatus   int
		propsBody     string
		expectedData  *domain.RxNormData
		expectError   bool
		expectedCalls int32
	}{
		{
			name:          "resolved with properties",
			searchStatus:  http.StatusOK,
			searchBody:    `{"idGroup":{"name":"Metformin","rxnormId":["6809"]}}`,
			propsStatus:   http.StatusOK,
			propsBody:     `{"properties":{"rxcui":"6809","name":"metformin","synonym":"","tty":"IN"}}`,
			expectedData:  &domain.RxNormData{RxCUI: "6809", Name: "metformin", TTY: "IN"},
			expectedCalls: 2,
		},
		{
			name:          "properties failure falls back to input name",
			searchStatus:  http.StatusOK,
			searchBody:    `{"idGroup":{"rxnormId":["6809"]}}`,
			propsStatus:   http.StatusInternalServerError,
			expectedData:  &domain.RxNormData{RxCUI: "6809", Name: "Metformin"},
			expectedCalls: 2,
		},
		{
			name:          "no identifier found",
			searchStatus:  http.StatusOK,
			searchBody:    `{"idGroup":{"name":"Metformin"}}`,
			expectedData:  nil,
			expectedCalls: 1,
		},
		{
			name:          "upstream error",
			searchStatus:  http.StatusServiceUnavailable,
			expectError:   true,
			expectedCalls: 1,
		},
		{
			name:          "malformed body",
			searchStatus:  http.StatusOK,
			searchBody:    `<html>maintenance</html>`,
			expectError:   true,
			expectedCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				if r.URL.Path == "/rxcui.json" {
					assert.Equal(t, "Metformin", r.URL.Query().Get("name"))
					w.WriteHeader(tt.searchStatus)
					fmt.Fprint(w, tt.searchBody)
					return
				}
				assert.Equal(t, "/rxcui/6809/properties.json", r.URL.Path)
				w.WriteHeader(tt.propsStatus)
				fmt.Fprint(w, tt.propsBody)
			}))
			defer server.Close()

			client := NewRxNormClient(domain.UpstreamConfig{
				BaseURL:   server.URL,
				Timeout:   5 * time.Second,
				RateLimit: 100,
			}, testLogger())

			result, err := client.ResolveDrug(context.Background(), "Metformin")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedData, result)
			}
			assert.Equal(t, tt.expectedCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestRxNormClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"idGroup":{"rxnormId":["1"]}}`)
	}))
	defer server.Close()

	client := NewRxNormClient(domain.UpstreamConfig{
		BaseURL:   server.URL,
		Timeout:   20 * time.Millisecond,
		RateLimit: 100,
	}, testLogger())

	result, err := client.ResolveDrug(context.Background(), "Lisinopril")

	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestOpenFDAClient_FetchLabel(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectNil   bool
		expectError bool
		check       func(t *testing.T, label *domain.DrugLabel)
	}{
		{
			name:   "label found",
			status: http.StatusOK,
			body: `{"results":[{
				"contraindications":["Severe renal impairment (eGFR below 30 mL/min/1.73 m2)"],
				"boxed_warning":["Lactic acidosis"],
				"openfda":{"generic_name":["METFORMIN HYDROCHLORIDE"]}
			}]}`,
			check: func(t *testing.T, label *domain.DrugLabel) {
				assert.Equal(t, []string{"Lactic acidosis"}, label.BoxedWarning)
				assert.Len(t, label.Contraindications, 1)
				assert.NotNil(t, label.DrugInteractions)
				assert.Empty(t, label.DrugInteractions)
				assert.NotNil(t, label.Overdosage)
			},
		},
		{
			name:      "no results",
			status:    http.StatusOK,
			body:      `{"results":[]}`,
			expectNil: true,
		},
		{
			name:      "not found",
			status:    http.StatusNotFound,
			body:      `{"error":{"code":"NOT_FOUND","message":"No matches found!"}}`,
			expectNil: true,
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/drug/label.json", r.URL.Path)
				assert.Contains(t, r.URL.RawQuery, "openfda.generic_name:%22Metformin%22+openfda.brand_name:%22Metformin%22")
				assert.Equal(t, "1", r.URL.Query().Get("limit"))
				assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewOpenFDAClient(domain.UpstreamConfig{
				BaseURL:   server.URL,
				APIKey:    "test-key",
				Timeout:   5 * time.Second,
				RateLimit: 100,
			}, testLogger())

			label, err := client.FetchLabel(context.Background(), "Metformin")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, label)
				return
			}
			require.NoError(t, err)
			if tt.expectNil {
				assert.Nil(t, label)
				return
			}
			require.NotNil(t, label)
			tt.check(t, label)
		})
	}
}

type stubResolver struct {
	calls int32
	data  *domain.RxNormData
	err   error
}

func (s *stubResolver) ResolveDrug(_ context.Context, _ string) (*domain.RxNormData, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.data, s.err
}

type stubFetcher struct {
	calls int32
	label *domain.DrugLabel
	err   error
}

func (s *stubFetcher) FetchLabel(_ context.Context, _ string) (*domain.DrugLabel, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.label, s.err
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *mapCache) Close() error { return nil }

func TestResilientLookupClient_BreakerOpens(t *testing.T) {
	resolver := &stubResolver{err: errors.New("RxNorm API returned status 503")}
	client := NewResilientLookupClient(resolver, &stubFetcher{}, nil, DefaultCircuitBreakerConfig(), testLogger())

	for i := 0; i < 3; i++ {
		_, err := client.ResolveDrug(context.Background(), "Warfarin")
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&resolver.calls))
	assert.Equal(t, gobreaker.StateOpen.String(), client.BreakerStates()[ServiceRxNorm])

	data, err := client.ResolveDrug(context.Background(), "Warfarin")

	assert.Nil(t, data)
	var pe *domain.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.ErrUpstreamLookup, pe.Kind)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), atomic.LoadInt32(&resolver.calls), "open breaker must not call upstream")
	assert.Equal(t, gobreaker.StateClosed.String(), client.BreakerStates()[ServiceOpenFDA])
}

func TestResilientLookupClient_CachesAnswers(t *testing.T) {
	resolver := &stubResolver{data: &domain.RxNormData{RxCUI: "6809", Name: "metformin"}}
	fetcher := &stubFetcher{}
	client := NewResilientLookupClient(resolver, fetcher, newMapCache(), DefaultCircuitBreakerConfig(), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := client.ResolveDrug(ctx, "Metformin")
		require.NoError(t, err)
		assert.Equal(t, "6809", data.RxCUI)

		label, err := client.FetchLabel(ctx, "metformin ")
		require.NoError(t, err)
		assert.Nil(t, label)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&resolver.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls), "misses are cached too")
}

func TestResilientLookupClient_ErrorsAreNotCached(t *testing.T) {
	resolver := &stubResolver{err: errors.New("connection reset")}
	cache := newMapCache()
	client := NewResilientLookupClient(resolver, &stubFetcher{}, cache, DefaultCircuitBreakerConfig(), testLogger())

	_, err := client.ResolveDrug(context.Background(), "Aspirin")

	require.Error(t, err)
	assert.Empty(t, cache.entries)
}

func TestTieredCache_PromotesRemoteHits(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryCache(10, time.Minute)
	remote := newMapCache()
	require.NoError(t, remote.Set(ctx, "k", []byte("v"), 0))
	tiered := NewTieredCache(memory, remote)

	val, ok, err := tiered.Get(ctx, "k")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)
	assert.Equal(t, 1, memory.Len())

	require.NoError(t, tiered.Set(ctx, "k2", []byte("v2"), 0))
	_, ok, _ = remote.Get(ctx, "k2")
	assert.True(t, ok)
}

func TestNewLookupCache(t *testing.T) {
	cache, err := NewLookupCache(domain.CacheConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, cache)

	cache, err = NewLookupCache(domain.CacheConfig{Enabled: true, MemorySize: 5, DefaultTTL: time.Minute})
	require.NoError(t, err)
	_, isMemory := cache.(*MemoryCache)
	assert.True(t, isMemory)
}

func TestLookupKey(t *testing.T) {
	assert.Equal(t, lookupKey(ServiceRxNorm, "Metformin"), lookupKey(ServiceRxNorm, " metformin"))
	assert.NotEqual(t, lookupKey(ServiceRxNorm, "metformin"), lookupKey(ServiceOpenFDA, "metformin"))
	assert.True(t, strings.HasPrefix(lookupKey(ServiceOpenFDA, "x"), "openFDA:drug:"))
}

func TestCacheClient_Redis(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis cache test")
	}

	client, err := NewCacheClient(domain.CacheConfig{RedisURL: redisURL, DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	key := lookupKey(ServiceRxNorm, fmt.Sprintf("test-%d", time.Now().UnixNano()))

	_, ok, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, key, []byte(`{"data":null}`), 0))
	val, ok, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"data":null}`, string(val))
}
