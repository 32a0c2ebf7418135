package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/treatment-plan-assistant/internal/domain"
)

const defaultOpenFDABaseURL = "https://api.fda.gov"

// OpenFDAClient fetches structured drug labels from the openFDA label endpoint
type OpenFDAClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	logger     *logrus.Logger
}

type labelResponse struct {
	Results []domain.DrugLabel `json:"results"`
}

// NewOpenFDAClient creates a new openFDA API client
func NewOpenFDAClient(config domain.UpstreamConfig, logger *logrus.Logger) *OpenFDAClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultOpenFDABaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4 // 240 requests per minute without a key
	}

	return &OpenFDAClient{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:    logger,
	}
}

// FetchLabel searches labels by generic or brand name and returns the first
// match. openFDA answers 404 when nothing matches, which is a miss, not a
// failure.
func (c *OpenFDAClient) FetchLabel(ctx context.Context, name string) (*domain.DrugLabel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(name), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create label request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openFDA request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		c.logger.WithField("drug", name).Debug("No FDA label found")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("openFDA API returned status %d", resp.StatusCode)
	}

	var body labelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode openFDA response: %w", err)
	}

	if len(body.Results) == 0 {
		return nil, nil
	}

	label := body.Results[0]
	label.Normalize()
	return &label, nil
}

// searchURL builds the query by hand: openFDA expects a literal '+' between
// clauses, which url.Values would encode as %2B.
func (c *OpenFDAClient) searchURL(name string) string {
	quoted := url.QueryEscape(`"` + name + `"`)
	search := "openfda.generic_name:" + quoted + "+openfda.brand_name:" + quoted

	full := fmt.Sprintf("%s/drug/label.json?search=%s&limit=1", c.baseURL, search)
	if c.apiKey != "" {
		full += "&api_key=" + url.QueryEscape(c.apiKey)
	}
	return full
}
