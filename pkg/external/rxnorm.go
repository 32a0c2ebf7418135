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

const defaultRxNormBaseURL = "https://rxnav.nlm.nih.gov/REST"

// RxNormClient resolves free-text drug names against the NLM RxNav REST API
type RxNormClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	logger     *logrus.Logger
}

// rxcuiResponse is the body of /rxcui.json?name=
type rxcuiResponse struct {
	IDGroup struct {
		Name     string   `json:"name"`
		RxNormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

// rxcuiPropertiesResponse is the body of /rxcui/{id}/properties.json
type rxcuiPropertiesResponse struct {
	Properties *struct {
		RxCUI   string `json:"rxcui"`
		Name    string `json:"name"`
		Synonym string `json:"synonym"`
		TTY     string `json:"tty"`
	} `json:"properties"`
}

// NewRxNormClient creates a new RxNorm API client
func NewRxNormClient(config domain.UpstreamConfig, logger *logrus.Logger) *RxNormClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultRxNormBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 20 // RxNav allows 20 requests per second per IP
	}

	return &RxNormClient{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:    logger,
	}
}

// ResolveDrug looks up the RxCUI for name and then its canonical properties.
// When the properties call fails the identifier is still returned, named
// after the input.
func (c *RxNormClient) ResolveDrug(ctx context.Context, name string) (*domain.RxNormData, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	var ids rxcuiResponse
	searchURL := fmt.Sprintf("%s/rxcui.json?%s", c.baseURL, url.Values{"name": {name}}.Encode())
	if err := c.getJSON(ctx, searchURL, &ids); err != nil {
		return nil, fmt.Errorf("failed to search RxNorm for %s: %w", name, err)
	}

	if len(ids.IDGroup.RxNormID) == 0 {
		c.logger.WithField("drug", name).Debug("No RxCUI found")
		return nil, nil
	}
	rxcui := ids.IDGroup.RxNormID[0]

	var props rxcuiPropertiesResponse
	propsURL := fmt.Sprintf("%s/rxcui/%s/properties.json", c.baseURL, url.PathEscape(rxcui))
	if err := c.getJSON(ctx, propsURL, &props); err != nil || props.Properties == nil {
		c.logger.WithFields(logrus.Fields{
			"drug":  name,
			"rxcui": rxcui,
			"error": err,
		}).Warn("RxNorm properties lookup failed, using input name")
		return &domain.RxNormData{RxCUI: rxcui, Name: name}, nil
	}

	data := &domain.RxNormData{
		RxCUI:   rxcui,
		Name:    props.Properties.Name,
		Synonym: props.Properties.Synonym,
		TTY:     props.Properties.TTY,
	}
	if data.Name == "" {
		data.Name = name
	}
	return data, nil
}

func (c *RxNormClient) getJSON(ctx context.Context, fullURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("RxNorm API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
