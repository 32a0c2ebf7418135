package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/treatment-plan-assistant/internal/domain"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.3
	maxErrorBodyBytes  = 2048
)

// Client is an OpenAI-compatible chat-completion client. Every supported
// provider speaks the same wire format behind a different base URL.
type Client struct {
	provider    Provider
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	headers     map[string]string
	httpClient  *http.Client
	logger      *logrus.Logger
	metrics     *clientMetrics
}

// NewClient creates a chat client for the configured provider.
func NewClient(cfg domain.LLMConfig, logger *logrus.Logger) (*Client, error) {
	provider := Provider(strings.ToLower(strings.TrimSpace(cfg.Provider)))
	if provider == "" {
		provider = ProviderOpenRouter
	}
	preset, ok := presets[provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" && preset.requiresKey {
		return nil, fmt.Errorf("no API key configured for provider %q", provider)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = preset.baseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = string(provider)
	}

	return &Client{
		provider:    provider,
		apiKey:      apiKey,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		headers:     preset.headers(cfg),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		metrics:     newClientMetrics(),
	}, nil
}

// Provider returns the configured provider name
func (c *Client) Provider() string {
	return string(c.provider)
}

// Model returns the configured model identifier
func (c *Client) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one chat completion and returns the reply text. Failures are
// reported as ModelUnavailable with an authentication, timeout or
// unavailable reason.
func (c *Client) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}
	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: temperature,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", domain.NewModelUnavailableError(domain.ReasonUnavailable, "failed to encode model request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.NewModelUnavailableError(domain.ReasonUnavailable, "failed to build model request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.WithFields(logrus.Fields{
		"provider":      c.provider,
		"model":         c.model,
		"prompt_length": len(req.User),
	}).Debug("Sending chat completion request")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.record(ctx, c.provider, c.model, 0, time.Since(start), err)
		return "", c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		c.metrics.record(ctx, c.provider, c.model, resp.StatusCode, time.Since(start), statusErr)
		c.logger.WithFields(logrus.Fields{
			"provider": c.provider,
			"status":   resp.StatusCode,
		}).Warn("Model provider returned an error status")

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", domain.NewModelUnavailableError(domain.ReasonAuthentication,
				fmt.Sprintf("%s rejected the configured credentials", c.provider), statusErr)
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			return "", domain.NewModelUnavailableError(domain.ReasonTimeout,
				fmt.Sprintf("%s timed out", c.provider), statusErr)
		default:
			return "", domain.NewModelUnavailableError(domain.ReasonUnavailable,
				fmt.Sprintf("%s request failed", c.provider), statusErr)
		}
	}

	var envelope chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.metrics.record(ctx, c.provider, c.model, resp.StatusCode, time.Since(start), err)
		if isTimeout(err) {
			return "", domain.NewModelUnavailableError(domain.ReasonTimeout, "timed out reading model response", err)
		}
		return "", domain.NewModelUnavailableError(domain.ReasonUnavailable, "failed to decode model response", err)
	}

	var text string
	if len(envelope.Choices) > 0 {
		text = envelope.Choices[0].Message.Content
	}
	if strings.TrimSpace(text) == "" {
		err := errors.New("no response content")
		c.metrics.record(ctx, c.provider, c.model, resp.StatusCode, time.Since(start), err)
		return "", domain.NewModelUnavailableError(domain.ReasonUnavailable, "model returned an empty response", err)
	}

	c.metrics.record(ctx, c.provider, c.model, resp.StatusCode, time.Since(start), nil)
	c.logger.WithFields(logrus.Fields{
		"provider":        c.provider,
		"response_length": len(text),
		"duration":        time.Since(start),
	}).Debug("Chat completion received")

	return text, nil
}

func (c *Client) transportError(err error) error {
	if isTimeout(err) {
		return domain.NewModelUnavailableError(domain.ReasonTimeout,
			fmt.Sprintf("%s did not respond in time", c.provider), err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewModelUnavailableError(domain.ReasonUnavailable, "model request cancelled", err)
	}
	return domain.NewModelUnavailableError(domain.ReasonUnavailable,
		fmt.Sprintf("%s is unreachable", c.provider), err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type clientMetrics struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

func newClientMetrics() *clientMetrics {
	meter := otel.Meter("github.com/treatment-plan-assistant/internal/llm")

	requests, err := meter.Int64Counter(
		"tpa.llm.request.count",
		metric.WithDescription("Number of chat completion requests"),
	)
	if err != nil {
		return nil
	}
	failures, err := meter.Int64Counter(
		"tpa.llm.request.errors",
		metric.WithDescription("Number of failed chat completion requests"),
	)
	if err != nil {
		return nil
	}
	duration, err := meter.Float64Histogram(
		"tpa.llm.request.duration",
		metric.WithDescription("Chat completion duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil
	}
	return &clientMetrics{requests: requests, errors: failures, duration: duration}
}

func (m *clientMetrics) record(ctx context.Context, provider Provider, model string, statusCode int, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
