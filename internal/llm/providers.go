package llm

import (
	"github.com/treatment-plan-assistant/internal/domain"
)

// Provider names a chat-completion backend.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOllama     Provider = "ollama"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

const defaultAppName = "Treatment Plan Assistant"

type preset struct {
	baseURL     string
	requiresKey bool
	headers     func(domain.LLMConfig) map[string]string
}

func noHeaders(domain.LLMConfig) map[string]string { return nil }

var presets = map[Provider]preset{
	ProviderOpenRouter: {
		baseURL:     "https://openrouter.ai/api/v1",
		requiresKey: true,
		headers: func(cfg domain.LLMConfig) map[string]string {
			siteURL := cfg.SiteURL
			if siteURL == "" {
				siteURL = "http://localhost:3000"
			}
			appName := cfg.AppName
			if appName == "" {
				appName = defaultAppName
			}
			return map[string]string{
				"HTTP-Referer": siteURL,
				"X-Title":      appName,
			}
		},
	},
	ProviderOpenAI: {
		baseURL:     "https://api.openai.com/v1",
		requiresKey: true,
		headers:     noHeaders,
	},
	// Anthropic is reached through its OpenAI-compatible endpoint.
	ProviderAnthropic: {
		baseURL:     "https://api.anthropic.com/v1",
		requiresKey: true,
		headers:     noHeaders,
	},
	ProviderOllama: {
		baseURL:     "http://localhost:11434/v1",
		requiresKey: false,
		headers:     noHeaders,
	},
}

// Providers lists the supported provider names.
func Providers() []Provider {
	return []Provider{ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderOllama}
}

// RequiresAPIKey reports whether the named provider needs a credential.
func RequiresAPIKey(name string) bool {
	p, ok := presets[Provider(name)]
	return !ok || p.requiresKey
}
