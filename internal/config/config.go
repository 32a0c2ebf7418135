package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/llm"
)

// EnvPrefix is prepended to every environment override, e.g. TPA_SERVER_PORT.
const EnvPrefix = "TPA"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. An empty configFile
// searches the default locations; a missing file is not an error.
func NewManager(configFile string) (*Manager, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/treatment-plan-assistant/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return err
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.LLM.Provider = strings.ToLower(strings.TrimSpace(config.LLM.Provider))
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv(strings.ToUpper(config.LLM.Provider) + "_API_KEY")
	}
	// OLLAMA_BASE_URL applies to the ollama provider only.
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	m.v = v
	m.config = config
	return nil
}

// bindLegacyEnv accepts the un-prefixed variable names used by earlier
// deployments. The prefixed name always wins.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.provider":           {"TPA_LLM_PROVIDER", "PROVIDER"},
		"llm.api_key":            {"TPA_LLM_API_KEY", "PROVIDER_API_KEY"},
		"llm.model":              {"TPA_LLM_MODEL", "PROVIDER_MODEL"},
		"llm.temperature":        {"TPA_LLM_TEMPERATURE", "PROVIDER_TEMPERATURE"},
		"llm.site_url":           {"TPA_LLM_SITE_URL", "NEXT_PUBLIC_APP_URL"},
		"lookup.openfda.api_key": {"TPA_LOOKUP_OPENFDA_API_KEY", "OPENFDA_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "110s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/analyses.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "treatment_plans")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "30m")

	// Reference lookup defaults
	v.SetDefault("lookup.rxnorm.base_url", "https://rxnav.nlm.nih.gov/REST")
	v.SetDefault("lookup.rxnorm.api_key", "")
	v.SetDefault("lookup.rxnorm.timeout", "10s")
	v.SetDefault("lookup.rxnorm.rate_limit", 20)
	v.SetDefault("lookup.openfda.base_url", "https://api.fda.gov")
	v.SetDefault("lookup.openfda.api_key", "")
	v.SetDefault("lookup.openfda.timeout", "10s")
	v.SetDefault("lookup.openfda.rate_limit", 4)
	v.SetDefault("lookup.concurrency", 1)

	// LLM defaults
	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("llm.site_url", "http://localhost:3000")
	v.SetDefault("llm.app_name", "Treatment Plan Assistant")

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.memory_size", 1000)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "treatment-plan-assistant")
	v.SetDefault("telemetry.service_version", "dev")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetLookupConfig returns reference lookup configuration
func (m *Manager) GetLookupConfig() *domain.LookupConfig {
	return &m.config.Lookup
}

// GetLLMConfig returns the model provider configuration
func (m *Manager) GetLLMConfig() *domain.LLMConfig {
	return &m.config.LLM
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration needed by every command
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max body size must be positive")
	}

	switch config.Database.Driver {
	case "sqlite":
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("database sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", config.Database.Driver)
	}

	if config.Lookup.RxNorm.BaseURL == "" {
		return fmt.Errorf("RxNorm base URL is required")
	}
	if config.Lookup.OpenFDA.BaseURL == "" {
		return fmt.Errorf("openFDA base URL is required")
	}
	if config.Lookup.Concurrency < 1 {
		return fmt.Errorf("lookup concurrency must be at least 1")
	}

	if config.Cache.Enabled && config.Cache.MemorySize <= 0 && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache is enabled but has neither a memory size nor a Redis URL")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0,1]")
	}

	return nil
}

// ValidateLLM checks the model provider settings. Only commands that call the
// model need them.
func (m *Manager) ValidateLLM() error {
	cfg := m.config.LLM
	known := false
	for _, p := range llm.Providers() {
		if string(p) == cfg.Provider {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if cfg.APIKey == "" && llm.RequiresAPIKey(cfg.Provider) {
		return fmt.Errorf(
			"no API key found for provider %q: set %s_LLM_API_KEY, PROVIDER_API_KEY or %s_API_KEY",
			cfg.Provider, EnvPrefix, strings.ToUpper(cfg.Provider),
		)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return fmt.Errorf("invalid LLM temperature: %v", cfg.Temperature)
	}
	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	if db.Driver == "sqlite" {
		return db.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

var _ domain.ConfigManager = (*Manager)(nil)
