package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/domain"
)

// Redacted replaces the value of sensitive fields
const Redacted = "[REDACTED]"

const maxFieldLength = 1000

// sensitivePatterns mark field keys whose values must never be written
var sensitivePatterns = []string{
	"password", "token", "secret", "api_key", "apikey", "authorization", "patient",
}

// New builds the process logger from configuration
func New(config domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}
	logger.SetLevel(level)

	if strings.ToLower(config.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	out, err := output(config)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)
	logger.AddHook(privacyHook{})

	return logger, nil
}

func output(config domain.LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(config.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if config.Filename == "" {
			return nil, fmt.Errorf("log output is file but no filename is configured")
		}
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported log output %q", config.Output)
	}
}

// privacyHook redacts sensitive fields and truncates oversized values
type privacyHook struct{}

func (privacyHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (privacyHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		entry.Data[k] = SanitizeField(k, v)
	}
	return nil
}

// SanitizeField returns the value safe for logging under key
func SanitizeField(key string, value interface{}) interface{} {
	lowerKey := strings.ToLower(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerKey, pattern) {
			return Redacted
		}
	}

	if str, ok := value.(string); ok && len(str) > maxFieldLength {
		return str[:maxFieldLength] + "... [TRUNCATED]"
	}

	return value
}
