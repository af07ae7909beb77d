package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	GeminiAPIKey       string
	GeminiBaseURL      string
	AITimeout          time.Duration
	MySQLDSN           string
	AdminToken         string
	PromptsFile        string
	CORSAllowedOrigins []string
	LogLevel           slog.Level
}

func FromEnv() (Config, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required")
	}

	timeout := 60 * time.Second
	if v := strings.TrimSpace(os.Getenv("AI_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("AI_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("AI_TIMEOUT must be positive, got %s", d)
		}
		timeout = d
	}

	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	allowed := []string{"*"}
	if strings.TrimSpace(origins) != "" {
		allowed = splitCSV(origins)
	}

	level, err := parseLogLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		GeminiAPIKey:       apiKey,
		GeminiBaseURL:      getenvDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		AITimeout:          timeout,
		MySQLDSN:           strings.TrimSpace(os.Getenv("MYSQL_DSN")),
		AdminToken:         strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		PromptsFile:        strings.TrimSpace(os.Getenv("PROMPTS_FILE")),
		CORSAllowedOrigins: allowed,
		LogLevel:           level,
	}, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("LOG_LEVEL: unknown level %q", v)
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
