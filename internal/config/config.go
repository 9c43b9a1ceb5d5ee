package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the BAZI viewer service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	DailyReadingsCSV  string
	ProfilesDir       string
	ProfileSQLitePath string
	DatabaseURL       string
	AnalysisDir       string

	LLMProvider        string
	LLMModel           string
	LLMTemperature     float64
	LLMTimeout         time.Duration
	LLMMaxPromptTokens int

	GoogleAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	LLMHTTPURL     string
	LLMHTTPRetries int
}

// Load reads the optional YAML file named by BAZI_CONFIG_FILE, then
// environment variables, and applies safe defaults. Environment variables
// win over the file.
func Load() (Config, error) {
	cfg := defaults()
	if path := stringsTrimSpace("BAZI_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = strings.ToLower(envOrDefault("APP_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("APP_LOG_FORMAT", cfg.LogFormat))
	cfg.DailyReadingsCSV = envOrDefault("DAILY_READINGS_CSV", cfg.DailyReadingsCSV)
	cfg.ProfilesDir = envOrDefault("PROFILES_DIR", cfg.ProfilesDir)
	cfg.ProfileSQLitePath = envOrDefault("PROFILE_SQLITE_PATH", cfg.ProfileSQLitePath)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.AnalysisDir = envOrDefault("ANALYSIS_DIR", cfg.AnalysisDir)
	cfg.LLMProvider = strings.ToLower(envOrDefault("LLM_PROVIDER", cfg.LLMProvider))
	cfg.LLMModel = envOrDefault("LLM_MODEL", cfg.LLMModel)
	cfg.GoogleAPIKey = envOrDefault("GOOGLE_API_KEY", cfg.GoogleAPIKey)
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.LLMHTTPURL = envOrDefault("LLM_HTTP_URL", cfg.LLMHTTPURL)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxPromptTokens, err = intFromEnv("LLM_MAX_PROMPT_TOKENS", cfg.LLMMaxPromptTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMHTTPRetries, err = intFromEnv("LLM_HTTP_RETRIES", cfg.LLMHTTPRetries)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		BindAddr:                 ":8080",
		MetricsNamespace:         "baziview",
		LogLevel:                 "info",
		LogFormat:                "text",
		DailyReadingsCSV:         "data/daily_bazi.csv",
		ProfilesDir:              "profiles",
		LLMProvider:              "auto",
		LLMTemperature:           0.6,
		LLMTimeout:               60 * time.Second,
		LLMHTTPRetries:           2,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}
}

func (c Config) validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.LLMTimeout < 0 {
		return fmt.Errorf("LLM_TIMEOUT must be >= 0")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.LLMMaxPromptTokens < 0 {
		return fmt.Errorf("LLM_MAX_PROMPT_TOKENS must be >= 0")
	}
	if c.LLMHTTPRetries < 0 {
		return fmt.Errorf("LLM_HTTP_RETRIES must be >= 0")
	}
	switch c.LLMProvider {
	case "auto", "gemini", "openai", "http", "mock":
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not one of auto, gemini, openai, http, mock", c.LLMProvider)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("APP_LOG_FORMAT must be text or json")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
