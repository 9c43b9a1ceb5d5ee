package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML layout. Unset fields keep the defaults.
type fileConfig struct {
	Server struct {
		BindAddr          string `yaml:"bind_addr"`
		ShutdownTimeout   string `yaml:"shutdown_timeout"`
		SessionInactivity string `yaml:"session_inactivity_timeout"`
		MetricsNamespace  string `yaml:"metrics_namespace"`
		AllowAnyOrigin    *bool  `yaml:"allow_any_origin"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Data struct {
		DailyReadingsCSV  string `yaml:"daily_readings_csv"`
		ProfilesDir       string `yaml:"profiles_dir"`
		ProfileSQLitePath string `yaml:"profile_sqlite_path"`
		DatabaseURL       string `yaml:"database_url"`
		AnalysisDir       string `yaml:"analysis_dir"`
	} `yaml:"data"`
	LLM struct {
		Provider        string   `yaml:"provider"`
		Model           string   `yaml:"model"`
		Temperature     *float64 `yaml:"temperature"`
		Timeout         string   `yaml:"timeout"`
		MaxPromptTokens *int     `yaml:"max_prompt_tokens"`
		OpenAIBaseURL   string   `yaml:"openai_base_url"`
		HTTPURL         string   `yaml:"http_url"`
		HTTPRetries     *int     `yaml:"http_retries"`
	} `yaml:"llm"`
}

// applyFile overlays the YAML file at path onto cfg. API keys are read from
// the environment only.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.BindAddr, fc.Server.BindAddr)
	setString(&cfg.MetricsNamespace, fc.Server.MetricsNamespace)
	if fc.Server.AllowAnyOrigin != nil {
		cfg.AllowAnyOrigin = *fc.Server.AllowAnyOrigin
	}
	if err := setDuration(&cfg.ShutdownTimeout, "server.shutdown_timeout", fc.Server.ShutdownTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.SessionInactivityTimeout, "server.session_inactivity_timeout", fc.Server.SessionInactivity); err != nil {
		return err
	}

	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)

	setString(&cfg.DailyReadingsCSV, fc.Data.DailyReadingsCSV)
	setString(&cfg.ProfilesDir, fc.Data.ProfilesDir)
	setString(&cfg.ProfileSQLitePath, fc.Data.ProfileSQLitePath)
	setString(&cfg.DatabaseURL, fc.Data.DatabaseURL)
	setString(&cfg.AnalysisDir, fc.Data.AnalysisDir)

	setString(&cfg.LLMProvider, fc.LLM.Provider)
	setString(&cfg.LLMModel, fc.LLM.Model)
	setString(&cfg.OpenAIBaseURL, fc.LLM.OpenAIBaseURL)
	setString(&cfg.LLMHTTPURL, fc.LLM.HTTPURL)
	if fc.LLM.Temperature != nil {
		cfg.LLMTemperature = *fc.LLM.Temperature
	}
	if fc.LLM.MaxPromptTokens != nil {
		cfg.LLMMaxPromptTokens = *fc.LLM.MaxPromptTokens
	}
	if fc.LLM.HTTPRetries != nil {
		cfg.LLMHTTPRetries = *fc.LLM.HTTPRetries
	}
	return setDuration(&cfg.LLMTimeout, "llm.timeout", fc.LLM.Timeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s parse error: %w", field, err)
	}
	*dst = d
	return nil
}
