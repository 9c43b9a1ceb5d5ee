package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/chat"
	"github.com/antoniostano/baziview/internal/config"
	"github.com/antoniostano/baziview/internal/httpapi"
	"github.com/antoniostano/baziview/internal/insights"
	"github.com/antoniostano/baziview/internal/llm"
	"github.com/antoniostano/baziview/internal/observability"
	"github.com/antoniostano/baziview/internal/profile"
	"github.com/antoniostano/baziview/internal/session"
	"github.com/antoniostano/baziview/internal/transcript"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Provider string

	// Cleanup should be called on shutdown to release external resources (DB pools, files).
	Cleanup func() error
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Build wires every component from cfg. metrics may be nil, in which case
// collectors are registered on the default registry.
func Build(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	profileStore, err := profile.NewStore(ctx, profile.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.ProfileSQLitePath,
		Dir:         cfg.ProfilesDir,
	})
	if err != nil {
		return nil, fmt.Errorf("profile store init failed: %w", err)
	}

	transcriptStore, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = profileStore.Close()
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	analyses, err := bazi.LoadAnalysisDir(cfg.AnalysisDir)
	if err != nil {
		logger.Warn("app: analysis dir unusable, using built-in analyses", "dir", cfg.AnalysisDir, "err", err)
		analyses = bazi.DefaultAnalysisLibrary()
	}

	readings := loadReadings(cfg.DailyReadingsCSV, logger)

	gateway, err := llm.NewGateway(ctx, llm.Config{
		Provider:      cfg.LLMProvider,
		Model:         cfg.LLMModel,
		GoogleAPIKey:  cfg.GoogleAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		HTTPURL:       cfg.LLMHTTPURL,
		HTTPRetries:   cfg.LLMHTTPRetries,
		HTTPTimeout:   cfg.LLMTimeout,
	})
	if err != nil {
		_ = transcriptStore.Close()
		_ = profileStore.Close()
		return nil, fmt.Errorf("llm gateway init failed: %w", err)
	}
	provider := llm.Name(gateway)
	logger.Info("app: llm gateway ready", "provider", provider)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		logger.Info("app: session expired", "session_id", s.ID, "turns", s.TurnCount)
	})

	api := httpapi.New(httpapi.Deps{
		Config:   cfg,
		Sessions: sessions,
		Profiles: profile.NewService(profileStore, analyses, logger),
		Readings: readings,
		Chat: chat.Config{
			Gateway:     gateway,
			Temperature: llm.Temperature(cfg.LLMTemperature),
			Timeout:     cfg.LLMTimeout,
			Assembler:   chat.Assembler{MaxTokens: cfg.LLMMaxPromptTokens},
			Observer:    metrics,
			Logger:      logger,
		},
		Insights: insights.NewGenerator(gateway, cfg.LLMTemperature, cfg.LLMTimeout, logger),
		Archive:  transcript.NewArchiver(transcriptStore),
		Metrics:  metrics,
		Logger:   logger,
	})

	cleanup := func() error {
		var errs []string
		if err := transcriptStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := profileStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Metrics:  metrics,
		Provider: provider,
		Cleanup:  cleanup,
	}, nil
}

// loadReadings never fails: a missing or broken CSV leaves the viewer
// running with no daily data.
func loadReadings(path string, logger *slog.Logger) bazi.ReadingSource {
	if strings.TrimSpace(path) == "" {
		return bazi.StaticSource{}
	}
	src, err := bazi.LoadCSV(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("app: daily readings file not found", "path", path)
		} else {
			logger.Warn("app: daily readings unusable", "path", path, "err", err)
		}
		return bazi.StaticSource{}
	}
	logger.Info("app: daily readings loaded", "path", path, "dates", src.Len())
	return src
}
