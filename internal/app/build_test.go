package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/baziview/internal/config"
	"github.com/antoniostano/baziview/internal/observability"
)

const sampleCSV = `Date,Year Pillar Chinese,Year Pillar English,Month Pillar Chinese,Month Pillar English,Day Pillar Chinese,Day Pillar English,Day Officer
2024-03-15,甲辰,Wood Dragon,丁卯,Fire Rabbit,壬午,Water Horse,Open
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "daily.csv")
	if err := os.WriteFile(csvPath, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return config.Config{
		BindAddr:                 ":0",
		SessionInactivityTimeout: time.Minute,
		LogLevel:                 "info",
		LogFormat:                "text",
		DailyReadingsCSV:         csvPath,
		ProfilesDir:              filepath.Join(dir, "profiles"),
		LLMProvider:              "mock",
		LLMTemperature:           0.6,
		LLMTimeout:               5 * time.Second,
	}
}

func TestBuildWiresMockStack(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := Build(context.Background(), cfg, observability.NewMetricsWithRegistry("test_app", nil), logger)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Provider != "mock" {
		t.Fatalf("Provider = %q, want mock", res.Provider)
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/daily/2024-03-15")
	if err != nil {
		t.Fatalf("GET daily error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"found":true`) {
		t.Fatalf("daily response = %s", body)
	}
}

func TestBuildMissingReadingsFileStillServes(t *testing.T) {
	cfg := testConfig(t)
	cfg.DailyReadingsCSV = filepath.Join(t.TempDir(), "missing.csv")

	var logs bytes.Buffer
	res, err := Build(context.Background(), cfg, observability.NewMetricsWithRegistry("test_app_missing", nil), slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if !strings.Contains(logs.String(), "daily readings file not found") {
		t.Fatalf("expected missing-file warning, logs = %s", logs.String())
	}
}

func TestBuildRejectsGeminiWithoutKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = "gemini"
	_, err := Build(context.Background(), cfg, observability.NewMetricsWithRegistry("test_app_gemini", nil), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatalf("Build() error = nil, want missing key error")
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(config.Config{LogFormat: "json", LogLevel: "debug"}, &buf).Debug("hello", "k", "v")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("json logger output = %q", buf.String())
	}

	buf.Reset()
	NewLogger(config.Config{LogFormat: "text", LogLevel: "warn"}, &buf).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}
}
