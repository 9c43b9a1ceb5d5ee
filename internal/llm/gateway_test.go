package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/antoniostano/baziview/internal/reliability"
)

type stubGateway struct {
	chunks []Chunk
	err    error
	calls  atomic.Int32
}

func (g *stubGateway) Stream(ctx context.Context, _ Request) (<-chan Chunk, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	out := make(chan Chunk, len(g.chunks))
	for _, c := range g.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func TestNewGatewayAutoFallsBackToMock(t *testing.T) {
	g, err := NewGateway(context.Background(), Config{Provider: "auto"})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if Name(g) != "mock" {
		t.Fatalf("Name() = %q, want mock", Name(g))
	}

	text, err := Complete(context.Background(), g, Request{Prompt: "preamble\nUser: hello\nMei:"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "I heard you: hello" {
		t.Fatalf("Complete() = %q", text)
	}
}

func TestNewGatewayRejectsMissingSettings(t *testing.T) {
	for _, provider := range []string{"gemini", "openai", "http", "carrier-pigeon"} {
		if _, err := NewGateway(context.Background(), Config{Provider: provider}); err == nil {
			t.Fatalf("NewGateway(%q) expected error", provider)
		}
	}
}

func TestNewGatewayAutoPrefersOpenAIWithHTTPFallback(t *testing.T) {
	g, err := NewGateway(context.Background(), Config{
		OpenAIAPIKey: "sk-test",
		HTTPURL:      "http://example.test",
	})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if Name(g) != "openai+http" {
		t.Fatalf("Name() = %q, want openai+http", Name(g))
	}
}

func TestMockGatewayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockGateway().Stream(ctx, Request{Prompt: "User: hi"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream() error = %v, want context.Canceled", err)
	}
}

func TestCompleteReportsChunkError(t *testing.T) {
	boom := errors.New("boom")
	g := &stubGateway{chunks: []Chunk{{Text: "par"}, {Err: boom}}}
	if _, err := Complete(context.Background(), g, Request{}); !errors.Is(err, boom) {
		t.Fatalf("Complete() error = %v, want boom", err)
	}
}

func TestCompleteRejectsEmpty(t *testing.T) {
	g := &stubGateway{chunks: []Chunk{{Text: "  "}}}
	if _, err := Complete(context.Background(), g, Request{}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("Complete() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestFallbackGatewayUsesSecondary(t *testing.T) {
	primary := &stubGateway{err: errors.New("connection refused")}
	secondary := &stubGateway{chunks: []Chunk{{Text: "fallback"}}}
	text, err := Complete(context.Background(), NewFallbackGateway(primary, secondary), Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "fallback" {
		t.Fatalf("Complete() = %q, want fallback", text)
	}
}

func TestFallbackGatewaySwitchesOnFirstChunkError(t *testing.T) {
	primary := &stubGateway{chunks: []Chunk{{Err: errors.New("quota exceeded")}}}
	secondary := &stubGateway{chunks: []Chunk{{Text: "second"}}}
	text, err := Complete(context.Background(), NewFallbackGateway(primary, secondary), Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "second" {
		t.Fatalf("Complete() = %q, want second", text)
	}
}

func TestFallbackGatewayCommitsAfterFirstChunk(t *testing.T) {
	primary := &stubGateway{chunks: []Chunk{{Text: "half"}, {Err: errors.New("reset")}}}
	secondary := &stubGateway{chunks: []Chunk{{Text: "second"}}}
	_, err := Complete(context.Background(), NewFallbackGateway(primary, secondary), Request{})
	if err == nil {
		t.Fatalf("Complete() expected mid-stream error")
	}
	if secondary.calls.Load() != 0 {
		t.Fatalf("secondary calls = %d, want 0", secondary.calls.Load())
	}
}

func TestFallbackGatewaySkipsSecondaryOnCancel(t *testing.T) {
	primary := &stubGateway{err: context.Canceled}
	secondary := &stubGateway{chunks: []Chunk{{Text: "second"}}}
	_, err := NewFallbackGateway(primary, secondary).Stream(context.Background(), Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream() error = %v, want context.Canceled", err)
	}
	if secondary.calls.Load() != 0 {
		t.Fatalf("secondary should not be called")
	}
}

func TestHTTPGatewaySSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\ndata: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\"}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	chunks, err := NewHTTPGateway(srv.URL, 0, time.Second).Stream(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	var deltas []string
	for c := range chunks {
		if c.Err != nil {
			t.Fatalf("chunk error = %v", c.Err)
		}
		deltas = append(deltas, c.Text)
	}
	if strings.Join(deltas, "|") != "Hel|lo" {
		t.Fatalf("deltas = %q", deltas)
	}
}

func TestHTTPGatewayKeepsSpacesInPlainTextDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: Hello\n\ndata:  world\n\ndata:,\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	chunks, err := NewHTTPGateway(srv.URL, 0, time.Second).Stream(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	var deltas []string
	for c := range chunks {
		if c.Err != nil {
			t.Fatalf("chunk error = %v", c.Err)
		}
		deltas = append(deltas, c.Text)
	}
	if strings.Join(deltas, "") != "Hello world," {
		t.Fatalf("deltas = %q, want %q", deltas, []string{"Hello", " world", ","})
	}
}

func TestHTTPGatewaySendsTemperature(t *testing.T) {
	bodies := make(chan map[string]any, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, 0, time.Second)
	if _, err := Complete(context.Background(), gw, Request{Prompt: "x", Temperature: Temperature(0)}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got := <-bodies; got["temperature"] != float64(0) {
		t.Fatalf("temperature = %v, want 0", got["temperature"])
	}

	if _, err := Complete(context.Background(), gw, Request{Prompt: "x"}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got := <-bodies; got["temperature"] != DefaultTemperature {
		t.Fatalf("temperature = %v, want %v", got["temperature"], DefaultTemperature)
	}
}

func TestHTTPGatewayNDJSONAndPlainJSON(t *testing.T) {
	ndjson := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, "{\"text\":\"Hi\"}\n there\n[DONE]\n")
	}))
	defer ndjson.Close()

	text, err := Complete(context.Background(), NewHTTPGateway(ndjson.URL, 0, time.Second), Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Hi there" {
		t.Fatalf("Complete() = %q, want %q", text, "Hi there")
	}

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"whole answer"}`)
	}))
	defer plain.Close()

	text, err = Complete(context.Background(), NewHTTPGateway(plain.URL, 0, time.Second), Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "whole answer" {
		t.Fatalf("Complete() = %q", text)
	}
}

func TestHTTPGatewayRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"text":"ready"}`)
	}))
	defer srv.Close()

	text, err := Complete(context.Background(), NewHTTPGateway(srv.URL, 2, time.Second), Request{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "ready" || calls.Load() != 2 {
		t.Fatalf("Complete() = %q after %d calls", text, calls.Load())
	}
}

func TestHTTPGatewayReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, 3, time.Second).Stream(context.Background(), Request{})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Stream() error = %v, want 401", err)
	}
}

func TestOpenAIGatewaySendsZeroTemperature(t *testing.T) {
	temps := make(chan *float64, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Temperature *float64 `json:"temperature"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		temps <- body.Temperature
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g := NewOpenAIGateway("sk-test", srv.URL+"/v1", "")
	if _, err := Complete(context.Background(), g, Request{Prompt: "hello", Temperature: Temperature(0)}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	got := <-temps
	if got == nil || *got >= 1e-6 {
		t.Fatalf("temperature = %v, want present and near zero", got)
	}
}

func TestOpenAIGatewayStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Good ", "morning"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g := NewOpenAIGateway("sk-test", srv.URL+"/v1", "")
	text, err := Complete(context.Background(), g, Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Good morning" {
		t.Fatalf("Complete() = %q, want %q", text, "Good morning")
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("gemini stream: %w", context.DeadlineExceeded), CodeTimeout},
		{"empty", ErrEmptyCompletion, CodeEmpty},
		{"http status", fmt.Errorf("send: %w", &reliability.StatusError{Code: 503}), "http_503"},
		{"openai api", fmt.Errorf("openai stream: %w", &openai.APIError{HTTPStatusCode: 429}), "http_429"},
		{"openai request", &openai.RequestError{HTTPStatusCode: 502}, "http_502"},
		{"gemini api", fmt.Errorf("gemini stream: %w", genai.APIError{Code: 400}), "http_400"},
		{"fallback keeps primary", fmt.Errorf("primary gateway error: %w; fallback gateway error: boom", &reliability.StatusError{Code: 500}), "http_500"},
		{"other", errors.New("boom"), CodeOther},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("%s: ErrorCode() = %q, want %q", tc.name, got, tc.want)
		}
	}
}
