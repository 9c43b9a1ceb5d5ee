// Package llm streams completions from a text-generation provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTemperature is used when a request leaves Temperature unset.
const DefaultTemperature = 0.6

// ErrEmptyCompletion is returned when a provider finishes without any text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Request is a single prompt sent to a gateway. A nil Temperature means
// DefaultTemperature; zero is a valid setting.
type Request struct {
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Temperature returns a Request temperature set to v.
func Temperature(v float64) *float64 { return &v }

// Chunk is one streamed fragment. A chunk with a non-nil Err is the last one
// sent before the channel closes.
type Chunk struct {
	Text string
	Err  error
}

// Gateway streams the completion for a prompt. The returned channel is closed
// when the stream ends; producers stop sending once ctx is done.
type Gateway interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Config controls gateway construction.
type Config struct {
	Provider      string
	Model         string
	GoogleAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	HTTPURL       string
	HTTPRetries   int
	HTTPTimeout   time.Duration
}

// NewGateway builds the gateway selected by cfg.Provider.
func NewGateway(ctx context.Context, cfg Config) (Gateway, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoGateway(ctx, cfg), nil
	case "gemini":
		if strings.TrimSpace(cfg.GoogleAPIKey) == "" {
			return nil, errors.New("google api key is required for gemini mode")
		}
		return NewGeminiGateway(ctx, cfg.GoogleAPIKey, cfg.Model)
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("llm HTTP url is required for http mode")
		}
		return NewHTTPGateway(cfg.HTTPURL, cfg.HTTPRetries, cfg.HTTPTimeout), nil
	case "mock":
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newAutoGateway(ctx context.Context, cfg Config) Gateway {
	var primary Gateway
	if strings.TrimSpace(cfg.GoogleAPIKey) != "" {
		if gw, err := NewGeminiGateway(ctx, cfg.GoogleAPIKey, cfg.Model); err == nil {
			primary = gw
		}
	}
	if primary == nil && strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		primary = NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	}

	var secondary Gateway
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		secondary = NewHTTPGateway(cfg.HTTPURL, cfg.HTTPRetries, cfg.HTTPTimeout)
	}

	switch {
	case primary != nil && secondary != nil:
		return NewFallbackGateway(primary, secondary)
	case primary != nil:
		return primary
	case secondary != nil:
		return secondary
	default:
		return NewMockGateway()
	}
}

// Name reports a short provider label for logs and metrics.
func Name(g Gateway) string {
	switch v := g.(type) {
	case *GeminiGateway:
		return "gemini"
	case *OpenAIGateway:
		return "openai"
	case *HTTPGateway:
		return "http"
	case *MockGateway:
		return "mock"
	case *FallbackGateway:
		return Name(v.primary) + "+" + Name(v.secondary)
	case nil:
		return "none"
	default:
		return "custom"
	}
}

// Complete drains a stream into one string.
func Complete(ctx context.Context, g Gateway, req Request) (string, error) {
	chunks, err := g.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		out.WriteString(chunk.Text)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func temperature(req Request) float64 {
	if req.Temperature == nil {
		return DefaultTemperature
	}
	return *req.Temperature
}

// send delivers c unless ctx is done first.
func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
