package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/baziview/internal/reliability"
)

const (
	httpBackoffBase = 250 * time.Millisecond
	httpBackoffCap  = 2 * time.Second
)

// HTTPGateway posts prompts to a completion endpoint that answers with
// server-sent events, NDJSON or a single JSON object.
type HTTPGateway struct {
	url     string
	retries int
	client  *http.Client
}

func NewHTTPGateway(url string, retries int, timeout time.Duration) *HTTPGateway {
	if retries < 0 {
		retries = 0
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGateway{
		url:     strings.TrimSpace(url),
		retries: retries,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	payload, err := json.Marshal(Request{Prompt: req.Prompt, Temperature: Temperature(temperature(req))})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var res *http.Response
	err = reliability.Retry(ctx, g.retries, httpBackoffBase, httpBackoffCap, func(int) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		r, err := g.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 4<<10))
			r.Body.Close()
			return &reliability.StatusError{Code: r.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer res.Body.Close()

		ct := strings.ToLower(res.Header.Get("Content-Type"))
		if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
			if err := consumeLines(res.Body, func(delta string) bool {
				return send(ctx, out, Chunk{Text: delta})
			}); err != nil {
				send(ctx, out, Chunk{Err: err})
			}
			return
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			send(ctx, out, Chunk{Err: fmt.Errorf("read response: %w", err)})
			return
		}
		if text := decodeBody(body); text != "" {
			send(ctx, out, Chunk{Text: text})
		}
	}()
	return out, nil
}

// consumeLines reads SSE "data:" lines or NDJSON lines and hands each text
// delta to emit until emit returns false or the stream ends.
func consumeLines(body io.Reader, emit func(string) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		// Plain-text payloads keep their spacing; tokens often start with a space.
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") || isSSEField(line) {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			line = strings.TrimPrefix(rest, " ")
		}
		if strings.TrimSpace(line) == "[DONE]" {
			return nil
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = extractText(obj)
		}
		if delta == "" {
			continue
		}
		if !emit(delta) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}

func isSSEField(line string) bool {
	for _, field := range []string{"event:", "id:", "retry:"} {
		if strings.HasPrefix(line, field) {
			return true
		}
	}
	return false
}

func decodeBody(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return strings.TrimSpace(string(body))
	}
	return strings.TrimSpace(extractText(obj))
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "response", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
