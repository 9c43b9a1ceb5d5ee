package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockGateway answers deterministically from the last user line of the
// prompt. It streams word by word so callers see more than one chunk.
type MockGateway struct{}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := strings.SplitAfter(buildMockReply(req.Prompt), " ")
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, w := range words {
			if !send(ctx, out, Chunk{Text: w}) {
				return
			}
		}
	}()
	return out, nil
}

func buildMockReply(prompt string) string {
	last := ""
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "User:"); ok {
			last = strings.TrimSpace(rest)
		}
	}
	if last == "" {
		return "I am listening."
	}
	return fmt.Sprintf("I heard you: %s", last)
}
