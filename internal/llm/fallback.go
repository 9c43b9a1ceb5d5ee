package llm

import (
	"context"
	"errors"
	"fmt"
)

// FallbackGateway tries primary first and switches to secondary when primary
// fails before producing any text. Once a chunk has been forwarded the
// stream is committed to primary.
type FallbackGateway struct {
	primary   Gateway
	secondary Gateway
}

func NewFallbackGateway(primary, secondary Gateway) *FallbackGateway {
	return &FallbackGateway{primary: primary, secondary: secondary}
}

func (g *FallbackGateway) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if g.primary == nil {
		if g.secondary == nil {
			return nil, errors.New("fallback gateway misconfigured")
		}
		return g.secondary.Stream(ctx, req)
	}

	chunks, err := g.primary.Stream(ctx, req)
	if err != nil {
		if !g.canFallback(err) {
			return nil, err
		}
		return g.streamSecondary(ctx, req, err)
	}

	// Wait for the first chunk to decide which gateway owns the stream.
	var first Chunk
	var ok bool
	select {
	case first, ok = <-chunks:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.secondary == nil {
			return nil, ErrEmptyCompletion
		}
		return g.streamSecondary(ctx, req, ErrEmptyCompletion)
	}
	if first.Err != nil {
		if !g.canFallback(first.Err) {
			return nil, first.Err
		}
		return g.streamSecondary(ctx, req, first.Err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		if !send(ctx, out, first) {
			return
		}
		for c := range chunks {
			if !send(ctx, out, c) {
				return
			}
		}
	}()
	return out, nil
}

func (g *FallbackGateway) canFallback(err error) bool {
	if g.secondary == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (g *FallbackGateway) streamSecondary(ctx context.Context, req Request, primaryErr error) (<-chan Chunk, error) {
	chunks, err := g.secondary.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("primary gateway error: %w; fallback gateway error: %v", primaryErr, err)
	}
	return chunks, nil
}
