package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/llm"
	"github.com/antoniostano/baziview/internal/observability"
)

// Observer receives latency and outcome samples. *observability.Metrics
// satisfies it.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveOutcome(provider, outcome string)
	ObserveGatewayError(provider, code string)
}

// Config wires a Conversation to its collaborators.
type Config struct {
	Gateway llm.Gateway
	// Temperature is passed to the gateway as is. Nil uses llm.DefaultTemperature.
	Temperature *float64
	// Timeout bounds one gateway call. Zero leaves only the caller's context.
	Timeout   time.Duration
	Assembler Assembler
	Observer  Observer
	Logger    *slog.Logger
}

// Reply is the outcome of one exchange. Err is set when Text is an apology
// standing in for a failed completion.
type Reply struct {
	Text    string        `json:"text"`
	Err     *GatewayError `json:"-"`
	Elapsed time.Duration `json:"-"`
}

// Conversation holds one session's context and turn memory. It is not safe
// for concurrent use; callers serialize exchanges.
type Conversation struct {
	cfg      Config
	provider string
	context  Context
	memory   Memory
	now      func() time.Time
}

func NewConversation(cfg Config, c Context) *Conversation {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Conversation{
		cfg:      cfg,
		provider: llm.Name(cfg.Gateway),
		context:  c,
		now:      time.Now,
	}
}

// Context returns the current conversation context.
func (c *Conversation) Context() Context { return c.context }

// UpdateContext swaps the daily reading. Turn memory is untouched.
func (c *Conversation) UpdateContext(reading *bazi.DailyReading) {
	c.context.Reading = reading
}

// History returns the recorded turns in order.
func (c *Conversation) History() []Turn { return c.memory.Turns() }

// Len returns the number of recorded turns.
func (c *Conversation) Len() int { return c.memory.Len() }

// Respond runs one exchange and returns the full reply.
func (c *Conversation) Respond(ctx context.Context, text string) (Reply, error) {
	return c.RespondStream(ctx, text, nil)
}

// RespondStream runs one exchange, forwarding each chunk to sink as it
// arrives. sink is never closed by RespondStream.
//
// A failed or timed-out completion is not an error: the reply carries the
// apology text and Err. Only invalid input and cancellation of ctx return an
// error. Turns are recorded only when a completion succeeds.
func (c *Conversation) RespondStream(ctx context.Context, text string, sink chan<- string) (Reply, error) {
	started := c.now()
	input := strings.TrimSpace(text)
	if input == "" {
		c.observeOutcome(observability.OutcomeInvalidInput)
		return Reply{}, &InputError{Reason: "message is empty"}
	}

	prompt := c.cfg.Assembler.Assemble(c.context, c.memory.turns, input)
	c.observeStage(observability.StagePromptAssembly, c.now().Sub(started))

	answer, err := c.complete(ctx, prompt, sink)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.cfg.Logger.Info("chat: exchange cancelled", "err", ctxErr)
			c.observeOutcome(observability.OutcomeCancelled)
			return Reply{}, ctxErr
		}
		gwErr := newGatewayError(c.provider, err)
		c.cfg.Logger.Warn("chat: completion failed", "provider", c.provider, "code", gwErr.Code, "err", err)
		c.observeOutcome(observability.OutcomeGatewayError)
		if c.cfg.Observer != nil {
			c.cfg.Observer.ObserveGatewayError(c.provider, gwErr.Code)
		}
		return Reply{
			Text:    ApologyPrefix + gwErr.Detail(),
			Err:     gwErr,
			Elapsed: c.now().Sub(started),
		}, nil
	}

	c.memory.appendExchange(input, answer)
	elapsed := c.now().Sub(started)
	c.observeStage(observability.StageTurnTotal, elapsed)
	c.observeOutcome(observability.OutcomeOK)
	c.cfg.Logger.Debug("chat: exchange complete", "provider", c.provider, "turns", c.memory.Len(), "elapsed_ms", elapsed.Milliseconds())
	return Reply{Text: answer, Elapsed: elapsed}, nil
}

func (c *Conversation) complete(ctx context.Context, prompt string, sink chan<- string) (string, error) {
	if c.cfg.Gateway == nil {
		return "", errors.New("no gateway configured")
	}

	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if c.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	started := c.now()
	chunks, err := c.cfg.Gateway.Stream(callCtx, llm.Request{Prompt: prompt, Temperature: c.cfg.Temperature})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	first := true
	for {
		var (
			chunk llm.Chunk
			ok    bool
		)
		select {
		case chunk, ok = <-chunks:
		case <-callCtx.Done():
			return "", callCtx.Err()
		}
		if !ok {
			break
		}
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Text == "" {
			continue
		}
		if first {
			c.observeStage(observability.StageGatewayFirstChunk, c.now().Sub(started))
			first = false
		}
		out.WriteString(chunk.Text)
		if sink != nil {
			select {
			case sink <- chunk.Text:
			case <-callCtx.Done():
				return "", callCtx.Err()
			}
		}
	}
	if err := callCtx.Err(); err != nil {
		return "", err
	}
	c.observeStage(observability.StageGatewayTotal, c.now().Sub(started))

	answer := strings.TrimSpace(out.String())
	if answer == "" {
		return "", llm.ErrEmptyCompletion
	}
	return answer, nil
}

func (c *Conversation) observeStage(stage string, d time.Duration) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveStage(stage, d)
	}
}

func (c *Conversation) observeOutcome(outcome string) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveOutcome(c.provider, outcome)
	}
}
