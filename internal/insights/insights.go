// Package insights produces one-shot personality and daily readings for a
// profile. Unlike chat, nothing is remembered between calls.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/llm"
)

// ErrNoChart is returned for a profile without a chart.
var ErrNoChart = errors.New("insights: profile has no chart")

// Insight is a generated text block.
type Insight struct {
	Kind      string    `json:"kind"`
	ProfileID string    `json:"profile_id"`
	Date      string    `json:"date,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Generator sends insight prompts through a gateway.
type Generator struct {
	gateway     llm.Gateway
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

func NewGenerator(gateway llm.Gateway, temperature float64, timeout time.Duration, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{gateway: gateway, temperature: temperature, timeout: timeout, logger: logger}
}

// Personality describes the profile's character from its chart.
func (g *Generator) Personality(ctx context.Context, p bazi.Profile) (Insight, error) {
	if p.Chart == nil {
		return Insight{}, ErrNoChart
	}
	text, err := g.complete(ctx, "personality", PersonalityPrompt(*p.Chart))
	if err != nil {
		return Insight{}, err
	}
	return Insight{Kind: "personality", ProfileID: p.ID, Text: text, CreatedAt: time.Now().UTC()}, nil
}

// Daily gives the outlook for one date. A nil reading still produces a
// chart-only outlook.
func (g *Generator) Daily(ctx context.Context, p bazi.Profile, date string, reading *bazi.DailyReading) (Insight, error) {
	if p.Chart == nil {
		return Insight{}, ErrNoChart
	}
	text, err := g.complete(ctx, "daily", DailyPrompt(*p.Chart, reading))
	if err != nil {
		return Insight{}, err
	}
	return Insight{Kind: "daily", ProfileID: p.ID, Date: date, Text: text, CreatedAt: time.Now().UTC()}, nil
}

func (g *Generator) complete(ctx context.Context, kind, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	started := time.Now()
	text, err := llm.Complete(ctx, g.gateway, llm.Request{Prompt: prompt, Temperature: llm.Temperature(g.temperature)})
	if err != nil {
		g.logger.Warn("insights: completion failed", "kind", kind, "err", err)
		return "", fmt.Errorf("%s insight: %w", kind, err)
	}
	g.logger.Debug("insights: generated", "kind", kind, "elapsed_ms", time.Since(started).Milliseconds())
	return text, nil
}

// PersonalityPrompt asks for traits, talents and challenges.
func PersonalityPrompt(c bazi.Chart) string {
	var b strings.Builder
	b.WriteString("As a Bazi expert, analyze this Bazi chart and provide personality insights:\n\n")
	b.WriteString("Chart details:\n")
	b.WriteString(c.String())
	b.WriteString("\n\nPlease provide insights about:\n")
	b.WriteString("1. Core personality traits\n")
	b.WriteString("2. Natural talents and strengths\n")
	b.WriteString("3. Potential challenges\n")
	b.WriteString("Keep the response concise and practical.")
	return b.String()
}

// DailyPrompt asks for the outlook of a day against the person's chart.
func DailyPrompt(c bazi.Chart, reading *bazi.DailyReading) string {
	var b strings.Builder
	b.WriteString("As a Bazi expert, provide daily insights based on:\n\n")
	b.WriteString("Person's Bazi Chart:\n")
	b.WriteString(c.String())
	b.WriteString("\n\nToday's Bazi Data:\n")
	b.WriteString(bazi.FormatReading(reading))
	b.WriteString("\n\nPlease provide:\n")
	b.WriteString("1. Overall day outlook\n")
	b.WriteString("2. Favorable activities\n")
	b.WriteString("3. Activities to avoid\n")
	b.WriteString("Keep the response concise and practical.")
	return b.String()
}
