package insights

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/llm"
)

type captureGateway struct {
	prompt string
	reply  string
	err    error
}

func (g *captureGateway) Stream(_ context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	g.prompt = req.Prompt
	if g.err != nil {
		return nil, g.err
	}
	out := make(chan llm.Chunk, 1)
	out <- llm.Chunk{Text: g.reply}
	close(out)
	return out, nil
}

func chartProfile() bazi.Profile {
	c := bazi.SampleChart()
	return bazi.Profile{ID: "Ana", Name: "Ana", Chart: &c}
}

func TestPersonality(t *testing.T) {
	gw := &captureGateway{reply: "Grounded and curious."}
	g := NewGenerator(gw, 0.6, time.Second, nil)

	in, err := g.Personality(context.Background(), chartProfile())
	if err != nil {
		t.Fatalf("Personality() error = %v", err)
	}
	if in.Text != "Grounded and curious." || in.Kind != "personality" || in.ProfileID != "Ana" {
		t.Fatalf("unexpected insight: %+v", in)
	}
	if !strings.Contains(gw.prompt, "Day Pillar: Yang Earth Monkey") {
		t.Fatalf("prompt missing chart:\n%s", gw.prompt)
	}
}

func TestDailyIncludesReading(t *testing.T) {
	gw := &captureGateway{reply: "A good day to start."}
	g := NewGenerator(gw, 0.6, 0, nil)

	reading := &bazi.DailyReading{Date: "2025-02-01", DayOfficer: "Open"}
	in, err := g.Daily(context.Background(), chartProfile(), "2025-02-01", reading)
	if err != nil {
		t.Fatalf("Daily() error = %v", err)
	}
	if in.Date != "2025-02-01" {
		t.Fatalf("Date = %q", in.Date)
	}
	if !strings.Contains(gw.prompt, "Day Officer: Open") {
		t.Fatalf("prompt missing reading:\n%s", gw.prompt)
	}

	if _, err := g.Daily(context.Background(), chartProfile(), "2030-01-01", nil); err != nil {
		t.Fatalf("Daily() without reading error = %v", err)
	}
	if !strings.Contains(gw.prompt, "No BAZI data available") {
		t.Fatalf("prompt should note the missing reading:\n%s", gw.prompt)
	}
}

func TestInsightsRequireChart(t *testing.T) {
	g := NewGenerator(&captureGateway{reply: "x"}, 0.6, 0, nil)
	if _, err := g.Personality(context.Background(), bazi.Profile{ID: "Ana"}); !errors.Is(err, ErrNoChart) {
		t.Fatalf("Personality() error = %v, want ErrNoChart", err)
	}
}

func TestInsightsWrapGatewayError(t *testing.T) {
	boom := errors.New("quota")
	g := NewGenerator(&captureGateway{err: boom}, 0.6, 0, nil)
	if _, err := g.Personality(context.Background(), chartProfile()); !errors.Is(err, boom) {
		t.Fatalf("Personality() error = %v, want wrapped quota error", err)
	}
}
