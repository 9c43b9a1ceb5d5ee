// Package chat assembles prompts for Mei, the BAZI assistant, and runs one
// conversation's request/response loop against an llm.Gateway.
package chat

import "github.com/antoniostano/baziview/internal/bazi"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded message.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Context is the per-session data fed into every prompt.
type Context struct {
	Profile bazi.Profile
	Reading *bazi.DailyReading
}

// Memory is the append-only turn log of one conversation.
type Memory struct {
	turns []Turn
}

func (m *Memory) appendExchange(user, assistant string) {
	m.turns = append(m.turns,
		Turn{Role: RoleUser, Text: user},
		Turn{Role: RoleAssistant, Text: assistant},
	)
}

// Turns returns a copy of the recorded turns in insertion order.
func (m *Memory) Turns() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int { return len(m.turns) }
