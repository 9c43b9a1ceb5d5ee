package chat

import (
	"fmt"
	"strings"

	"github.com/antoniostano/baziview/internal/bazi"
)

// AssistantName labels assistant turns inside the prompt.
const AssistantName = "Mei"

// NoReading stands in for the daily reading when none is loaded.
const NoReading = "No daily reading available"

const preamble = `You are a friendly and conversational BAZI advisor named Mei. Adapt your response style to the question:
- For simple queries, keep responses brief and friendly
- For questions about BAZI concepts or analysis, provide detailed explanations when needed
- Break down longer explanations into clear sections
- Always maintain a conversational tone`

// charsPerToken is a rough average for English text.
const charsPerToken = 4

// Assembler builds prompts. A zero MaxTokens keeps every turn.
type Assembler struct {
	MaxTokens int
}

// AssemblePrompt builds the full prompt without any history budget.
func AssemblePrompt(c Context, history []Turn, input string) string {
	return Assembler{}.Assemble(c, history, input)
}

// Assemble renders the preamble, the context, the (possibly trimmed)
// history and the new input followed by the assistant cue. The output
// depends only on its arguments.
func (a Assembler) Assemble(c Context, history []Turn, input string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nContext (reference only when relevant):\n")
	b.WriteString("User Profile:\n")
	b.WriteString(formatProfile(c.Profile))
	b.WriteString("\nDaily Reading:\n")
	if c.Reading == nil {
		b.WriteString(NoReading)
	} else {
		b.WriteString(bazi.FormatReading(c.Reading))
	}

	b.WriteString("\n\nChat History:\n")
	for _, t := range a.fit(history) {
		fmt.Fprintf(&b, "%s: %s\n", speaker(t.Role), t.Text)
	}

	fmt.Fprintf(&b, "\nUser: %s\n%s: ", strings.TrimSpace(input), AssistantName)
	return b.String()
}

// fit drops the oldest turn pairs until the history fits MaxTokens. The
// newest pair is always kept.
func (a Assembler) fit(history []Turn) []Turn {
	if a.MaxTokens <= 0 {
		return history
	}
	total := 0
	for _, t := range history {
		total += estimateTokens(t)
	}
	start := 0
	for total > a.MaxTokens && len(history)-start > 2 {
		total -= estimateTokens(history[start]) + estimateTokens(history[start+1])
		start += 2
	}
	return history[start:]
}

func estimateTokens(t Turn) int {
	return len(t.Text)/charsPerToken + 4
}

func speaker(r Role) string {
	if r == RoleAssistant {
		return AssistantName
	}
	return "User"
}

func formatProfile(p bazi.Profile) string {
	var b strings.Builder
	field := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	field("Name", p.Name)
	field("Birth Date", p.BirthDate)
	field("Birth Time", p.BirthTime)
	field("Timezone", p.Timezone)
	field("Location", p.Location)
	if p.Chart != nil {
		b.WriteString("- Chart:\n")
		for _, line := range strings.Split(p.Chart.String(), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	field("Analysis", p.AnalysisText())
	if b.Len() == 0 {
		return "No profile details\n"
	}
	return b.String()
}
