package policy

import "regexp"

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
	// keep reports matches that look sensitive but are not, such as dates.
	keep func(match string) bool
}

var datePattern = regexp.MustCompile(`^(?:\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.]\d{4})$`)

// Order matters: API keys and cards run before phone numbers so long digit
// runs are not classified as phones.
var redactionRules = []redactionRule{
	{pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), marker: "[REDACTED_EMAIL]"},
	{pattern: regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_\-]{16,}|AIza[0-9A-Za-z_\-]{30,})`), marker: "[REDACTED_KEY]"},
	{pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), marker: "[REDACTED_CARD]"},
	{
		pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`),
		marker:  "[REDACTED_PHONE]",
		keep:    datePattern.MatchString,
	},
}

// RedactPII masks common high-risk PII patterns. Birth dates are left
// alone since they are the subject of the conversation.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range redactionRules {
		var next string
		if rule.keep == nil {
			next = rule.pattern.ReplaceAllString(out, rule.marker)
		} else {
			next = rule.pattern.ReplaceAllStringFunc(out, func(m string) string {
				if rule.keep(m) {
					return m
				}
				return rule.marker
			})
		}
		changed = changed || next != out
		out = next
	}
	return out, changed
}
