package parser

import (
	"strings"
)

// normalizeDotted strips whitespace that Python allows inside dotted names
// (`a . b`, line continuations).
func normalizeDotted(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\\\n", "")
	value = strings.ReplaceAll(value, "\n", "")
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\t", "")
	value = strings.ReplaceAll(value, " ", "")
	return value
}

func splatName(value string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(value), "*"))
}

func cleanDocstring(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimLeft(raw, "rRuUbBfF")
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if len(raw) >= 2*len(quote) && strings.HasPrefix(raw, quote) && strings.HasSuffix(raw, quote) {
			raw = raw[len(quote) : len(raw)-len(quote)]
			break
		}
	}
	return strings.TrimSpace(raw)
}
