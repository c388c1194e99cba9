// Package changelog parses release notes and narrows them to an upgrade
// range.
package changelog

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"upgradeimpact/internal/engine/version"
)

type Entry struct {
	Version string `json:"version"`
	Date    string `json:"release_date,omitempty"`
	Content string `json:"content"`
}

var (
	headerPattern = regexp.MustCompile(`^##?\s+\[?v?(\d+\.\d+(?:\.\d+)?(?:[a-zA-Z0-9.+-]*)?)\]?`)
	datePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	notesHeader   = regexp.MustCompile(`(?i)^#+\s*(release notes|changelog|change log|what's new|changes)`)
	breakingHead  = regexp.MustCompile(`(?i)^#+\s*breaking\s+changes?\s*[:\-]?\s*(.*)$`)
)

const maxBreakingChanges = 10

// ParseMarkdown splits a changelog on `# X.Y[.Z]` / `## [vX.Y.Z]` headers.
// Entries with no body are dropped.
func ParseMarkdown(markdown string) []Entry {
	var (
		entries []Entry
		current *Entry
		body    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if len(body) > 0 {
			current.Content = content
			entries = append(entries, *current)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			if current != nil {
				body = append(body, line)
			}
			continue
		}
		flush()
		current = &Entry{Version: m[1], Date: datePattern.FindString(line)}
		body = nil
	}
	flush()
	return entries
}

// FilterRange keeps entries with from < version <= to. Entries whose version
// cannot be parsed are kept; an unparseable bound disables filtering. Empty
// bounds are open.
func FilterRange(entries []Entry, from, to string) []Entry {
	var fromV, toV *version.Version
	if from != "" {
		v, err := version.Parse(from)
		if err != nil {
			return entries
		}
		fromV = &v
	}
	if to != "" {
		v, err := version.Parse(to)
		if err != nil {
			return entries
		}
		toV = &v
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		v, err := version.Parse(e.Version)
		if err != nil {
			out = append(out, e)
			continue
		}
		if fromV != nil && version.Compare(v, *fromV) <= 0 {
			continue
		}
		if toV != nil && version.Compare(v, *toV) > 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ExtractBreakingChanges collects bullets under "Breaking Changes" headings
// and any line mentioning breaking, removed or deprecated. At most ten
// distinct items are returned.
func ExtractBreakingChanges(e Entry) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	lines := strings.Split(e.Content, "\n")
	inSection := false
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := breakingHead.FindStringSubmatch(line); m != nil {
			inSection = true
			if rest := strings.TrimSpace(m[1]); isBullet(rest) {
				add(strings.TrimSpace(strings.TrimLeft(rest, "-*")))
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			inSection = false
			continue
		}
		if inSection && isBullet(line) {
			add(strings.TrimSpace(strings.TrimLeft(line, "-*")))
		}
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)
		if strings.Contains(lower, "breaking") || strings.Contains(lower, "removed") || strings.Contains(lower, "deprecated") {
			add(line)
		}
	}

	if len(out) > maxBreakingChanges {
		out = out[:maxBreakingChanges]
	}
	return out
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*")
}

// ExtractReleaseNotes returns the release-notes section of a long project
// description, or at most its first 500 bytes when there is none.
func ExtractReleaseNotes(description string) string {
	lines := strings.Split(strings.ReplaceAll(description, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if !notesHeader.MatchString(strings.TrimSpace(line)) {
			continue
		}
		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if strings.HasPrefix(strings.TrimSpace(lines[j]), "#") {
				end = j
				break
			}
		}
		return strings.TrimSpace(strings.Join(lines[i:end], "\n"))
	}
	return truncateUTF8(description, 500)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
