// Package report renders analysis results as Markdown and SARIF documents.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	coreapp "upgradeimpact/internal/core/app"
	"upgradeimpact/internal/engine/risk"
)

const markerPrefix = "upgradeimpact"

// GenerateMarkdown renders reports as a summary table followed by one
// section per dependency with breaking changes or warnings.
func GenerateMarkdown(reports []coreapp.Report) string {
	var b strings.Builder
	s := coreapp.Summarize(reports)

	b.WriteString("## Dependency upgrade risk\n\n")
	if len(reports) == 0 {
		b.WriteString("No dependencies need an upgrade.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d dependencies: %d critical, %d high, %d medium, %d low.\n\n",
		s.Total, s.Critical, s.High, s.Medium, s.Low)

	b.WriteString("| Package | Current | Target | Score | Severity | Effort |\n")
	b.WriteString("|---|---|---|---:|---|---|\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "| %s | %s | %s | %.1f | %s | %s |\n",
			escapeCell(r.Dependency.Name), escapeCell(r.Dependency.Current), escapeCell(r.Dependency.Target),
			r.Score.Total, severityBadge(r.Score.Severity), r.Recommendation.Effort)
	}

	for _, r := range reports {
		if len(r.BreakingChanges) == 0 && len(r.Warnings) == 0 && len(r.PolicyViolations) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s %s -> %s\n\n", r.Dependency.Name, r.Dependency.Current, r.Dependency.Target)
		if r.Dependency.Via != "" {
			fmt.Fprintf(&b, "Transitive, required by `%s`.\n\n", r.Dependency.Via)
		}
		if r.Recommendation.Rationale != "" {
			fmt.Fprintf(&b, "%s\n\n", r.Recommendation.Rationale)
		}
		if len(r.Recommendation.Path) > 1 {
			fmt.Fprintf(&b, "Suggested path: `%s`\n\n", strings.Join(r.Recommendation.Path, " -> "))
		}
		for _, bc := range r.BreakingChanges {
			fmt.Fprintf(&b, "- **%s** `%s`: %s. %s\n", bc.Change.ChangeType, bc.Change.SymbolName,
				bc.ImpactSummary(), bc.Recommendation)
			for _, u := range bc.AffectedUsage {
				fmt.Fprintf(&b, "  - `%s` line %s\n", u.FilePath, joinLines(u.LineNumbers))
			}
		}
		for _, v := range r.PolicyViolations {
			label := "policy"
			if v.Blocking {
				label = "blocking policy"
			}
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", label, v.Policy, v.Message)
		}
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- warning: %s\n", w)
		}
	}
	return b.String()
}

func severityBadge(s risk.Severity) string {
	switch s {
	case risk.Critical, risk.High:
		return "**" + string(s) + "**"
	}
	return string(s)
}

func escapeCell(v string) string {
	return strings.ReplaceAll(v, "|", `\|`)
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprint(l)
	}
	return strings.Join(parts, ", ")
}

// InjectSection replaces the content between the marker comments in a
// Markdown file. The file is rewritten through a temp file and rename.
func InjectSection(filePath, marker, content string) error {
	current, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read markdown file %q: %w", filePath, err)
	}

	next, err := ReplaceBetweenMarkers(string(current), marker, content)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".markdown-inject-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", filePath, err)
	}
	tmpName := tmp.Name()

	writeErr := error(nil)
	if _, err := tmp.WriteString(next); err != nil {
		writeErr = fmt.Errorf("write temp markdown file %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("close temp markdown file %q: %w", tmpName, err)
	}
	if writeErr != nil {
		_ = os.Remove(tmpName)
		return writeErr
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace markdown file %q: %w", filePath, err)
	}
	return nil
}

// ReplaceBetweenMarkers swaps the text between
// <!-- upgradeimpact:MARKER:start --> and <!-- upgradeimpact:MARKER:end -->.
// Each marker must appear exactly once. Line endings follow the content.
func ReplaceBetweenMarkers(content, marker, replacement string) (string, error) {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return "", fmt.Errorf("markdown marker must not be empty")
	}

	newline := "\n"
	if strings.Contains(content, "\r\n") {
		newline = "\r\n"
	}

	start := fmt.Sprintf("<!-- %s:%s:start -->", markerPrefix, marker)
	end := fmt.Sprintf("<!-- %s:%s:end -->", markerPrefix, marker)
	if strings.Count(content, start) != 1 || strings.Count(content, end) != 1 {
		return "", fmt.Errorf("markdown marker %q must appear exactly once for start and end", marker)
	}

	startIdx := strings.Index(content, start)
	endIdx := strings.Index(content, end)
	if endIdx < startIdx {
		return "", fmt.Errorf("invalid marker order for %q", marker)
	}

	body := strings.TrimRight(replacement, "\r\n")
	if newline == "\r\n" {
		body = strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n")
	}
	return content[:startIdx+len(start)] + newline + body + newline + content[endIdx:], nil
}
