package risk

import (
	"strings"

	"upgradeimpact/internal/intel/changelog"
)

// Keyword tables are matched as lowercase substrings; each keyword counts at
// most once per entry, so "breaking change" also matches "breaking".
var (
	criticalKeywords = []string{
		"removed", "deleted", "breaking change", "breaking", "incompatible",
		"no longer supported", "no longer", "dropped support", "dropped",
	}
	highKeywords = []string{
		"deprecated", "renamed", "changed behavior", "behavior change",
		"major change", "migration required", "must migrate",
	}
	mediumKeywords = []string{
		"changed", "modified", "updated", "migrated", "refactored", "replaced",
	}
	lowKeywords = []string{
		"added", "improved", "enhanced", "optimized", "fixed", "bugfix",
	}
)

var severityWeights = map[Severity]float64{
	Critical: 100,
	High:     70,
	Medium:   40,
	Low:      10,
}

type KeywordMatch struct {
	Keyword  string   `json:"keyword"`
	Severity Severity `json:"severity"`
}

// MatchKeywords returns matches in table order, critical first.
func MatchKeywords(text string) []KeywordMatch {
	lower := strings.ToLower(text)
	var out []KeywordMatch
	for _, table := range []struct {
		sev      Severity
		keywords []string
	}{
		{Critical, criticalKeywords},
		{High, highKeywords},
		{Medium, mediumKeywords},
		{Low, lowKeywords},
	} {
		for _, kw := range table.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, KeywordMatch{Keyword: kw, Severity: table.sev})
			}
		}
	}
	return out
}

// EntryScore is the mean severity weight of the entry's matches, 0 when
// nothing matches.
func EntryScore(e changelog.Entry) float64 {
	matches := MatchKeywords(e.Content)
	if len(matches) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range matches {
		total += severityWeights[m.Severity]
	}
	score := total / float64(len(matches))
	if score > 100 {
		score = 100
	}
	return score
}
