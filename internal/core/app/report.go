package app

import (
	"upgradeimpact/internal/engine/advisor"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/engine/usage"
	"upgradeimpact/internal/intel/changelog"
)

// Report is the full assessment of one dependency upgrade.
type Report struct {
	Dependency      risk.Dependency          `json:"dependency"`
	Score           risk.Score               `json:"risk_score"`
	Changes         []apidiff.Change         `json:"api_changes"`
	Coverage        apidiff.Coverage         `json:"coverage"`
	BreakingChanges []advisor.BreakingChange `json:"breaking_changes"`
	Changelog       []changelog.Entry        `json:"changelog_entries"`
	Recommendation  advisor.Recommendation   `json:"recommendation"`
	MigrationTips   []string                 `json:"migration_tips"`
	Usage           usage.Summary            `json:"usage_summary"`
	Nodes           []symbols.UsageNode      `json:"usage_nodes"`
	Warnings        []string                 `json:"warnings,omitempty"`

	PolicyViolations []advisor.PolicyViolation `json:"policy_violations,omitempty"`
}

// BlocksCI reports whether any report fails the severity thresholds or
// carries a blocking policy violation.
func BlocksCI(policy advisor.CIPolicy, reports []Report) bool {
	for _, r := range reports {
		if advisor.ShouldBlockCI(policy, r.Score) || advisor.BlocksOnPolicy(r.PolicyViolations) {
			return true
		}
	}
	return false
}

// Summary counts reports per severity.
type Summary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

func Summarize(reports []Report) Summary {
	s := Summary{Total: len(reports)}
	for _, r := range reports {
		switch r.Score.Severity {
		case risk.Critical:
			s.Critical++
		case risk.High:
			s.High++
		case risk.Medium:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s
}
