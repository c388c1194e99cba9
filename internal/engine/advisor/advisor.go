// Package advisor turns a risk score into upgrade advice: an upgrade path,
// migration tips, and per-change fix hints.
package advisor

import (
	"fmt"
	"sort"

	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/engine/version"
)

type Effort string

const (
	EffortLow    Effort = "Low"
	EffortMedium Effort = "Medium"
	EffortHigh   Effort = "High"
)

const (
	maxIncrementalSteps = 5
	maxMilestoneSteps   = 3
)

type Recommendation struct {
	Path                []string `json:"recommended_path"`
	Rationale           string   `json:"rationale"`
	Effort              Effort   `json:"estimated_effort"`
	DeprecationWarnings []string `json:"deprecation_warnings,omitempty"`
}

// Recommend picks an upgrade strategy from the score's severity. history is
// the package's stable releases, any order; it may be empty.
func Recommend(dep risk.Dependency, score risk.Score, history []string) Recommendation {
	switch score.Severity {
	case risk.Critical, risk.High:
		return Recommendation{
			Path:      UpgradePath(dep, history),
			Rationale: "High risk detected. Recommend incremental upgrade to minimize compatibility issues.",
			Effort:    EffortHigh,
		}
	case risk.Medium:
		path := UpgradePath(dep, history)
		if len(path) > maxMilestoneSteps {
			path = []string{path[0], path[len(path)/2], path[len(path)-1]}
		}
		return Recommendation{
			Path:      path,
			Rationale: "Medium risk. Recommend testing at milestone versions to catch issues early.",
			Effort:    EffortMedium,
		}
	default:
		var path []string
		if dep.Target != "" {
			path = []string{dep.Target}
		}
		return Recommendation{
			Path:      path,
			Rationale: "Low risk detected. Direct upgrade recommended.",
			Effort:    EffortLow,
		}
	}
}

// UpgradePath lists the releases in (current, target], ascending. Paths
// longer than five steps are reduced to the first release of each new major
// version plus the target. A downgrade yields no path.
func UpgradePath(dep risk.Dependency, history []string) []string {
	if dep.Target == "" {
		return nil
	}
	if len(history) == 0 {
		return []string{dep.Target}
	}
	current, err := version.Parse(dep.Current)
	if err != nil {
		return []string{dep.Target}
	}
	target, err := version.Parse(dep.Target)
	if err != nil {
		return []string{dep.Target}
	}
	if version.Compare(target, current) <= 0 {
		return nil
	}

	var steps []version.Version
	for _, raw := range history {
		v, err := version.Parse(raw)
		if err != nil {
			continue
		}
		if version.Compare(v, current) > 0 && version.Compare(v, target) <= 0 {
			steps = append(steps, v)
		}
	}
	sort.SliceStable(steps, func(i, j int) bool { return version.Compare(steps[i], steps[j]) < 0 })

	path := make([]string, len(steps))
	for i, v := range steps {
		path[i] = v.Raw
	}
	if len(path) > maxIncrementalSteps {
		path = milestones(steps, current, dep.Target)
	}
	return path
}

func milestones(steps []version.Version, current version.Version, target string) []string {
	seen := map[int]bool{current.Major(): true}
	var out []string
	for _, v := range steps {
		if seen[v.Major()] {
			continue
		}
		seen[v.Major()] = true
		out = append(out, v.Raw)
	}
	if len(out) == 0 || out[len(out)-1] != target {
		out = append(out, target)
	}
	return out
}

const (
	usageTipThreshold     = 60
	semverTipThreshold    = 70
	changelogTipThreshold = 50
)

// MigrationTips gives generic advice for the factors that scored high.
func MigrationTips(score risk.Score) []string {
	var tips []string
	for _, f := range score.Factors {
		switch {
		case f.Name == risk.FactorUsage && f.Score > usageTipThreshold:
			tips = append(tips, "High usage impact detected. Review all import statements and function calls to this package.")
		case f.Name == risk.FactorSemver && f.Score > semverTipThreshold:
			tips = append(tips, "Major version change. Carefully review the migration guide and changelog for breaking changes.")
		case f.Name == risk.FactorChangelog && f.Score > changelogTipThreshold:
			tips = append(tips, "Significant changes documented in changelog. Read release notes before upgrading.")
		}
	}

	switch score.Severity {
	case risk.Critical:
		tips = append(tips, "CRITICAL: Create a dedicated branch and comprehensive test suite before attempting this upgrade.")
	case risk.High:
		tips = append(tips, "Test thoroughly in a staging environment before production.")
	}
	return append(tips,
		"Run your full test suite after upgrading.",
		"Consider using a virtual environment for testing.",
	)
}

// DeprecationWarnings reports deprecated symbols the codebase uses.
func DeprecationWarnings(nodes []symbols.UsageNode, changes []apidiff.Change) []string {
	used := usedPaths(nodes)
	var out []string
	for _, c := range changes {
		if c.ChangeType == apidiff.Deprecated && used[c.SymbolName] {
			out = append(out, fmt.Sprintf("%s is deprecated. %s", c.SymbolName, c.Description))
		}
	}
	return out
}

// CIPolicy decides which severities fail a CI run.
type CIPolicy struct {
	FailOnCritical bool `toml:"fail_on_critical" json:"fail_on_critical"`
	FailOnHigh     bool `toml:"fail_on_high" json:"fail_on_high"`
}

func ShouldBlockCI(policy CIPolicy, score risk.Score) bool {
	switch score.Severity {
	case risk.Critical:
		return policy.FailOnCritical
	case risk.High:
		return policy.FailOnHigh
	}
	return false
}

func usedPaths(nodes []symbols.UsageNode) map[string]bool {
	used := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		used[n.SymbolPath] = true
	}
	return used
}
