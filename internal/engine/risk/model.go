// Package risk turns version distance, API impact on used symbols and
// changelog wording into a weighted score and severity.
package risk

import (
	"fmt"
	"math"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/engine/version"
	"upgradeimpact/internal/intel/changelog"
)

type Severity string

const (
	Low      Severity = "low"
	Medium   Severity = "medium"
	High     Severity = "high"
	Critical Severity = "critical"
)

// Rank orders severities, Low lowest.
func (s Severity) Rank() int {
	switch s {
	case Critical:
		return 3
	case High:
		return 2
	case Medium:
		return 1
	}
	return 0
}

const (
	criticalThreshold = 80
	highThreshold     = 60
	mediumThreshold   = 30
)

func SeverityFor(total float64) Severity {
	switch {
	case total >= criticalThreshold:
		return Critical
	case total >= highThreshold:
		return High
	case total >= mediumThreshold:
		return Medium
	default:
		return Low
	}
}

const (
	FactorSemver    = "SemVer Distance"
	FactorUsage     = "Usage Impact"
	FactorChangelog = "Changelog Severity"
)

type Factor struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

type Score struct {
	Total    float64  `json:"total_score"`
	Severity Severity `json:"severity"`
	Factors  []Factor `json:"factors"`
}

// Factor returns the named factor's score, 0 if absent.
func (s Score) Factor(name string) float64 {
	for _, f := range s.Factors {
		if f.Name == name {
			return f.Score
		}
	}
	return 0
}

type Weights struct {
	Semver    float64 `toml:"semver_weight" json:"semver_weight"`
	Usage     float64 `toml:"usage_weight" json:"usage_weight"`
	Changelog float64 `toml:"changelog_weight" json:"changelog_weight"`
}

func DefaultWeights() Weights {
	return Weights{Semver: 0.3, Usage: 0.5, Changelog: 0.2}
}

const weightTolerance = 1e-9

// ValidateWeights rejects weights outside [0,1] or not summing to 1.0.
// Weights are never renormalized.
func ValidateWeights(w Weights) error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"semver", w.Semver}, {"usage", w.Usage}, {"changelog", w.Changelog}} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return errors.Newf(errors.CodeValidationError, "%s weight must be within [0,1], got %v", f.name, f.v)
		}
	}
	sum := w.Semver + w.Usage + w.Changelog
	if math.Abs(sum-1.0) > weightTolerance {
		return errors.Newf(errors.CodeValidationError, "risk weights must sum to 1.0, got %v", sum)
	}
	return nil
}

type Dependency struct {
	Name    string `json:"name"`
	Current string `json:"current_version"`
	Target  string `json:"target_version"`
	// Via names the direct dependency a transitive one was reached through.
	Via string `json:"via,omitempty"`
}

// Model is immutable and safe for concurrent use.
type Model struct {
	weights Weights
}

func NewModel(w Weights) (*Model, error) {
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}
	return &Model{weights: w}, nil
}

func (m *Model) Weights() Weights { return m.weights }

func (m *Model) Calculate(dep Dependency, nodes []symbols.UsageNode, changes []apidiff.Change, entries []changelog.Entry) Score {
	factors := []Factor{
		{
			Name:        FactorSemver,
			Score:       SemverScore(dep.Current, dep.Target),
			Weight:      m.weights.Semver,
			Description: fmt.Sprintf("Version jump from %s to %s", dep.Current, dep.Target),
		},
		{
			Name:        FactorUsage,
			Score:       UsageScore(nodes, changes),
			Weight:      m.weights.Usage,
			Description: fmt.Sprintf("%d API changes affecting %d usage points", len(changes), len(nodes)),
		},
		{
			Name:        FactorChangelog,
			Score:       ChangelogScore(entries),
			Weight:      m.weights.Changelog,
			Description: fmt.Sprintf("Based on %d changelog entries", len(entries)),
		},
	}

	total := 0.0
	for _, f := range factors {
		// The conversion rounds the product so the sum is not fused.
		total += float64(f.Score * f.Weight)
	}
	return Score{Total: total, Severity: SeverityFor(total), Factors: factors}
}

// SemverScore grades the release distance between two versions. A missing
// target or an unparseable version scores 0.
func SemverScore(current, target string) float64 {
	if target == "" || current == "" {
		return 0
	}
	cv, err := version.Parse(current)
	if err != nil {
		return 0
	}
	tv, err := version.Parse(target)
	if err != nil {
		return 0
	}

	dMajor := absInt(tv.Major() - cv.Major())
	dMinor := absInt(tv.Minor() - cv.Minor())
	dPatch := absInt(tv.Patch() - cv.Patch())

	switch {
	case dMajor >= 1:
		return math.Min(80+float64(dMajor-1)*20, 100)
	case dMinor >= 1:
		return math.Min(40+float64(dMinor)*5, 60)
	default:
		return math.Min(10+float64(dPatch)*2, 20)
	}
}

// UsageScore applies the removed > modified > deprecated priority to the
// changes that touch a used symbol.
func UsageScore(nodes []symbols.UsageNode, changes []apidiff.Change) float64 {
	if len(changes) == 0 {
		return 0
	}
	used := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		used[n.SymbolPath] = true
	}

	var removed, modified, deprecated int
	for _, c := range changes {
		if !used[c.SymbolName] {
			continue
		}
		switch c.ChangeType {
		case apidiff.Removed:
			removed++
		case apidiff.Modified:
			modified++
		case apidiff.Deprecated:
			deprecated++
		}
	}

	switch {
	case removed > 0:
		return 100
	case modified > 0:
		return math.Min(70+10*float64(modified), 90)
	case deprecated > 0:
		return math.Min(40+10*float64(deprecated), 60)
	default:
		return 10
	}
}

func ChangelogScore(entries []changelog.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	total := 0.0
	for _, e := range entries {
		total += EntryScore(e)
	}
	return total / float64(len(entries))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
