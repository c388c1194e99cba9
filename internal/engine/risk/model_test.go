package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/intel/changelog"
)

func defaultModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(DefaultWeights())
	require.NoError(t, err)
	return m
}

func node(path string) symbols.UsageNode {
	return symbols.UsageNode{PackageName: symbols.TopLevel(path), SymbolPath: path, FilePath: "app.py", LineNumbers: []int{1}}
}

func change(path string, ct apidiff.ChangeType) apidiff.Change {
	return apidiff.Change{SymbolName: path, ChangeType: ct}
}

func TestScenarioA_MajorJumpWithRemoval(t *testing.T) {
	score := defaultModel(t).Calculate(
		Dependency{Name: "requests", Current: "1.0.0", Target: "3.0.0"},
		[]symbols.UsageNode{node("requests.post")},
		[]apidiff.Change{change("requests.post", apidiff.Removed)},
		nil,
	)
	assert.Equal(t, 100.0, score.Factor(FactorSemver))
	assert.Equal(t, 100.0, score.Factor(FactorUsage))
	assert.Equal(t, 0.0, score.Factor(FactorChangelog))
	assert.Equal(t, 80.0, score.Total)
	assert.Equal(t, Critical, score.Severity)
}

func TestScenarioB_PatchBumpNoChanges(t *testing.T) {
	score := defaultModel(t).Calculate(
		Dependency{Name: "requests", Current: "2.28.0", Target: "2.28.1"},
		[]symbols.UsageNode{node("requests.get")},
		nil,
		nil,
	)
	assert.Equal(t, 12.0, score.Factor(FactorSemver))
	assert.Equal(t, 0.0, score.Factor(FactorUsage))
	assert.InDelta(t, 3.6, score.Total, 1e-9)
	assert.Equal(t, Low, score.Severity)
}

func TestScenarioC_DeprecatedOnly(t *testing.T) {
	score := UsageScore(
		[]symbols.UsageNode{node("requests.head")},
		[]apidiff.Change{change("requests.head", apidiff.Deprecated)},
	)
	assert.Equal(t, 50.0, score)
}

func TestCalculate_FactorsAndDescriptions(t *testing.T) {
	score := defaultModel(t).Calculate(
		Dependency{Name: "requests", Current: "2.0.0", Target: "2.1.0"},
		[]symbols.UsageNode{node("requests.get"), node("requests.post")},
		[]apidiff.Change{change("requests.get", apidiff.Modified)},
		[]changelog.Entry{{Version: "2.1.0", Content: "Fixed retries"}},
	)
	require.Len(t, score.Factors, 3)
	assert.Equal(t, Factor{Name: FactorSemver, Score: 45, Weight: 0.3, Description: "Version jump from 2.0.0 to 2.1.0"}, score.Factors[0])
	assert.Equal(t, Factor{Name: FactorUsage, Score: 80, Weight: 0.5, Description: "1 API changes affecting 2 usage points"}, score.Factors[1])
	assert.Equal(t, Factor{Name: FactorChangelog, Score: 10, Weight: 0.2, Description: "Based on 1 changelog entries"}, score.Factors[2])

	sum := 0.0
	for _, f := range score.Factors {
		sum += f.Score * f.Weight
	}
	assert.InDelta(t, sum, score.Total, 1e-9)
}

func TestCalculate_Deterministic(t *testing.T) {
	m := defaultModel(t)
	dep := Dependency{Name: "requests", Current: "2.0.0", Target: "3.1.4"}
	nodes := []symbols.UsageNode{node("requests.get"), node("requests.post")}
	changes := []apidiff.Change{change("requests.get", apidiff.Modified), change("requests.post", apidiff.Deprecated)}
	entries := []changelog.Entry{{Content: "Removed legacy API; added streaming"}, {Content: "Updated docs"}}

	first := m.Calculate(dep, nodes, changes, entries)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, m.Calculate(dep, nodes, changes, entries))
	}
}

func TestSemverScore(t *testing.T) {
	tests := []struct {
		current, target string
		want            float64
	}{
		{"1.0.0", "2.0.0", 80},
		{"1.0.0", "3.0.0", 100},
		{"1.0.0", "9.0.0", 100},
		{"3.0.0", "1.0.0", 100},
		{"1.0.0", "1.1.0", 45},
		{"1.0.0", "1.9.0", 60},
		{"1.0.0", "1.0.0", 10},
		{"1.0.0", "1.0.3", 16},
		{"1.0.0", "1.0.9", 20},
		{"1.0", "1.0.1", 12},
		{"1.0.0rc1", "1.0.0", 10},
		{"1.0.0", "", 0},
		{"not-a-version", "2.0.0", 0},
		{"1.0.0", "latest", 0},
	}
	for _, tt := range tests {
		t.Run(tt.current+"->"+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, SemverScore(tt.current, tt.target))
		})
	}
}

func TestSemverScore_BoundedAndMonotonicInMajor(t *testing.T) {
	prev := -1.0
	for major := 1; major <= 12; major++ {
		target := []string{"1.2.3", "2.2.3", "3.2.3", "4.2.3", "5.2.3", "6.2.3", "7.2.3", "8.2.3", "9.2.3", "10.2.3", "11.2.3", "12.2.3"}[major-1]
		got := SemverScore("1.2.3", target)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestUsageScore(t *testing.T) {
	used := []symbols.UsageNode{node("requests.get"), node("requests.post"), node("requests.head")}

	assert.Equal(t, 0.0, UsageScore(nil, nil))
	assert.Equal(t, 0.0, UsageScore(used, nil))
	assert.Equal(t, 10.0, UsageScore(used, []apidiff.Change{change("requests.other", apidiff.Removed)}))
	assert.Equal(t, 80.0, UsageScore(used, []apidiff.Change{change("requests.get", apidiff.Modified)}))
	assert.Equal(t, 90.0, UsageScore(used, []apidiff.Change{
		change("requests.get", apidiff.Modified),
		change("requests.post", apidiff.Modified),
		change("requests.head", apidiff.Modified),
	}))
	assert.Equal(t, 60.0, UsageScore(used, []apidiff.Change{
		change("requests.get", apidiff.Deprecated),
		change("requests.post", apidiff.Deprecated),
		change("requests.head", apidiff.Deprecated),
	}))
}

func TestUsageScore_RemovedTakesPriority(t *testing.T) {
	used := []symbols.UsageNode{node("requests.get"), node("requests.post")}
	changes := []apidiff.Change{
		change("requests.get", apidiff.Modified),
		change("requests.get", apidiff.Deprecated),
		change("requests.post", apidiff.Removed),
		change("requests.unused", apidiff.Modified),
	}
	assert.Equal(t, 100.0, UsageScore(used, changes))
}

func TestChangelogScore(t *testing.T) {
	assert.Equal(t, 0.0, ChangelogScore(nil))
	assert.Equal(t, 0.0, ChangelogScore([]changelog.Entry{{Content: "Documentation tweaks"}}))

	// "breaking change" and "breaking" both match.
	assert.Equal(t, 100.0, EntryScore(changelog.Entry{Content: "BREAKING CHANGE: new API"}))
	// removed (100) + added (10)
	assert.Equal(t, 55.0, EntryScore(changelog.Entry{Content: "Removed foo, added bar"}))
	assert.Equal(t, 27.5, ChangelogScore([]changelog.Entry{
		{Content: "Removed foo, added bar"},
		{Content: "nothing notable"},
	}))
}

func TestMatchKeywords(t *testing.T) {
	got := MatchKeywords("Deprecated the old client; fixed a bug")
	assert.Equal(t, []KeywordMatch{
		{Keyword: "deprecated", Severity: High},
		{Keyword: "fixed", Severity: Low},
	}, got)
}

func TestValidateWeights(t *testing.T) {
	assert.NoError(t, ValidateWeights(DefaultWeights()))
	assert.NoError(t, ValidateWeights(Weights{Semver: 1}))

	err := ValidateWeights(Weights{Semver: 0.3, Usage: 0.5, Changelog: 0.3})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	assert.Error(t, ValidateWeights(Weights{Semver: -0.5, Usage: 1.5}))

	_, err = NewModel(Weights{Semver: 0.5, Usage: 0.4})
	assert.Error(t, err)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, Critical, SeverityFor(80))
	assert.Equal(t, High, SeverityFor(79.999))
	assert.Equal(t, High, SeverityFor(60))
	assert.Equal(t, Medium, SeverityFor(30))
	assert.Equal(t, Low, SeverityFor(29.9))
	assert.Less(t, Low.Rank(), Critical.Rank())
}
