package advisor

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/engine/symbols"
)

// BreakingChange is a removed or modified symbol together with the usage it
// affects.
type BreakingChange struct {
	Dependency     risk.Dependency     `json:"dependency"`
	Change         apidiff.Change      `json:"api_change"`
	AffectedUsage  []symbols.UsageNode `json:"affected_usage"`
	Recommendation string              `json:"recommendation"`
}

// ImpactSummary counts usages (calls, or import lines when no call was seen)
// and distinct files.
func (b BreakingChange) ImpactSummary() string {
	files := map[string]bool{}
	usages := 0
	for _, u := range b.AffectedUsage {
		files[u.FilePath] = true
		n := u.CallCount
		if n < len(u.LineNumbers) {
			n = len(u.LineNumbers)
		}
		usages += n
	}
	return fmt.Sprintf("Affects %d usage(s) across %d file(s)", usages, len(files))
}

func IsBreaking(c apidiff.Change) bool {
	return c.ChangeType == apidiff.Removed || c.ChangeType == apidiff.Modified
}

// BreakingChanges pairs each breaking change with the usage nodes of its
// symbol, in change order.
func BreakingChanges(dep risk.Dependency, changes []apidiff.Change, nodes []symbols.UsageNode) []BreakingChange {
	var out []BreakingChange
	for _, c := range changes {
		if !IsBreaking(c) {
			continue
		}
		var affected []symbols.UsageNode
		for _, n := range nodes {
			if n.SymbolPath == c.SymbolName {
				affected = append(affected, n)
			}
		}
		out = append(out, BreakingChange{
			Dependency:     dep,
			Change:         c,
			AffectedUsage:  affected,
			Recommendation: FixRecommendation(c),
		})
	}
	return out
}

func FixRecommendation(c apidiff.Change) string {
	switch c.ChangeType {
	case apidiff.Removed:
		return fmt.Sprintf("Function '%s' was removed. Check documentation for alternative approaches.", c.SymbolName)
	case apidiff.Modified:
		msg := fmt.Sprintf("Function '%s' signature changed. Review new signature: %s", c.SymbolName, deref(c.NewSignature))
		if c.OldSignature != nil && c.NewSignature != nil {
			msg += " (" + SignatureDiff(*c.OldSignature, *c.NewSignature) + ")"
		}
		return msg
	case apidiff.Deprecated:
		return fmt.Sprintf("Function '%s' is deprecated. Consider migrating to the recommended alternative.", c.SymbolName)
	}
	return "Review the changelog for migration instructions."
}

// SignatureDiff renders old against new inline: [-removed-]{+added+}.
func SignatureDiff(oldSig, newSig string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(oldSig, newSig, false))

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
