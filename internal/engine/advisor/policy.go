package advisor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/engine/version"
)

// RiskPolicy is one `[[policies]]` rule. A policy with neither Packages nor
// PackageRegex applies to every dependency.
type RiskPolicy struct {
	Name         string   `toml:"name" json:"name"`
	Description  string   `toml:"description" json:"description,omitempty"`
	Packages     []string `toml:"packages" json:"packages,omitempty"`
	PackageRegex string   `toml:"package_regex" json:"package_regex,omitempty"`

	MaxSemverMajor *int     `toml:"max_semver_major" json:"max_semver_major,omitempty"`
	MaxRiskScore   *float64 `toml:"max_risk_score" json:"max_risk_score,omitempty"`

	RequireApproval bool `toml:"require_approval" json:"require_approval,omitempty"`
	BlockUpgrade    bool `toml:"block_upgrade" json:"block_upgrade,omitempty"`
}

type PolicyViolation struct {
	Policy   string        `json:"policy"`
	Package  string        `json:"package"`
	Message  string        `json:"message"`
	Severity risk.Severity `json:"severity"`
	// Blocking violations fail CI regardless of the severity thresholds.
	Blocking bool `json:"blocking"`
}

type compiledPolicy struct {
	RiskPolicy
	globs []glob.Glob
	regex *regexp.Regexp
}

// PolicyEngine evaluates reports against custom policies. The zero value and
// a nil engine have no policies.
type PolicyEngine struct {
	policies []compiledPolicy
}

// NewPolicyEngine compiles package globs (lowercased) and regexes. The regex
// is anchored at the start of the name and matched case-insensitively.
func NewPolicyEngine(policies []RiskPolicy) (*PolicyEngine, error) {
	e := &PolicyEngine{}
	for i, p := range policies {
		if strings.TrimSpace(p.Name) == "" {
			p.Name = fmt.Sprintf("policy %d", i+1)
		}
		cp := compiledPolicy{RiskPolicy: p}
		for _, pattern := range p.Packages {
			g, err := glob.Compile(strings.ToLower(pattern))
			if err != nil {
				return nil, policyError(p.Name, fmt.Sprintf("invalid package glob %q", pattern), err)
			}
			cp.globs = append(cp.globs, g)
		}
		if p.PackageRegex != "" {
			re, err := regexp.Compile(`(?i)^(?:` + p.PackageRegex + `)`)
			if err != nil {
				return nil, policyError(p.Name, fmt.Sprintf("invalid package_regex %q", p.PackageRegex), err)
			}
			cp.regex = re
		}
		if p.MaxSemverMajor != nil && *p.MaxSemverMajor < 0 {
			return nil, policyError(p.Name, "max_semver_major must be >= 0", nil)
		}
		if p.MaxRiskScore != nil && (*p.MaxRiskScore < 0 || *p.MaxRiskScore > 100) {
			return nil, policyError(p.Name, "max_risk_score must be within [0, 100]", nil)
		}
		e.policies = append(e.policies, cp)
	}
	return e, nil
}

func policyError(name, msg string, cause error) error {
	var err error
	if cause != nil {
		err = errors.Wrap(cause, errors.CodeValidationError, msg)
	} else {
		err = errors.New(errors.CodeValidationError, msg)
	}
	return errors.AddContext(err, errors.CtxPolicy, name)
}

func (e *PolicyEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.policies)
}

// Evaluate returns at most one violation per applicable policy, checking
// the major version jump, then the risk score, then the approval flag.
func (e *PolicyEngine) Evaluate(dep risk.Dependency, score risk.Score) []PolicyViolation {
	if e == nil {
		return nil
	}
	var out []PolicyViolation
	for _, p := range e.policies {
		if !p.appliesTo(dep.Name) {
			continue
		}
		if v, ok := p.check(dep, score); ok {
			out = append(out, v)
		}
	}
	return out
}

func (p compiledPolicy) appliesTo(name string) bool {
	name = strings.ToLower(name)
	for _, g := range p.globs {
		if g.Match(name) {
			return true
		}
	}
	if p.regex != nil && p.regex.MatchString(name) {
		return true
	}
	return len(p.globs) == 0 && p.regex == nil
}

func (p compiledPolicy) check(dep risk.Dependency, score risk.Score) (PolicyViolation, bool) {
	v := PolicyViolation{Policy: p.Name, Package: dep.Name, Severity: risk.Medium}
	if p.BlockUpgrade {
		v.Severity, v.Blocking = risk.High, true
	}

	if p.MaxSemverMajor != nil {
		cur, errCur := version.Parse(dep.Current)
		tgt, errTgt := version.Parse(dep.Target)
		if errCur == nil && errTgt == nil {
			if jump := tgt.Major() - cur.Major(); jump > *p.MaxSemverMajor {
				v.Message = fmt.Sprintf("Major version jump (%d) exceeds policy limit (%d)", jump, *p.MaxSemverMajor)
				return v, true
			}
		}
	}
	if p.MaxRiskScore != nil && score.Total > *p.MaxRiskScore {
		v.Message = fmt.Sprintf("Risk score (%.0f) exceeds policy limit (%g)", score.Total, *p.MaxRiskScore)
		return v, true
	}
	if p.RequireApproval {
		return PolicyViolation{
			Policy:   p.Name,
			Package:  dep.Name,
			Message:  "Upgrade requires manual approval per policy",
			Severity: risk.Medium,
		}, true
	}
	return PolicyViolation{}, false
}

// BlocksOnPolicy reports whether any violation is blocking.
func BlocksOnPolicy(violations []PolicyViolation) bool {
	for _, v := range violations {
		if v.Blocking {
			return true
		}
	}
	return false
}
