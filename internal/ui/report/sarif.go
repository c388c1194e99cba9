package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	coreapp "upgradeimpact/internal/core/app"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/risk"
)

// SARIF v2.1.0, https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"

	ruleIDRemoved    = "UPG001"
	ruleIDModified   = "UPG002"
	ruleIDDeprecated = "UPG003"
	ruleIDRisk       = "UPG004"
	ruleIDPolicy     = "UPG005"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine int `json:"startLine,omitempty"`
}

var sarifRules = map[string]sarifRule{
	ruleIDRemoved: {
		ID:               ruleIDRemoved,
		Name:             "RemovedSymbolUsed",
		ShortDescription: sarifMessage{Text: "A symbol the project uses is removed in the target version."},
		DefaultConfig:    sarifRuleDefaultConfig{Level: "error"},
	},
	ruleIDModified: {
		ID:               ruleIDModified,
		Name:             "ModifiedSignatureUsed",
		ShortDescription: sarifMessage{Text: "A symbol the project uses changes its signature in the target version."},
		DefaultConfig:    sarifRuleDefaultConfig{Level: "warning"},
	},
	ruleIDDeprecated: {
		ID:               ruleIDDeprecated,
		Name:             "DeprecatedSymbolUsed",
		ShortDescription: sarifMessage{Text: "A symbol the project uses is deprecated in the target version."},
		DefaultConfig:    sarifRuleDefaultConfig{Level: "note"},
	},
	ruleIDRisk: {
		ID:               ruleIDRisk,
		Name:             "UpgradeRisk",
		ShortDescription: sarifMessage{Text: "Overall risk of upgrading a dependency."},
		DefaultConfig:    sarifRuleDefaultConfig{Level: "warning"},
	},
	ruleIDPolicy: {
		ID:               ruleIDPolicy,
		Name:             "PolicyViolation",
		ShortDescription: sarifMessage{Text: "An upgrade breaks a configured risk policy."},
		DefaultConfig:    sarifRuleDefaultConfig{Level: "warning"},
	},
}

// GenerateSARIF emits one result per usage site of a changed symbol and one
// risk result per dependency. File URIs are relative to projectRoot.
func GenerateSARIF(projectRoot, toolVersion string, reports []coreapp.Report) ([]byte, error) {
	results := make([]sarifResult, 0)
	used := map[string]bool{}

	for _, r := range reports {
		dep := r.Dependency
		results = append(results, sarifResult{
			RuleID: ruleIDRisk,
			Level:  severityToLevel(r.Score.Severity),
			Message: sarifMessage{Text: fmt.Sprintf("Upgrading %s %s -> %s scores %.1f (%s)",
				dep.Name, dep.Current, dep.Target, r.Score.Total, r.Score.Severity)},
			Properties: map[string]any{
				"package":  dep.Name,
				"score":    r.Score.Total,
				"severity": string(r.Score.Severity),
				"coverage": string(r.Coverage),
			},
		})
		used[ruleIDRisk] = true

		for _, v := range r.PolicyViolations {
			level := "warning"
			if v.Blocking {
				level = "error"
			}
			results = append(results, sarifResult{
				RuleID:  ruleIDPolicy,
				Level:   level,
				Message: sarifMessage{Text: fmt.Sprintf("%s (%s %s -> %s): %s", v.Policy, dep.Name, dep.Current, dep.Target, v.Message)},
				Properties: map[string]any{
					"package":  dep.Name,
					"policy":   v.Policy,
					"blocking": v.Blocking,
				},
			})
			used[ruleIDPolicy] = true
		}

		for _, c := range r.Changes {
			ruleID := changeRuleID(c.ChangeType)
			for _, n := range r.Nodes {
				if n.SymbolPath != c.SymbolName {
					continue
				}
				msg := fmt.Sprintf("%s (%s %s -> %s): %s", c.SymbolName, dep.Name, dep.Current, dep.Target, c.Description)
				result := sarifResult{
					RuleID:  ruleID,
					Level:   sarifRules[ruleID].DefaultConfig.Level,
					Message: sarifMessage{Text: msg},
				}
				loc := sarifLocation{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{
							URI:       relativeURI(projectRoot, n.FilePath),
							URIBaseID: "%SRCROOT%",
						},
					},
				}
				if len(n.LineNumbers) > 0 {
					loc.PhysicalLocation.Region = &sarifRegion{StartLine: n.LineNumbers[0]}
				}
				result.Locations = []sarifLocation{loc}
				results = append(results, result)
				used[ruleID] = true
			}
		}
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    "upgradeimpact",
						Version: toolVersion,
						Rules:   rulesFor(used),
					},
				},
				Results: results,
			},
		},
	}
	return json.MarshalIndent(report, "", "  ")
}

// rulesFor returns only the rules referenced by results, ordered by id.
func rulesFor(used map[string]bool) []sarifRule {
	rules := make([]sarifRule, 0, len(used))
	for id := range used {
		rules = append(rules, sarifRules[id])
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

func changeRuleID(t apidiff.ChangeType) string {
	switch t {
	case apidiff.Removed:
		return ruleIDRemoved
	case apidiff.Modified:
		return ruleIDModified
	default:
		return ruleIDDeprecated
	}
}

func severityToLevel(s risk.Severity) string {
	switch s {
	case risk.Critical, risk.High:
		return "error"
	case risk.Medium:
		return "warning"
	default:
		return "note"
	}
}

// relativeURI converts a file path to a forward-slash URI relative to
// projectRoot. Relative paths are kept as they are.
func relativeURI(projectRoot, filePath string) string {
	if projectRoot != "" && filepath.IsAbs(filePath) {
		if rel, err := filepath.Rel(projectRoot, filePath); err == nil {
			filePath = rel
		}
	}
	return filepath.ToSlash(filePath)
}
