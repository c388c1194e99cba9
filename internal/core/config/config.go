// Package config loads upgradeimpact.toml and applies defaults, environment
// overrides and validation.
package config

import (
	"time"

	"upgradeimpact/internal/engine/advisor"
	"upgradeimpact/internal/engine/risk"
)

const (
	DefaultFile       = "upgradeimpact.toml"
	DefaultIgnoreFile = ".upgradeignore"
)

type Config struct {
	Version       int                  `toml:"version"`
	Paths         Paths                `toml:"paths"`
	Cache         Cache                `toml:"cache"`
	Risk          risk.Weights         `toml:"risk"`
	Analysis      Analysis             `toml:"analysis"`
	PyPI          PyPI                 `toml:"pypi"`
	CI            advisor.CIPolicy     `toml:"ci"`
	Observability Observability        `toml:"observability"`
	History       History              `toml:"history"`
	Dependencies  []DependencyConfig   `toml:"dependencies"`
	Policies      []advisor.RiskPolicy `toml:"policies"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	CacheDir    string `toml:"cache_dir"`
	Database    string `toml:"database"`
}

type Cache struct {
	// Enabled is a pointer so an explicit false survives applyDefaults.
	Enabled      *bool         `toml:"enabled"`
	PyPITTL      time.Duration `toml:"pypi_ttl"`
	ChangelogTTL time.Duration `toml:"changelog_ttl"`
}

func (c Cache) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type Analysis struct {
	ExcludeDirs  []string `toml:"exclude_dirs"`
	ExcludeFiles []string `toml:"exclude_files"`
	Workers      int      `toml:"workers"`
	Concurrency  int      `toml:"concurrency"`
	IncludeTests bool     `toml:"include_tests"`

	// Transitive pulls in requirements of the configured dependencies, up
	// to TransitiveDepth levels below them.
	Transitive      bool `toml:"transitive"`
	TransitiveDepth int  `toml:"transitive_depth"`
}

type PyPI struct {
	BaseURL           string        `toml:"base_url"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
	Timeout           time.Duration `toml:"timeout"`
	Offline           bool          `toml:"offline"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
	ServiceName  string `toml:"service_name"`
}

type History struct {
	Enabled bool `toml:"enabled"`
}

// DependencyConfig is one `[[dependencies]]` entry. An empty Target means
// the latest stable release on the index.
type DependencyConfig struct {
	Name        string   `toml:"name"`
	Current     string   `toml:"current"`
	Target      string   `toml:"target"`
	ImportNames []string `toml:"import_names"`
	Changelog   string   `toml:"changelog"`
}

func (d DependencyConfig) Dependency() risk.Dependency {
	return risk.Dependency{Name: d.Name, Current: d.Current, Target: d.Target}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	normalize(cfg)
	return cfg
}

// Changelogs maps dependency names to local changelog files.
func (c *Config) Changelogs() map[string]string {
	out := make(map[string]string)
	for _, d := range c.Dependencies {
		if d.Changelog != "" {
			out[d.Name] = ResolveRelative(c.Paths.ProjectRoot, d.Changelog)
		}
	}
	return out
}

// ImportNames maps dependency names to their configured import packages.
func (c *Config) ImportNames() map[string][]string {
	out := make(map[string][]string)
	for _, d := range c.Dependencies {
		if len(d.ImportNames) > 0 {
			out[d.Name] = append([]string(nil), d.ImportNames...)
		}
	}
	return out
}

// PolicyEngine compiles the configured `[[policies]]`.
func (c *Config) PolicyEngine() (*advisor.PolicyEngine, error) {
	return advisor.NewPolicyEngine(c.Policies)
}
