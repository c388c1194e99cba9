package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/engine/risk"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version = 1

[paths]
project_root = "./app"
cache_dir = "/tmp/ui-cache"

[cache]
enabled = false
pypi_ttl = "2h"

[risk]
semver_weight = 0.4
usage_weight = 0.4
changelog_weight = 0.2

[analysis]
exclude_dirs = ["migrations", " .venv "]
exclude_files = ["*_pb2.py"]
workers = 8
transitive = true

[pypi]
base_url = "https://mirror.example/"
offline = true

[ci]
fail_on_high = true

[[dependencies]]
name = "requests"
current = "2.25.0"
target = "2.31.0"

[[dependencies]]
name = "PyYAML"
current = "5.4"
import_names = ["yaml"]
changelog = "docs/yaml-changes.md"

[[policies]]
name = " frameworks "
packages = ["django*", " flask "]
max_semver_major = 0
block_upgrade = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./app", cfg.Paths.ProjectRoot)
	assert.Equal(t, "/tmp/ui-cache", cfg.Paths.CacheDir)
	assert.False(t, cfg.Cache.IsEnabled())
	assert.Equal(t, 2*time.Hour, cfg.Cache.PyPITTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.ChangelogTTL)
	assert.Equal(t, risk.Weights{Semver: 0.4, Usage: 0.4, Changelog: 0.2}, cfg.Risk)
	assert.Equal(t, []string{"migrations", ".venv"}, cfg.Analysis.ExcludeDirs)
	assert.Equal(t, 8, cfg.Analysis.Workers)
	assert.Equal(t, 4, cfg.Analysis.Concurrency)
	assert.Equal(t, "https://mirror.example", cfg.PyPI.BaseURL)
	assert.True(t, cfg.PyPI.Offline)
	assert.True(t, cfg.CI.FailOnHigh)
	assert.False(t, cfg.CI.FailOnCritical)

	require.Len(t, cfg.Dependencies, 2)
	assert.Equal(t, risk.Dependency{Name: "requests", Current: "2.25.0", Target: "2.31.0"}, cfg.Dependencies[0].Dependency())
	assert.Equal(t, map[string][]string{"PyYAML": {"yaml"}}, cfg.ImportNames())
	assert.Equal(t, map[string]string{"PyYAML": filepath.Join("app", "docs", "yaml-changes.md")}, cfg.Changelogs())

	assert.True(t, cfg.Analysis.Transitive)
	assert.Equal(t, 2, cfg.Analysis.TransitiveDepth)
	require.Len(t, cfg.Policies, 1)
	assert.Equal(t, "frameworks", cfg.Policies[0].Name)
	assert.Equal(t, []string{"django*", "flask"}, cfg.Policies[0].Packages)
	require.NotNil(t, cfg.Policies[0].MaxSemverMajor)
	assert.Equal(t, 0, *cfg.Policies[0].MaxSemverMajor)

	engine, err := cfg.PolicyEngine()
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Len())
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1, cfg.Version)
	assert.True(t, cfg.Cache.IsEnabled())
	assert.Equal(t, risk.DefaultWeights(), cfg.Risk)
	assert.Equal(t, "https://pypi.org", cfg.PyPI.BaseURL)
	assert.Contains(t, cfg.Analysis.ExcludeDirs, ".venv")
	assert.Equal(t, "upgradeimpact", cfg.Observability.ServiceName)
	require.NoError(t, Validate(cfg))
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().PyPI, cfg.PyPI)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"weights do not sum", "[risk]\nsemver_weight = 0.5\nusage_weight = 0.5\nchangelog_weight = 0.5\n"},
		{"bad glob", "[analysis]\nexclude_files = [\"[unterminated\"]\n"},
		{"negative workers", "[analysis]\nworkers = -1\n"},
		{"unsupported version", "version = 3\n"},
		{"empty dependency", "[[dependencies]]\ncurrent = \"1.0\"\n"},
		{"duplicate dependency", "[[dependencies]]\nname = \"flask\"\n[[dependencies]]\nname = \"Flask\"\n"},
		{"bad base url", "[pypi]\nbase_url = \"ftp://example\"\n"},
		{"transitive depth", "[analysis]\ntransitive_depth = 9\n"},
		{"bad policy regex", "[[policies]]\nname = \"aws\"\npackage_regex = \"(boto\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidationError), "got %v", err)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("UPGRADEIMPACT_PYPI_OFFLINE", "true")
	t.Setenv("UPGRADEIMPACT_ANALYSIS_WORKERS", "16")
	t.Setenv("UPGRADEIMPACT_CACHE_ENABLED", "false")
	t.Setenv("UPGRADEIMPACT_CACHE_PYPI_TTL", "15m")
	t.Setenv("UPGRADEIMPACT_RISK_USAGE_WEIGHT", "not-a-number")
	t.Setenv("UPGRADEIMPACT_PYPI_BASE_URL", " https://proxy.local/ ")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	assert.True(t, cfg.PyPI.Offline)
	assert.Equal(t, 16, cfg.Analysis.Workers)
	assert.False(t, cfg.Cache.IsEnabled())
	assert.Equal(t, 15*time.Minute, cfg.Cache.PyPITTL)
	assert.Equal(t, risk.DefaultWeights().Usage, cfg.Risk.Usage, "unparseable values are ignored")
	assert.Equal(t, "https://proxy.local", cfg.PyPI.BaseURL)
}

func TestLoadIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultIgnoreFile)
	require.NoError(t, os.WriteFile(path, []byte("# pinned on purpose\nDjango\n\nnumpy  # abi\n"), 0o644))

	ignored, err := LoadIgnoreFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"django": true, "numpy": true}, ignored)

	ignored, err = LoadIgnoreFile(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, ignored)
}

func TestResolveRelative(t *testing.T) {
	assert.Equal(t, filepath.Clean("/root/project"), ResolveRelative("/root/project", ""))
	assert.Equal(t, filepath.Clean("/abs/db.sqlite"), ResolveRelative("/root/project", "/abs/db.sqlite"))
	assert.Equal(t, filepath.Join("/root/project", ".upgradeimpact", "history.db"), ResolveRelative("/root/project", ".upgradeimpact/history.db"))
}
