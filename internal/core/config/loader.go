package config

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/engine/risk"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "decode config"), "path", path)
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.ProjectRoot) == "" {
		cfg.Paths.ProjectRoot = "."
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		cfg.Paths.CacheDir = defaultCacheDir()
	}
	if strings.TrimSpace(cfg.Paths.Database) == "" {
		cfg.Paths.Database = ".upgradeimpact/history.db"
	}

	if cfg.Cache.PyPITTL <= 0 {
		cfg.Cache.PyPITTL = 24 * time.Hour
	}
	if cfg.Cache.ChangelogTTL <= 0 {
		cfg.Cache.ChangelogTTL = 7 * 24 * time.Hour
	}

	if cfg.Risk == (risk.Weights{}) {
		cfg.Risk = risk.DefaultWeights()
	}

	if cfg.Analysis.ExcludeDirs == nil {
		cfg.Analysis.ExcludeDirs = []string{".git", ".venv", "venv", "env", "node_modules", "__pycache__", "build", "dist", ".tox", ".mypy_cache"}
	}
	if cfg.Analysis.Workers == 0 {
		cfg.Analysis.Workers = 4
	}
	if cfg.Analysis.Concurrency == 0 {
		cfg.Analysis.Concurrency = 4
	}
	if cfg.Analysis.TransitiveDepth == 0 {
		cfg.Analysis.TransitiveDepth = 2
	}

	if strings.TrimSpace(cfg.PyPI.BaseURL) == "" {
		cfg.PyPI.BaseURL = "https://pypi.org"
	}
	if cfg.PyPI.RequestsPerSecond == 0 {
		cfg.PyPI.RequestsPerSecond = 10
	}
	if cfg.PyPI.Burst == 0 {
		cfg.PyPI.Burst = 5
	}
	if cfg.PyPI.Timeout <= 0 {
		cfg.PyPI.Timeout = 30 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "upgradeimpact"
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "upgradeimpact")
	}
	return ".upgradeimpact/cache"
}

func normalize(cfg *Config) {
	cfg.Paths.ProjectRoot = strings.TrimSpace(cfg.Paths.ProjectRoot)
	cfg.Paths.CacheDir = strings.TrimSpace(cfg.Paths.CacheDir)
	cfg.Paths.Database = strings.TrimSpace(cfg.Paths.Database)
	cfg.PyPI.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.PyPI.BaseURL), "/")
	cfg.Analysis.ExcludeDirs = trimAll(cfg.Analysis.ExcludeDirs)
	cfg.Analysis.ExcludeFiles = trimAll(cfg.Analysis.ExcludeFiles)

	for i := range cfg.Dependencies {
		d := &cfg.Dependencies[i]
		d.Name = strings.TrimSpace(d.Name)
		d.Current = strings.TrimSpace(d.Current)
		d.Target = strings.TrimSpace(d.Target)
		d.Changelog = strings.TrimSpace(d.Changelog)
		d.ImportNames = trimAll(d.ImportNames)
	}
	for i := range cfg.Policies {
		p := &cfg.Policies[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Packages = trimAll(p.Packages)
		p.PackageRegex = strings.TrimSpace(p.PackageRegex)
	}
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadIgnoreFile reads one package name per line. Blank lines and lines
// starting with # are skipped. A missing file yields an empty set.
func LoadIgnoreFile(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}

	ignored := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		ignored[strings.ToLower(line)] = true
	}
	return ignored, scanner.Err()
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DatabasePath resolves the history database against the project root.
func (c *Config) DatabasePath() string {
	return ResolveRelative(c.Paths.ProjectRoot, c.Paths.Database)
}

func (c *Config) IgnoreFilePath() string {
	return filepath.Join(c.Paths.ProjectRoot, DefaultIgnoreFile)
}
