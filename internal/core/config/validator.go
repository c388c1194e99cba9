package config

import (
	"strings"

	"github.com/gobwas/glob"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/engine/risk"
)

// Validate runs every section check, stopping at the first failure.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{
		validateVersion,
		validateWeights,
		validateAnalysis,
		validatePyPI,
		validateDependencies,
		validatePolicies,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return errors.Newf(errors.CodeValidationError, "unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateWeights(cfg *Config) error {
	if err := risk.ValidateWeights(cfg.Risk); err != nil {
		return errors.Wrap(err, errors.CodeValidationError, "risk weights")
	}
	return nil
}

func validateAnalysis(cfg *Config) error {
	if cfg.Analysis.Workers <= 0 {
		return errors.Newf(errors.CodeValidationError, "analysis.workers must be > 0, got %d", cfg.Analysis.Workers)
	}
	if cfg.Analysis.TransitiveDepth < 1 || cfg.Analysis.TransitiveDepth > 5 {
		return errors.Newf(errors.CodeValidationError, "analysis.transitive_depth must be within [1, 5], got %d", cfg.Analysis.TransitiveDepth)
	}
	if cfg.Analysis.Concurrency <= 0 {
		return errors.Newf(errors.CodeValidationError, "analysis.concurrency must be > 0, got %d", cfg.Analysis.Concurrency)
	}
	for _, set := range []struct {
		name     string
		patterns []string
	}{
		{"analysis.exclude_dirs", cfg.Analysis.ExcludeDirs},
		{"analysis.exclude_files", cfg.Analysis.ExcludeFiles},
	} {
		for _, p := range set.patterns {
			if _, err := glob.Compile(p); err != nil {
				return errors.Wrap(err, errors.CodeValidationError, set.name+" has invalid glob "+p)
			}
		}
	}
	return nil
}

func validatePyPI(cfg *Config) error {
	if !strings.HasPrefix(cfg.PyPI.BaseURL, "http://") && !strings.HasPrefix(cfg.PyPI.BaseURL, "https://") {
		return errors.Newf(errors.CodeValidationError, "pypi.base_url must be an http(s) URL, got %q", cfg.PyPI.BaseURL)
	}
	if cfg.PyPI.RequestsPerSecond < 0 {
		return errors.New(errors.CodeValidationError, "pypi.requests_per_second must not be negative")
	}
	if cfg.PyPI.Burst < 0 {
		return errors.New(errors.CodeValidationError, "pypi.burst must not be negative")
	}
	return nil
}

func validateDependencies(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Dependencies))
	for i, d := range cfg.Dependencies {
		if d.Name == "" {
			return errors.Newf(errors.CodeValidationError, "dependencies[%d].name must not be empty", i)
		}
		key := strings.ToLower(d.Name)
		if seen[key] {
			return errors.Newf(errors.CodeValidationError, "duplicate dependency %q", d.Name)
		}
		seen[key] = true
	}
	return nil
}

func validatePolicies(cfg *Config) error {
	_, err := cfg.PolicyEngine()
	return err
}
