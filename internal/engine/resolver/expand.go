package resolver

import (
	"context"
	"log/slog"

	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/intel/pypi"
)

const DefaultDepth = 2

// Index returns the raw requirement strings of one release.
type Index interface {
	Requires(ctx context.Context, name, version string) ([]string, error)
}

type Expander struct {
	index  Index
	depth  int
	logger *slog.Logger
}

func NewExpander(index Index, depth int) *Expander {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Expander{index: index, depth: depth, logger: slog.Default()}
}

// Expand returns the requirements reachable from direct within the depth
// limit, each once, in discovery order. Names already in direct are never
// returned. Optional (extra-only) requirements are skipped, and so are
// requirements without a lower bound, since they have no current version to
// compare against. Index failures drop that branch; only a cancelled
// context fails the call.
func (e *Expander) Expand(ctx context.Context, direct []risk.Dependency) ([]risk.Dependency, error) {
	seen := make(map[string]bool, len(direct))
	for _, d := range direct {
		seen[pypi.NormalizeName(d.Name)] = true
	}

	var out []risk.Dependency
	for _, d := range direct {
		if d.Current == "" {
			continue
		}
		found, err := e.walk(ctx, d.Name, d.Current, d.Name, e.depth, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (e *Expander) walk(ctx context.Context, name, version, via string, depth int, seen map[string]bool) ([]risk.Dependency, error) {
	reqs, err := e.index.Requires(ctx, name, version)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Debug("requirements unavailable", "package", name, "version", version, "error", err)
		return nil, nil
	}

	var out []risk.Dependency
	for _, raw := range reqs {
		req, ok := ParseRequirement(raw)
		if !ok || req.Optional {
			continue
		}
		key := pypi.NormalizeName(req.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		if req.MinVersion == "" {
			e.logger.Debug("transitive requirement has no lower bound", "package", req.Name, "via", via)
			continue
		}

		out = append(out, risk.Dependency{Name: req.Name, Current: req.MinVersion, Via: via})
		if depth > 1 {
			nested, err := e.walk(ctx, req.Name, req.MinVersion, via, depth-1, seen)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}
