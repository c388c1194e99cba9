package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/intel/pypi"
	"upgradeimpact/internal/shared/observability"
)

// ReleaseSource lists and fetches distribution files.
type ReleaseSource interface {
	Release(ctx context.Context, name, version string) ([]pypi.File, error)
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// RemoteProvider builds snapshots from distributions fetched from the index.
// Results are memoized per (package, version) for the provider's lifetime.
type RemoteProvider struct {
	source  ReleaseSource
	builder *Builder
	offline bool
	tempDir string
	logger  *slog.Logger

	importNames map[string][]string

	mu    sync.Mutex
	memo  map[string]*apidiff.Snapshot
	group singleflight.Group
}

type RemoteOption func(*RemoteProvider)

// WithImportNames maps a distribution name to the import packages it ships
// when they differ from the name (PyYAML ships yaml).
func WithImportNames(dist string, names ...string) RemoteOption {
	return func(p *RemoteProvider) {
		if len(names) > 0 {
			p.importNames[pypi.NormalizeName(dist)] = names
		}
	}
}

func WithOffline(offline bool) RemoteOption {
	return func(p *RemoteProvider) { p.offline = offline }
}

// WithTempDir sets the parent directory for download scratch space.
func WithTempDir(dir string) RemoteOption {
	return func(p *RemoteProvider) { p.tempDir = dir }
}

func NewRemoteProvider(source ReleaseSource, builder *Builder, opts ...RemoteOption) *RemoteProvider {
	if builder == nil {
		builder = NewBuilder(nil)
	}
	p := &RemoteProvider{
		source:      source,
		builder:     builder,
		logger:      slog.Default(),
		importNames: map[string][]string{},
		memo:        map[string]*apidiff.Snapshot{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ImportNames returns the import packages read for a distribution.
func (p *RemoteProvider) ImportNames(dist string) []string {
	if names, ok := p.importNames[pypi.NormalizeName(dist)]; ok {
		return names
	}
	return []string{strings.ReplaceAll(strings.ToLower(strings.TrimSpace(dist)), "-", "_")}
}

func (p *RemoteProvider) Snapshot(ctx context.Context, pkg, ver string) (*apidiff.Snapshot, error) {
	if p.offline {
		return nil, p.unavailable(pkg, ver, errors.New(errors.CodeUnavailable, "snapshots need the package index, which is disabled in offline mode"))
	}
	key := pypi.NormalizeName(pkg) + "@" + ver

	p.mu.Lock()
	if snap, ok := p.memo[key]; ok {
		p.mu.Unlock()
		return snap, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(key, func() (any, error) {
		snap, err := p.build(ctx, pkg, ver)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.memo[key] = snap
		p.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, p.unavailable(pkg, ver, err)
	}
	return v.(*apidiff.Snapshot), nil
}

func (p *RemoteProvider) unavailable(pkg, ver string, err error) error {
	if !errors.IsCode(err, errors.CodeUnavailable) {
		err = errors.Wrap(err, errors.CodeUnavailable, "snapshot unavailable")
	}
	err = errors.AddContext(err, errors.CtxPackage, pkg)
	return errors.AddContext(err, errors.CtxVersion, ver)
}

func (p *RemoteProvider) build(ctx context.Context, pkg, ver string) (*apidiff.Snapshot, error) {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("snapshot").Observe(time.Since(start).Seconds())
	}()

	files, err := p.source.Release(ctx, pkg, ver)
	if err != nil {
		return nil, err
	}
	file, ok := pypi.PreferredFile(files)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "release has no wheel or sdist")
	}

	work, err := os.MkdirTemp(p.tempDir, "upgradeimpact-snapshot-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(work)

	archivePath := filepath.Join(work, "dist")
	out, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("creating download file: %w", err)
	}
	_, err = p.source.Download(ctx, file.URL, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	src := filepath.Join(work, "src")
	if err := ExtractArchive(archivePath, file.Filename, src); err != nil {
		return nil, err
	}

	p.logger.Debug("building snapshot", "package", pkg, "version", ver, "file", file.Filename)

	// Import packages missing from the distribution are left out of
	// Modules so callers can tell which usage went uncompared.
	var merged *apidiff.Snapshot
	var firstErr error
	for _, name := range p.ImportNames(pkg) {
		snap, err := p.buildImport(src, name, ver)
		if err != nil {
			p.logger.Debug("import package not built", "package", pkg, "import", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if merged == nil {
			merged = snap
			continue
		}
		merged.Merge(snap)
	}
	if merged == nil {
		return nil, firstErr
	}
	return merged, nil
}

func (p *RemoteProvider) buildImport(src, importName, ver string) (*apidiff.Snapshot, error) {
	dir, module, err := LocatePackage(src, importName)
	if err != nil {
		return nil, err
	}
	if module != "" {
		content, err := os.ReadFile(module)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", module, err)
		}
		return p.builder.BuildModule(importName, ver, filepath.Base(module), content), nil
	}
	return p.builder.BuildFS(importName, ver, os.DirFS(dir))
}
