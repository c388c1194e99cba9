package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/core/ports"
	"upgradeimpact/internal/data/history"
	"upgradeimpact/internal/engine/advisor"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/resolver"
	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/engine/usage"
	"upgradeimpact/internal/intel/changelog"
	"upgradeimpact/internal/shared/observability"
)

// Collaborators are the ports the analyzer drives. Sources, Snapshots and
// Changelogs are required; the rest may be nil.
type Collaborators struct {
	Sources    ports.SourceProvider
	Snapshots  ports.SnapshotProvider
	Changelogs ports.ChangelogProvider
	Versions   ports.VersionIndex
	DiffCache  ports.DiffCache
	History    ports.HistoryStore

	// Requirements is only consulted when Options.Transitive is set.
	Requirements ports.RequirementIndex
}

type Options struct {
	Weights     risk.Weights
	Concurrency int
	Workers     int
	// Ignored holds lowercased distribution names to skip.
	Ignored map[string]bool
	// ImportNames overrides the import packages of a distribution.
	ImportNames map[string][]string
	// ProjectRoot is used for git metadata on saved runs.
	ProjectRoot string

	// Policies may be nil.
	Policies        *advisor.PolicyEngine
	Transitive      bool
	TransitiveDepth int
}

type Analyzer struct {
	collab  Collaborators
	model   *risk.Model
	indexer *usage.Indexer
	opts    Options
	logger  *slog.Logger

	sourcesMu     sync.Mutex
	sourcesLoaded bool
	analyses      []*symbols.FileAnalysis

	gitOnce sync.Once
	git     history.GitInfo
}

func NewAnalyzer(collab Collaborators, opts Options) (*Analyzer, error) {
	if collab.Sources == nil || collab.Snapshots == nil || collab.Changelogs == nil {
		return nil, errors.New(errors.CodeValidationError, "analyzer requires source, snapshot and changelog providers")
	}
	model, err := risk.NewModel(opts.Weights)
	if err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	importNames := make(map[string][]string, len(opts.ImportNames))
	for dist, names := range opts.ImportNames {
		importNames[strings.ToLower(dist)] = names
	}
	opts.ImportNames = importNames
	return &Analyzer{
		collab:  collab,
		model:   model,
		indexer: usage.NewIndexer(nil, opts.Workers),
		opts:    opts,
		logger:  slog.Default(),
	}, nil
}

// ImportNames returns the import packages for a distribution: the
// configured names, or the lowercased name with dashes as underscores.
func (a *Analyzer) ImportNames(dist string) []string {
	if names, ok := a.opts.ImportNames[strings.ToLower(dist)]; ok && len(names) > 0 {
		return names
	}
	return []string{strings.ReplaceAll(strings.ToLower(dist), "-", "_")}
}

// loadSources resolves every project file once per analyzer. Only a
// successful load is kept; a cancelled or failed load is retried by the
// next caller. Parse failures are counted and logged by the resolver.
func (a *Analyzer) loadSources(ctx context.Context) ([]*symbols.FileAnalysis, error) {
	a.sourcesMu.Lock()
	defer a.sourcesMu.Unlock()
	if a.sourcesLoaded {
		return a.analyses, nil
	}

	files, err := a.collab.Sources.Sources(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load sources")
	}
	analyses, err := a.indexer.AnalyzeAll(ctx, files)
	if err != nil {
		return nil, err
	}
	a.analyses, a.sourcesLoaded = analyses, true
	return analyses, nil
}

// Usage indexes the project's use of one distribution. Call targets that
// were reached through a module import are appended after the import nodes.
func (a *Analyzer) Usage(ctx context.Context, dist string) (usage.Result, []symbols.UsageNode, error) {
	analyses, err := a.loadSources(ctx)
	if err != nil {
		return usage.Result{}, nil, err
	}
	names := a.ImportNames(dist)
	res := usage.Index(analyses, names...)
	nodes := append(append([]symbols.UsageNode(nil), res.Nodes...), usage.CallTargets(analyses, names...)...)
	return res, nodes, nil
}

// Diff compares two versions of a distribution. When used is nil every
// public symbol of the old version is compared.
func (a *Analyzer) Diff(ctx context.Context, dist, oldVersion, newVersion string, used []string) (apidiff.Result, error) {
	if used != nil && a.collab.DiffCache != nil {
		if changes, ok := a.collab.DiffCache.Get(dist, oldVersion, newVersion); ok {
			return apidiff.Result{Changes: changes, Coverage: apidiff.CoverageKnown}, nil
		}
	}

	var oldSnap, newSnap *apidiff.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		oldSnap, err = a.snapshot(gctx, dist, oldVersion)
		return err
	})
	g.Go(func() error {
		var err error
		newSnap, err = a.snapshot(gctx, dist, newVersion)
		return err
	})
	if err := g.Wait(); err != nil {
		return apidiff.Result{}, err
	}

	full := used == nil
	if full && oldSnap != nil {
		used = make([]string, 0, len(oldSnap.Symbols))
		for p := range oldSnap.Symbols {
			used = append(used, p)
		}
	}
	res := apidiff.Diff(oldSnap, newSnap, used)
	if res.Coverage == apidiff.CoverageKnown && !full {
		res.Uncovered = oldSnap.Uncovered(used)
	}

	if !full && res.Coverage == apidiff.CoverageKnown && len(res.Uncovered) == 0 && a.collab.DiffCache != nil {
		if err := a.collab.DiffCache.Put(dist, oldVersion, newVersion, res.Changes); err != nil {
			a.logger.Warn("failed to cache api diff", "package", dist, "error", err)
		}
	}
	return res, nil
}

// snapshot returns nil without error when the version is unavailable, so
// the diff degrades to unknown coverage. Cancellation is still returned.
func (a *Analyzer) snapshot(ctx context.Context, dist, version string) (*apidiff.Snapshot, error) {
	snap, err := a.collab.Snapshots.Snapshot(ctx, dist, version)
	if err == nil {
		return snap, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	a.logger.Debug("snapshot unavailable", "package", dist, "version", version, "error", err)
	return nil, nil
}

// Analyze scores every dependency that needs an upgrade. Dependencies that
// fail are logged and left out. Reports are ordered by descending total
// score, then name.
func (a *Analyzer) Analyze(ctx context.Context, deps []risk.Dependency) ([]Report, error) {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	}()

	if _, err := a.loadSources(ctx); err != nil {
		return nil, err
	}

	if a.opts.Transitive && a.collab.Requirements != nil {
		extra, err := resolver.NewExpander(a.collab.Requirements, a.opts.TransitiveDepth).Expand(ctx, deps)
		if err != nil {
			return nil, err
		}
		a.logger.Info("found transitive dependencies", "count", len(extra))
		deps = append(append([]risk.Dependency(nil), deps...), extra...)
	}

	pending := a.resolveTargets(ctx, deps)

	var (
		mu      sync.Mutex
		reports []Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for _, dep := range pending {
		dep := dep
		g.Go(func() error {
			report, err := a.analyzeOne(gctx, dep)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				observability.DependenciesSkippedTotal.WithLabelValues("error").Inc()
				a.logger.Warn("skipping dependency", "package", dep.Name, "error", err)
				return nil
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortReports(reports)
	return reports, nil
}

// resolveTargets drops ignored dependencies, fills missing targets with the
// latest release and drops dependencies already at their target.
func (a *Analyzer) resolveTargets(ctx context.Context, deps []risk.Dependency) []risk.Dependency {
	out := make([]risk.Dependency, 0, len(deps))
	for _, dep := range deps {
		if a.opts.Ignored[strings.ToLower(dep.Name)] {
			observability.DependenciesSkippedTotal.WithLabelValues("ignored").Inc()
			a.logger.Debug("dependency ignored", "package", dep.Name)
			continue
		}
		if dep.Target == "" {
			if a.collab.Versions == nil {
				observability.DependenciesSkippedTotal.WithLabelValues("no_target").Inc()
				a.logger.Debug("no target version and no index", "package", dep.Name)
				continue
			}
			latest, err := a.collab.Versions.LatestVersion(ctx, dep.Name)
			if err != nil {
				observability.DependenciesSkippedTotal.WithLabelValues("no_target").Inc()
				a.logger.Debug("failed to resolve latest version", "package", dep.Name, "error", err)
				continue
			}
			dep.Target = latest
		}
		if dep.Current == dep.Target {
			observability.DependenciesSkippedTotal.WithLabelValues("up_to_date").Inc()
			a.logger.Debug("dependency already at target", "package", dep.Name, "version", dep.Target)
			continue
		}
		out = append(out, dep)
	}
	return out
}

func (a *Analyzer) analyzeOne(ctx context.Context, dep risk.Dependency) (report Report, err error) {
	ctx, span := observability.Tracer().Start(ctx, "analyze_dependency")
	span.SetAttributes(
		attribute.String("package", dep.Name),
		attribute.String("current_version", dep.Current),
		attribute.String("target_version", dep.Target),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	res, nodes, err := a.Usage(ctx, dep.Name)
	if err != nil {
		return Report{}, err
	}

	entries, err := a.collab.Changelogs.Entries(ctx, dep.Name, dep.Current, dep.Target)
	if err != nil {
		if ctx.Err() != nil {
			return Report{}, ctx.Err()
		}
		a.logger.Debug("changelog unavailable", "package", dep.Name, "error", err)
		entries = nil
	}

	diff, err := a.Diff(ctx, dep.Name, dep.Current, dep.Target, usedSymbols(nodes))
	if err != nil {
		return Report{}, err
	}

	score := a.model.Calculate(dep, nodes, diff.Changes, entries)
	observability.RiskScore.WithLabelValues(dep.Name).Set(score.Total)
	span.SetAttributes(
		attribute.Float64("risk.total", score.Total),
		attribute.String("risk.severity", string(score.Severity)),
	)

	var versions []string
	if a.collab.Versions != nil {
		if versions, err = a.collab.Versions.VersionHistory(ctx, dep.Name); err != nil {
			a.logger.Debug("version history unavailable", "package", dep.Name, "error", err)
			versions = nil
		}
	}
	rec := advisor.Recommend(dep, score, versions)
	rec.DeprecationWarnings = advisor.DeprecationWarnings(nodes, diff.Changes)

	report = Report{
		Dependency:      dep,
		Score:           score,
		Changes:         diff.Changes,
		Coverage:        diff.Coverage,
		BreakingChanges: advisor.BreakingChanges(dep, diff.Changes, nodes),
		Changelog:       entries,
		Recommendation:  rec,
		MigrationTips:   advisor.MigrationTips(score),
		Usage:           res.Summary,
		Nodes:           nodes,
	}
	report.PolicyViolations = a.opts.Policies.Evaluate(dep, score)
	for _, v := range report.PolicyViolations {
		observability.PolicyViolationsTotal.WithLabelValues(v.Policy).Inc()
	}
	if diff.Coverage == apidiff.CoverageUnknown {
		report.Warnings = append(report.Warnings, "API snapshots unavailable; usage factor reflects no known changes")
	}
	if pkgs := topLevelPackages(diff.Uncovered); len(pkgs) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"%d used symbol(s) under %s were not compared: package source not found in the distribution",
			len(diff.Uncovered), strings.Join(pkgs, ", ")))
	}
	for _, e := range entries {
		for _, item := range changelog.ExtractBreakingChanges(e) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", e.Version, item))
		}
	}

	a.saveRun(ctx, report)
	return report, nil
}

func topLevelPackages(paths []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		top, _, _ := strings.Cut(p, ".")
		if !seen[top] {
			seen[top] = true
			out = append(out, top)
		}
	}
	sort.Strings(out)
	return out
}

func usedSymbols(nodes []symbols.UsageNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.SymbolPath)
	}
	return out
}

func (a *Analyzer) saveRun(ctx context.Context, r Report) {
	if a.collab.History == nil {
		return
	}
	a.gitOnce.Do(func() {
		a.git = history.ResolveGit(ctx, a.opts.ProjectRoot)
	})
	run := history.Run{
		CommitHash:      a.git.Commit,
		CommitTimestamp: a.git.CommittedAt,
		Package:         r.Dependency.Name,
		Current:         r.Dependency.Current,
		Target:          r.Dependency.Target,
		Total:           r.Score.Total,
		Severity:        string(r.Score.Severity),
		Semver:          r.Score.Factor(risk.FactorSemver),
		Usage:           r.Score.Factor(risk.FactorUsage),
		Changelog:       r.Score.Factor(risk.FactorChangelog),
		Coverage:        string(r.Coverage),
		ChangeCount:     len(r.Changes),
		UsageCount:      len(r.Nodes),
	}
	if _, err := a.collab.History.SaveRun(run); err != nil {
		a.logger.Warn("failed to save history run", "package", r.Dependency.Name, "error", err)
	}
}

// SortReports orders by descending total score, then name.
func SortReports(reports []Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].Score.Total != reports[j].Score.Total {
			return reports[i].Score.Total > reports[j].Score.Total
		}
		return reports[i].Dependency.Name < reports[j].Dependency.Name
	})
}
