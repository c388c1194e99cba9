// Package usage aggregates per-file symbol resolution into a per-package
// usage table.
package usage

import (
	"context"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/shared/observability"
)

type Summary struct {
	TotalFiles       int `json:"total_files"`
	UniqueSymbols    int `json:"unique_symbols"`
	TotalCalls       int `json:"total_calls"`
	ImportStatements int `json:"import_statements"`
	SkippedFiles     int `json:"skipped_files"`
}

type Result struct {
	Nodes   []symbols.UsageNode `json:"nodes"`
	Summary Summary             `json:"summary"`
}

// Symbols returns the distinct symbol paths in r, sorted.
func (r Result) Symbols() []string {
	seen := make(map[string]bool, len(r.Nodes))
	out := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		if seen[n.SymbolPath] {
			continue
		}
		seen[n.SymbolPath] = true
		out = append(out, n.SymbolPath)
	}
	sort.Strings(out)
	return out
}

type Indexer struct {
	resolver *symbols.Resolver
	workers  int
}

func NewIndexer(resolver *symbols.Resolver, workers int) *Indexer {
	if resolver == nil {
		resolver = symbols.NewResolver(nil)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Indexer{resolver: resolver, workers: workers}
}

// AnalyzeAll resolves every file once. The result is positionally aligned
// with files; parse failures are kept with Err set. Only context
// cancellation is returned as an error.
func (ix *Indexer) AnalyzeAll(ctx context.Context, files []symbols.SourceFile) ([]*symbols.FileAnalysis, error) {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	}()

	out := make([]*symbols.FileAnalysis, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i := range files {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = ix.resolver.Analyze(files[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Build resolves files and indexes the imports of packageName.
func (ix *Indexer) Build(ctx context.Context, packageName string, files []symbols.SourceFile) (Result, error) {
	return ix.BuildFor(ctx, []string{packageName}, files)
}

// BuildFor indexes imports of any of the given top-level import names, for
// distributions imported under a different name (PyYAML as yaml).
func (ix *Indexer) BuildFor(ctx context.Context, importNames []string, files []symbols.SourceFile) (Result, error) {
	analyses, err := ix.AnalyzeAll(ctx, files)
	if err != nil {
		return Result{}, err
	}
	return Index(analyses, importNames...), nil
}

// BuildAll indexes every imported package, keyed by top-level import name.
func (ix *Indexer) BuildAll(ctx context.Context, files []symbols.SourceFile) (map[string]Result, error) {
	analyses, err := ix.AnalyzeAll(ctx, files)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, fa := range analyses {
		for _, n := range fa.Imports() {
			seen[n.PackageName] = true
		}
	}
	out := make(map[string]Result, len(seen))
	for pkg := range seen {
		out[pkg] = Index(analyses, pkg)
	}
	return out, nil
}

// Index filters already-resolved files to the given import names and fills
// in call counts. Output order is (file, symbol, first line) regardless of
// the order the analyses were produced in.
func Index(analyses []*symbols.FileAnalysis, importNames ...string) Result {
	wanted := make(map[string]bool, len(importNames))
	for _, name := range importNames {
		wanted[name] = true
	}

	var res Result
	for _, fa := range analyses {
		if fa == nil {
			continue
		}
		if fa.Err() != nil {
			res.Summary.SkippedFiles++
			continue
		}
		for _, n := range fa.Imports() {
			if !wanted[n.PackageName] {
				continue
			}
			n.CallCount = fa.CountFunctionCalls(symbols.Leaf(n.SymbolPath))
			res.Nodes = append(res.Nodes, n)
		}
	}

	sort.SliceStable(res.Nodes, func(i, j int) bool {
		a, b := res.Nodes[i], res.Nodes[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.SymbolPath != b.SymbolPath {
			return a.SymbolPath < b.SymbolPath
		}
		return firstLine(a) < firstLine(b)
	})

	res.Summary = summarize(res.Nodes, res.Summary.SkippedFiles)
	return res
}

func summarize(nodes []symbols.UsageNode, skipped int) Summary {
	files := map[string]bool{}
	paths := map[string]bool{}
	calls := 0
	for _, n := range nodes {
		files[n.FilePath] = true
		paths[n.SymbolPath] = true
		calls += n.CallCount
	}
	return Summary{
		TotalFiles:       len(files),
		UniqueSymbols:    len(paths),
		TotalCalls:       calls,
		ImportStatements: len(nodes),
		SkippedFiles:     skipped,
	}
}

func firstLine(n symbols.UsageNode) int {
	if len(n.LineNumbers) == 0 {
		return 0
	}
	return n.LineNumbers[0]
}

// CallTargets returns one node per (file, call target) for calls that
// resolve into the given import names but were not imported by that exact
// path, such as `requests.get` after `import requests`. LineNumbers holds
// each call line and CallCount the number of calls.
func CallTargets(analyses []*symbols.FileAnalysis, importNames ...string) []symbols.UsageNode {
	wanted := make(map[string]bool, len(importNames))
	for _, name := range importNames {
		wanted[name] = true
	}

	var out []symbols.UsageNode
	for _, fa := range analyses {
		if fa == nil || fa.Err() != nil {
			continue
		}
		imported := map[string]bool{}
		for _, n := range fa.Imports() {
			imported[n.SymbolPath] = true
		}

		byTarget := map[string]*symbols.UsageNode{}
		var order []string
		for _, site := range fa.FunctionCalls() {
			if !wanted[symbols.TopLevel(site.Symbol)] || imported[site.Symbol] {
				continue
			}
			n, ok := byTarget[site.Symbol]
			if !ok {
				n = &symbols.UsageNode{
					PackageName: symbols.TopLevel(site.Symbol),
					SymbolPath:  site.Symbol,
					FilePath:    fa.Path(),
				}
				byTarget[site.Symbol] = n
				order = append(order, site.Symbol)
			}
			n.LineNumbers = append(n.LineNumbers, site.Line)
			n.CallCount++
		}
		sort.Strings(order)
		for _, target := range order {
			out = append(out, *byTarget[target])
		}
	}
	return out
}
