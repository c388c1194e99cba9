package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	coreapp "upgradeimpact/internal/core/app"
	"upgradeimpact/internal/core/config"
	"upgradeimpact/internal/data/cache"
	"upgradeimpact/internal/data/history"
	"upgradeimpact/internal/engine/snapshot"
	"upgradeimpact/internal/engine/source"
	"upgradeimpact/internal/intel/changelog"
	"upgradeimpact/internal/intel/pypi"
	"upgradeimpact/internal/shared/observability"
	"upgradeimpact/internal/shared/util"
)

const shutdownTimeout = 5 * time.Second

func configureLogging(output io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// loadConfig reads the config file, applies environment and flag
// overrides, and validates the result.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultFile)
	}
	if err != nil {
		return nil, err
	}

	config.ApplyEnvOverrides(cfg)
	applyFlagOverrides(opts, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if opts.noColor {
		color.NoColor = true
	}
	return cfg, nil
}

func applyFlagOverrides(opts *cliOptions, cfg *config.Config) {
	if opts.projectRoot != "" {
		cfg.Paths.ProjectRoot = opts.projectRoot
	}
	if opts.offline {
		cfg.PyPI.Offline = true
	}
	if opts.noCache {
		disabled := false
		cfg.Cache.Enabled = &disabled
	}
	if opts.includeTests {
		cfg.Analysis.IncludeTests = true
	}
	if opts.metricsAddr != "" {
		cfg.Observability.MetricsAddr = opts.metricsAddr
	}
}

// runtime wires the collaborators for one command invocation.
type runtime struct {
	cfg        *config.Config
	store      *cache.Store
	client     *pypi.Client
	snapshots  *snapshot.RemoteProvider
	changelogs *changelog.Chain
	history    *history.Store
	analyzer   *coreapp.Analyzer
	tracing    observability.Tracing
	server     *ObservabilityServer
}

type runtimeOptions struct {
	withHistory bool
}

func newRuntime(ctx context.Context, cfg *config.Config, ro runtimeOptions) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	tracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: versionString,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPInsecure:   cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		return nil, err
	}
	rt.tracing = tracing

	rt.store = cache.NewStore(cfg.Paths.CacheDir, cfg.Cache.IsEnabled())
	rt.client = pypi.NewClient(pypi.Options{
		BaseURL:           cfg.PyPI.BaseURL,
		RequestsPerSecond: cfg.PyPI.RequestsPerSecond,
		Burst:             cfg.PyPI.Burst,
		Timeout:           cfg.PyPI.Timeout,
		Offline:           cfg.PyPI.Offline,
		Cache:             rt.store,
		CacheTTL:          cfg.Cache.PyPITTL,
	})

	remoteOpts := []snapshot.RemoteOption{snapshot.WithOffline(cfg.PyPI.Offline)}
	importNames := cfg.ImportNames()
	for dist, names := range importNames {
		remoteOpts = append(remoteOpts, snapshot.WithImportNames(dist, names...))
	}
	rt.snapshots = snapshot.NewRemoteProvider(rt.client, nil, remoteOpts...)

	sources := []changelog.Source{changelog.NewFileSource(cfg.Changelogs())}
	if !cfg.PyPI.Offline {
		sources = append(sources,
			changelog.NewGitHubSource(rt.client, "", os.Getenv("GITHUB_TOKEN"), nil),
			changelog.NewIndexSource(rt.client),
		)
	}
	rt.changelogs = changelog.NewChain(rt.store, cfg.Cache.ChangelogTTL, sources...)

	if ro.withHistory {
		store, err := history.Open(cfg.DatabasePath())
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.history = store
	}

	scanner, err := source.NewScanner(cfg.Paths.ProjectRoot, source.Options{
		ExcludeDirs:  cfg.Analysis.ExcludeDirs,
		ExcludeFiles: cfg.Analysis.ExcludeFiles,
		IncludeTests: cfg.Analysis.IncludeTests,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	ignored, err := config.LoadIgnoreFile(cfg.IgnoreFilePath())
	if err != nil {
		slog.Warn("failed to read ignore file", "path", cfg.IgnoreFilePath(), "error", err)
	}

	policies, err := cfg.PolicyEngine()
	if err != nil {
		rt.Close()
		return nil, err
	}

	collab := coreapp.Collaborators{
		Sources:      scanner,
		Snapshots:    rt.snapshots,
		Changelogs:   rt.changelogs,
		Versions:     rt.client,
		Requirements: rt.client,
	}
	if rt.store.Enabled() {
		collab.DiffCache = cache.NewDiffCache(rt.store)
	}
	if rt.history != nil {
		collab.History = rt.history
	}

	rt.analyzer, err = coreapp.NewAnalyzer(collab, coreapp.Options{
		Weights:     cfg.Risk,
		Concurrency: cfg.Analysis.Concurrency,
		Workers:     cfg.Analysis.Workers,
		Ignored:     ignored,
		ImportNames: importNames,
		ProjectRoot: cfg.Paths.ProjectRoot,

		Policies:        policies,
		Transitive:      cfg.Analysis.Transitive,
		TransitiveDepth: cfg.Analysis.TransitiveDepth,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		rt.server = NewObservabilityServer(addr, rt.healthService())
		if err := rt.server.Start(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) healthService() *coreapp.HealthService {
	h := coreapp.NewHealthService()
	h.Register("cache", func(context.Context) (string, error) {
		if !rt.store.Enabled() {
			return "disabled", nil
		}
		if err := os.MkdirAll(rt.store.Dir(), 0o755); err != nil {
			return "", err
		}
		return "ok (" + rt.store.Dir() + ")", nil
	})
	h.Register("index", func(context.Context) (string, error) {
		if rt.cfg.PyPI.Offline {
			return "offline", nil
		}
		return "ok (" + rt.cfg.PyPI.BaseURL + ")", nil
	})
	h.Register("memory", func(context.Context) (string, error) {
		return fmt.Sprintf("%d MiB heap", util.HeapAllocMiB()), nil
	})
	if rt.history != nil {
		h.Register("history", func(context.Context) (string, error) {
			if _, err := rt.history.LoadRuns("", time.Now()); err != nil {
				return "", err
			}
			return "ok (" + rt.history.Path() + ")", nil
		})
	}
	return h
}

func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if rt.server != nil {
		if err := rt.server.Stop(ctx); err != nil {
			slog.Warn("failed to stop observability server", "error", err)
		}
	}
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			slog.Warn("failed to close history store", "error", err)
		}
	}
	if rt.client != nil {
		rt.client.Close()
	}
	if rt.tracing.Shutdown != nil {
		if err := rt.tracing.Shutdown(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}
}

// parseDependencyArg accepts name, name==current, or name==current:target.
func parseDependencyArg(arg string) (config.DependencyConfig, error) {
	name, versions, hasVersions := strings.Cut(strings.TrimSpace(arg), "==")
	dep := config.DependencyConfig{Name: strings.TrimSpace(name)}
	if dep.Name == "" {
		return dep, usageError{fmt.Errorf("invalid dependency %q: missing name", arg)}
	}
	if !hasVersions {
		return dep, nil
	}
	current, target, _ := strings.Cut(versions, ":")
	dep.Current = strings.TrimSpace(current)
	dep.Target = strings.TrimSpace(target)
	if dep.Current == "" {
		return dep, usageError{fmt.Errorf("invalid dependency %q: empty current version", arg)}
	}
	return dep, nil
}

// selectDependencies returns the configured dependencies, or those named on
// the command line. A named dependency that is also configured inherits the
// configured versions it does not override.
func selectDependencies(cfg *config.Config, args []string) ([]config.DependencyConfig, error) {
	if len(args) == 0 {
		return cfg.Dependencies, nil
	}
	configured := make(map[string]config.DependencyConfig, len(cfg.Dependencies))
	for _, d := range cfg.Dependencies {
		configured[strings.ToLower(d.Name)] = d
	}

	out := make([]config.DependencyConfig, 0, len(args))
	for _, arg := range args {
		dep, err := parseDependencyArg(arg)
		if err != nil {
			return nil, err
		}
		if base, ok := configured[strings.ToLower(dep.Name)]; ok {
			if dep.Current == "" {
				dep.Current = base.Current
			}
			if dep.Target == "" {
				dep.Target = base.Target
			}
			dep.ImportNames = base.ImportNames
			dep.Changelog = base.Changelog
		}
		if dep.Current == "" {
			return nil, usageError{fmt.Errorf("no current version for %s; pass %s==<version>", dep.Name, dep.Name)}
		}
		out = append(out, dep)
	}
	return out, nil
}
