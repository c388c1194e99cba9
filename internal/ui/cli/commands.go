package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	coreapp "upgradeimpact/internal/core/app"
	"upgradeimpact/internal/core/config"
	"upgradeimpact/internal/data/cache"
	"upgradeimpact/internal/data/history"
	"upgradeimpact/internal/engine/risk"
	"upgradeimpact/internal/ui/report"
)

const dateLayout = "2006-01-02"

func newAnalyzeCommand(opts *cliOptions) *cobra.Command {
	var (
		format     string
		output     string
		inject     string
		transitive bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [package[==current[:target]]...]",
		Short: "Score the upgrade risk of dependencies",
		Long: `Analyze scores every dependency listed in the config, or only the
packages named on the command line. A missing target resolves to the latest
stable release. The command exits with status 1 when the CI policy blocks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.jsonOutput {
				format = formatJSON
			}
			if !validFormat(format) {
				return usageError{fmt.Errorf("unknown format %q (want %s)", format, strings.Join(formats, ", "))}
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if transitive {
				cfg.Analysis.Transitive = true
			}
			deps, err := selectDependencies(cfg, args)
			if err != nil {
				return err
			}
			if len(deps) == 0 {
				return usageError{fmt.Errorf("no dependencies configured; list them in %s or pass them as arguments", configFileName(opts))}
			}

			rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{withHistory: cfg.History.Enabled})
			if err != nil {
				return err
			}
			defer rt.Close()

			targets := make([]risk.Dependency, 0, len(deps))
			for _, d := range deps {
				targets = append(targets, d.Dependency())
			}
			reports, err := rt.analyzer.Analyze(cmd.Context(), targets)
			if err != nil {
				return err
			}

			out := analyzeOutput{
				Reports: reports,
				Summary: coreapp.Summarize(reports),
				Blocked: coreapp.BlocksCI(cfg.CI, reports),
			}
			if err := writeAnalyzeOutput(cmd.OutOrStdout(), cfg, format, output, out); err != nil {
				return err
			}
			if inject != "" {
				if err := report.InjectSection(inject, injectMarker, report.GenerateMarkdown(reports)); err != nil {
					return err
				}
			}
			if out.Blocked {
				return errCIBlocked
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: "+strings.Join(formats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&inject, "inject", "", "Replace the upgradeimpact:"+injectMarker+" section of a Markdown file with the report")
	cmd.Flags().BoolVar(&transitive, "transitive", false, "Also score requirements of the listed dependencies")
	return cmd
}

func configFileName(opts *cliOptions) string {
	if opts.configPath != "" {
		return opts.configPath
	}
	return config.DefaultFile
}

func newUsageCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <package>",
		Short: "Show where the project uses a package",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			res, nodes, err := rt.analyzer.Usage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := usageOutput{Package: args[0], Summary: res.Summary, Symbols: res.Symbols(), Nodes: nodes}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			renderUsage(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newDiffCommand(opts *cliOptions) *cobra.Command {
	var usedOnly bool
	cmd := &cobra.Command{
		Use:   "diff <package> <old-version> <new-version>",
		Short: "List public API changes between two versions",
		Long: `Diff compares the public API of two released versions. By default every
public symbol of the old version is compared; --used restricts the diff to
symbols the project references.`,
		Args: exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			pkg, oldVersion, newVersion := args[0], args[1], args[2]
			var used []string
			if usedOnly {
				res, nodes, err := rt.analyzer.Usage(cmd.Context(), pkg)
				if err != nil {
					return err
				}
				used = res.Symbols()
				for _, n := range nodes {
					used = append(used, n.SymbolPath)
				}
			}
			res, err := rt.analyzer.Diff(cmd.Context(), pkg, oldVersion, newVersion, used)
			if err != nil {
				return err
			}
			out := diffOutput{
				Package:    pkg,
				OldVersion: oldVersion,
				NewVersion: newVersion,
				Changes:    res.Changes,
				Coverage:   res.Coverage,
				Uncovered:  res.Uncovered,
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			renderDiff(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&usedOnly, "used", false, "Only compare symbols the project uses")
	return cmd
}

func newHistoryCommand(opts *cliOptions) *cobra.Command {
	var (
		since  string
		window time.Duration
		trend  bool
	)
	cmd := &cobra.Command{
		Use:   "history <package>",
		Short: "Show recorded risk assessments for a package",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sinceTime time.Time
			if since != "" {
				t, err := parseSince(since)
				if err != nil {
					return usageError{err}
				}
				sinceTime = t
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.LoadRuns(args[0], sinceTime)
			if err != nil {
				return err
			}
			if !trend {
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				renderRuns(cmd.OutOrStdout(), args[0], runs)
				return nil
			}

			tr, err := history.BuildTrendReport(args[0], runs, window)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), tr)
			}
			renderTrend(cmd.OutOrStdout(), tr)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only runs at or after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&trend, "trend", false, "Show deltas and a moving average instead of raw runs")
	cmd.Flags().DurationVar(&window, "window", 7*24*time.Hour, "Moving average window for --trend")
	return cmd
}

func parseSince(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want YYYY-MM-DD or RFC3339", v)
	}
	return t, nil
}

func newCacheCommand(opts *cliOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the on-disk cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear [kind]",
		Short: "Remove cached entries of one kind, or all of them",
		Long: fmt.Sprintf("Clear removes cached entries. Kinds: %s.",
			strings.Join(kindNames(), ", ")),
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			var kind cache.Kind
			if len(args) == 1 {
				kind = cache.Kind(strings.TrimSpace(args[0]))
			}
			store := cache.NewStore(cfg.Paths.CacheDir, true)
			if err := store.Clear(kind); err != nil {
				return err
			}
			if kind == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared all cache entries in %s\n", store.Dir())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s cache entries in %s\n", kind, store.Dir())
			}
			return nil
		},
	})
	return cacheCmd
}

func kindNames() []string {
	out := make([]string, len(cache.Kinds))
	for i, k := range cache.Kinds {
		out[i] = string(k)
	}
	return out
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
