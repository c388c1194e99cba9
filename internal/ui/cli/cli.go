package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const versionString = "0.3.0"

// errCIBlocked is returned when a report fails the configured CI policy.
var errCIBlocked = errors.New("upgrade blocked by CI policy")

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type cliOptions struct {
	configPath   string
	projectRoot  string
	verbose      bool
	jsonOutput   bool
	offline      bool
	noCache      bool
	includeTests bool
	metricsAddr  string
	noColor      bool
}

// Run executes the command line and returns the process exit code: 0 on
// success, 1 on failure or a blocking CI policy, 2 on invalid usage.
func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errCIBlocked):
		fmt.Fprintln(stderr, err.Error())
		return 1
	case errors.As(err, new(usageError)):
		fmt.Fprintf(stderr, "%v\n\n%s", err, root.UsageString())
		return 2
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "upgradeimpact",
		Short: "Estimate the risk of upgrading Python dependencies",
		Long: `upgradeimpact correlates how a project uses a dependency with the API
changes between its current and target versions, then combines that with
version distance and changelog signals into a weighted risk score.

Examples:
  upgradeimpact analyze
  upgradeimpact analyze requests==2.25.0:2.31.0 --json
  upgradeimpact usage numpy
  upgradeimpact diff requests 2.25.0 2.31.0
  upgradeimpact history requests --since 2026-01-01`,
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(stderr, opts.verbose)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default ./upgradeimpact.toml when present)")
	flags.StringVar(&opts.projectRoot, "project", "", "Project root to scan (overrides paths.project_root)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print machine-readable JSON")
	flags.BoolVar(&opts.offline, "offline", false, "Never contact the package index")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Disable the disk cache for this run")
	flags.BoolVar(&opts.includeTests, "include-tests", false, "Include test files in usage analysis")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address while running")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")

	root.AddCommand(
		newAnalyzeCommand(opts),
		newUsageCommand(opts),
		newDiffCommand(opts),
		newHistoryCommand(opts),
		newCacheCommand(opts),
	)
	return root
}
