// Package ports declares the collaborators the analysis core depends on.
package ports

import (
	"context"
	"time"

	"upgradeimpact/internal/data/history"
	"upgradeimpact/internal/engine/apidiff"
	"upgradeimpact/internal/engine/symbols"
	"upgradeimpact/internal/intel/changelog"
)

// SourceProvider supplies the project files to analyze. Exclusion filtering
// is the provider's job.
type SourceProvider interface {
	Sources(ctx context.Context) ([]symbols.SourceFile, error)
}

// SnapshotProvider builds the public API of a released package version.
// Errors wrap CodeUnavailable when no snapshot can be produced.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, pkg, version string) (*apidiff.Snapshot, error)
}

// ChangelogProvider returns entries with from < version <= to.
type ChangelogProvider interface {
	Entries(ctx context.Context, pkg, from, to string) ([]changelog.Entry, error)
}

// VersionIndex resolves published versions of a package.
type VersionIndex interface {
	LatestVersion(ctx context.Context, name string) (string, error)
	VersionHistory(ctx context.Context, name string) ([]string, error)
}

// RequirementIndex lists the PEP 508 requirements one release declares.
type RequirementIndex interface {
	Requires(ctx context.Context, name, version string) ([]string, error)
}

// DiffCache stores API diffs per (package, old, new). Entries never expire.
type DiffCache interface {
	Get(pkg, oldVersion, newVersion string) ([]apidiff.Change, bool)
	Put(pkg, oldVersion, newVersion string, changes []apidiff.Change) error
}

// HistoryStore persists analysis runs for trend reporting.
type HistoryStore interface {
	SaveRun(run history.Run) (history.Run, error)
	LoadRuns(pkg string, since time.Time) ([]history.Run, error)
}
