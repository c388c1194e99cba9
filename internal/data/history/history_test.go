package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndLoadRuns(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)

	first, err := store.SaveRun(Run{
		Timestamp: base,
		Package:   "requests",
		Current:   "2.28.0",
		Target:    "3.0.0",
		Total:     80,
		Severity:  "critical",
		Semver:    80,
		Usage:     100,
		Coverage:  "known",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, SchemaVersion, first.SchemaVersion)

	_, err = store.SaveRun(Run{Timestamp: base.Add(2 * time.Hour), Package: "requests", Target: "3.0.1", Total: 60, Severity: "high"})
	require.NoError(t, err)
	_, err = store.SaveRun(Run{Timestamp: base.Add(time.Hour), Package: "flask", Total: 10, Severity: "low"})
	require.NoError(t, err)

	runs, err := store.LoadRuns("requests", time.Time{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first, runs[0])
	assert.Equal(t, "unknown", runs[1].Coverage)

	recent, err := store.LoadRuns("requests", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "3.0.1", recent[0].Target)

	all, err := store.LoadRuns("", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "flask", all[1].Package)
}

func TestStore_SaveRunUpsertsByID(t *testing.T) {
	store := openTestStore(t)
	run, err := store.SaveRun(Run{Package: "requests", Total: 10, Severity: "low"})
	require.NoError(t, err)

	run.Total = 40
	run.Severity = "medium"
	_, err = store.SaveRun(run)
	require.NoError(t, err)

	runs, err := store.LoadRuns("requests", time.Time{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 40.0, runs[0].Total)
}

func TestStore_SaveRunValidation(t *testing.T) {
	store := openTestStore(t)
	_, err := store.SaveRun(Run{Package: "  "})
	assert.Error(t, err)

	_, err = store.SaveRun(Run{Package: "x", SchemaVersion: SchemaVersion + 1})
	assert.Error(t, err)
}

func TestStore_CommitMetadataRoundTrip(t *testing.T) {
	store := openTestStore(t)
	commitTS := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := store.SaveRun(Run{Package: "p", CommitHash: "abc123", CommitTimestamp: commitTS, Severity: "low"})
	require.NoError(t, err)

	runs, err := store.LoadRuns("p", time.Time{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "abc123", runs[0].CommitHash)
	assert.True(t, commitTS.Equal(runs[0].CommitTimestamp))
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")

	_, err = Open("   ")
	assert.Error(t, err)
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not sqlite"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	lower := strings.ToLower(err.Error())
	assert.True(t, strings.Contains(lower, "not a database") || strings.Contains(lower, "schema"), err.Error())
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion+1))
	require.NoError(t, err)

	db, err := sql.Open(driverName, "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	err = EnsureSchema(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestBuildTrendReport(t *testing.T) {
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	runs := []Run{
		{Timestamp: base, Target: "2.0", Total: 40, UsageCount: 4},
		{Timestamp: base.Add(2 * time.Hour), Target: "2.1", Total: 60, UsageCount: 6},
		{Timestamp: base.Add(25 * time.Hour), Target: "3.0", Total: 90, UsageCount: 3},
	}

	report, err := BuildTrendReport("requests", runs, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, report.RunCount)
	assert.Equal(t, "requests", report.Package)
	assert.Equal(t, 20.0, report.Points[1].DeltaTotal)
	assert.Equal(t, 2, report.Points[1].DeltaUsage)
	assert.Equal(t, -3, report.Points[2].DeltaUsage)
	assert.Equal(t, 50.0, report.Points[1].AvgTotal)
	assert.Equal(t, 75.0, report.Points[2].AvgTotal, "the first run falls outside the window")
	assert.Equal(t, 24.0, report.Points[0].WindowHours)

	_, err = BuildTrendReport("requests", nil, time.Hour)
	assert.Error(t, err)
}

func TestIsCorruptError(t *testing.T) {
	assert.True(t, IsCorruptError(errors.New("database disk image is malformed")))
	assert.False(t, IsCorruptError(nil))
}

func TestResolveGit_OutsideWorkTree(t *testing.T) {
	assert.Equal(t, GitInfo{}, ResolveGit(context.Background(), t.TempDir()))
}
