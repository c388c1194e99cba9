package changelog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/data/cache"
	"upgradeimpact/internal/intel/pypi"
)

type stubProjects struct {
	projects map[string]*pypi.Project
	calls    int
}

func (s *stubProjects) Project(_ context.Context, name string) (*pypi.Project, error) {
	s.calls++
	p, ok := s.projects[name]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "no project")
	}
	return p, nil
}

type staticSource struct {
	name    string
	entries []Entry
	err     error
	calls   int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(context.Context, string, string, string) ([]Entry, error) {
	s.calls++
	return s.entries, s.err
}

const sampleChangelog = `# Changelog

## 2.1.0 (2024-03-01)
- Removed legacy adapter

## 2.0.0
- Breaking: new API

## 1.9.0
- Fixed bug
`

func TestFileSource(t *testing.T) {
	p := filepath.Join(t.TempDir(), "CHANGELOG.md")
	require.NoError(t, os.WriteFile(p, []byte(sampleChangelog), 0o644))
	src := NewFileSource(map[string]string{"My_Lib": p, "other": ""})

	entries, err := src.Fetch(context.Background(), "my-lib", "", "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2.1.0", entries[0].Version)
	assert.Equal(t, "2024-03-01", entries[0].Date)

	entries, err = src.Fetch(context.Background(), "other", "", "")
	assert.NoError(t, err)
	assert.Empty(t, entries)

	bad := NewFileSource(map[string]string{"x": filepath.Join(t.TempDir(), "missing.md")})
	_, err = bad.Fetch(context.Background(), "x", "", "")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestIndexSource(t *testing.T) {
	projects := &stubProjects{projects: map[string]*pypi.Project{
		"parsed": {Info: pypi.Info{Description: sampleChangelog}},
		"notes":  {Info: pypi.Info{Description: "A library.\n\n## Release Notes\nFaster parsing."}},
		"empty":  {},
	}}
	src := NewIndexSource(projects)
	ctx := context.Background()

	entries, err := src.Fetch(ctx, "parsed", "1.9.0", "2.1.0")
	require.NoError(t, err)
	assert.Len(t, entries, 3, "sources return unfiltered entries")

	entries, err = src.Fetch(ctx, "notes", "1.0", "1.1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1.1", entries[0].Version)
	assert.Contains(t, entries[0].Content, "Faster parsing.")

	entries, err = src.Fetch(ctx, "notes", "1.0", "")
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = src.Fetch(ctx, "empty", "", "1.0")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepoFromProject(t *testing.T) {
	p := &pypi.Project{Info: pypi.Info{ProjectURLs: map[string]string{
		"Documentation": "https://requests.readthedocs.io",
		"Source":        "https://github.com/psf/requests.git",
	}}}
	owner, repo, ok := RepoFromProject(p)
	require.True(t, ok)
	assert.Equal(t, "psf", owner)
	assert.Equal(t, "requests", repo)

	_, _, ok = RepoFromProject(&pypi.Project{})
	assert.False(t, ok)
}

func TestGitHubSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/psf/requests/releases", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]githubRelease{
			{TagName: "v2.31.0", PublishedAt: "2023-05-22T15:00:00Z", Body: "Security fix"},
			{TagName: "v3.0.0", Draft: true},
			{TagName: ""},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	projects := &stubProjects{projects: map[string]*pypi.Project{
		"requests": {Info: pypi.Info{ProjectURLs: map[string]string{"Source": "https://github.com/psf/requests"}}},
		"nolink":   {},
	}}
	src := NewGitHubSource(projects, srv.URL, "tok", nil)

	entries, err := src.Fetch(context.Background(), "requests", "", "")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Version: "2.31.0", Date: "2023-05-22", Content: "Security fix"}}, entries)

	entries, err = src.Fetch(context.Background(), "nolink", "", "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChain_FirstNonEmptyWinsAndFilters(t *testing.T) {
	failing := &staticSource{name: "broken", err: errors.New(errors.CodeUnavailable, "down")}
	empty := &staticSource{name: "empty"}
	full := &staticSource{name: "full", entries: ParseMarkdown(sampleChangelog)}
	never := &staticSource{name: "never", entries: []Entry{{Version: "9.9.9"}}}

	chain := NewChain(nil, time.Hour, failing, empty, full, never)
	entries, err := chain.Entries(context.Background(), "pkg", "1.9.0", "2.1.0")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2.1.0", entries[0].Version)
	assert.Equal(t, "2.0.0", entries[1].Version)
	assert.Equal(t, 0, never.calls)
}

func TestChain_Caches(t *testing.T) {
	store := cache.NewStore(t.TempDir(), true)
	src := &staticSource{name: "full", entries: ParseMarkdown(sampleChangelog)}
	chain := NewChain(store, time.Hour, src)

	first, err := chain.Entries(context.Background(), "pkg", "", "2.0.0")
	require.NoError(t, err)
	second, err := chain.Entries(context.Background(), "pkg", "", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)
}

func TestChain_NothingFound(t *testing.T) {
	entries, err := NewChain(nil, 0).Entries(context.Background(), "pkg", "", "")
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
