package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/data/cache"
	"upgradeimpact/internal/intel/pypi"
	"upgradeimpact/internal/shared/util"
)

// Source yields raw, unfiltered entries for a package. An empty result means
// the source has nothing to say; the next source is tried.
type Source interface {
	Name() string
	Fetch(ctx context.Context, pkg, from, to string) ([]Entry, error)
}

// ProjectLookup is the part of the index client the sources need.
type ProjectLookup interface {
	Project(ctx context.Context, name string) (*pypi.Project, error)
}

const maxNotesLength = 2000

// Chain asks each source in order and returns the first non-empty answer,
// filtered to (from, to]. Non-empty results are cached.
type Chain struct {
	sources []Source
	cache   *cache.Store
	ttl     time.Duration
	logger  *slog.Logger
}

func NewChain(store *cache.Store, ttl time.Duration, sources ...Source) *Chain {
	return &Chain{sources: sources, cache: store, ttl: ttl, logger: slog.Default()}
}

func (c *Chain) Entries(ctx context.Context, pkg, from, to string) ([]Entry, error) {
	key := fmt.Sprintf("changelog:%s:%s:%s", pypi.NormalizeName(pkg), from, to)
	var cached []Entry
	if c.cache.Get(cache.KindChangelog, key, c.ttl, &cached) {
		return cached, nil
	}

	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := src.Fetch(ctx, pkg, from, to)
		if err != nil {
			c.logger.Debug("changelog source failed", "source", src.Name(), "package", pkg, "error", err)
			continue
		}
		if len(entries) == 0 {
			continue
		}
		entries = FilterRange(entries, from, to)
		if len(entries) > 0 {
			if err := c.cache.Set(cache.KindChangelog, key, entries); err != nil {
				c.logger.Debug("caching changelog failed", "package", pkg, "error", err)
			}
		}
		return entries, nil
	}
	return nil, nil
}

// FileSource reads changelog files configured per package.
type FileSource struct {
	paths map[string]string
}

func NewFileSource(paths map[string]string) *FileSource {
	norm := make(map[string]string, len(paths))
	for pkg, p := range paths {
		if p != "" {
			norm[pypi.NormalizeName(pkg)] = p
		}
	}
	return &FileSource{paths: norm}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Fetch(_ context.Context, pkg, _, _ string) ([]Entry, error) {
	p, ok := s.paths[pypi.NormalizeName(pkg)]
	if !ok {
		return nil, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read changelog"), errors.CtxPath, p)
	}
	return ParseMarkdown(string(data)), nil
}

// IndexSource reads the project description published on the index. A
// description with version headers is parsed as a changelog; otherwise its
// release notes become a single entry for the target version.
type IndexSource struct {
	projects ProjectLookup
}

func NewIndexSource(projects ProjectLookup) *IndexSource {
	return &IndexSource{projects: projects}
}

func (s *IndexSource) Name() string { return "pypi" }

func (s *IndexSource) Fetch(ctx context.Context, pkg, _, to string) ([]Entry, error) {
	p, err := s.projects.Project(ctx, pkg)
	if err != nil {
		return nil, err
	}
	desc := p.Info.Description
	if strings.TrimSpace(desc) == "" {
		return nil, nil
	}
	if entries := ParseMarkdown(desc); len(entries) > 0 {
		return entries, nil
	}
	if to == "" {
		return nil, nil
	}
	notes := truncateUTF8(ExtractReleaseNotes(desc), maxNotesLength)
	return []Entry{{Version: to, Content: notes}}, nil
}

var githubRepo = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)`)

// RepoFromProject finds a GitHub owner/repo among the project URLs.
func RepoFromProject(p *pypi.Project) (owner, repo string, ok bool) {
	for _, key := range util.SortedStringKeys(p.Info.ProjectURLs) {
		m := githubRepo.FindStringSubmatch(p.Info.ProjectURLs[key])
		if m == nil {
			continue
		}
		return m[1], strings.TrimSuffix(m[2], ".git"), true
	}
	return "", "", false
}

const DefaultGitHubAPI = "https://api.github.com"

// GitHubSource reads release bodies from the repository linked by the
// project metadata.
type GitHubSource struct {
	projects ProjectLookup
	baseURL  string
	token    string
	http     *http.Client
	limiter  *util.Limiter
}

func NewGitHubSource(projects ProjectLookup, baseURL, token string, limiter *util.Limiter) *GitHubSource {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	if limiter == nil {
		limiter = util.NewLimiter(1, 5)
	}
	return &GitHubSource{
		projects: projects,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  limiter,
	}
}

func (s *GitHubSource) Name() string { return "github" }

type githubRelease struct {
	TagName     string `json:"tag_name"`
	PublishedAt string `json:"published_at"`
	Body        string `json:"body"`
	Draft       bool   `json:"draft"`
}

func (s *GitHubSource) Fetch(ctx context.Context, pkg, _, _ string) ([]Entry, error) {
	p, err := s.projects.Project(ctx, pkg)
	if err != nil {
		return nil, err
	}
	owner, repo, ok := RepoFromProject(p)
	if !ok {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx, 1); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=30", s.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeUnavailable, "github request failed"), errors.CtxURL, endpoint)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, errors.AddContext(errors.Newf(errors.CodeUnavailable, "github returned %s", resp.Status), errors.CtxURL, endpoint)
	}

	var releases []githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&releases); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "decode github releases")
	}
	entries := make([]Entry, 0, len(releases))
	for _, r := range releases {
		v := strings.TrimLeft(r.TagName, "vV")
		if v == "" || r.Draft {
			continue
		}
		date := r.PublishedAt
		if len(date) >= 10 {
			date = date[:10]
		}
		entries = append(entries, Entry{Version: v, Date: date, Content: r.Body})
	}
	return entries, nil
}
