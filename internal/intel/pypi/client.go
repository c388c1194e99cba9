// Package pypi is a rate-limited client for the Python Package Index JSON
// API.
package pypi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/data/cache"
	"upgradeimpact/internal/engine/version"
	"upgradeimpact/internal/shared/observability"
	"upgradeimpact/internal/shared/util"
)

const (
	DefaultBaseURL     = "https://pypi.org"
	DefaultMaxDownload = 64 << 20

	maxDocumentSize = 32 << 20
	maxRetryAfter   = 30 * time.Second
	userAgent       = "upgradeimpact (+https://pypi.org/help/#apis)"
)

type Options struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Offline           bool
	Cache             *cache.Store
	CacheTTL          time.Duration
}

type Client struct {
	BaseURL     string
	HTTP        *http.Client
	Limiters    *util.LimiterRegistry
	Cache       *cache.Store
	CacheTTL    time.Duration
	MaxDownload int64
	Offline     bool
	logger      *slog.Logger
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:     base,
		HTTP:        &http.Client{Timeout: timeout},
		Limiters:    util.NewLimiterRegistry(opts.RequestsPerSecond, opts.Burst, 10*time.Minute),
		Cache:       opts.Cache,
		CacheTTL:    opts.CacheTTL,
		MaxDownload: DefaultMaxDownload,
		Offline:     opts.Offline,
		logger:      slog.Default(),
	}
}

// Close drops pooled connections.
func (c *Client) Close() {
	c.HTTP.CloseIdleConnections()
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName applies the index's project name normalization.
func NormalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(strings.TrimSpace(name), "-"))
}

func (c *Client) Project(ctx context.Context, name string) (*Project, error) {
	name = NormalizeName(name)
	key := "project:" + name
	var p Project
	if c.Cache.Get(cache.KindPyPI, key, c.CacheTTL, &p) {
		return &p, nil
	}

	if err := c.getJSON(ctx, c.BaseURL+"/pypi/"+url.PathEscape(name)+"/json", &p); err != nil {
		return nil, errors.AddContext(err, errors.CtxPackage, name)
	}
	if err := c.Cache.Set(cache.KindPyPI, key, &p); err != nil {
		c.logger.Debug("caching project failed", "package", name, "error", err)
	}
	return &p, nil
}

// Release returns the files published for one version.
func (c *Client) Release(ctx context.Context, name, ver string) ([]File, error) {
	name = NormalizeName(name)
	var r Release
	endpoint := c.BaseURL + "/pypi/" + url.PathEscape(name) + "/" + url.PathEscape(ver) + "/json"
	if err := c.getJSON(ctx, endpoint, &r); err != nil {
		err = errors.AddContext(err, errors.CtxPackage, name)
		return nil, errors.AddContext(err, errors.CtxVersion, ver)
	}
	return r.URLs, nil
}

// Requires returns the requires_dist of one release. Results are cached per
// version since published metadata never changes.
func (c *Client) Requires(ctx context.Context, name, ver string) ([]string, error) {
	name = NormalizeName(name)
	key := "requires:" + name + "@" + ver
	var reqs []string
	if c.Cache.Get(cache.KindPyPI, key, c.CacheTTL, &reqs) {
		return reqs, nil
	}

	var r Release
	endpoint := c.BaseURL + "/pypi/" + url.PathEscape(name) + "/" + url.PathEscape(ver) + "/json"
	if err := c.getJSON(ctx, endpoint, &r); err != nil {
		err = errors.AddContext(err, errors.CtxPackage, name)
		return nil, errors.AddContext(err, errors.CtxVersion, ver)
	}
	reqs = r.Info.RequiresDist
	if reqs == nil {
		reqs = []string{}
	}
	if err := c.Cache.Set(cache.KindPyPI, key, reqs); err != nil {
		c.logger.Debug("caching requirements failed", "package", name, "error", err)
	}
	return reqs, nil
}

// LatestVersion is the version the index currently advertises.
func (c *Client) LatestVersion(ctx context.Context, name string) (string, error) {
	p, err := c.Project(ctx, name)
	if err != nil {
		return "", err
	}
	if p.Info.Version == "" {
		return "", errors.AddContext(errors.New(errors.CodeNotFound, "project has no version"), errors.CtxPackage, name)
	}
	return p.Info.Version, nil
}

// VersionHistory returns every stable, non-yanked release in ascending order.
func (c *Client) VersionHistory(ctx context.Context, name string) ([]string, error) {
	p, err := c.Project(ctx, name)
	if err != nil {
		return nil, err
	}
	return StableVersions(p.Releases), nil
}

// StableVersions filters pre-releases, unparseable versions and fully yanked
// releases out of a releases map and sorts the rest.
func StableVersions(releases map[string][]File) []string {
	type parsed struct {
		raw string
		v   version.Version
	}
	var out []parsed
	for raw, files := range releases {
		v, err := version.Parse(raw)
		if err != nil || v.Prerelease || allYanked(files) {
			continue
		}
		out = append(out, parsed{raw: raw, v: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := version.Compare(out[i].v, out[j].v); c != 0 {
			return c < 0
		}
		return out[i].raw < out[j].raw
	})
	versions := make([]string, len(out))
	for i, p := range out {
		versions[i] = p.raw
	}
	return versions
}

func allYanked(files []File) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if !f.Yanked {
			return false
		}
	}
	return true
}

// Download streams the file at rawURL into w and returns the byte count.
// Files larger than MaxDownload are rejected.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	limit := c.MaxDownload
	if limit <= 0 {
		limit = DefaultMaxDownload
	}
	if resp.ContentLength > limit {
		return 0, errors.AddContext(errors.Newf(errors.CodeValidationError, "download of %d bytes exceeds limit %d", resp.ContentLength, limit), errors.CtxURL, rawURL)
	}
	n, err := io.Copy(w, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return n, errors.AddContext(errors.Wrap(err, errors.CodeUnavailable, "download interrupted"), errors.CtxURL, rawURL)
	}
	if n > limit {
		return n, errors.AddContext(errors.Newf(errors.CodeValidationError, "download exceeds limit %d", limit), errors.CtxURL, rawURL)
	}
	return n, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst any) error {
	resp, err := c.do(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(dst); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeUnavailable, "decode index response"), errors.CtxURL, endpoint)
	}
	return nil
}

// do sends a GET through the host's limiter. A 429 is retried once after
// Retry-After, capped at maxRetryAfter. The caller closes the body of a
// successful response.
func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	if c.Offline {
		return nil, errors.AddContext(errors.New(errors.CodeUnavailable, "package index disabled in offline mode"), errors.CtxURL, rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid url")
	}

	for attempt := 0; ; attempt++ {
		if c.Limiters != nil {
			if err := c.Limiters.Get(u.Host).Wait(ctx, 1); err != nil {
				return nil, errors.Wrap(err, errors.CodeUnavailable, "rate limiter wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "build request")
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			observability.PyPIRequestsTotal.WithLabelValues("error").Inc()
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeUnavailable, "request failed"), errors.CtxURL, rawURL)
		}
		observability.PyPIRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests && attempt == 0:
			wait := retryAfter(resp.Header.Get("Retry-After"))
			drain(resp)
			c.logger.Debug("rate limited by package index", "url", rawURL, "retry_after", wait)
			if err := sleep(ctx, wait); err != nil {
				return nil, errors.Wrap(err, errors.CodeUnavailable, "waiting for retry")
			}
			continue
		}

		drain(resp)
		code := errors.CodeUnavailable
		if resp.StatusCode == http.StatusNotFound {
			code = errors.CodeNotFound
		}
		return nil, errors.AddContext(errors.Newf(code, "package index returned %s", resp.Status), errors.CtxURL, rawURL)
	}
}

// retryAfter reads a delay-seconds or HTTP-date Retry-After value.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Second
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	} else {
		d = time.Second
	}
	if d < 0 {
		d = 0
	}
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
