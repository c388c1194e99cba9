package pypi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgradeimpact/internal/core/errors"
	"upgradeimpact/internal/data/cache"
)

func projectDoc() Project {
	return Project{
		Info: Info{Name: "requests", Version: "2.31.0", Description: "# Changelog\n"},
		Releases: map[string][]File{
			"2.9.0":    {{Filename: "requests-2.9.0.tar.gz", PackageType: PackageSdist}},
			"2.10.0":   {{Filename: "requests-2.10.0.tar.gz", PackageType: PackageSdist}},
			"2.31.0":   {{Filename: "requests-2.31.0-py3-none-any.whl", PackageType: PackageWheel}},
			"3.0.0rc1": {{Filename: "requests-3.0.0rc1.tar.gz", PackageType: PackageSdist}},
			"2.11.0":   {{Filename: "requests-2.11.0.tar.gz", PackageType: PackageSdist, Yanked: true}},
			"junk":     nil,
		},
	}
}

func newTestClient(t *testing.T, h http.Handler, store *cache.Store) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 10, Cache: store, CacheTTL: time.Hour})
	t.Cleanup(c.Close)
	return c
}

func TestClient_ProjectAndHistory(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/pypi/requests/json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(projectDoc())
	})
	c := newTestClient(t, mux, cache.NewStore(t.TempDir(), true))
	ctx := context.Background()

	latest, err := c.LatestVersion(ctx, "Requests")
	require.NoError(t, err)
	assert.Equal(t, "2.31.0", latest)

	history, err := c.VersionHistory(ctx, "requests")
	require.NoError(t, err)
	assert.Equal(t, []string{"2.9.0", "2.10.0", "2.31.0"}, history)

	assert.Equal(t, int32(1), hits.Load(), "second lookup is served from the cache")
}

func TestClient_Release(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pypi/requests/2.31.0/json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Release{URLs: []File{
			{Filename: "requests-2.31.0.tar.gz", PackageType: PackageSdist, URL: "http://x/sdist"},
			{Filename: "requests-2.31.0-py3-none-any.whl", PackageType: PackageWheel, URL: "http://x/wheel"},
		}})
	})
	c := newTestClient(t, mux, nil)

	files, err := c.Release(context.Background(), "requests", "2.31.0")
	require.NoError(t, err)
	require.Len(t, files, 2)

	f, ok := PreferredFile(files)
	require.True(t, ok)
	assert.Equal(t, "http://x/wheel", f.URL)
}

func TestClient_StatusMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pypi/missing/json", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/pypi/broken/json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, mux, nil)

	_, err := c.Project(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = c.Project(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnavailable))
}

func TestClient_RetriesOnceAfter429(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/pypi/flaky/json", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Project{Info: Info{Version: "1.0"}})
	})
	mux.HandleFunc("/pypi/throttled/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, mux, nil)

	v, err := c.LatestVersion(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, "1.0", v)
	assert.Equal(t, int32(2), calls.Load())

	_, err = c.Project(context.Background(), "throttled")
	assert.True(t, errors.IsCode(err, errors.CodeUnavailable))
}

func TestClient_Offline(t *testing.T) {
	c := NewClient(Options{Offline: true})
	defer c.Close()

	_, err := c.Project(context.Background(), "requests")
	assert.True(t, errors.IsCode(err, errors.CodeUnavailable))
}

func TestClient_DownloadLimit(t *testing.T) {
	body := strings.Repeat("x", 128)
	mux := http.NewServeMux()
	mux.HandleFunc("/files/pkg.whl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	c := newTestClient(t, mux, nil)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.Download(ctx, c.BaseURL+"/files/pkg.whl", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(128), n)
	assert.Equal(t, body, buf.String())

	c.MaxDownload = 64
	_, err = c.Download(ctx, c.BaseURL+"/files/pkg.whl", &bytes.Buffer{})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Second, retryAfter(""))
	assert.Equal(t, 5*time.Second, retryAfter("5"))
	assert.Equal(t, maxRetryAfter, retryAfter("3600"))
	assert.Equal(t, time.Duration(0), retryAfter("-3"))
	assert.Equal(t, time.Second, retryAfter("soon"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "zope-interface", NormalizeName("Zope.Interface"))
	assert.Equal(t, "typing-extensions", NormalizeName("typing_extensions"))
}

func TestPreferredFile(t *testing.T) {
	_, ok := PreferredFile(nil)
	assert.False(t, ok)

	f, ok := PreferredFile([]File{
		{Filename: "pkg-1.0-cp311-cp311-manylinux.whl", PackageType: PackageWheel},
		{Filename: "pkg-1.0.tar.gz", PackageType: PackageSdist},
	})
	require.True(t, ok)
	assert.Equal(t, PackageWheel, f.PackageType)

	f, ok = PreferredFile([]File{
		{Filename: "pkg-1.0-py3-none-any.whl", PackageType: PackageWheel, Yanked: true},
		{Filename: "pkg-1.0.tar.gz", PackageType: PackageSdist},
	})
	require.True(t, ok)
	assert.Equal(t, PackageSdist, f.PackageType)
}

func TestClient_Requires(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/pypi/requests/2.31.0/json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"info": {"name": "requests", "version": "2.31.0",
			"requires_dist": ["charset-normalizer (<4,>=2)", "urllib3 (<3,>=1.21.1)", "PySocks!=1.5.7,>=1.5.6; extra == \"socks\""]}}`))
	})
	mux.HandleFunc("/pypi/six/1.16.0/json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"info": {"name": "six", "version": "1.16.0", "requires_dist": null}}`))
	})
	c := newTestClient(t, mux, cache.NewStore(t.TempDir(), true))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		reqs, err := c.Requires(ctx, "Requests", "2.31.0")
		require.NoError(t, err)
		assert.Len(t, reqs, 3)
		assert.Equal(t, "charset-normalizer (<4,>=2)", reqs[0])
	}
	assert.Equal(t, int32(1), hits.Load())

	reqs, err := c.Requires(ctx, "six", "1.16.0")
	require.NoError(t, err)
	assert.NotNil(t, reqs)
	assert.Empty(t, reqs)

	_, err = c.Requires(ctx, "six", "0.0.1")
	require.Error(t, err)
}
