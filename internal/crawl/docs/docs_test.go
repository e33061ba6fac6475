package docs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtualta/internal/crawl/httpx"
	"virtualta/internal/domain"
)

type fakeSite struct {
	mu    sync.Mutex
	pages map[string]string
	order []string
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.order = append(f.order, r.URL.Path)
	f.mu.Unlock()
	body, ok := f.pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeSite) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func docsifySite() *fakeSite {
	return &fakeSite{pages: map[string]string{
		"/2025-01/README.md": "# January\n\n- [Setup](setup.md)\n- [Tools](#/2025-01/tools)\n" +
			"![diagram](pic.png)\n[Elsewhere](https://other.example/x)\n[Setup again](./setup.md)\n",
		"/2025-01/setup.md": "Install Python. Copy to clipboardErrorCopied Then run it.\n" +
			"[Back](README.md) and [Deep](deep/page.md)\n",
		"/2025-01/deep/page.md": "Deep page. [Up](../tools.md)\n",
		"/2025-01/tools.md":     "Tools page. [Setup](#/2025-01/setup?id=install)\n",
	}}
}

func newDocsCrawler(t *testing.T, base, start, dir string) *Crawler {
	t.Helper()
	c, err := New(Config{
		BaseURL:         base,
		StartPath:       start,
		RawDir:          dir,
		Label:           "2025-01",
		ContentSelector: "#main",
		LinkSelector:    ".sidebar-nav",
	}, httpx.New(httpx.Config{}, nil), nil, nil)
	require.NoError(t, err)
	return c
}

func TestRun_DocsifyDepthFirst(t *testing.T) {
	site := docsifySite()
	srv := httptest.NewServer(site)
	defer srv.Close()
	dir := t.TempDir()

	res, err := newDocsCrawler(t, srv.URL, "#/2025-01/", dir).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Fetched: 4, Total: 4}, res)
	assert.Equal(t, []string{
		"/2025-01/README.md",
		"/2025-01/setup.md",
		"/2025-01/deep/page.md",
		"/2025-01/tools.md",
	}, site.requests())

	data, err := os.ReadFile(filepath.Join(dir, "2025-01_setup.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), clipboardArtifact)
	assert.Contains(t, string(data), "Install Python. \n Then run it.")

	for _, name := range []string{"2025-01_README.txt", "2025-01_deep_page.txt", "2025-01_tools.txt"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRun_ResumeMakesNoRequests(t *testing.T) {
	site := docsifySite()
	srv := httptest.NewServer(site)
	defer srv.Close()
	dir := t.TempDir()

	c := newDocsCrawler(t, srv.URL, "#/2025-01/", dir)
	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(c.Paths().Snapshot))
	before := len(site.requests())

	res, err := newDocsCrawler(t, srv.URL, "#/2025-01/", dir).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, len(site.requests()))
	assert.Equal(t, Result{Skipped: 4, Total: 4}, res)
}

func TestRun_ResumeFetchesOnlyNewPages(t *testing.T) {
	site := docsifySite()
	srv := httptest.NewServer(site)
	defer srv.Close()
	dir := t.TempDir()

	_, err := newDocsCrawler(t, srv.URL, "#/2025-01/", dir).Run(context.Background())
	require.NoError(t, err)

	site.mu.Lock()
	site.pages["/2025-01/tools.md"] = "Tools page. [New](new.md)\n"
	site.pages["/2025-01/new.md"] = "Brand new."
	site.order = nil
	site.mu.Unlock()

	// tools is already recorded, so its new link is not seen
	res, err := newDocsCrawler(t, srv.URL, "#/2025-01/", dir).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, site.requests())
	assert.Equal(t, 0, res.Fetched)
}

func TestRun_DeadLinkIsSkipped(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"/2025-01/README.md": "# January\n\n[Gone](gone.md) then [Setup](setup.md)\n",
		"/2025-01/setup.md":  "Install Python.",
	}}
	srv := httptest.NewServer(site)
	defer srv.Close()
	dir := t.TempDir()

	c := newDocsCrawler(t, srv.URL, "#/2025-01/", dir)
	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 2, Failed: 1, Total: 2}, res)
	assert.Equal(t, []string{
		"/2025-01/README.md",
		"/2025-01/gone.md",
		"/2025-01/setup.md",
	}, site.requests())

	_, err = os.Stat(filepath.Join(dir, "2025-01_setup.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "pages_2025-01.json"))
	assert.NoError(t, err)

	// the dead page is not recorded, so a resumed run tries it once more
	res, err = newDocsCrawler(t, srv.URL, "#/2025-01/", dir).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2, Failed: 1, Total: 2}, res)
}

func TestRun_RetriesExhaustedAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	dir := t.TempDir()

	client := httpx.New(httpx.Config{RateLimitDelay: time.Millisecond, MaxRetries: 1}, nil)
	c, err := New(Config{BaseURL: srv.URL, StartPath: "#/2025-01/", RawDir: dir, Label: "2025-01"}, client, nil, nil)
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrRetriesExhausted)
	_, statErr := os.Stat(filepath.Join(dir, "pages_2025-01.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_HTMLPages(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"/index.html": `<html><body>
			<nav class="sidebar-nav"><a href="/a.html">A</a><a href="https://other.example/x">X</a></nav>
			<article id="main"><h1>Home</h1><p>Welcome.</p><a href="#top">top</a></article>
			</body></html>`,
		"/a.html": `<html><body><article id="main"><p>Page A.</p>
			<a href="/index.html?ref=a">home</a></article></body></html>`,
	}}
	srv := httptest.NewServer(site)
	defer srv.Close()
	dir := t.TempDir()

	res, err := newDocsCrawler(t, srv.URL, "index.html", dir).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, []string{"/index.html", "/a.html"}, site.requests())

	data, err := os.ReadFile(filepath.Join(dir, "index.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Home")
	assert.Contains(t, string(data), "Welcome.")
}

func TestKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://d/#/2025-01/setup?id=install", "#/2025-01/setup"},
		{"https://d/#/2025-01/setup", "#/2025-01/setup"},
		{"https://d/#/2025-01/README", "#/2025-01/"},
		{"https://d/#/2025-01/", "#/2025-01/"},
		{"https://d/a.html?x=1#frag", "/a.html"},
		{"https://d", "/"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, Key(u), tt.in)
	}
}

func TestFileSlug(t *testing.T) {
	u, _ := url.Parse("https://d/#/2025-01/")
	assert.Equal(t, "2025-01_README", FileSlug(u))
	u, _ = url.Parse("https://d/#/2025-01/deep/page")
	assert.Equal(t, "2025-01_deep_page", FileSlug(u))
	u, _ = url.Parse("https://d/guide/intro.html")
	assert.Equal(t, "guide_intro", FileSlug(u))
}

func TestMarkdownLinks(t *testing.T) {
	base, _ := url.Parse("https://d")
	got := markdownLinks(base, "/2025-01/setup", "[a](other.md) ![i](x.png) [b](#section) [c](/top/) [d](mailto:x@y)")
	assert.Equal(t, []string{"https://d/#/2025-01/other", "https://d/#/top/"}, got)
}

func TestPageRecordKeepsLinks(t *testing.T) {
	site := docsifySite()
	srv := httptest.NewServer(site)
	defer srv.Close()
	dir := t.TempDir()

	c := newDocsCrawler(t, srv.URL, "#/2025-01/", dir)
	u, _ := url.Parse(srv.URL + "/#/2025-01/setup")
	rec, err := c.fetchPage(context.Background(), u, Key(u))
	require.NoError(t, err)
	assert.Equal(t, domain.PageRecord{
		Key:   "#/2025-01/setup",
		URL:   srv.URL + "/#/2025-01/setup",
		File:  filepath.Join(dir, "2025-01_setup.txt"),
		Links: []string{srv.URL + "/#/2025-01/", srv.URL + "/#/2025-01/deep/page"},
	}, rec)
}
