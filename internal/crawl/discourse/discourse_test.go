package discourse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtualta/internal/crawl/httpx"
	"virtualta/internal/domain"
)

type fakeForum struct {
	mu      sync.Mutex
	hits    map[string]int
	cookies []string
}

func (f *fakeForum) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeForum) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.cookies = append(f.cookies, r.Header.Get("Cookie"))
	f.mu.Unlock()

	var body string
	switch r.URL.Path {
	case "/search.json":
		switch r.URL.Query().Get("page") {
		case "1":
			body = `{"posts":[
				{"id":11,"topic_id":1,"created_at":"2025-02-01T10:00:00.000Z"},
				{"id":21,"topic_id":2,"created_at":"2025-01-15T10:00:00.000Z"}],
				"topics":[{"id":1,"slug":"alpha"},{"id":2,"slug":"beta"}]}`
		case "2":
			body = `{"posts":[{"id":31,"topic_id":3,"created_at":"2024-12-20T10:00:00.000Z"}],"topics":[]}`
		default:
			body = `{"posts":[],"topics":[]}`
		}
	case "/t/1.json":
		body = `{"post_stream":{"stream":[11,12]}}`
	case "/t/2.json":
		body = `{"post_stream":{"stream":[21]}}`
	case "/t/3.json":
		body = `{"post_stream":{"stream":[31]}}`
	case "/posts/11.json":
		body = `{"id":11,"username":"ana","created_at":"2025-02-01T10:00:00.000Z","post_number":1,"topic_id":1,"raw":"How do I submit?"}`
	case "/posts/12.json":
		body = `{"id":12,"username":"bo","created_at":"2025-05-01T10:00:00.000Z","post_number":2,"topic_id":1,"raw":"late"}`
	case "/posts/21.json":
		body = `{"id":21,"username":"cy","created_at":"2025-01-15T10:00:00.000Z","post_number":3,"topic_id":2,"raw":"Deadline?"}`
	case "/posts/11/replies.json":
		body = `[{"cooked":"<p>Use the portal.</p>"}]`
	case "/posts/12/replies.json", "/posts/21/replies.json":
		body = `[]`
	default:
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(body))
}

func newCrawler(t *testing.T, srvURL, dir string) *Crawler {
	t.Helper()
	header, err := AuthHeader("_t=session")
	require.NoError(t, err)
	client := httpx.New(httpx.Config{Header: header}, nil)
	c, err := New(Config{
		BaseURL:       srvURL,
		Cookie:        "_t=session",
		SearchFilters: "#courses:tds-kb",
		StartDate:     "2025-01-01",
		EndDate:       "2025-04-14",
		RawDir:        dir,
	}, client, nil, nil)
	require.NoError(t, err)
	return c
}

func TestRun_CrawlsWindowAndStopsBeforeStart(t *testing.T) {
	f := &fakeForum{hits: map[string]int{}}
	srv := httptest.NewServer(f)
	defer srv.Close()
	dir := t.TempDir()

	c := newCrawler(t, srv.URL, dir)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Fetched: 2, Skipped: 0, Total: 2}, res)
	assert.Equal(t, 2, f.count("/search.json"))
	assert.Equal(t, 0, f.count("/t/3.json"), "post older than start ends the crawl")
	for _, cookie := range f.cookies {
		assert.Equal(t, "_t=session", cookie)
	}

	data, err := os.ReadFile(c.Paths().Snapshot)
	require.NoError(t, err)
	var posts []domain.Post
	require.NoError(t, json.Unmarshal(data, &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, srv.URL+"/t/alpha/1", posts[0].URL)
	assert.Equal(t, []string{"<p>Use the portal.</p>"}, posts[0].Replies)
	assert.Equal(t, srv.URL+"/t/beta/2/3", posts[1].URL)
}

func TestRun_ResumeDoesNotRefetchRecordedPosts(t *testing.T) {
	f := &fakeForum{hits: map[string]int{}}
	srv := httptest.NewServer(f)
	defer srv.Close()
	dir := t.TempDir()

	_, err := newCrawler(t, srv.URL, dir).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(newCrawler(t, srv.URL, dir).Paths().Snapshot))

	// only the incremental log survives
	res, err := newCrawler(t, srv.URL, dir).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Fetched)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, f.count("/posts/11.json"))
	assert.Equal(t, 1, f.count("/posts/11/replies.json"))
	assert.Equal(t, 1, f.count("/posts/21.json"))
	// out-of-window posts are never recorded, so they are fetched again
	assert.Equal(t, 2, f.count("/posts/12.json"))
}

func TestNew_RequiresCookie(t *testing.T) {
	_, err := New(Config{StartDate: "2025-01-01", EndDate: "2025-04-14"}, nil, nil, nil)
	require.ErrorIs(t, err, ErrNoCredentials)

	_, err = AuthHeader("")
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestNew_RejectsInvertedWindow(t *testing.T) {
	_, err := New(Config{Cookie: "c", StartDate: "2025-04-14", EndDate: "2025-01-01"}, nil, nil, nil)
	require.Error(t, err)
}

func TestPostURL(t *testing.T) {
	assert.Equal(t, "https://d/t/slug/7", PostURL("https://d/", "slug", 7, 1))
	assert.Equal(t, "https://d/t/slug/7/4", PostURL("https://d", "slug", 7, 4))
}

func TestLearnSlugFromURL(t *testing.T) {
	c, err := New(Config{Cookie: "c", StartDate: "2025-01-01", EndDate: "2025-01-02"}, nil, nil, nil)
	require.NoError(t, err)
	c.learnSlugFromURL(domain.Post{TopicID: 5, URL: "https://d/t/my-topic/5/2"})
	c.learnSlugFromURL(domain.Post{TopicID: 6, URL: "https://d/t/unknown-topic/6"})
	assert.Equal(t, "my-topic", c.topics[5])
	_, ok := c.topics[6]
	assert.False(t, ok)
}
