// Package docs crawls a documentation site depth-first from a start page,
// saving each page's text to a file.
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"virtualta/internal/crawl/checkpoint"
	"virtualta/internal/crawl/httpx"
	"virtualta/internal/domain"
	"virtualta/internal/metrics"
)

// clipboardArtifact is left behind by the site's copy-code buttons.
const clipboardArtifact = "Copy to clipboardErrorCopied"

// Fetcher is the transport the crawler needs.
type Fetcher interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

type Config struct {
	BaseURL   string
	StartPath string
	RawDir    string
	// Label names this crawl's checkpoint files.
	Label string
	// ContentSelector picks the text node of an HTML page.
	ContentSelector string
	// LinkSelector picks an extra node (navigation) links are read from.
	LinkSelector string
}

// Result summarizes one run. Failed counts pages that could not be
// fetched or parsed; they are not recorded and are retried next run.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
	Total   int
}

type Crawler struct {
	cfg     Config
	base    *url.URL
	fetch   Fetcher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, fetch Fetcher, logger *zap.Logger, m *metrics.Metrics) (*Crawler, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("docs base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("docs base url %q is not absolute", cfg.BaseURL)
	}
	if cfg.Label == "" {
		cfg.Label = "docs"
	}
	if cfg.ContentSelector == "" {
		cfg.ContentSelector = "body"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Crawler{cfg: cfg, base: base, fetch: fetch, logger: logger, metrics: m}, nil
}

// Paths returns the checkpoint files of this crawl.
func (c *Crawler) Paths() checkpoint.Paths {
	name := "pages_" + c.cfg.Label
	return checkpoint.Paths{
		Snapshot: filepath.Join(c.cfg.RawDir, name+".json"),
		LogDir:   filepath.Join(c.cfg.RawDir, "line_delimited"),
		LogName:  name + checkpoint.LogExt,
	}
}

// StartURL resolves StartPath against the base URL.
func (c *Crawler) StartURL() (*url.URL, error) {
	ref, err := url.Parse(c.cfg.StartPath)
	if err != nil {
		return nil, fmt.Errorf("docs start path: %w", err)
	}
	root := *c.base
	root.Path = strings.TrimRight(root.Path, "/") + "/"
	return root.ResolveReference(ref), nil
}

func pageKey(p domain.PageRecord) string { return p.Key }

// Run visits pages depth-first in discovery order until the frontier is
// empty. Pages already in the checkpoint are not fetched; their recorded
// links keep the traversal going.
func (c *Crawler) Run(ctx context.Context) (Result, error) {
	start, err := c.StartURL()
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(c.cfg.RawDir, 0o755); err != nil {
		return Result{}, err
	}
	store, err := checkpoint.Open(c.Paths(), pageKey, c.logger)
	if err != nil {
		return Result{}, err
	}
	defer store.Close()

	res := Result{}
	visited := map[string]bool{}
	stack := []string{start.String()}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		raw := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		u, err := url.Parse(raw)
		if err != nil {
			c.logger.Warn("unparseable link, skipping", zap.String("url", raw), zap.Error(err))
			continue
		}
		key := Key(u)
		if visited[key] {
			continue
		}
		visited[key] = true

		var links []string
		if rec, ok := store.Get(key); ok {
			res.Skipped++
			c.metrics.CheckpointSkips.WithLabelValues(string(domain.FamilyDocs)).Inc()
			links = rec.Links
		} else {
			rec, err := c.fetchPage(ctx, u, key)
			if skippable(err) {
				res.Failed++
				c.metrics.PageFailures.WithLabelValues(string(domain.FamilyDocs)).Inc()
				c.logger.Warn("page not crawlable, skipping", zap.String("url", raw), zap.Error(err))
				continue
			}
			if err != nil {
				return res, err
			}
			if err := store.Append(rec); err != nil {
				return res, err
			}
			res.Fetched++
			links = rec.Links
		}
		// push in reverse so the first discovered link is visited next
		for i := len(links) - 1; i >= 0; i-- {
			next, err := url.Parse(links[i])
			if err != nil || !sameOrigin(c.base, next) || visited[Key(next)] {
				continue
			}
			stack = append(stack, links[i])
		}
	}

	res.Total = store.Len()
	if err := store.SaveSnapshot(nil); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Crawler) fetchPage(ctx context.Context, u *url.URL, key string) (domain.PageRecord, error) {
	src, isMarkdown := sourceURL(c.base, u)
	kind := "html"
	if isMarkdown {
		kind = "markdown"
	}
	c.metrics.CrawlFetches.WithLabelValues(string(domain.FamilyDocs), kind).Inc()
	body, err := c.fetch.Get(ctx, src, nil)
	if err != nil {
		return domain.PageRecord{}, err
	}

	var text string
	var links []string
	if isMarkdown {
		route, _ := hashRoute(u)
		text = string(body)
		links = dedupe(markdownLinks(c.base, route, text))
	} else {
		text, links, err = c.parseHTML(u, body)
		if err != nil {
			return domain.PageRecord{}, err
		}
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, clipboardArtifact, "\n"))

	file := filepath.Join(c.cfg.RawDir, FileSlug(u)+".txt")
	if err := os.WriteFile(file, []byte(text), 0o644); err != nil {
		return domain.PageRecord{}, err
	}
	c.logger.Info("saved page", zap.String("url", u.String()), zap.String("file", file), zap.Int("links", len(links)))
	return domain.PageRecord{Key: key, URL: u.String(), File: file, Links: links}, nil
}

func (c *Crawler) parseHTML(u *url.URL, body []byte) (string, []string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("parse %s: %v: %w", u, err, domain.ErrMalformedInput)
	}
	content := findNode(doc, c.cfg.ContentSelector)
	if content == nil {
		return "", nil, fmt.Errorf("no %q node in %s: %w", c.cfg.ContentSelector, u, domain.ErrMalformedInput)
	}
	md, err := htmltomarkdown.ConvertNode(content)
	if err != nil {
		return "", nil, fmt.Errorf("convert %s: %w", u, err)
	}
	nav := findNode(doc, c.cfg.LinkSelector)
	return string(md), dedupe(htmlLinks(c.base, u, nav, content)), nil
}

// skippable reports whether err is confined to one page: a non-2xx status
// that is not a rate limit, or content that does not parse.
func skippable(err error) bool {
	if err == nil {
		return false
	}
	var se *httpx.StatusError
	return errors.As(err, &se) || errors.Is(err, domain.ErrMalformedInput)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
