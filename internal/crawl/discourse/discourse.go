// Package discourse crawls a Discourse forum's search results for a date
// window, fetching every post of every matching topic together with its
// replies.
package discourse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"virtualta/internal/crawl/checkpoint"
	"virtualta/internal/domain"
	"virtualta/internal/metrics"
)

const (
	dateLayout = "2006-01-02"
	// UserAgent is sent with every request; Discourse rejects bare clients.
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:140.0) Gecko/20100101 Firefox/140.0"
	// LogDirName holds the incremental logs under the raw dir.
	LogDirName = "line_delimited"

	unknownTopic = "unknown-topic"
)

// ErrNoCredentials means no session cookie was configured.
var ErrNoCredentials = errors.New("discourse credentials not configured: set DISCOURSE_COOKIE")

// Fetcher is the transport the crawler needs.
type Fetcher interface {
	GetJSON(ctx context.Context, url string, header http.Header, out any) error
}

type Config struct {
	BaseURL       string
	Cookie        string
	SearchFilters string
	// StartDate and EndDate are YYYY-MM-DD. Both days are included.
	StartDate string
	EndDate   string
	RawDir    string
}

// Result summarizes one run.
type Result struct {
	Fetched int
	Skipped int
	Total   int
}

type Crawler struct {
	cfg     Config
	base    string
	start   time.Time
	end     time.Time
	fetch   Fetcher
	logger  *zap.Logger
	metrics *metrics.Metrics
	topics  map[int64]string
}

// New validates cfg. It does not touch the network.
func New(cfg Config, fetch Fetcher, logger *zap.Logger, m *metrics.Metrics) (*Crawler, error) {
	if cfg.Cookie == "" {
		return nil, ErrNoCredentials
	}
	start, err := time.Parse(dateLayout, cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start date: %w", err)
	}
	end, err := time.Parse(dateLayout, cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s", cfg.EndDate, cfg.StartDate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Crawler{
		cfg:     cfg,
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		start:   start,
		end:     end.Add(24*time.Hour - time.Nanosecond),
		fetch:   fetch,
		logger:  logger,
		metrics: m,
		topics:  map[int64]string{},
	}, nil
}

// AuthHeader is the header set every request carries.
func AuthHeader(cookie string) (http.Header, error) {
	if cookie == "" {
		return nil, ErrNoCredentials
	}
	return http.Header{
		"User-Agent": {UserAgent},
		"Cookie":     {cookie},
	}, nil
}

// Paths returns the checkpoint files for the configured window.
func (c *Crawler) Paths() checkpoint.Paths {
	name := fmt.Sprintf("posts_%s_to_%s", c.cfg.StartDate, c.cfg.EndDate)
	return checkpoint.Paths{
		Snapshot: filepath.Join(c.cfg.RawDir, name+".json"),
		LogDir:   filepath.Join(c.cfg.RawDir, LogDirName),
		LogName:  name + checkpoint.LogExt,
	}
}

func postKey(p domain.Post) string {
	if p.ID == 0 {
		return ""
	}
	return strconv.FormatInt(p.ID, 10)
}

type searchResponse struct {
	Posts []struct {
		ID        int64     `json:"id"`
		TopicID   int64     `json:"topic_id"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"posts"`
	Topics []struct {
		ID   int64  `json:"id"`
		Slug string `json:"slug"`
	} `json:"topics"`
}

type topicResponse struct {
	PostStream struct {
		Stream []int64 `json:"stream"`
	} `json:"post_stream"`
}

type postResponse struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	PostNumber int       `json:"post_number"`
	TopicID    int64     `json:"topic_id"`
	Raw        string    `json:"raw"`
}

type replyResponse struct {
	Cooked string `json:"cooked"`
}

// Run pages through search results until a post older than the window or
// an empty page, then writes the consolidated snapshot. Posts already in
// the checkpoint are never fetched again.
func (c *Crawler) Run(ctx context.Context) (Result, error) {
	store, err := checkpoint.Open(c.Paths(), postKey, c.logger)
	if err != nil {
		return Result{}, err
	}
	defer store.Close()
	for _, p := range store.Items() {
		c.learnSlugFromURL(p)
	}

	res := Result{}
	seenTopics := map[int64]bool{}
	query := fmt.Sprintf("%s after:%s before:%s", c.cfg.SearchFilters, c.cfg.StartDate, c.cfg.EndDate)
	searchURL := c.base + "/search.json"

paging:
	for page := 1; ; page++ {
		u := searchURL + "?" + url.Values{"q": {query}, "page": {strconv.Itoa(page)}}.Encode()
		c.logger.Info("requesting search page", zap.Int("page", page), zap.String("query", query))
		var sr searchResponse
		c.metrics.CrawlFetches.WithLabelValues(string(domain.FamilyForum), "search").Inc()
		if err := c.fetch.GetJSON(ctx, u, http.Header{"Referer": {searchURL}}, &sr); err != nil {
			return res, err
		}
		if len(sr.Posts) == 0 {
			c.logger.Info("no more posts, ending pagination", zap.Int("page", page))
			break
		}
		for _, t := range sr.Topics {
			if _, ok := c.topics[t.ID]; !ok && t.Slug != "" {
				c.topics[t.ID] = t.Slug
			}
		}
		for _, hit := range sr.Posts {
			created := hit.CreatedAt.UTC()
			if created.Before(c.start) {
				c.logger.Info("reached posts before start date", zap.String("start", c.cfg.StartDate))
				break paging
			}
			if created.After(c.end) || seenTopics[hit.TopicID] {
				continue
			}
			seenTopics[hit.TopicID] = true
			if err := c.crawlTopic(ctx, hit.TopicID, store, &res); err != nil {
				return res, err
			}
		}
	}

	res.Total = store.Len()
	if err := store.SaveSnapshot(c.resolveURL); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Crawler) crawlTopic(ctx context.Context, topicID int64, store *checkpoint.Store[domain.Post], res *Result) error {
	var tr topicResponse
	c.metrics.CrawlFetches.WithLabelValues(string(domain.FamilyForum), "topic").Inc()
	if err := c.fetch.GetJSON(ctx, fmt.Sprintf("%s/t/%d.json", c.base, topicID), nil, &tr); err != nil {
		return err
	}
	for _, id := range tr.PostStream.Stream {
		key := strconv.FormatInt(id, 10)
		if store.Has(key) {
			res.Skipped++
			c.metrics.CheckpointSkips.WithLabelValues(string(domain.FamilyForum)).Inc()
			c.logger.Debug("post already recorded, skipping", zap.Int64("post", id))
			continue
		}
		post, err := c.fetchPost(ctx, id)
		if err != nil {
			return err
		}
		created := post.CreatedAt.UTC()
		if created.Before(c.start) || created.After(c.end) {
			continue
		}
		post = c.resolveURL(post)
		if err := store.Append(post); err != nil {
			return err
		}
		res.Fetched++
		c.logger.Info("added post", zap.Int64("post", id), zap.Time("created_at", post.CreatedAt))
	}
	return nil
}

func (c *Crawler) fetchPost(ctx context.Context, id int64) (domain.Post, error) {
	var pr postResponse
	c.metrics.CrawlFetches.WithLabelValues(string(domain.FamilyForum), "post").Inc()
	if err := c.fetch.GetJSON(ctx, fmt.Sprintf("%s/posts/%d.json", c.base, id), nil, &pr); err != nil {
		return domain.Post{}, err
	}
	var replies []replyResponse
	c.metrics.CrawlFetches.WithLabelValues(string(domain.FamilyForum), "replies").Inc()
	if err := c.fetch.GetJSON(ctx, fmt.Sprintf("%s/posts/%d/replies.json", c.base, id), nil, &replies); err != nil {
		return domain.Post{}, err
	}
	post := domain.Post{
		ID:         pr.ID,
		Username:   pr.Username,
		CreatedAt:  pr.CreatedAt,
		PostNumber: pr.PostNumber,
		TopicID:    pr.TopicID,
		Raw:        pr.Raw,
		Replies:    make([]string, 0, len(replies)),
	}
	if post.ID == 0 {
		post.ID = id
	}
	for _, r := range replies {
		post.Replies = append(post.Replies, r.Cooked)
	}
	return post, nil
}

// resolveURL fills in the post's canonical URL from the topic map.
func (c *Crawler) resolveURL(p domain.Post) domain.Post {
	slug, ok := c.topics[p.TopicID]
	if !ok {
		slug = unknownTopic
	}
	p.URL = PostURL(c.base, slug, p.TopicID, p.PostNumber)
	return p
}

func (c *Crawler) learnSlugFromURL(p domain.Post) {
	if _, ok := c.topics[p.TopicID]; ok {
		return
	}
	_, rest, found := strings.Cut(p.URL, "/t/")
	if !found {
		return
	}
	slug, _, _ := strings.Cut(rest, "/")
	if slug != "" && slug != unknownTopic {
		c.topics[p.TopicID] = slug
	}
}

// PostURL is the canonical link of a post. The first post of a topic links
// to the topic itself.
func PostURL(base, slug string, topicID int64, postNumber int) string {
	base = strings.TrimRight(base, "/")
	if postNumber == 1 {
		return fmt.Sprintf("%s/t/%s/%d", base, slug, topicID)
	}
	return fmt.Sprintf("%s/t/%s/%d/%d", base, slug, topicID, postNumber)
}
