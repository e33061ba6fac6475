// Package metrics holds the Prometheus collectors for ingestion, crawling
// and answering.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of collectors one process registers.
type Metrics struct {
	ChunksWritten   *prometheus.CounterVec
	EmbedFailures   *prometheus.CounterVec
	UpsertFailures  *prometheus.CounterVec
	CrawlFetches    *prometheus.CounterVec
	CheckpointSkips *prometheus.CounterVec
	PageFailures    *prometheus.CounterVec
	RateLimitWaits  *prometheus.CounterVec
	Answers         *prometheus.CounterVec
	AnswerDuration  prometheus.Histogram
}

// New registers all collectors on reg. A nil reg yields collectors that
// are not registered anywhere, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChunksWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_ingest_chunks_written_total",
			Help: "Chunks embedded and upserted into the vector index.",
		}, []string{"family"}),
		EmbedFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_ingest_embed_failures_total",
			Help: "Chunks skipped because embedding failed.",
		}, []string{"family"}),
		UpsertFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_ingest_upsert_failures_total",
			Help: "Batches that failed to upsert.",
		}, []string{"family"}),
		CrawlFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_crawl_fetches_total",
			Help: "Remote requests issued by the crawl controllers.",
		}, []string{"family", "kind"}),
		CheckpointSkips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_crawl_checkpoint_skips_total",
			Help: "Items skipped because the checkpoint already holds them.",
		}, []string{"family"}),
		PageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_crawl_page_failures_total",
			Help: "Pages skipped because they could not be fetched or parsed.",
		}, []string{"family"}),
		RateLimitWaits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_crawl_rate_limit_waits_total",
			Help: "Back-off sleeps triggered by rate-limit responses.",
		}, []string{"family"}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualta_answers_total",
			Help: "Questions answered, by outcome.",
		}, []string{"outcome"}),
		AnswerDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "virtualta_answer_duration_seconds",
			Help:    "Time spent answering one question.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Nop returns unregistered collectors.
func Nop() *Metrics { return New(nil) }
