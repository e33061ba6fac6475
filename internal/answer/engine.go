// Package answer retrieves passages for a question and asks the completion
// provider for an answer attributed to them.
package answer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"virtualta/internal/domain"
	"virtualta/internal/metrics"
	"virtualta/internal/vectorstore"
)

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 5

const describeImagePrompt = "Describe this image in detail, including any text, code or error messages it shows."

// Request is one question, optionally with a base64 image.
type Request struct {
	Question string `json:"question"`
	Image    string `json:"image,omitempty"`
}

// Engine holds no per-request state and is safe for concurrent use.
type Engine struct {
	embedder  domain.Embedder
	store     vectorstore.Storage
	completer domain.Completer
	topK      int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

type Options struct {
	TopK    int
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func NewEngine(e domain.Embedder, s vectorstore.Storage, c domain.Completer, opts Options) *Engine {
	eng := &Engine{embedder: e, store: s, completer: c, topK: opts.TopK, logger: opts.Logger, metrics: opts.Metrics}
	if eng.topK <= 0 {
		eng.topK = DefaultTopK
	}
	if eng.logger == nil {
		eng.logger = zap.NewNop()
	}
	if eng.metrics == nil {
		eng.metrics = metrics.Nop()
	}
	return eng
}

// Answer runs retrieval and attribution for req. An invalid image fails
// with domain.ErrInvalidImage before any provider call. Finding nothing is
// not an error.
func (e *Engine) Answer(ctx context.Context, req Request) (resp domain.Response, err error) {
	started := time.Now()
	outcome := "answered"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		e.metrics.Answers.WithLabelValues(outcome).Inc()
		e.metrics.AnswerDuration.Observe(time.Since(started).Seconds())
	}()

	query := req.Question
	if req.Image != "" {
		img, mime, err := DecodeImage(req.Image)
		if err != nil {
			return domain.Response{}, err
		}
		desc, err := e.completer.DescribeImage(ctx, describeImagePrompt, mime, img)
		if err != nil {
			return domain.Response{}, fmt.Errorf("describe image: %w", err)
		}
		query = req.Question + "\n\nImage description: " + desc
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return domain.Response{}, fmt.Errorf("embed question: %w", err)
	}
	passages, err := e.store.Search(ctx, vec, e.topK)
	if err != nil {
		return domain.Response{}, fmt.Errorf("search: %w", err)
	}
	if len(passages) == 0 {
		outcome = "empty"
		return noAnswer(), nil
	}

	raw, err := e.completer.Complete(ctx, BuildPrompt(query, passages))
	if err != nil {
		return domain.Response{}, fmt.Errorf("complete: %w", err)
	}
	att := ParseCompletion(raw)
	if att.NoAnswer {
		outcome = "no_answer"
		return noAnswer(), nil
	}
	if att.Cited == nil {
		outcome = "uncited"
		e.logger.Warn("completion has no SOURCES line, attributing all passages", zap.Int("passages", len(passages)))
	}
	return domain.Response{Answer: att.Answer, Links: Links(passages, att.Cited)}, nil
}

func noAnswer() domain.Response {
	return domain.Response{Answer: NoAnswerText, Links: []domain.Link{}}
}
