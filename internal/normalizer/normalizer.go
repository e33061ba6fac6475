// Package normalizer turns raw source records into the single text body
// that gets chunked.
package normalizer

import (
	"strings"

	"go.uber.org/zap"

	"virtualta/internal/domain"
)

const (
	// RepliesSeparator sits between a post body and its decoded replies.
	RepliesSeparator = "\n\nReplies:\n"
	// ReplyBoundary sits between two decoded replies.
	ReplyBoundary = "\n---\n"
)

// Normalizer builds normalized_text for documents of every family.
type Normalizer struct {
	decoder domain.HTMLDecoder
	logger  *zap.Logger
}

// New returns a Normalizer. A nil decoder selects the x/net/html decoder.
func New(decoder domain.HTMLDecoder, logger *zap.Logger) *Normalizer {
	if decoder == nil {
		decoder = NewTextDecoder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{decoder: decoder, logger: logger}
}

// Normalize returns the text to chunk for doc. Flat files pass through
// untouched. A forum post gets its decoded replies appended; if any reply
// cannot be decoded the raw body is returned alone.
func (n *Normalizer) Normalize(doc domain.Document) string {
	if doc.Family != domain.FamilyForum || len(doc.ReplyBodies) == 0 {
		return doc.RawBody
	}
	replies := make([]string, 0, len(doc.ReplyBodies))
	for i, body := range doc.ReplyBodies {
		text, err := n.decoder.Decode(body)
		if err != nil {
			n.logger.Warn("reply html not decodable, using post body only",
				zap.String("url", doc.CanonicalURL),
				zap.Int("reply", i),
				zap.Error(err))
			return doc.RawBody
		}
		if text != "" {
			replies = append(replies, text)
		}
	}
	if len(replies) == 0 {
		return doc.RawBody
	}
	return doc.RawBody + RepliesSeparator + strings.Join(replies, ReplyBoundary)
}
