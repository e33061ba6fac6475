package domain

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Family is a class of ingested content with its own normalization rule
// and identifier range.
type Family string

const (
	FamilyDocs  Family = "docs"
	FamilyForum Family = "forum"
)

// PointID identifies a point in the vector index. Numeric identifiers are
// kept in canonical decimal form so that whatever the index or the model
// echoes back compares equal to what was sent.
type PointID string

// NumericID returns the PointID for an integer sequence id.
func NumericID(n uint64) PointID { return PointID(strconv.FormatUint(n, 10)) }

// ParsePointID normalizes a token echoed by a provider. Numeric tokens are
// parsed as integers ("05" and "5" are the same point); anything else is
// kept as a literal string with surrounding quotes removed.
func ParsePointID(tok string) PointID {
	tok = strings.TrimSpace(tok)
	tok = strings.Trim(tok, `"'`)
	tok = strings.TrimSpace(tok)
	if n, err := strconv.ParseUint(tok, 10, 64); err == nil {
		return NumericID(n)
	}
	return PointID(tok)
}

// Numeric reports the integer value of the id, if it has one.
func (id PointID) Numeric() (uint64, bool) {
	n, err := strconv.ParseUint(string(id), 10, 64)
	return n, err == nil
}

func (id PointID) String() string { return string(id) }

// Document is one logical unit of content: a whole text file, or a forum
// post merged with its reply thread.
type Document struct {
	Family       Family
	RawBody      string
	ReplyBodies  []string
	CanonicalURL string
	OriginPath   string
}

// Chunk is a sentence-respecting excerpt of a document, the unit stored in
// the vector index.
type Chunk struct {
	SequenceID uint64
	Text       string
	SourceURL  string
}

// Point is one vector index entry.
type Point struct {
	ID      PointID
	Vector  []float32
	Payload Payload
}

// Payload is stored alongside each vector.
type Payload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Passage is a chunk surfaced at query time together with its index id.
type Passage struct {
	ID        PointID
	Text      string
	SourceURL string
	Score     float64
}

// Link is one attributed source in an answer.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Response is the result of answering a question.
type Response struct {
	Answer string `json:"answer"`
	Links  []Link `json:"links"`
}

// Post is a forum post as stored in raw files and checkpoint logs.
type Post struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	PostNumber int       `json:"post_number"`
	TopicID    int64     `json:"topic_id"`
	URL        string    `json:"url"`
	Raw        string    `json:"raw"`
	Replies    []string  `json:"replies"`
}

// PageRecord is a fetched documentation page as recorded in the docs
// checkpoint. Links are kept so a resumed crawl can traverse through the
// page without fetching it again.
type PageRecord struct {
	Key   string   `json:"key"`
	URL   string   `json:"url"`
	File  string   `json:"file"`
	Links []string `json:"links,omitempty"`
}

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer is a language-model completion provider.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// DescribeImage asks a vision-capable model to describe an image.
	DescribeImage(ctx context.Context, prompt, mimeType string, image []byte) (string, error)
}

// HTMLDecoder turns an HTML fragment into plain text.
type HTMLDecoder interface {
	Decode(html string) (string, error)
}
