package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SentenceChunker packs whole sentences into size-bounded chunks. Each chunk
// after the first starts with the tail of its predecessor.
type SentenceChunker struct {
	maxSize  int
	overlap  int
	splitter *regexp.Regexp
}

// NewSentenceChunker returns a chunker producing chunks of at most maxSize
// characters (unless a single sentence is longer) with overlap characters
// carried between neighbours.
func NewSentenceChunker(maxSize, overlap int) *SentenceChunker {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &SentenceChunker{
		maxSize:  maxSize,
		overlap:  overlap,
		splitter: regexp.MustCompile(`[^.!?]*[.!?]`),
	}
}

// Split chunks text. Sizes are counted in characters (runes), not bytes.
// A sentence longer than maxSize is emitted whole, never cut.
func (c *SentenceChunker) Split(text string) []string {
	sentences := c.sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	var buf strings.Builder
	bufLen := 0
	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s)
		if bufLen == 0 || bufLen+sLen <= c.maxSize {
			buf.WriteString(s)
			bufLen += sLen
			continue
		}
		done := buf.String()
		chunks = append(chunks, done)
		seed := tail(done, c.overlap)
		buf.Reset()
		buf.WriteString(seed)
		buf.WriteString(s)
		bufLen = utf8.RuneCountInString(seed) + sLen
	}
	if bufLen > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// sentences returns the maximal spans ending in a terminator, plus any
// unterminated remainder. A whitespace-only remainder is folded into the
// last sentence.
func (c *SentenceChunker) sentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	locs := c.splitter.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs)+1)
	end := 0
	for _, l := range locs {
		out = append(out, text[l[0]:l[1]])
		end = l[1]
	}
	if rest := text[end:]; rest != "" {
		if strings.TrimSpace(rest) == "" && len(out) > 0 {
			out[len(out)-1] += rest
		} else {
			out = append(out, rest)
		}
	}
	return out
}

// tail returns the last n runes of s, or s itself when it is not longer.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
