// Package summarizer picks the most representative sentences of a passage
// for short link previews.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]`)
)

// Frequency ranks sentences by the normalized frequency of their
// non-stopword tokens.
type Frequency struct {
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{stopwords: defaultStopwords()}
}

// Headline returns up to maxSentences of text's best sentences in their
// original order, shortened to maxRunes (0 for no limit).
func (s *Frequency) Headline(text string, maxSentences, maxRunes int) string {
	if maxSentences <= 0 {
		maxSentences = 1
	}
	text = strings.Join(strings.Fields(text), " ")
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return clip(text, maxRunes)
	}

	freq := map[string]float64{}
	top := 0.0
	for _, sent := range sentences {
		for _, tok := range tokens(sent) {
			if _, stop := s.stopwords[tok]; stop {
				continue
			}
			freq[tok]++
			top = math.Max(top, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok] / math.Max(top, 1)
		}
		if len(toks) > 0 {
			score /= math.Sqrt(float64(len(toks)))
		}
		ranked[i] = scored{i, score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	n := min(maxSentences, len(ranked))
	picked := make([]int, n)
	for i := range picked {
		picked[i] = ranked[i].idx
	}
	sort.Ints(picked)
	out := make([]string, n)
	for i, idx := range picked {
		out[i] = strings.TrimSpace(sentences[idx])
	}
	return clip(strings.Join(out, " "), maxRunes)
}

func tokens(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

func clip(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "so", "such", "into", "about", "between", "through", "before",
		"after", "out", "too", "very", "can", "will", "just", "should", "now", "you", "your", "we", "i",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
