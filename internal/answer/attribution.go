package answer

import (
	"fmt"
	"regexp"
	"strings"

	"virtualta/internal/domain"
)

const (
	// NoAnswerToken is what the model replies with when no passage helps.
	NoAnswerToken = "NO_RELEVANT_ARTICLES"
	// NoAnswerText is the answer returned when nothing relevant was found.
	NoAnswerText = "No relevant articles found."
)

var sourcesLine = regexp.MustCompile(`(?i)SOURCES:\s*\[([^\]]*)\]`)

// BuildPrompt tags each passage with its id and asks for an answer that
// ends in a SOURCES line.
func BuildPrompt(question string, passages []domain.Passage) string {
	var b strings.Builder
	b.WriteString("You are a teaching assistant. Answer the question using only the passages below.\n")
	b.WriteString("Each passage starts with its id in square brackets.\n")
	fmt.Fprintf(&b, "If none of the passages are relevant, reply with exactly %s and nothing else.\n", NoAnswerToken)
	b.WriteString("Otherwise end your answer with one line of the form SOURCES: [id1, id2] listing exactly the ids of the passages you used.\n\n")
	b.WriteString("Passages:\n")
	for _, p := range passages {
		fmt.Fprintf(&b, "[%s] %s\n\n", p.ID, p.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// Attribution is the parsed model output.
type Attribution struct {
	Answer string
	// Cited is nil when the output had no SOURCES line.
	Cited []domain.PointID
	// NoAnswer is set when the output starts with NoAnswerToken.
	NoAnswer bool
}

// ParseCompletion splits the model output into visible answer text and
// cited ids. The SOURCES line is removed from the answer.
func ParseCompletion(raw string) Attribution {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, NoAnswerToken) {
		return Attribution{NoAnswer: true}
	}
	loc := sourcesLine.FindStringSubmatchIndex(text)
	if loc == nil {
		return Attribution{Answer: text}
	}
	list := text[loc[2]:loc[3]]
	cited := []domain.PointID{}
	for _, tok := range strings.Split(list, ",") {
		id := domain.ParsePointID(tok)
		if id != "" {
			cited = append(cited, id)
		}
	}
	answer := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return Attribution{Answer: answer, Cited: cited}
}

// Links projects cited ids onto the retrieved passages in citation order.
// Unknown ids are dropped and repeats collapse. With no citations at all
// every passage is returned.
func Links(passages []domain.Passage, cited []domain.PointID) []domain.Link {
	if cited == nil {
		links := make([]domain.Link, 0, len(passages))
		for _, p := range passages {
			links = append(links, domain.Link{URL: p.SourceURL, Text: p.Text})
		}
		return links
	}
	byID := make(map[domain.PointID]domain.Passage, len(passages))
	for _, p := range passages {
		byID[domain.ParsePointID(p.ID.String())] = p
	}
	links := make([]domain.Link, 0, len(cited))
	seen := make(map[domain.PointID]bool, len(cited))
	for _, id := range cited {
		p, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, domain.Link{URL: p.SourceURL, Text: p.Text})
	}
	return links
}
