package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"virtualta/internal/domain"
)

// TextDecoder converts HTML fragments to plain text using x/net/html.
// Block-level elements become line breaks; scripts and styles are dropped.
type TextDecoder struct{}

// NewTextDecoder returns an HTML-to-text decoder.
func NewTextDecoder() *TextDecoder { return &TextDecoder{} }

var (
	blockElements = map[string]bool{
		"p": true, "div": true, "br": true, "hr": true, "li": true, "ul": true, "ol": true,
		"tr": true, "table": true, "blockquote": true, "pre": true, "section": true,
		"article": true, "aside": true, "header": true, "footer": true, "details": true,
		"summary": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
	skipElements = map[string]bool{
		"script": true, "style": true, "noscript": true, "head": true, "svg": true,
	}
	multiSpaces = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// Decode returns the text content of fragment. Invalid UTF-8 or NUL bytes
// are reported as malformed input.
func (d *TextDecoder) Decode(fragment string) (string, error) {
	if !utf8.ValidString(fragment) || strings.ContainsRune(fragment, 0) {
		return "", fmt.Errorf("decode reply html: %w", domain.ErrMalformedInput)
	}
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse reply html: %v: %w", err, domain.ErrMalformedInput)
	}
	var b strings.Builder
	walkText(root, &b)
	return tidyLines(b.String()), nil
}

func walkText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipElements[n.Data] {
			return
		}
		if blockElements[n.Data] {
			b.WriteByte('\n')
			defer b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}
}

// tidyLines collapses runs of spaces, trims every line and drops empty ones.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
