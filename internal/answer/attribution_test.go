package answer

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtualta/internal/domain"
)

func TestParseCompletion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Attribution
	}{
		{"numeric ids", "Answer text.\nSOURCES: [2,5]", Attribution{Answer: "Answer text.", Cited: []domain.PointID{"2", "5"}}},
		{"padded and quoted", "A\nSOURCES: [ '05' , \"abc-1\" ]", Attribution{Answer: "A", Cited: []domain.PointID{"5", "abc-1"}}},
		{"empty list", "A\nSOURCES: []", Attribution{Answer: "A", Cited: []domain.PointID{}}},
		{"no line", "Just text", Attribution{Answer: "Just text"}},
		{"sentinel", "  NO_RELEVANT_ARTICLES", Attribution{NoAnswer: true}},
		{"sentinel not prefix", "I found NO_RELEVANT_ARTICLES here", Attribution{Answer: "I found NO_RELEVANT_ARTICLES here"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCompletion(tt.raw))
		})
	}
}

func TestLinks_DropsUnknownAndRepeats(t *testing.T) {
	passages := []domain.Passage{
		{ID: "2", Text: "two", SourceURL: "u2"},
		{ID: "uuid-a", Text: "a", SourceURL: "ua"},
	}
	got := Links(passages, []domain.PointID{"99", "uuid-a", "2", "2"})
	assert.Equal(t, []domain.Link{{URL: "ua", Text: "a"}, {URL: "u2", Text: "two"}}, got)
	assert.Empty(t, Links(passages, []domain.PointID{}))
}

func TestSniffImage(t *testing.T) {
	assert.Equal(t, "image/png", SniffImage([]byte("\x89PNG\r\n\x1a\nxxxx")))
	assert.Equal(t, "image/jpeg", SniffImage([]byte{0xff, 0xd8, 0xff, 0xe0}))
	assert.Equal(t, "image/webp", SniffImage([]byte("RIFF\x00\x00\x00\x00WEBPVP8 ")))
	assert.Equal(t, "", SniffImage([]byte("GIF89a")))
	assert.Equal(t, "", SniffImage(nil))
}

func TestDecodeImage_DataURL(t *testing.T) {
	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0x01})
	data, mime, err := DecodeImage(payload)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Len(t, data, 3)
}
