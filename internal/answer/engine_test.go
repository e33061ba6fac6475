package answer

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtualta/internal/domain"
	"virtualta/internal/vectorstore/memory"
)

type stubEmbedder struct{ inputs []string }

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return 2 }
func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.inputs = append(s.inputs, text)
	return []float32{1, 0}, nil
}

type stubCompleter struct {
	reply       string
	description string
	prompts     []string
	images      []string
	err         error
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubCompleter) DescribeImage(_ context.Context, _, mime string, _ []byte) (string, error) {
	s.images = append(s.images, mime)
	return s.description, nil
}

func seededStore(t *testing.T) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Point{
		{ID: "2", Vector: []float32{1, 0}, Payload: domain.Payload{Source: "https://a/2", Text: "two"}},
		{ID: "5", Vector: []float32{0.9, 0.1}, Payload: domain.Payload{Source: "https://a/5", Text: "five"}},
		{ID: "7", Vector: []float32{0.5, 0.5}, Payload: domain.Payload{Source: "https://a/7", Text: "seven"}},
	}))
	return s
}

func TestAnswer_AttributionRoundTrip(t *testing.T) {
	c := &stubCompleter{reply: "Submit via the portal.\nSOURCES: [5, 2]"}
	e := NewEngine(&stubEmbedder{}, seededStore(t), c, Options{})

	resp, err := e.Answer(context.Background(), Request{Question: "How to submit?"})
	require.NoError(t, err)
	assert.Equal(t, "Submit via the portal.", resp.Answer)
	assert.NotContains(t, resp.Answer, "SOURCES:")
	assert.Equal(t, []domain.Link{
		{URL: "https://a/5", Text: "five"},
		{URL: "https://a/2", Text: "two"},
	}, resp.Links)

	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "[2] two")
	assert.Contains(t, c.prompts[0], "[7] seven")
	assert.Contains(t, c.prompts[0], NoAnswerToken)
}

func TestAnswer_FailOpenWithoutSources(t *testing.T) {
	c := &stubCompleter{reply: "It depends."}
	e := NewEngine(&stubEmbedder{}, seededStore(t), c, Options{})

	resp, err := e.Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "It depends.", resp.Answer)
	assert.Len(t, resp.Links, 3)
	assert.Equal(t, "https://a/2", resp.Links[0].URL)
}

func TestAnswer_EmptyRetrievalSkipsCompletion(t *testing.T) {
	store := memory.NewStorage()
	require.NoError(t, store.Init(context.Background(), 2))
	c := &stubCompleter{reply: "unused"}
	e := NewEngine(&stubEmbedder{}, store, c, Options{})

	resp, err := e.Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, domain.Response{Answer: "No relevant articles found.", Links: []domain.Link{}}, resp)
	assert.Empty(t, c.prompts)
}

func TestAnswer_SentinelMeansNoAnswer(t *testing.T) {
	c := &stubCompleter{reply: "NO_RELEVANT_ARTICLES\nSOURCES: [2]"}
	e := NewEngine(&stubEmbedder{}, seededStore(t), c, Options{})

	resp, err := e.Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, NoAnswerText, resp.Answer)
	assert.Empty(t, resp.Links)
}

func TestAnswer_ImageDescriptionJoinsQuestion(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n....")
	emb := &stubEmbedder{}
	c := &stubCompleter{reply: "ok SOURCES: [7]", description: "a stack trace"}
	e := NewEngine(emb, seededStore(t), c, Options{})

	resp, err := e.Answer(context.Background(), Request{Question: "why?", Image: base64.StdEncoding.EncodeToString(png)})
	require.NoError(t, err)
	assert.Equal(t, []string{"image/png"}, c.images)
	require.Len(t, emb.inputs, 1)
	assert.Contains(t, emb.inputs[0], "why?")
	assert.Contains(t, emb.inputs[0], "a stack trace")
	assert.Equal(t, []domain.Link{{URL: "https://a/7", Text: "seven"}}, resp.Links)
}

func TestAnswer_InvalidImageIsClientError(t *testing.T) {
	emb := &stubEmbedder{}
	c := &stubCompleter{}
	e := NewEngine(emb, seededStore(t), c, Options{})

	for _, img := range []string{"%%%not-base64", base64.StdEncoding.EncodeToString([]byte("GIF89a"))} {
		_, err := e.Answer(context.Background(), Request{Question: "q", Image: img})
		require.ErrorIs(t, err, domain.ErrInvalidImage)
		require.ErrorIs(t, err, domain.ErrMalformedInput)
	}
	assert.Empty(t, emb.inputs)
	assert.Empty(t, c.images)
}

func TestAnswer_CompletionErrorSurfaces(t *testing.T) {
	c := &stubCompleter{err: domain.ErrNoCompletion}
	e := NewEngine(&stubEmbedder{}, seededStore(t), c, Options{})

	_, err := e.Answer(context.Background(), Request{Question: "q"})
	require.ErrorIs(t, err, domain.ErrProviderContract)
}
