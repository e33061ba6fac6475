// Package openai provides the completion provider over an OpenAI-compatible
// chat API, including the vision pass used for image questions.
package openai

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"virtualta/internal/domain"
	embedopenai "virtualta/internal/embedding/openai"
)

// Config configures the completion provider.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

// Completer implements domain.Completer.
type Completer struct {
	api         *openai.Client
	model       string
	visionModel string
}

var _ domain.Completer = (*Completer)(nil)

// New creates a Completer.
func New(cfg Config) (*Completer, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	api, err := embedopenai.NewAPIClient(cfg.BaseURL, cfg.APIKeyEnv, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Completer{api: api, model: cfg.Model, visionModel: cfg.VisionModel}, nil
}

// Complete sends prompt as a single user message and returns the reply.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, c.model, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

// DescribeImage sends prompt together with the image as a data URL.
func (c *Completer) DescribeImage(ctx context.Context, prompt, mimeType string, image []byte) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	return c.chat(ctx, c.visionModel, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	})
}

func (c *Completer) chat(ctx context.Context, model string, msg openai.ChatCompletionMessage) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		return "", embedopenai.ClassifyError("openai chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrNoCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", domain.ErrNoCompletion
	}
	return text, nil
}
