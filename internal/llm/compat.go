package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"

	goopenai "github.com/sashabaranov/go-openai"

	"rivoo/internal/assistant"
)

// Compat is the backend built on sashabaranov/go-openai.
type Compat struct {
	client *goopenai.Client
	cfg    Config
}

func NewCompat(cfg Config) (*Compat, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	cc := goopenai.DefaultConfig(cfg.APIKey)
	cc.BaseURL = cfg.BaseURL
	cc.HTTPClient = cfg.HTTPClient

	return &Compat{client: goopenai.NewClientWithConfig(cc), cfg: cfg}, nil
}

func (c *Compat) Complete(ctx context.Context, history []assistant.Message, text string) (string, error) {
	var msgs []goopenai.ChatCompletionMessage
	for _, t := range turns(c.cfg.SystemPrompt, history, text) {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: t.role, Content: t.content})
	}

	// go-openai omits a zero temperature from the request.
	temp := float32(*c.cfg.Temperature)
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: temp,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		var (
			apiErr *goopenai.APIError
			reqErr *goopenai.RequestError
		)
		switch {
		case errors.As(err, &apiErr):
			return "", &Error{Status: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
		case errors.As(err, &reqErr):
			return "", &Error{Status: reqErr.HTTPStatusCode, Err: err}
		}
		return "", &Error{Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Err: errNoChoices}
	}

	log.Debug("Completion received", "model", resp.Model, "chars", len(resp.Choices[0].Message.Content))

	return resp.Choices[0].Message.Content, nil
}

var _ assistant.Completer = (*Compat)(nil)

func (c *Compat) String() string {
	return fmt.Sprintf("go-openai(%s @ %s)", c.cfg.Model, c.cfg.BaseURL)
}
