package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"rivoo/internal/assistant"
)

// OpenAI is the default backend, built on the official SDK.
type OpenAI struct {
	client openai.Client
	cfg    Config
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(0),
	)

	return &OpenAI{client: client, cfg: cfg}, nil
}

func (o *OpenAI) Complete(ctx context.Context, history []assistant.Message, text string) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	for _, t := range turns(o.cfg.SystemPrompt, history, text) {
		switch t.role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(t.content))
		case "user":
			msgs = append(msgs, openai.UserMessage(t.content))
		default:
			msgs = append(msgs, openai.AssistantMessage(t.content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(o.cfg.Model),
		Temperature: openai.Float(*o.cfg.Temperature),
		MaxTokens:   openai.Int(int64(o.cfg.MaxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &Error{Status: apiErr.StatusCode, Message: apiErr.Message, Err: err}
		}
		return "", &Error{Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Err: errNoChoices}
	}

	content := resp.Choices[0].Message.Content
	log.Debug("Completion received", "model", resp.Model, "chars", len(content))

	return content, nil
}

var _ assistant.Completer = (*OpenAI)(nil)

func (o *OpenAI) String() string {
	return fmt.Sprintf("openai(%s @ %s)", o.cfg.Model, o.cfg.BaseURL)
}
