// Package llm talks to a hosted OpenAI-compatible chat-completion endpoint.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"rivoo/internal/assistant"
)

const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "deepseek-r1-distill-qwen-32b"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

const (
	BackendOpenAI   = "openai"
	BackendGoOpenAI = "go-openai"
)

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  *float64 // nil means DefaultTemperature
	MaxTokens    int
	SystemPrompt string
	HTTPClient   *http.Client
}

func (c Config) withDefaults() (Config, error) {
	if c.APIKey == "" {
		return c, errors.New("api key must be provided")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = SystemPrompt
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}

	return c, nil
}

// New returns the completer for backend.
func New(backend string, cfg Config) (assistant.Completer, error) {
	switch backend {
	case "", BackendOpenAI:
		return NewOpenAI(cfg)
	case BackendGoOpenAI:
		return NewCompat(cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// Error is a failed completion. Message is what the API said, if anything.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("chat completion failed with status %d: %v", e.Status, e.Err)
	}

	return fmt.Sprintf("chat completion failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) UserMessage() string { return e.Message }

var errNoChoices = errors.New("no choices in response")

type turn struct {
	role    string
	content string
}

// turns lays out the request: system prompt, prior conversation, new text.
func turns(system string, history []assistant.Message, text string) []turn {
	out := make([]turn, 0, len(history)+2)
	out = append(out, turn{role: "system", content: system})
	for _, m := range history {
		role := "assistant"
		if m.Role == assistant.RoleUser {
			role = "user"
		}
		out = append(out, turn{role: role, content: m.Content})
	}

	return append(out, turn{role: "user", content: text})
}
