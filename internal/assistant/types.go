package assistant

import (
	"context"
	"errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation. It is never mutated once appended.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusProcessing Status = "processing"
	StatusSpeaking   Status = "speaking"
)

type Voice struct {
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
}

// State is a copy of the controller state, safe to hand to other goroutines.
type State struct {
	Status       Status    `json:"status"`
	AutoMode     bool      `json:"auto_mode"`
	VoiceMode    bool      `json:"voice_mode"`
	Voice        string    `json:"voice,omitempty"`
	Error        string    `json:"error,omitempty"`
	Listening    bool      `json:"listening"`
	Conversation []Message `json:"conversation"`
}

type EventKind string

const (
	EventStatus  EventKind = "status"
	EventMessage EventKind = "message"
	EventError   EventKind = "error"
)

type Event struct {
	Kind    EventKind `json:"kind"`
	Status  Status    `json:"status,omitempty"`
	Message *Message  `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Listener produces a transcript from speech.
type Listener interface {
	StartListening(continuous bool) error
	StopListening() error
	Transcript() string
	ResetTranscript()
	Listening() bool
}

// Synthesizer speaks text. onEnd fires once when playback finishes on its own
// and never after Cancel.
type Synthesizer interface {
	Speak(text string, voice Voice, onEnd func()) error
	Cancel()
	Speaking() bool
	Voices() []Voice
}

// Completer asks the remote model for the next assistant turn.
type Completer interface {
	Complete(ctx context.Context, history []Message, text string) (string, error)
}

var (
	ErrBusy         = errors.New("a request is already in flight")
	ErrUnsupported  = errors.New("not supported on this host")
	ErrUnknownVoice = errors.New("unknown voice")
)

// FallbackError is shown when a failure carries no readable message.
const FallbackError = "An error occurred while processing your request."

type userFacing interface {
	UserMessage() string
}

// ErrorText returns the human readable part of err.
func ErrorText(err error) string {
	var uf userFacing
	if errors.As(err, &uf) {
		if msg := uf.UserMessage(); msg != "" {
			return msg
		}
	}

	return FallbackError
}
