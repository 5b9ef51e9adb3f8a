// Package control maps textual commands onto the conversation controller.
// It backs both the unix socket and the websocket bus.
package control

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	"rivoo/internal/assistant"
)

type Message struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK     bool              `json:"ok"`
	Error  string            `json:"error,omitempty"`
	State  *assistant.State  `json:"state,omitempty"`
	Voices []assistant.Voice `json:"voices,omitempty"`
}

// Controller is the part of assistant.Controller the commands drive.
type Controller interface {
	Submit(ctx context.Context, text string) error
	SubmitText(ctx context.Context, text string) error
	StartListening() error
	StopListening(ctx context.Context) error
	StopSpeaking()
	SetAutoMode(on bool)
	SetVoiceMode(on bool) error
	SelectVoice(name string) error
	Voices() []assistant.Voice
	State() assistant.State
}

type FileTranscriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

var ErrUnknownCommand = errors.New("unknown command")

type Dispatcher struct {
	ctrl  Controller
	files FileTranscriber
}

// New builds a dispatcher. files may be nil when speech recognition is
// unavailable.
func New(ctrl Controller, files FileTranscriber) *Dispatcher {
	return &Dispatcher{ctrl: ctrl, files: files}
}

// Commands lists what Dispatch understands, for help output.
var Commands = []string{
	"listen", "stop", "toggle", "hush",
	"say <text>", "file <path>",
	"auto on|off|toggle", "voice on|off|toggle",
	"voices", "use-voice <name>",
	"status", "history",
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Reply {
	log.Debug("Command", "cmd", msg.Cmd, "arg", msg.Arg)

	var (
		reply Reply
		err   error
	)

	switch strings.ToLower(strings.TrimSpace(msg.Cmd)) {
	case "listen":
		err = d.ctrl.StartListening()
	case "stop":
		err = d.ctrl.StopListening(ctx)
	case "toggle":
		if d.ctrl.State().Status == assistant.StatusListening {
			err = d.ctrl.StopListening(ctx)
		} else {
			err = d.ctrl.StartListening()
		}
	case "hush":
		d.ctrl.StopSpeaking()
	case "say":
		err = d.ctrl.SubmitText(ctx, msg.Arg)
	case "file":
		err = d.submitFile(ctx, msg.Arg)
	case "auto":
		var on bool
		if on, err = parseSwitch(msg.Arg, d.ctrl.State().AutoMode); err == nil {
			d.ctrl.SetAutoMode(on)
		}
	case "voice":
		var on bool
		if on, err = parseSwitch(msg.Arg, d.ctrl.State().VoiceMode); err == nil {
			err = d.ctrl.SetVoiceMode(on)
		}
	case "voices":
		reply.Voices = d.ctrl.Voices()
	case "use-voice":
		err = d.ctrl.SelectVoice(strings.TrimSpace(msg.Arg))
	case "status", "history":
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Cmd)
	}

	st := d.ctrl.State()
	reply.State = &st
	reply.OK = err == nil
	if err != nil {
		reply.Error = err.Error()
	}

	return reply
}

func (d *Dispatcher) submitFile(ctx context.Context, path string) error {
	if d.files == nil {
		return assistant.ErrUnsupported
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("file: path required")
	}

	text, err := d.files.TranscribeFile(ctx, path)
	if err != nil {
		return err
	}

	return d.ctrl.Submit(ctx, text)
}

func parseSwitch(arg string, current bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	case "", "toggle":
		return !current, nil
	default:
		return false, fmt.Errorf("expected on, off or toggle, got %q", arg)
	}
}
