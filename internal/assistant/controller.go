// Package assistant owns the conversation and the listening/speaking loop.
//
// The Controller is the only place that mutates the conversation and the
// status. Speech recognition, speech synthesis and the remote model are
// reached through the Listener, Synthesizer and Completer ports. Port calls
// and event hooks are always made outside the controller lock, so bindings may
// call back into the controller from any goroutine, including synchronously.
package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"rivoo/internal/sanitize"
)

// DefaultRestartDelay is the pause between the end of a spoken reply and the
// next listening session in auto mode.
const DefaultRestartDelay = time.Second

type Config struct {
	AutoMode  bool
	VoiceMode bool

	// Voice is an explicit voice name. Empty means pick one from VoicePreference.
	Voice           string
	VoicePreference []string

	// RestartDelay <= 0 restarts listening inline.
	RestartDelay time.Duration

	Clean   func(string) string
	OnEvent func(Event)
}

type Controller struct {
	completer Completer
	listener  Listener
	synth     Synthesizer

	clean        func(string) string
	onEvent      func(Event)
	restartDelay time.Duration

	mu             sync.Mutex
	status         Status
	autoMode       bool
	voiceMode      bool
	voice          Voice
	lastErr        string
	conversation   []Message
	lastTranscript string
	inflight       bool
	stopping       int
	cancelReq      context.CancelFunc
	utterance      uint64
	restart        *time.Timer
	closed         bool
}

// New builds a controller. A nil listener disables voice input, a nil
// synthesizer disables spoken replies.
func New(cfg Config, completer Completer, listener Listener, synth Synthesizer) *Controller {
	c := &Controller{
		completer:    completer,
		listener:     listener,
		synth:        synth,
		clean:        cfg.Clean,
		onEvent:      cfg.OnEvent,
		restartDelay: cfg.RestartDelay,
		status:       StatusIdle,
		autoMode:     cfg.AutoMode,
		voiceMode:    cfg.VoiceMode && synth != nil,
	}
	if c.clean == nil {
		c.clean = sanitize.Clean
	}

	if synth != nil {
		voices := synth.Voices()
		if v, ok := findVoice(voices, cfg.Voice); ok {
			c.voice = v
		} else {
			if cfg.Voice != "" {
				log.Warn("Configured voice not found, picking one", "voice", cfg.Voice)
			}
			pref := cfg.VoicePreference
			if pref == nil {
				pref = DefaultVoicePreference
			}
			c.voice, _ = PickVoice(voices, pref)
		}
	}

	return c
}

// Submit sends text to the model as the next user turn.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var ev []Event

	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}

	history := append([]Message(nil), c.conversation...)
	c.appendLocked(Message{Role: RoleUser, Content: text}, &ev)
	c.setStatusLocked(StatusProcessing, &ev)
	c.lastErr = ""
	c.inflight = true

	reqCtx, cancel := context.WithCancel(ctx)
	c.cancelReq = cancel
	c.mu.Unlock()
	c.emit(ev)

	log.Debug("Dispatching request", "turns", len(history), "text", text)

	reply, err := c.completer.Complete(reqCtx, history, text)
	cancel()
	c.resetTranscript()

	ev = nil
	c.mu.Lock()
	c.inflight = false
	c.cancelReq = nil

	if err != nil {
		c.lastErr = ErrorText(err)
		ev = append(ev, Event{Kind: EventError, Error: c.lastErr})
		c.setStatusLocked(StatusIdle, &ev)
		c.mu.Unlock()
		c.emit(ev)
		return fmt.Errorf("complete: %w", err)
	}

	cleaned := c.clean(reply)
	log.Debug("Cleaned reply", "raw", reply, "clean", cleaned)
	c.appendLocked(Message{Role: RoleAssistant, Content: cleaned}, &ev)

	speak := c.voiceMode && c.synth != nil
	var (
		gen   uint64
		voice = c.voice
	)
	if speak {
		c.utterance++
		gen = c.utterance
		c.setStatusLocked(StatusSpeaking, &ev)
	} else {
		c.setStatusLocked(StatusIdle, &ev)
	}
	c.mu.Unlock()
	c.emit(ev)

	if !speak {
		return nil
	}

	// Nothing left to say: complete the utterance at once so auto mode
	// keeps listening.
	if cleaned == "" {
		c.speechDone(gen)()
		return nil
	}

	if err := c.synth.Speak(cleaned, voice, c.speechDone(gen)); err != nil {
		c.fail(gen, err)
		return fmt.Errorf("speak: %w", err)
	}

	return nil
}

// SubmitText is the typed alternative to speech.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	return c.Submit(ctx, strings.TrimSpace(text))
}

// StartListening opens a listening session, cutting off any reply being spoken.
func (c *Controller) StartListening() error {
	if c.listener == nil {
		return ErrUnsupported
	}

	var ev []Event

	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.utterance++
	c.stopRestartLocked()
	c.setStatusLocked(StatusListening, &ev)
	gen := c.utterance
	continuous := !c.autoMode
	c.mu.Unlock()

	if c.synth != nil && c.synth.Speaking() {
		c.synth.Cancel()
	}
	c.emit(ev)

	if err := c.listener.StartListening(continuous); err != nil {
		c.fail(gen, err)
		return fmt.Errorf("start listening: %w", err)
	}

	return nil
}

// StopListening ends the session and submits what was heard.
func (c *Controller) StopListening(ctx context.Context) error {
	if c.listener == nil {
		return ErrUnsupported
	}

	c.mu.Lock()
	c.stopping++
	c.mu.Unlock()

	if err := c.listener.StopListening(); err != nil {
		log.Warn("Failed to stop listener", "err", err)
	}
	transcript := strings.TrimSpace(c.listener.Transcript())

	var ev []Event

	c.mu.Lock()
	c.stopping--
	if transcript != "" && transcript != c.lastTranscript {
		if c.inflight {
			c.mu.Unlock()
			return ErrBusy
		}
		c.mu.Unlock()
		return c.dispatch(ctx, transcript)
	}
	if c.status == StatusListening {
		c.setStatusLocked(StatusIdle, &ev)
	}
	c.mu.Unlock()
	c.emit(ev)

	return nil
}

// ListeningEnded is called by the listener binding when a session ends on
// its own. In auto mode a fresh transcript is dispatched.
func (c *Controller) ListeningEnded(ctx context.Context) error {
	if c.listener == nil {
		return nil
	}

	transcript := strings.TrimSpace(c.listener.Transcript())
	speaking := c.synth != nil && c.synth.Speaking()

	var ev []Event

	c.mu.Lock()
	fresh := transcript != "" && transcript != c.lastTranscript
	if c.autoMode && !speaking && c.status != StatusSpeaking && fresh && !c.inflight {
		c.mu.Unlock()
		return c.dispatch(ctx, transcript)
	}
	// A manual stop in progress settles the status itself.
	if c.status == StatusListening && c.stopping == 0 {
		c.setStatusLocked(StatusIdle, &ev)
	}
	c.mu.Unlock()
	c.emit(ev)

	return nil
}

// dispatch submits a transcript and records it as the last one sent. The
// record is taken back when the submit is refused, so the same words can be
// sent again later.
func (c *Controller) dispatch(ctx context.Context, transcript string) error {
	c.mu.Lock()
	if transcript == c.lastTranscript {
		c.mu.Unlock()
		return nil
	}
	prev := c.lastTranscript
	c.lastTranscript = transcript
	c.mu.Unlock()

	err := c.Submit(ctx, transcript)
	if errors.Is(err, ErrBusy) {
		c.mu.Lock()
		if c.lastTranscript == transcript {
			c.lastTranscript = prev
		}
		c.mu.Unlock()
	}

	return err
}

// StopSpeaking cuts off the current reply and any pending auto restart.
func (c *Controller) StopSpeaking() {
	var ev []Event

	c.mu.Lock()
	c.utterance++
	c.stopRestartLocked()
	if !c.inflight {
		c.setStatusLocked(StatusIdle, &ev)
	}
	c.mu.Unlock()

	if c.synth != nil {
		c.synth.Cancel()
	}
	c.emit(ev)
}

func (c *Controller) SetAutoMode(on bool) {
	c.mu.Lock()
	c.autoMode = on
	c.mu.Unlock()

	log.Info("Auto mode", "on", on)
}

func (c *Controller) SetVoiceMode(on bool) error {
	if on && c.synth == nil {
		return ErrUnsupported
	}

	c.mu.Lock()
	c.voiceMode = on
	c.mu.Unlock()

	log.Info("Voice mode", "on", on)
	return nil
}

func (c *Controller) SelectVoice(name string) error {
	if c.synth == nil {
		return ErrUnsupported
	}

	v, ok := findVoice(c.synth.Voices(), name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	}

	c.mu.Lock()
	c.voice = v
	c.mu.Unlock()

	return nil
}

func (c *Controller) Voices() []Voice {
	if c.synth == nil {
		return nil
	}

	return c.synth.Voices()
}

func (c *Controller) State() State {
	listening := c.listener != nil && c.listener.Listening()

	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Status:       c.status,
		AutoMode:     c.autoMode,
		VoiceMode:    c.voiceMode,
		Voice:        c.voice.Name,
		Error:        c.lastErr,
		Listening:    listening,
		Conversation: append([]Message(nil), c.conversation...),
	}
}

// Close stops pending restarts and aborts an in-flight request.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.utterance++
	c.stopRestartLocked()
	if c.cancelReq != nil {
		c.cancelReq()
	}
}

// speechDone returns the single-use completion for utterance gen.
func (c *Controller) speechDone(gen uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() { c.finishSpeech(gen) })
	}
}

func (c *Controller) finishSpeech(gen uint64) {
	var ev []Event

	c.mu.Lock()
	if gen != c.utterance || c.closed || c.status != StatusSpeaking {
		c.mu.Unlock()
		return
	}

	if !c.autoMode {
		c.setStatusLocked(StatusIdle, &ev)
		c.mu.Unlock()
		c.emit(ev)
		return
	}

	if c.restartDelay <= 0 {
		c.mu.Unlock()
		c.restartListening(gen)
		return
	}

	c.restart = time.AfterFunc(c.restartDelay, func() { c.restartListening(gen) })
	c.mu.Unlock()
}

func (c *Controller) restartListening(gen uint64) {
	var ev []Event

	c.mu.Lock()
	if gen != c.utterance || c.closed {
		c.mu.Unlock()
		return
	}
	c.restart = nil

	if !c.autoMode || c.listener == nil {
		c.setStatusLocked(StatusIdle, &ev)
		c.mu.Unlock()
		c.emit(ev)
		return
	}

	c.setStatusLocked(StatusListening, &ev)
	c.mu.Unlock()
	c.emit(ev)

	log.Debug("Auto mode: listening again")

	if err := c.listener.StartListening(false); err != nil {
		c.fail(gen, err)
	}
}

// fail surfaces err and settles to idle unless a newer utterance took over.
func (c *Controller) fail(gen uint64, err error) {
	log.Error("Voice pipeline failed", "err", err)

	var ev []Event

	c.mu.Lock()
	if gen != c.utterance {
		c.mu.Unlock()
		return
	}
	c.lastErr = err.Error()
	ev = append(ev, Event{Kind: EventError, Error: c.lastErr})
	c.setStatusLocked(StatusIdle, &ev)
	c.mu.Unlock()
	c.emit(ev)
}

func (c *Controller) resetTranscript() {
	if c.listener != nil {
		c.listener.ResetTranscript()
	}
}

func (c *Controller) stopRestartLocked() {
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
}

func (c *Controller) appendLocked(m Message, ev *[]Event) {
	c.conversation = append(c.conversation, m)
	*ev = append(*ev, Event{Kind: EventMessage, Message: &m})
}

func (c *Controller) setStatusLocked(s Status, ev *[]Event) {
	if c.status == s {
		return
	}
	c.status = s
	*ev = append(*ev, Event{Kind: EventStatus, Status: s})
}

func (c *Controller) emit(ev []Event) {
	if c.onEvent == nil {
		return
	}
	for _, e := range ev {
		c.onEvent(e)
	}
}
