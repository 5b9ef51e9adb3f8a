package assistant

import (
	"context"
	"sync"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   chan struct{}
	calls   int
	history []Message
	text    string
}

func (f *fakeCompleter) Complete(ctx context.Context, history []Message, text string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.history = history
	f.text = text
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return f.reply, f.err
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeListener struct {
	mu         sync.Mutex
	transcript string
	listening  bool
	starts     []bool
	stops      int
	resets     int
	startErr   error

	// onStop runs inside StopListening, like a session end hook firing
	// before the stop returns.
	onStop func()
}

func (f *fakeListener) StartListening(continuous bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, continuous)
	f.listening = true
	return nil
}

func (f *fakeListener) StopListening() error {
	f.mu.Lock()
	f.stops++
	f.listening = false
	onStop := f.onStop
	f.mu.Unlock()

	if onStop != nil {
		onStop()
	}
	return nil
}

func (f *fakeListener) Transcript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcript
}

func (f *fakeListener) ResetTranscript() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.transcript = ""
}

func (f *fakeListener) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *fakeListener) hear(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcript = text
	f.listening = false
}

func (f *fakeListener) Starts() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.starts...)
}

type fakeSynth struct {
	mu       sync.Mutex
	voices   []Voice
	spoken   []string
	voice    Voice
	onEnd    func()
	speaking bool
	cancels  int
}

func (f *fakeSynth) Speak(text string, voice Voice, onEnd func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	f.voice = voice
	f.onEnd = onEnd
	f.speaking = true
	return nil
}

func (f *fakeSynth) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.speaking = false
}

func (f *fakeSynth) Speaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking
}

func (f *fakeSynth) Voices() []Voice {
	return f.voices
}

// finish plays the end of the current utterance.
func (f *fakeSynth) finish() {
	f.mu.Lock()
	f.speaking = false
	onEnd := f.onEnd
	f.mu.Unlock()

	if onEnd != nil {
		onEnd()
	}
}

type apiErr struct{ msg string }

func (e *apiErr) Error() string { return "api: " + e.msg }
func (e *apiErr) UserMessage() string { return e.msg }

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	errors   []string
}

func (r *recorder) hook(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch e.Kind {
	case EventStatus:
		r.statuses = append(r.statuses, e.Status)
	case EventError:
		r.errors = append(r.errors, e.Error)
	}
}

func (r *recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}
