package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"rivoo/internal/assistant"
	"rivoo/pkg/audioconv"
	"rivoo/pkg/stt"
)

// Capturer records one session of microphone audio.
type Capturer interface {
	Record(stop <-chan struct{}, untilSilence bool) ([]float32, error)
}

type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt stt.Options) (stt.Result, error)
}

// whisper marks non-speech as [BLANK_AUDIO], [MUSIC] and similar.
var nonSpeechRe = regexp.MustCompile(`\[[A-Z_ ]+\]`)

// Listener turns recorded sessions into transcripts. A continuous session
// runs until StopListening; otherwise it ends on trailing silence.
type Listener struct {
	capt    Capturer
	tr      Transcriber
	opt     stt.Options
	timeout time.Duration

	mu         sync.Mutex
	listening  bool
	transcript string
	stop       chan struct{}
	done       chan struct{}
	onStart    func()
	onEnd      func()
}

func NewListener(capt Capturer, tr Transcriber, opt stt.Options) *Listener {
	return &Listener{
		capt:    capt,
		tr:      tr,
		opt:     opt,
		timeout: 60 * time.Second,
	}
}

// OnStart registers a hook run when a session opens, e.g. an audible cue.
func (l *Listener) OnStart(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStart = f
}

// OnEnd registers a hook run after a session ended and its transcript is ready.
func (l *Listener) OnEnd(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEnd = f
}

func (l *Listener) StartListening(continuous bool) error {
	l.mu.Lock()
	if l.listening {
		l.mu.Unlock()
		return nil
	}
	l.listening = true
	l.transcript = ""
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	stop, done, onStart := l.stop, l.done, l.onStart
	l.mu.Unlock()

	log.Info("Listening", "continuous", continuous)
	if onStart != nil {
		onStart()
	}

	go l.run(continuous, stop, done)

	return nil
}

// StopListening ends the session and waits until its transcript is ready.
func (l *Listener) StopListening() error {
	l.mu.Lock()
	if !l.listening {
		l.mu.Unlock()
		return nil
	}
	stop, done := l.stop, l.done
	l.stop = nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	<-done

	return nil
}

func (l *Listener) Transcript() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transcript
}

func (l *Listener) ResetTranscript() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transcript = ""
}

func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// TranscribeFile decodes an audio file and returns what was said in it.
func (l *Listener) TranscribeFile(ctx context.Context, path string) (string, error) {
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{
		MaxSamples: int(l.timeout.Seconds()) * SampleRate,
	})
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	return l.transcribe(ctx, pcm)
}

func (l *Listener) run(continuous bool, stop, done chan struct{}) {
	text := ""

	pcm, err := l.capt.Record(stop, !continuous)
	switch {
	case errors.Is(err, ErrNoAudio):
		log.Debug("Nothing heard")
	case err != nil:
		log.Error("Failed to record", "err", err)
	case len(pcm) > 0:
		log.Info("Recorded", "samples", len(pcm))
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		text, err = l.transcribe(ctx, pcm)
		cancel()
		if err != nil {
			log.Error("Failed to transcribe", "err", err)
		}
	}

	l.mu.Lock()
	l.transcript = text
	l.listening = false
	onEnd := l.onEnd
	l.mu.Unlock()

	close(done)

	if onEnd != nil {
		onEnd()
	}
}

func (l *Listener) transcribe(ctx context.Context, pcm []float32) (string, error) {
	res, err := l.tr.TranscribePCM(ctx, pcm, l.opt)
	if err != nil {
		return "", err
	}

	text := strings.Join(strings.Fields(nonSpeechRe.ReplaceAllString(res.Text, " ")), " ")
	log.Info("Transcribed", "text", text, "lang", res.Language)

	return text, nil
}

var _ assistant.Listener = (*Listener)(nil)
