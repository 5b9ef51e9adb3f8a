// Package tts speaks replies aloud.
package tts

import (
	"context"
	log "log/slog"
	"sync"

	"rivoo/internal/assistant"
)

// Engine is a blocking text-to-speech backend.
type Engine interface {
	Say(text, voice string) error
	Cancel()
	Voices() []assistant.Voice
}

// Ducker quiets other audio while speaking.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

// Speaker plays one utterance at a time in the background. Its onEnd hook
// fires once per utterance, and not at all when the utterance is cancelled
// or replaced.
type Speaker struct {
	engine Engine
	ducker Ducker

	mu       sync.Mutex
	gen      uint64
	speaking bool
	voices   []assistant.Voice
}

func NewSpeaker(engine Engine, ducker Ducker) *Speaker {
	return &Speaker{engine: engine, ducker: ducker}
}

func (s *Speaker) Speak(text string, voice assistant.Voice, onEnd func()) error {
	s.mu.Lock()
	interrupt := s.speaking
	s.gen++
	gen := s.gen
	s.speaking = true
	s.mu.Unlock()

	if interrupt {
		s.engine.Cancel()
	}

	go s.play(gen, text, voice.Name, onEnd)

	return nil
}

func (s *Speaker) play(gen uint64, text, voice string, onEnd func()) {
	ctx := context.Background()

	if s.ducker != nil {
		if err := s.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other audio", "err", err)
		}
	}

	err := s.engine.Say(text, voice)

	if s.ducker != nil {
		if err := s.ducker.Restore(ctx); err != nil {
			log.Warn("Failed to restore other audio", "err", err)
		}
	}

	s.mu.Lock()
	current := gen == s.gen
	if current {
		s.speaking = false
	}
	s.mu.Unlock()

	if err != nil {
		log.Error("Failed to voice out", "err", err)
	}
	if current && onEnd != nil {
		onEnd()
	}
}

// Cancel stops playback; the cancelled utterance's onEnd never fires.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	s.gen++
	was := s.speaking
	s.speaking = false
	s.mu.Unlock()

	if was {
		s.engine.Cancel()
	}
}

func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Voices is read from the engine once and cached.
func (s *Speaker) Voices() []assistant.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.voices == nil {
		s.voices = s.engine.Voices()
	}
	return s.voices
}

var _ assistant.Synthesizer = (*Speaker)(nil)
