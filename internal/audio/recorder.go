package audio

import (
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// SampleRate is what whisper expects.
const SampleRate = 16000

var ErrNoAudio = errors.New("no audio recorded")

type RecorderConfig struct {
	SilenceRMS      float64       // frames below this count as silence
	SilenceDuration time.Duration // trailing silence that ends an utterance
	MaxDuration     time.Duration
}

// Recorder captures mono 16 kHz audio from the default input device.
type Recorder struct {
	cfg RecorderConfig
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = 0.015
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 600 * time.Millisecond
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 15 * time.Second
	}

	return &Recorder{cfg: cfg}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Record captures until stop is closed or MaxDuration passes. With
// untilSilence it also ends after SilenceDuration of quiet following speech,
// and leading silence is dropped.
func (r *Recorder) Record(stop <-chan struct{}, untilSilence bool) ([]float32, error) {
	const frameSize = 320 // 20ms

	buf := make([]float32, frameSize)
	out := make([]float32, 0, SampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		heard   bool
		quiet   time.Duration
		frame   = time.Second * frameSize / SampleRate
		maxSize = int(r.cfg.MaxDuration / frame)
	)

	for i := 0; i < maxSize; i++ {
		select {
		case <-stop:
			return out, nil
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		if !untilSilence {
			out = append(out, buf...)
			continue
		}

		if frameRMS(buf) > r.cfg.SilenceRMS {
			heard = true
			quiet = 0
			out = append(out, buf...)
			continue
		}

		if heard {
			quiet += frame
			if quiet >= r.cfg.SilenceDuration {
				break
			}
			out = append(out, buf...)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoAudio
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}

	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
