package main

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"rivoo/internal/assistant"
	"rivoo/internal/audio"
	"rivoo/internal/bus"
	"rivoo/internal/config"
	"rivoo/internal/control"
	"rivoo/internal/ipc"
	"rivoo/internal/llm"
	"rivoo/internal/logging"
	"rivoo/internal/notify"
	"rivoo/internal/proxy"
	"rivoo/internal/tts"
	"rivoo/internal/tts/espeak"
	"rivoo/pkg/stt"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, cli.ErrHelp) {
		return
	}
	if err != nil {
		log.SetDefault(log.New(tint.NewHandler(os.Stderr, nil)))
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Warn("Falling back to info level", "err", err)
	}
	defer logCloser.Close()

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	lc := cfg.LLM()
	lc.HTTPClient = httpClient
	completer, err := llm.New(cfg.Backend, lc)
	if err != nil {
		log.Error("Failed to build inference client", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded inference client", "client", completer)

	var (
		listener assistant.Listener
		files    control.FileTranscriber
		synth    assistant.Synthesizer
	)

	mic, closeMic := bootListener(cfg)
	defer closeMic()
	if mic != nil {
		listener, files = mic, mic
	}

	speaker, closeSpeaker := bootSpeaker(cfg)
	defer closeSpeaker()
	if speaker != nil {
		synth = speaker
	}

	events := make(chan assistant.Event, 64)
	ctrl := assistant.New(assistant.Config{
		AutoMode:     cfg.AutoMode,
		VoiceMode:    cfg.VoiceMode,
		Voice:        cfg.Voice,
		RestartDelay: cfg.RestartDelay,
		OnEvent: func(ev assistant.Event) {
			select {
			case events <- ev:
			default:
				log.Warn("Dropping event", "kind", ev.Kind)
			}
		},
	}, completer, listener, synth)
	defer ctrl.Close()

	if mic != nil {
		mic.OnStart(func() {
			if cfg.Cue == "" {
				return
			}
			go func() {
				if err := notify.Beep(cfg.Cue); err != nil {
					log.Debug("Failed to play cue", "err", err)
				}
			}()
		})
		mic.OnEnd(func() {
			if err := ctrl.ListeningEnded(ctx); err != nil {
				log.Error("Failed to handle transcript", "err", err)
			}
		})
	}

	disp := control.New(ctrl, files)

	ln, err := ipc.StartServer(ctx, cfg.Socket, disp.Dispatch)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer ln.Close()

	var hub *bus.Bus
	if cfg.BusURL != "" {
		hub, err = bus.Dial(bus.Config{URL: cfg.BusURL, Handler: disp.Dispatch})
		if err != nil {
			log.Warn("Bus unavailable, continuing without it", "url", cfg.BusURL, "err", err)
		} else {
			defer hub.Close()
			go hub.Run(ctx)
		}
	}

	go forward(ctx, cfg, events, hub)

	st := ctrl.State()
	log.Info("Boot up - successful",
		"voice", st.Voice, "voice_mode", st.VoiceMode, "auto", st.AutoMode, "mic", mic != nil)

	<-ctx.Done()
	log.Info("Shutting down")
}

// forward logs controller events and relays them to the desktop and the bus.
func forward(ctx context.Context, cfg *config.Config, events <-chan assistant.Event, hub *bus.Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case assistant.EventStatus:
				log.Info("Status", "status", ev.Status)
			case assistant.EventMessage:
				if m := ev.Message; m != nil {
					log.Info("Message", "role", m.Role, "content", m.Content)
				}
			case assistant.EventError:
				log.Error("Assistant error", "err", ev.Error)
				if cfg.Notify {
					if err := notify.Desktop("Rivoo", ev.Error); err != nil {
						log.Debug("Failed to notify", "err", err)
					}
				}
			}

			if hub != nil {
				if err := hub.Publish(ev); err != nil {
					log.Warn("Failed to publish event", "err", err)
				}
			}
		}
	}
}

// bootListener brings up the microphone and whisper. Either failing leaves
// voice input disabled.
func bootListener(cfg *config.Config) (*audio.Listener, func()) {
	rec := audio.NewRecorder(audio.RecorderConfig{
		SilenceRMS:      cfg.SilenceRMS,
		SilenceDuration: cfg.Silence,
		MaxDuration:     cfg.MaxRecord,
	})
	if err := rec.Init(); err != nil {
		log.Warn("Audio input unavailable, voice input disabled", "err", err)
		return nil, func() {}
	}

	log.Debug("Loaded recorder")

	whisper, err := stt.NewTranscriber(cfg.WhisperModel)
	if err != nil {
		rec.Close()
		log.Warn("Whisper unavailable, voice input disabled", "model", cfg.WhisperModel, "err", err)
		return nil, func() {}
	}

	log.Debug("Loaded whisper")

	l := audio.NewListener(rec, whisper, stt.Options{
		Language: cfg.Language,
		Threads:  cfg.Threads,
	})

	return l, func() {
		whisper.Close()
		rec.Close()
	}
}

// bootSpeaker brings up espeak-ng. Failing leaves spoken replies disabled.
func bootSpeaker(cfg *config.Config) (*tts.Speaker, func()) {
	engine, err := espeak.New()
	if err != nil {
		log.Warn("Speech output unavailable", "err", err)
		return nil, func() {}
	}

	log.Debug("Loaded espeak")

	var ducker tts.Ducker
	if cfg.Duck {
		ducker = audio.NewDucker([]string{"rivoo", "espeak"}, 0.3, 10, 250*time.Millisecond)
	}

	return tts.NewSpeaker(engine, ducker), engine.Close
}
