// Package config reads daemon settings from flags, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"rivoo/internal/assistant"
	"rivoo/internal/ipc"
	"rivoo/internal/llm"
)

// Credential variables, in lookup order.
var KeyEnv = []string{"GROQ_API_KEY", "OPENAI_API_KEY"}

type Config struct {
	EnvFile  string
	Proxy    string
	LogLevel string
	LogFile  string
	Socket   string
	BusURL   string

	Backend     string        `validate:"oneof=openai go-openai"`
	APIKey      string        `validate:"required"`
	BaseURL     string        `validate:"required,url"`
	Model       string        `validate:"required"`
	Temperature float64       `validate:"gte=0,lte=2"`
	MaxTokens   int           `validate:"gt=0"`
	Timeout     time.Duration `validate:"gte=0"`

	AutoMode     bool
	VoiceMode    bool
	Voice        string
	RestartDelay time.Duration

	WhisperModel string
	Language     string
	Threads      int           `validate:"gte=0"`
	SilenceRMS   float64       `validate:"gt=0,lt=1"`
	Silence      time.Duration `validate:"gt=0"`
	MaxRecord    time.Duration `validate:"gt=0"`

	Cue    string
	Notify bool
	Duck   bool
}

// Load parses args (without the program name). A missing .env file is not
// an error; a missing API key is.
func Load(args []string) (*Config, error) {
	c := &Config{}

	fs := cli.NewFlagSet("rivoo-daemon", cli.ContinueOnError)
	fs.StringVarP(&c.EnvFile, "env", "e", ".env", "Env file path")
	fs.StringVarP(&c.Proxy, "proxy", "p", "", "Socks proxy address, empty for direct")
	fs.StringVarP(&c.LogLevel, "log", "l", "info", "Log level")
	fs.StringVar(&c.LogFile, "log-file", "", "Also log to this rotated file")
	fs.StringVarP(&c.Socket, "socket", "s", ipc.SocketPath, "Control socket path")
	fs.StringVarP(&c.BusURL, "bus", "u", "", "Websocket hub url (or BUS_URL), empty to disable")

	fs.StringVarP(&c.Backend, "backend", "b", llm.BackendOpenAI, "Inference client: openai or go-openai")
	fs.StringVar(&c.BaseURL, "base-url", llm.DefaultBaseURL, "OpenAI-compatible endpoint")
	fs.StringVarP(&c.Model, "model", "m", llm.DefaultModel, "Model name")
	fs.Float64Var(&c.Temperature, "temperature", llm.DefaultTemperature, "Sampling temperature")
	fs.IntVar(&c.MaxTokens, "max-tokens", llm.DefaultMaxTokens, "Reply token limit")
	fs.DurationVar(&c.Timeout, "timeout", 0, "HTTP timeout for inference, 0 for none")

	fs.BoolVarP(&c.AutoMode, "auto", "a", false, "Listen again after each spoken reply")
	fs.BoolVar(&c.VoiceMode, "speak", true, "Speak replies")
	fs.StringVarP(&c.Voice, "voice", "v", "", "Voice name, empty to pick one")
	fs.DurationVar(&c.RestartDelay, "restart-delay", assistant.DefaultRestartDelay, "Pause before listening again in auto mode")

	fs.StringVarP(&c.WhisperModel, "whisper", "w", "third_party/whisper.cpp/models/ggml-medium.bin", "Whisper model path")
	fs.StringVar(&c.Language, "lang", "auto", "Spoken language")
	fs.IntVar(&c.Threads, "threads", 0, "Whisper threads, 0 for all cores")
	fs.Float64Var(&c.SilenceRMS, "silence-rms", 0.015, "Level below which input counts as silence")
	fs.DurationVar(&c.Silence, "silence", 600*time.Millisecond, "Trailing silence that ends a session")
	fs.DurationVar(&c.MaxRecord, "max-record", 15*time.Second, "Longest session")

	fs.StringVar(&c.Cue, "cue", "beep.mp3", "Mp3 played when listening starts, empty for none")
	fs.BoolVar(&c.Notify, "notify", true, "Desktop notifications on errors")
	fs.BoolVar(&c.Duck, "duck", true, "Lower other audio while speaking")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(c.EnvFile); err != nil {
		log.Debug("No env file loaded", "path", c.EnvFile, "err", err)
	}

	if c.BusURL == "" {
		c.BusURL = os.Getenv("BUS_URL")
	}

	for _, k := range KeyEnv {
		if v := os.Getenv(k); v != "" {
			c.APIKey = v
			break
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

var checker = validator.New()

func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%s not set", KeyEnv[0])
	}

	if err := checker.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %v fails %q", strings.ToLower(fe.Field()), fe.Value(), fe.Tag())
		}
		return err
	}

	return nil
}

func (c *Config) LLM() llm.Config {
	temp := c.Temperature

	return llm.Config{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: &temp,
		MaxTokens:   c.MaxTokens,
	}
}
