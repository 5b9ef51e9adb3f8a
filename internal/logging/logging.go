// Package logging installs the process-wide slog handler.
package logging

import (
	"fmt"
	"io"
	log "log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

var levelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func ParseLevel(s string) (log.Level, error) {
	lvl, ok := levelMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return log.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// New builds a tint logger writing to stdout, and also to a rotated file when
// file is set. Colors are dropped when a file is attached. The returned
// closer releases the file.
func New(level log.Level, file string) (*log.Logger, io.Closer) {
	var (
		out     io.Writer = os.Stdout
		closer  io.Closer = io.NopCloser(nil)
		noColor bool
	)

	if file != "" {
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20,
			MaxAge:     14,
			MaxBackups: 3,
			LocalTime:  true,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, lj)
		closer = lj
		noColor = true
	}

	return log.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})), closer
}

// Setup installs the logger as the default.
func Setup(level, file string) (io.Closer, error) {
	lvl, err := ParseLevel(level)
	logger, closer := New(lvl, file)
	log.SetDefault(logger)

	return closer, err
}
