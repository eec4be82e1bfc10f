package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	Level  string // trace|debug|info|warn|error
	Format string // text|json
	// Output is stderr, stdout, or a file path. Files are rotated.
	Output     string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// New builds a logrus logger from opt.
func New(opt Options) (*logrus.Logger, error) {
	l := logrus.New()

	level := strings.ToLower(strings.TrimSpace(opt.Level))
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opt.Level, err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(opt.Format)) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", opt.Format)
	}

	switch out := strings.TrimSpace(opt.Output); out {
	case "", "stderr":
		l.SetOutput(os.Stderr)
	case "stdout":
		l.SetOutput(os.Stdout)
	default:
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		maxSize := opt.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		l.SetOutput(&lumberjack.Logger{
			Filename:   out,
			MaxSize:    maxSize,
			MaxAge:     opt.MaxAgeDays,
			MaxBackups: opt.MaxBackups,
			Compress:   opt.Compress,
		})
	}
	return l, nil
}

// Discard returns a logger that writes nowhere, for tests and library defaults.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// WithComponent tags entries with the subsystem that emitted them.
func WithComponent(l logrus.FieldLogger, component string) *logrus.Entry {
	if l == nil {
		l = Discard()
	}
	return l.WithField("component", component)
}
