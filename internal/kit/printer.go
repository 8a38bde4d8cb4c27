package kit

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

// Printer outputs engine logs the redirection strategy decided to print.
type Printer interface {
	Print(session.Log)
}

// SlogPrinter logs engine messages with the slog level closest to theirs.
type SlogPrinter struct {
	Logger *slog.Logger
}

func (p SlogPrinter) Print(l session.Log) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	msg := strings.TrimRight(l.Message, "\r\n")
	logger.Log(context.Background(), slogLevel(l.Level), msg,
		"session_id", l.SessionID,
		"engine_level", l.Level.String(),
	)
}

func slogLevel(l session.Level) slog.Level {
	switch {
	case l == session.LevelStderr || l == session.LevelQuiet:
		return slog.LevelInfo
	case l <= session.LevelError:
		return slog.LevelError
	case l == session.LevelWarning:
		return slog.LevelWarn
	case l == session.LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// WriterPrinter writes the raw message text, the way the engine itself
// would print it.
type WriterPrinter struct {
	mx sync.Mutex
	w  io.Writer
}

func NewWriterPrinter(w io.Writer) *WriterPrinter {
	return &WriterPrinter{w: w}
}

func (p *WriterPrinter) Print(l session.Log) {
	p.mx.Lock()
	defer p.mx.Unlock()
	_, _ = io.WriteString(p.w, l.Message)
}
