package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
	"golang.org/x/sync/errgroup"
)

// DefaultWaitDelay is how long a cancelled process may take to exit after
// SIGINT before it is killed.
const DefaultWaitDelay = 5 * time.Second

// maxLine is the longest line delivered as one message; longer output is
// split into chunks of this size.
const maxLine = 1024 * 1024

var ErrNoBinary = errors.New("no binary configured")

type ProcessConfig struct {
	FFmpeg    string
	FFprobe   string
	Env       []string
	WaitDelay time.Duration
}

type run struct {
	cancel   context.CancelFunc
	canceled bool
}

// Process runs the ffmpeg and ffprobe binaries as child processes. Stderr is
// split into log lines and progress statistics, stdout is forwarded as raw
// engine output with the Stderr level.
type Process struct {
	cfg ProcessConfig

	mx      sync.Mutex
	sink    Sink
	runs    map[int64]*run
	pending map[int64]int
}

func NewProcess(cfg ProcessConfig) *Process {
	if cfg.WaitDelay == 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &Process{
		cfg:     cfg,
		runs:    make(map[int64]*run),
		pending: make(map[int64]int),
	}
}

func (p *Process) Connect(sink Sink) {
	p.mx.Lock()
	p.sink = sink
	p.mx.Unlock()
}

func (p *Process) binary(program Program) (string, error) {
	var path string
	switch program {
	case ProgramFFmpeg:
		path = p.cfg.FFmpeg
	case ProgramFFprobe:
		path = p.cfg.FFprobe
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s", ErrNoBinary, program)
	}
	return path, nil
}

// Execute runs program until it exits. A run stopped by Cancel reports the
// Cancel return code; a run stopped because ctx ended reports ctx's cause
// as an error.
func (p *Process) Execute(parent context.Context, sessionID int64, program Program, args []string) (int, error) {
	path, err := p.binary(program)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	r := &run{cancel: cancel}
	p.mx.Lock()
	if _, ok := p.runs[sessionID]; ok {
		p.mx.Unlock()
		return 0, fmt.Errorf("session %d is already running", sessionID)
	}
	p.runs[sessionID] = r
	p.mx.Unlock()
	defer func() {
		p.mx.Lock()
		delete(p.runs, sessionID)
		p.mx.Unlock()
	}()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = p.cfg.WaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, err
	}
	slog.DebugContext(ctx, "starting engine process", "session_id", sessionID, "path", path, "args", args)
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.Go(func() error {
		return p.scan(stderr, func(line string) { p.handleStderr(sessionID, line) })
	})
	g.Go(func() error {
		return p.scan(stdout, func(line string) {
			p.deliverLog(sessionID, session.LevelStderr, line+"\n")
		})
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "reading engine output", "session_id", sessionID, "error", err)
	}
	waitErr := cmd.Wait()

	p.mx.Lock()
	canceled := r.canceled
	p.mx.Unlock()
	if canceled {
		return int(session.Cancel), nil
	}
	if parent.Err() != nil {
		return 0, fmt.Errorf("engine process interrupted: %w", context.Cause(parent))
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return 0, nil
	case errors.As(waitErr, &exitErr):
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return 0, waitErr
	default:
		return 0, waitErr
	}
}

// scan reads rd until EOF. The pipe is drained even when scanning fails, so
// the child never blocks writing to it.
func (p *Process) scan(rd io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}
	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, rd)
	}
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// scanLines splits on \n and on the \r ffmpeg uses to redraw progress.
// Lines longer than maxLine are cut into maxLine chunks.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 && i <= maxLine {
		return i + 1, data[:i], nil
	}
	if len(data) >= maxLine {
		return maxLine, data[:maxLine], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (p *Process) handleStderr(sessionID int64, line string) {
	level, msg := SplitLevel(line)
	if pr, ok := ParseProgress(msg); ok {
		p.deliverStatistics(sessionID, pr)
	}
	p.deliverLog(sessionID, level, msg+"\n")
}

func (p *Process) deliver(sessionID int64, fn func(Sink)) {
	p.mx.Lock()
	sink := p.sink
	if sink == nil {
		p.mx.Unlock()
		return
	}
	p.pending[sessionID]++
	p.mx.Unlock()

	defer func() {
		p.mx.Lock()
		if p.pending[sessionID]--; p.pending[sessionID] <= 0 {
			delete(p.pending, sessionID)
		}
		p.mx.Unlock()
	}()
	fn(sink)
}

func (p *Process) deliverLog(sessionID int64, level session.Level, msg string) {
	p.deliver(sessionID, func(s Sink) { s.OnLog(sessionID, level.Value(), []byte(msg)) })
}

func (p *Process) deliverStatistics(sessionID int64, pr Progress) {
	p.deliver(sessionID, func(s Sink) {
		s.OnStatistics(sessionID, pr.Frame, pr.FPS, pr.Quality, pr.Size, pr.TimeMs, pr.Bitrate, pr.Speed)
	})
}

// Cancel interrupts the process of sessionID, or all processes when
// sessionID is 0.
func (p *Process) Cancel(sessionID int64) {
	p.mx.Lock()
	defer p.mx.Unlock()
	for id, r := range p.runs {
		if sessionID == 0 || id == sessionID {
			r.canceled = true
			r.cancel()
		}
	}
}

func (p *Process) PendingMessages(sessionID int64) int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.pending[sessionID]
}
