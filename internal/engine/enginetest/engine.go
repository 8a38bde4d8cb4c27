// Package enginetest provides a scripted engine for tests.
package enginetest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/engine"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

type Message struct {
	Level session.Level
	Text  string
}

// Script describes what a single run does.
type Script struct {
	Logs  []Message
	Stats []session.Statistics
	Code  int
	Err   error
	// Panic, when not nil, makes Execute panic with the value.
	Panic any
	// Block keeps the run going until it is cancelled; the run then
	// returns the Cancel code. When ctx ends first the run returns its cause.
	Block bool
	// Deferred delivers the messages this long after Execute returned,
	// keeping them counted as pending until then.
	Deferred time.Duration
}

type Call struct {
	SessionID int64
	Program   engine.Program
	Args      []string
}

// Engine replays scripts. It is safe for concurrent runs.
type Engine struct {
	script func(Call) Script

	mx       sync.Mutex
	sink     engine.Sink
	calls    []Call
	canceled []int64
	pending  map[int64]int
	blocked  map[int64]chan struct{}
	started  chan int64
	wg       sync.WaitGroup
}

func New(script func(Call) Script) *Engine {
	return &Engine{
		script:  script,
		pending: make(map[int64]int),
		blocked: make(map[int64]chan struct{}),
		started: make(chan int64, 128),
	}
}

// Fixed returns an engine running s for every call.
func Fixed(s Script) *Engine {
	return New(func(Call) Script { return s })
}

func (e *Engine) Connect(sink engine.Sink) {
	e.mx.Lock()
	e.sink = sink
	e.mx.Unlock()
}

func (e *Engine) Execute(ctx context.Context, sessionID int64, program engine.Program, args []string) (int, error) {
	call := Call{SessionID: sessionID, Program: program, Args: slices.Clone(args)}
	s := e.script(call)

	stop := make(chan struct{})
	e.mx.Lock()
	e.calls = append(e.calls, call)
	sink := e.sink
	if s.Block {
		e.blocked[sessionID] = stop
	}
	e.mx.Unlock()

	select {
	case e.started <- sessionID:
	default:
	}

	if s.Panic != nil {
		panic(s.Panic)
	}

	if s.Deferred > 0 {
		e.deferred(sink, sessionID, s)
	} else {
		deliver(sink, sessionID, s)
	}

	if s.Block {
		defer func() {
			e.mx.Lock()
			delete(e.blocked, sessionID)
			e.mx.Unlock()
		}()
		select {
		case <-stop:
			return int(session.Cancel), nil
		case <-ctx.Done():
			return 0, context.Cause(ctx)
		}
	}
	return s.Code, s.Err
}

func deliver(sink engine.Sink, sessionID int64, s Script) {
	if sink == nil {
		return
	}
	for _, st := range s.Stats {
		sink.OnStatistics(sessionID, st.VideoFrameNumber, st.VideoFPS, st.VideoQuality, st.Size, st.Time, st.Bitrate, st.Speed)
	}
	for _, l := range s.Logs {
		sink.OnLog(sessionID, l.Level.Value(), []byte(l.Text))
	}
}

func (e *Engine) deferred(sink engine.Sink, sessionID int64, s Script) {
	n := len(s.Logs) + len(s.Stats)
	e.mx.Lock()
	e.pending[sessionID] += n
	e.mx.Unlock()
	e.wg.Go(func() {
		time.Sleep(s.Deferred)
		deliver(sink, sessionID, s)
		e.mx.Lock()
		delete(e.pending, sessionID)
		e.mx.Unlock()
	})
}

func (e *Engine) Cancel(sessionID int64) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.canceled = append(e.canceled, sessionID)
	for id, stop := range e.blocked {
		if sessionID == 0 || id == sessionID {
			close(stop)
			delete(e.blocked, id)
		}
	}
}

func (e *Engine) PendingMessages(sessionID int64) int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.pending[sessionID]
}

// Started yields session ids as their runs begin. Ids are dropped when
// nobody reads them.
func (e *Engine) Started() <-chan int64 {
	return e.started
}

func (e *Engine) Calls() []Call {
	e.mx.Lock()
	defer e.mx.Unlock()
	return slices.Clone(e.calls)
}

func (e *Engine) Canceled() []int64 {
	e.mx.Lock()
	defer e.mx.Unlock()
	return slices.Clone(e.canceled)
}

// Wait returns once every deferred delivery finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}
