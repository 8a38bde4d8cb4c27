package kit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/engine"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/log"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/mediainfo"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/pool"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
	"github.com/google/uuid"
)

var ErrEnginePanicked = errors.New("engine panicked")

// Executor runs submitted tasks, *pool.Pool is one.
type Executor interface {
	Submit(func()) (*pool.Future, error)
}

// Execute runs s on the calling goroutine and returns once s is terminal.
// Engine errors and panics fail the session; any integer result completes
// it. Complete callbacks are not invoked.
func (k *Kit) Execute(ctx context.Context, s *session.Session) {
	k.registry.Add(s)
	k.execute(ctx, s)
}

// execute runs s without touching the history, so a queued session evicted
// before it started is not put back.
func (k *Kit) execute(ctx context.Context, s *session.Session) {
	if err := s.StartRunning(); err != nil {
		k.logger.WarnContext(ctx, "session not executed", "session_id", s.ID(), "error", err)
		return
	}
	k.track(s)
	defer k.untrack(s)
	k.logger.DebugContext(ctx, "session started", "session_id", s.ID(), "kind", s.Kind().String())
	if k.observer != nil {
		k.observer.SessionStarted(s)
		defer k.observer.SessionEnded(s)
	}

	code, err := k.run(ctx, s)
	if err != nil {
		k.logger.ErrorContext(ctx, "session failed", "session_id", s.ID(), "error", err)
		_ = s.Fail(err)
		return
	}

	rc := session.ReturnCode(code)
	if s.Kind() == session.KindMediaInformation && rc.IsSuccess() {
		info, err := mediainfo.Parse(engineOutput(s))
		if err != nil {
			k.logger.ErrorContext(ctx, "parsing media information failed", "session_id", s.ID(), "error", err)
			_ = s.Fail(fmt.Errorf("parsing media information: %w", err))
			return
		}
		s.SetMediaInformation(info)
	}
	_ = s.Complete(rc)
	k.logger.DebugContext(ctx, "session completed", "session_id", s.ID(), "return_code", code, "duration", s.Duration())
}

func (k *Kit) run(ctx context.Context, s *session.Session) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEnginePanicked, r)
		}
	}()
	program := engine.ProgramFFprobe
	if s.Kind() == session.KindFFmpeg {
		program = engine.ProgramFFmpeg
	}
	return k.engine.Execute(ctx, s.ID(), program, s.Arguments())
}

// engineOutput concatenates the raw engine output of s, after waiting for
// messages still in transmit.
func engineOutput(s *session.Session) string {
	var sb strings.Builder
	for _, l := range s.AllLogs(session.DefaultMessageTimeout) {
		if l.Level == session.LevelStderr {
			sb.WriteString(l.Message)
		}
	}
	return sb.String()
}

// ExecuteAsync submits s to the kit's pool.
func (k *Kit) ExecuteAsync(ctx context.Context, s *session.Session) error {
	return k.ExecuteAsyncOn(ctx, s, nil)
}

// ExecuteAsyncOn submits s to ex, or to the kit's pool when ex is nil. Once
// the run ends, the session's complete callback and then the global one of
// its kind are invoked. The run does not stop when ctx is cancelled; use
// Cancel.
func (k *Kit) ExecuteAsyncOn(ctx context.Context, s *session.Session, ex Executor) error {
	k.registry.Add(s)
	runCtx := log.ContextAttrs(context.WithoutCancel(ctx),
		slog.String("run_id", uuid.NewString()),
		slog.Int64("session_id", s.ID()),
	)
	task := func() {
		k.execute(runCtx, s)
		k.notifyComplete(runCtx, s)
	}

	var (
		f   *pool.Future
		err error
	)
	if ex != nil {
		f, err = ex.Submit(task)
	} else {
		k.poolMx.RLock()
		f, err = k.pool.Submit(task)
		k.poolMx.RUnlock()
	}
	if err != nil {
		if s.Fail(err) == nil && k.observer != nil {
			k.observer.SessionEnded(s)
		}
		return fmt.Errorf("submitting session %d: %w", s.ID(), err)
	}
	s.SetFuture(f)
	return nil
}

func (k *Kit) notifyComplete(ctx context.Context, s *session.Session) {
	if cb := s.CompleteCallback(); cb != nil {
		k.safeCallContext(ctx, "session complete", s.ID(), func() { cb(s) })
	}
	if cb := k.CompleteCallback(s.Kind()); cb != nil {
		k.safeCallContext(ctx, "global complete", s.ID(), func() { cb(s) })
	}
}
