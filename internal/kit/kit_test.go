package kit_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/engine"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/engine/enginetest"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/kit"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/pool"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/registry"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type printed struct {
	mx   sync.Mutex
	logs []session.Log
}

func (p *printed) Print(l session.Log) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.logs = append(p.logs, l)
}

func (p *printed) all() []session.Log {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]session.Log(nil), p.logs...)
}

func newKit(t *testing.T, e engine.Engine, opts ...kit.Option) (*kit.Kit, *printed) {
	t.Helper()
	p := &printed{}
	base := []kit.Option{
		kit.WithPrinter(p),
		kit.WithLogger(slog.New(slog.DiscardHandler)),
	}
	k, err := kit.New(e, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(k.Close)
	return k, p
}

func waitFuture(t *testing.T, s *session.Session) {
	t.Helper()
	f, ok := s.Future().(*pool.Future)
	require.True(t, ok)
	require.NoError(t, f.Wait(t.Context()))
}

func TestNew(t *testing.T) {
	t.Parallel()
	e := enginetest.Fixed(enginetest.Script{})
	k, _ := newKit(t, e)
	require.Equal(t, registry.DefaultHistorySize, k.SessionHistorySize())
	require.Equal(t, kit.DefaultConcurrencyLimit, k.AsyncConcurrencyLimit())
	require.Equal(t, session.LevelInfo, k.LogLevel())
	require.Equal(t, session.DefaultStrategy, k.LogRedirectionStrategy())

	_, err := kit.New(e, kit.WithHistorySize(1000))
	require.ErrorIs(t, err, registry.ErrInvalidHistorySize)
	_, err = kit.New(e, kit.WithConcurrencyLimit(0))
	require.ErrorIs(t, err, kit.ErrInvalidConcurrencyLimit)
}

func TestExecute(t *testing.T) {
	t.Parallel()
	type then struct {
		state   session.State
		code    session.ReturnCode
		hasCode bool
		failure string
	}
	cases := []struct {
		scenario string
		given    enginetest.Script
		then     then
	}{
		{"success", enginetest.Script{Code: 0}, then{session.StateCompleted, session.Success, true, ""}},
		{"non_zero", enginetest.Script{Code: 1}, then{session.StateCompleted, 1, true, ""}},
		{"cancel_code", enginetest.Script{Code: 255}, then{session.StateCompleted, session.Cancel, true, ""}},
		{"engine_error", enginetest.Script{Err: errors.New("no such binary")}, then{session.StateFailed, 0, false, "no such binary"}},
		{"engine_panic", enginetest.Script{Panic: "native crash"}, then{session.StateFailed, 0, false, "engine panicked: native crash"}},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			k, _ := newKit(t, enginetest.Fixed(tc.given))
			s := k.FFmpeg(t.Context(), []string{"-i", "in.mp4", "out.mp4"})
			require.Equal(t, tc.then.state, s.State())
			rc, ok := s.ReturnCode()
			require.Equal(t, tc.then.hasCode, ok)
			require.Equal(t, tc.then.code, rc)
			require.Equal(t, tc.then.failure, s.Failure())
			require.False(t, s.StartTime().IsZero())
			require.False(t, s.EndTime().IsZero())
			require.False(t, s.EndTime().Before(s.StartTime()))
			require.Equal(t, s.EndTime().Sub(s.StartTime()), s.Duration())
		})
	}
}

func TestExecuteProgram(t *testing.T) {
	t.Parallel()
	e := enginetest.Fixed(enginetest.Script{})
	k, _ := newKit(t, e)
	ff := k.FFmpeg(t.Context(), []string{"-version"})
	fp := k.FFprobe(t.Context(), []string{"-version"})

	calls := e.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, enginetest.Call{SessionID: ff.ID(), Program: engine.ProgramFFmpeg, Args: []string{"-version"}}, calls[0])
	require.Equal(t, enginetest.Call{SessionID: fp.ID(), Program: engine.ProgramFFprobe, Args: []string{"-version"}}, calls[1])

	// a terminal session is not run again
	k.Execute(t.Context(), ff)
	require.Len(t, e.Calls(), 2)
}

func TestSessionIDsConcurrent(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{}), kit.WithHistorySize(999))
	var (
		mx  sync.Mutex
		ids = make(map[int64]struct{})
		wg  sync.WaitGroup
	)
	for range 8 {
		wg.Go(func() {
			for range 50 {
				s := k.NewFFmpegSession(nil)
				mx.Lock()
				ids[s.ID()] = struct{}{}
				mx.Unlock()
			}
		})
	}
	wg.Wait()
	require.Len(t, ids, 400)
	require.Len(t, k.Sessions(), 400)
}

func TestHistory(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{}), kit.WithHistorySize(3))
	var created []*session.Session
	for range 5 {
		created = append(created, k.FFmpeg(t.Context(), nil))
	}
	require.Len(t, k.Sessions(), 3)
	_, ok := k.Session(created[1].ID())
	require.False(t, ok)
	last, ok := k.LastSession()
	require.True(t, ok)
	require.Same(t, created[4], last)

	err := k.SetSessionHistorySize(1000)
	require.ErrorIs(t, err, registry.ErrInvalidHistorySize)
	require.Equal(t, 3, k.SessionHistorySize())

	require.NoError(t, k.SetSessionHistorySize(1))
	require.Len(t, k.Sessions(), 1)

	k.FFprobe(t.Context(), nil)
	require.Len(t, k.FFprobeSessions(), 1)
	require.Empty(t, k.FFmpegSessions())
	lc, ok := k.LastCompletedSession()
	require.True(t, ok)
	require.Equal(t, session.KindFFprobe, lc.Kind())

	k.ClearSessions()
	require.Empty(t, k.Sessions())
	_, ok = k.LastSession()
	require.False(t, ok)
}

func TestMediaInformation(t *testing.T) {
	t.Parallel()
	json := []enginetest.Message{
		{Level: session.LevelStderr, Text: `{"format": {"filename": "in.mp4",` + "\n"},
		{Level: session.LevelError, Text: "ignored\n"},
		{Level: session.LevelStderr, Text: `"format_name": "mov,mp4"}, "streams": [{"index": 0, "codec_type": "video"}]}` + "\n"},
	}
	t.Run("parsed", func(t *testing.T) {
		t.Parallel()
		e := enginetest.Fixed(enginetest.Script{Logs: json})
		k, p := newKit(t, e, kit.WithStrategy(session.AlwaysPrintLogs))
		s := k.MediaInformation(t.Context(), "in.mp4")
		require.Equal(t, session.StateCompleted, s.State())
		info := s.MediaInformation()
		require.NotNil(t, info)
		require.Equal(t, "in.mp4", info.Filename())
		require.Equal(t, "mov,mp4", info.Format())
		require.Len(t, info.Streams(), 1)
		require.Equal(t, "-v error -hide_banner -print_format json -show_format -show_streams -show_chapters -i in.mp4", s.Command())
		require.Equal(t, engine.ProgramFFprobe, e.Calls()[0].Program)
		require.Empty(t, p.all(), "media information sessions never print")
		require.Len(t, k.MediaInformationSessions(), 1)
	})
	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()
		e := enginetest.Fixed(enginetest.Script{Logs: json[:1]})
		k, _ := newKit(t, e)
		s := k.MediaInformation(t.Context(), "in.mp4")
		require.Equal(t, session.StateFailed, s.State())
		require.Contains(t, s.Failure(), "invalid media information json")
		require.Nil(t, s.MediaInformation())
	})
	t.Run("probe failed", func(t *testing.T) {
		t.Parallel()
		e := enginetest.Fixed(enginetest.Script{Code: 1})
		k, _ := newKit(t, e)
		s := k.MediaInformation(t.Context(), "missing.mp4")
		require.Equal(t, session.StateCompleted, s.State())
		require.Nil(t, s.MediaInformation())
	})
	t.Run("deferred delivery", func(t *testing.T) {
		t.Parallel()
		e := enginetest.Fixed(enginetest.Script{Logs: json, Deferred: 150 * time.Millisecond})
		k, _ := newKit(t, e)
		s := k.MediaInformation(t.Context(), "in.mp4")
		e.Wait()
		require.Equal(t, session.StateCompleted, s.State())
		require.NotNil(t, s.MediaInformation())
	})
}

func TestCancel(t *testing.T) {
	t.Parallel()
	e := enginetest.Fixed(enginetest.Script{Block: true})
	k, _ := newKit(t, e)

	idle := k.NewFFmpegSession(nil)
	k.Cancel(idle.ID())
	require.Empty(t, e.Canceled(), "cancel of a session not running reaches the engine")

	s, err := k.FFmpegAsync(t.Context(), []string{"-i", "in.mp4", "out.mp4"})
	require.NoError(t, err)
	require.Equal(t, s.ID(), <-e.Started())
	require.Equal(t, session.StateRunning, s.State())

	k.Cancel(s.ID())
	require.NoError(t, s.Wait(t.Context()))
	rc, ok := s.ReturnCode()
	require.True(t, ok)
	require.True(t, rc.IsCancel())
	require.Equal(t, []int64{s.ID()}, e.Canceled())

	a, err := k.FFmpegAsync(t.Context(), nil)
	require.NoError(t, err)
	b, err := k.FFprobeAsync(t.Context(), nil)
	require.NoError(t, err)
	started := map[int64]bool{<-e.Started(): true, <-e.Started(): true}
	require.True(t, started[a.ID()] && started[b.ID()])

	k.CancelAll()
	require.NoError(t, a.Wait(t.Context()))
	require.NoError(t, b.Wait(t.Context()))
	require.Contains(t, e.Canceled(), int64(0))
	require.Len(t, k.SessionsByState(session.StateCompleted), 3)
}

func TestAsyncCompleteCallbacks(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{Err: errors.New("boom")}))
	var (
		mx    sync.Mutex
		order []string
	)
	record := func(name string) session.CompleteCallback {
		return func(s *session.Session) {
			mx.Lock()
			defer mx.Unlock()
			order = append(order, name+":"+s.State().String())
		}
	}
	k.EnableCompleteCallback(session.KindFFmpeg, record("global"))
	k.EnableCompleteCallback(session.KindFFprobe, func(*session.Session) { panic("not for ffmpeg") })
	require.NotNil(t, k.CompleteCallback(session.KindFFmpeg))
	require.Nil(t, k.CompleteCallback(session.KindMediaInformation))

	s, err := k.FFmpegAsync(t.Context(), nil, session.WithCompleteCallback(record("session")))
	require.NoError(t, err)
	waitFuture(t, s)
	require.Equal(t, []string{"session:FAILED", "global:FAILED"}, order)
	require.Equal(t, "boom", s.Failure())

	// a panicking session callback does not stop the global one
	order = nil
	s, err = k.FFmpegAsync(t.Context(), nil, session.WithCompleteCallback(func(*session.Session) { panic("oops") }))
	require.NoError(t, err)
	waitFuture(t, s)
	require.Equal(t, []string{"global:FAILED"}, order)

	k.EnableCompleteCallback(session.KindFFmpeg, nil)
	require.Nil(t, k.CompleteCallback(session.KindFFmpeg))
}

func TestExecuteAsyncOn(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{}))
	p, err := pool.New(1)
	require.NoError(t, err)

	s, err := k.FFprobeAsyncOn(t.Context(), p, []string{"-version"})
	require.NoError(t, err)
	waitFuture(t, s)
	require.Equal(t, session.StateCompleted, s.State())

	p.Shutdown()
	p.Wait()
	s, err = k.FFmpegAsyncOn(t.Context(), p, nil)
	require.ErrorIs(t, err, pool.ErrPoolShutdown)
	require.Equal(t, session.StateFailed, s.State())
}

func TestAsyncDetachedFromContext(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{Block: true}))
	ctx, cancel := context.WithCancel(t.Context())
	s, err := k.FFmpegAsync(ctx, nil)
	require.NoError(t, err)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer waitCancel()
	require.ErrorIs(t, s.Wait(waitCtx), context.DeadlineExceeded)
	require.Equal(t, session.StateRunning, s.State())

	s.Cancel()
	require.NoError(t, s.Wait(t.Context()))
}

func TestSetAsyncConcurrencyLimit(t *testing.T) {
	t.Parallel()
	e := enginetest.New(func(c enginetest.Call) enginetest.Script {
		return enginetest.Script{Block: len(c.Args) > 0 && c.Args[0] == "block"}
	})
	k, _ := newKit(t, e, kit.WithConcurrencyLimit(2))

	require.ErrorIs(t, k.SetAsyncConcurrencyLimit(0), kit.ErrInvalidConcurrencyLimit)
	require.ErrorIs(t, k.SetAsyncConcurrencyLimit(-3), kit.ErrInvalidConcurrencyLimit)
	require.Equal(t, 2, k.AsyncConcurrencyLimit())

	b1, err := k.FFmpegAsync(t.Context(), []string{"block"})
	require.NoError(t, err)
	b2, err := k.FFmpegAsync(t.Context(), []string{"block"})
	require.NoError(t, err)
	<-e.Started()
	<-e.Started()

	// the old pool is saturated; new work must run on the new pool
	require.NoError(t, k.SetAsyncConcurrencyLimit(1))
	require.Equal(t, 1, k.AsyncConcurrencyLimit())
	q, err := k.FFmpegAsync(t.Context(), []string{"quick"})
	require.NoError(t, err)
	require.NoError(t, q.Wait(t.Context()))
	require.Equal(t, session.StateCompleted, q.State())

	// in-flight work on the retired pool is not cancelled
	require.Equal(t, session.StateRunning, b1.State())
	require.Equal(t, session.StateRunning, b2.State())
	k.CancelAll()
	require.NoError(t, b1.Wait(t.Context()))
	require.NoError(t, b2.Wait(t.Context()))
}

func TestClose(t *testing.T) {
	t.Parallel()
	k, err := kit.New(enginetest.Fixed(enginetest.Script{}), kit.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	k.Close()
	k.Close()

	s, err := k.FFmpegAsync(t.Context(), nil)
	require.ErrorIs(t, err, pool.ErrPoolShutdown)
	require.Equal(t, session.StateFailed, s.State())
	require.NotEmpty(t, s.Failure())
	require.ErrorIs(t, k.SetAsyncConcurrencyLimit(4), kit.ErrClosed)

	s = k.FFmpeg(t.Context(), nil)
	require.Equal(t, session.StateCompleted, s.State())
}

func TestApply(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{}))
	err := k.Apply(model.Kit{
		LogLevel:              "debug",
		LogRedirection:        "never_print_logs",
		SessionHistorySize:    20,
		AsyncConcurrencyLimit: 3,
	})
	require.NoError(t, err)
	require.Equal(t, session.LevelDebug, k.LogLevel())
	require.Equal(t, session.NeverPrintLogs, k.LogRedirectionStrategy())
	require.Equal(t, 20, k.SessionHistorySize())
	require.Equal(t, 3, k.AsyncConcurrencyLimit())

	err = k.Apply(model.Kit{
		LogLevel:           "loud",
		LogRedirection:     "always_print_logs",
		SessionHistorySize: 5000,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, registry.ErrInvalidHistorySize)
	require.Equal(t, session.LevelDebug, k.LogLevel())
	require.Equal(t, session.AlwaysPrintLogs, k.LogRedirectionStrategy())
	require.Equal(t, 20, k.SessionHistorySize())
}

func TestSessionInheritsStrategy(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{}))
	k.SetLogRedirectionStrategy(session.AlwaysPrintLogs)
	a := k.NewFFmpegSession(nil)
	b := k.NewFFmpegSession(nil, session.WithStrategy(session.NeverPrintLogs))
	k.SetLogRedirectionStrategy(session.PrintLogsWhenGlobalCallbackNotDefined)
	require.Equal(t, session.AlwaysPrintLogs, a.Strategy())
	require.Equal(t, session.NeverPrintLogs, b.Strategy())
}

type observed struct {
	mx     sync.Mutex
	events []string
}

func (o *observed) SessionStarted(s *session.Session) { o.add("started", s) }
func (o *observed) SessionEnded(s *session.Session)   { o.add("ended", s) }

func (o *observed) add(event string, s *session.Session) {
	o.mx.Lock()
	defer o.mx.Unlock()
	o.events = append(o.events, event+":"+s.State().String())
}

func (o *observed) all() []string {
	o.mx.Lock()
	defer o.mx.Unlock()
	return append([]string(nil), o.events...)
}

func TestObserver(t *testing.T) {
	t.Parallel()
	obs := &observed{}
	e := enginetest.New(func(c enginetest.Call) enginetest.Script {
		if c.Args[0] == "bad" {
			return enginetest.Script{Err: errors.New("bad")}
		}
		return enginetest.Script{}
	})
	k, _ := newKit(t, e, kit.WithObserver(obs))

	k.FFmpeg(t.Context(), []string{"ok"})
	k.FFmpeg(t.Context(), []string{"bad"})
	require.Equal(t, []string{"started:RUNNING", "ended:COMPLETED", "started:RUNNING", "ended:FAILED"}, obs.all())

	k.Close()
	_, err := k.FFmpegAsync(t.Context(), []string{"ok"})
	require.ErrorIs(t, err, pool.ErrPoolShutdown)
	require.Equal(t, "ended:FAILED", obs.all()[4])
}

func TestEvictedWhileRunning(t *testing.T) {
	t.Parallel()
	json := []enginetest.Message{
		{Level: session.LevelStderr, Text: `{"format": {"filename": "x"}, "streams": []}` + "\n"},
	}
	e := enginetest.New(func(c enginetest.Call) enginetest.Script {
		if c.Args[len(c.Args)-1] == "slow.mp4" {
			return enginetest.Script{Logs: json, Deferred: 200 * time.Millisecond}
		}
		return enginetest.Script{Logs: json}
	})
	k, _ := newKit(t, e, kit.WithHistorySize(2), kit.WithConcurrencyLimit(2))

	slow, err := k.MediaInformationAsync(t.Context(), "slow.mp4")
	require.NoError(t, err)
	var rest []*session.Session
	for _, path := range []string{"a.mp4", "b.mp4"} {
		s, err := k.MediaInformationAsync(t.Context(), path)
		require.NoError(t, err)
		rest = append(rest, s)
	}
	for _, s := range append(rest, slow) {
		require.NoError(t, s.Wait(t.Context()))
		require.Equal(t, session.StateCompleted, s.State(), s.Failure())
		require.NotNil(t, s.MediaInformation())
	}
	_, ok := k.Session(slow.ID())
	require.False(t, ok, "evicted from the history")
	e.Wait()
}

func TestCancelZero(t *testing.T) {
	t.Parallel()
	e := enginetest.Fixed(enginetest.Script{Block: true})
	k, _ := newKit(t, e)
	s, err := k.FFmpegAsync(t.Context(), nil)
	require.NoError(t, err)
	<-e.Started()

	k.Cancel(0)
	require.NoError(t, s.Wait(t.Context()))
	rc, ok := s.ReturnCode()
	require.True(t, ok)
	require.True(t, rc.IsCancel())
	require.Equal(t, []int64{0}, e.Canceled())
}

func TestRetiredPoolsReleased(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{}))
	for n := 1; n <= 5; n++ {
		require.NoError(t, k.SetAsyncConcurrencyLimit(n))
		s, err := k.FFmpegAsync(t.Context(), nil)
		require.NoError(t, err)
		require.NoError(t, s.Wait(t.Context()))
	}
	require.Eventually(t, func() bool { return k.RetiredPools() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestExecuteDeadline(t *testing.T) {
	t.Parallel()
	k, _ := newKit(t, enginetest.Fixed(enginetest.Script{Block: true}))
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	s := k.FFmpeg(ctx, nil)
	require.Equal(t, session.StateFailed, s.State())
	require.Contains(t, s.Failure(), context.DeadlineExceeded.Error())
	_, ok := s.ReturnCode()
	require.False(t, ok)
}
