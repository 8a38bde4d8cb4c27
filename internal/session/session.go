package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/mediainfo"
)

const (
	// DefaultMessageTimeout bounds the wait for messages still in transmit.
	DefaultMessageTimeout = 5 * time.Second
	// UnknownDuration is returned by Duration until both timestamps exist.
	UnknownDuration time.Duration = -1

	pollInterval = 100 * time.Millisecond
)

var ErrInvalidTransition = errors.New("invalid session state transition")

var idGenerator atomic.Int64

func nextID() int64 {
	return idGenerator.Add(1)
}

// Session is one submitted unit of work. Its logs and statistics are
// append-only and safe for concurrent producers and readers.
type Session struct {
	id               int64
	kind             Kind
	args             []string
	logCallback      LogCallback
	statsCallback    StatisticsCallback
	completeCallback CompleteCallback
	strategy         Strategy
	created          time.Time
	engine           Engine

	mx         sync.RWMutex
	state      State
	started    time.Time
	ended      time.Time
	returnCode ReturnCode
	hasCode    bool
	failure    string
	future     Future
	mediaInfo  *mediainfo.Information
	done       chan struct{}

	logsMx  sync.RWMutex
	logs    []Log
	statsMx sync.RWMutex
	stats   []Statistics
}

type Option func(*Session)

func WithLogCallback(cb LogCallback) Option {
	return func(s *Session) { s.logCallback = cb }
}

func WithStatisticsCallback(cb StatisticsCallback) Option {
	return func(s *Session) { s.statsCallback = cb }
}

func WithCompleteCallback(cb CompleteCallback) Option {
	return func(s *Session) { s.completeCallback = cb }
}

func WithStrategy(strategy Strategy) Option {
	return func(s *Session) { s.strategy = strategy }
}

// WithEngine sets the adapter used by Cancel and the message wait.
func WithEngine(e Engine) Option {
	return func(s *Session) { s.engine = e }
}

// New creates a session in the Created state with a fresh id. Media
// information sessions never print their logs.
func New(kind Kind, args []string, opts ...Option) *Session {
	s := &Session{
		id:       nextID(),
		kind:     kind,
		args:     append([]string(nil), args...),
		strategy: DefaultStrategy,
		created:  time.Now(),
		state:    StateCreated,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if kind == KindMediaInformation {
		s.strategy = NeverPrintLogs
	}
	return s
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) Kind() Kind { return s.kind }

func (s *Session) Arguments() []string {
	return append([]string(nil), s.args...)
}

// Command returns the arguments joined by spaces.
func (s *Session) Command() string {
	return ArgumentsToString(s.args)
}

func (s *Session) LogCallback() LogCallback { return s.logCallback }

func (s *Session) StatisticsCallback() StatisticsCallback { return s.statsCallback }

func (s *Session) CompleteCallback() CompleteCallback { return s.completeCallback }

func (s *Session) Strategy() Strategy { return s.strategy }

func (s *Session) CreateTime() time.Time { return s.created }

func (s *Session) State() State {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.state
}

func (s *Session) StartTime() time.Time {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.started
}

func (s *Session) EndTime() time.Time {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.ended
}

func (s *Session) Duration() time.Duration {
	s.mx.RLock()
	defer s.mx.RUnlock()
	if s.started.IsZero() || s.ended.IsZero() {
		return UnknownDuration
	}
	return s.ended.Sub(s.started)
}

// ReturnCode returns the engine result; ok is false unless the session
// completed.
func (s *Session) ReturnCode() (rc ReturnCode, ok bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.returnCode, s.hasCode
}

// Failure is the rendered cause of a failed session.
func (s *Session) Failure() string {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.failure
}

func (s *Session) Future() Future {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.future
}

func (s *Session) SetFuture(f Future) {
	s.mx.Lock()
	s.future = f
	s.mx.Unlock()
}

func (s *Session) MediaInformation() *mediainfo.Information {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.mediaInfo
}

func (s *Session) SetMediaInformation(info *mediainfo.Information) {
	s.mx.Lock()
	s.mediaInfo = info
	s.mx.Unlock()
}

// StartRunning moves Created to Running and records the start time.
func (s *Session) StartRunning() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.state != StateCreated {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateRunning)
	}
	s.state = StateRunning
	s.started = time.Now()
	return nil
}

// Complete moves Running to Completed and stores the engine result.
func (s *Session) Complete(rc ReturnCode) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.state != StateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateCompleted)
	}
	s.returnCode = rc
	s.hasCode = true
	s.state = StateCompleted
	s.ended = time.Now()
	close(s.done)
	return nil
}

// Fail moves Created or Running to Failed and records the cause.
func (s *Session) Fail(cause error) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.state.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateFailed)
	}
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	s.failure = cause.Error()
	s.state = StateFailed
	s.ended = time.Now()
	close(s.done)
	return nil
}

// Cancel asks the engine to stop a running session and returns at once.
// The session usually completes with the Cancel return code afterwards.
func (s *Session) Cancel() {
	if s.State() != StateRunning || s.engine == nil {
		return
	}
	s.engine.Cancel(s.id)
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is terminal or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) AddLog(l Log) {
	s.logsMx.Lock()
	s.logs = append(s.logs, l)
	s.logsMx.Unlock()
}

// Logs returns a copy of the logs received so far.
func (s *Session) Logs() []Log {
	s.logsMx.RLock()
	defer s.logsMx.RUnlock()
	return append([]Log(nil), s.logs...)
}

func (s *Session) LogsAsString() string {
	s.logsMx.RLock()
	defer s.logsMx.RUnlock()
	var sb strings.Builder
	for _, l := range s.logs {
		sb.WriteString(l.Message)
	}
	return sb.String()
}

// AllLogs waits up to timeout for messages in transmit, then returns the logs.
func (s *Session) AllLogs(timeout time.Duration) []Log {
	s.waitBeforeRead("AllLogs", timeout)
	return s.Logs()
}

func (s *Session) AllLogsAsString(timeout time.Duration) string {
	s.waitBeforeRead("AllLogsAsString", timeout)
	return s.LogsAsString()
}

// Output is every log message concatenated, after the default wait.
func (s *Session) Output() string {
	return s.AllLogsAsString(DefaultMessageTimeout)
}

// AddStatistics is ignored by the probing kinds.
func (s *Session) AddStatistics(st Statistics) {
	if s.kind != KindFFmpeg {
		return
	}
	s.statsMx.Lock()
	s.stats = append(s.stats, st)
	s.statsMx.Unlock()
}

func (s *Session) Statistics() []Statistics {
	s.statsMx.RLock()
	defer s.statsMx.RUnlock()
	return append([]Statistics(nil), s.stats...)
}

func (s *Session) AllStatistics(timeout time.Duration) []Statistics {
	s.waitBeforeRead("AllStatistics", timeout)
	return s.Statistics()
}

// LastStatistics returns the newest sample, ok is false when there is none.
func (s *Session) LastStatistics() (Statistics, bool) {
	s.statsMx.RLock()
	defer s.statsMx.RUnlock()
	if len(s.stats) == 0 {
		return Statistics{}, false
	}
	return s.stats[len(s.stats)-1], true
}

func (s *Session) MessagesInTransmit() bool {
	if s.engine == nil {
		return false
	}
	return s.engine.PendingMessages(s.id) != 0
}

// WaitForMessages polls the engine until no message of this session is in
// transmit or timeout expires. It reports whether the messages settled.
func (s *Session) WaitForMessages(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for s.MessagesInTransmit() {
		left := time.Until(deadline)
		if left <= 0 {
			return false
		}
		time.Sleep(min(pollInterval, left))
	}
	return true
}

func (s *Session) waitBeforeRead(op string, timeout time.Duration) {
	if !s.WaitForMessages(timeout) {
		slog.Info(op+" called while messages are still in transmit", "session_id", s.id)
	}
}

func (s *Session) String() string {
	s.mx.RLock()
	defer s.mx.RUnlock()
	rc := "<nil>"
	if s.hasCode {
		rc = s.returnCode.String()
	}
	return fmt.Sprintf("Session{id=%d, kind=%s, state=%s, createTime=%s, startTime=%s, endTime=%s, arguments=%s, returnCode=%s, failure=%q}",
		s.id, s.kind, s.state,
		s.created.Format(time.RFC3339Nano), fmtTime(s.started), fmtTime(s.ended),
		ArgumentsToString(s.args), rc, s.failure)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "<nil>"
	}
	return t.Format(time.RFC3339Nano)
}
