// Package kit is the context object tying sessions to an engine. It keeps the
// session history, routes engine messages to sessions and callbacks, and runs
// sessions synchronously or on a bounded pool.
package kit

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/engine"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/pool"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/registry"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

const DefaultConcurrencyLimit = 10

var (
	ErrInvalidConcurrencyLimit = errors.New("invalid async concurrency limit")
	ErrClosed                  = errors.New("kit is closed")
)

// Observer is told when sessions start running and when they end.
type Observer interface {
	SessionStarted(*session.Session)
	SessionEnded(*session.Session)
}

type Kit struct {
	engine   engine.Engine
	registry *registry.Registry
	printer  Printer
	logger   *slog.Logger
	observer Observer

	mx          sync.RWMutex
	level       session.Level
	strategy    session.Strategy
	logCb       session.LogCallback
	statsCb     session.StatisticsCallback
	completeCbs map[session.Kind]session.CompleteCallback

	// running holds sessions between start and end, so messages still
	// reach a session evicted from the history while it runs.
	runningMx sync.Mutex
	running   map[int64]*session.Session

	poolMx   sync.RWMutex
	pool     *pool.Pool
	limit    int
	retired  []*pool.Pool
	retiring sync.WaitGroup
	closed   bool
}

type options struct {
	printer     Printer
	logger      *slog.Logger
	observer    Observer
	historySize int
	limit       int
	level       session.Level
	strategy    session.Strategy
}

type Option func(*options)

// WithPrinter replaces the default slog printer for redirected engine logs.
func WithPrinter(p Printer) Option {
	return func(o *options) { o.printer = p }
}

// WithLogger sets the logger for the kit's own diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func WithHistorySize(n int) Option {
	return func(o *options) { o.historySize = n }
}

func WithConcurrencyLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

func WithLogLevel(l session.Level) Option {
	return func(o *options) { o.level = l }
}

func WithStrategy(s session.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// New creates a kit on top of e. When e delivers messages, the kit connects
// itself as the engine's sink.
func New(e engine.Engine, opts ...Option) (*Kit, error) {
	o := options{
		historySize: registry.DefaultHistorySize,
		limit:       DefaultConcurrencyLimit,
		level:       session.LevelInfo,
		strategy:    session.DefaultStrategy,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.printer == nil {
		o.printer = SlogPrinter{Logger: o.logger}
	}

	reg, err := registry.New(o.historySize)
	if err != nil {
		return nil, err
	}
	if o.limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrencyLimit, o.limit)
	}
	p, err := pool.New(o.limit)
	if err != nil {
		return nil, err
	}

	k := &Kit{
		engine:      e,
		registry:    reg,
		printer:     o.printer,
		logger:      o.logger,
		observer:    o.observer,
		level:       o.level,
		strategy:    o.strategy,
		completeCbs: make(map[session.Kind]session.CompleteCallback),
		running:     make(map[int64]*session.Session),
		pool:        p,
		limit:       o.limit,
	}
	if c, ok := e.(engine.Connector); ok {
		c.Connect(k)
	}
	return k, nil
}

// Close stops accepting asynchronous work and waits for queued and running
// sessions to finish.
func (k *Kit) Close() {
	k.poolMx.Lock()
	if k.closed {
		k.poolMx.Unlock()
		return
	}
	k.closed = true
	pools := append(k.retired, k.pool)
	k.retired = nil
	k.poolMx.Unlock()

	for _, p := range pools {
		p.Shutdown()
	}
	for _, p := range pools {
		p.Wait()
	}
	k.retiring.Wait()
}

func (k *Kit) LogLevel() session.Level {
	k.mx.RLock()
	defer k.mx.RUnlock()
	return k.level
}

func (k *Kit) SetLogLevel(l session.Level) {
	k.mx.Lock()
	k.level = l
	k.mx.Unlock()
}

func (k *Kit) LogRedirectionStrategy() session.Strategy {
	k.mx.RLock()
	defer k.mx.RUnlock()
	return k.strategy
}

// SetLogRedirectionStrategy changes the strategy of sessions created from now
// on. Existing sessions keep theirs.
func (k *Kit) SetLogRedirectionStrategy(s session.Strategy) {
	k.mx.Lock()
	k.strategy = s
	k.mx.Unlock()
}

func (k *Kit) EnableLogCallback(cb session.LogCallback) {
	k.mx.Lock()
	k.logCb = cb
	k.mx.Unlock()
}

func (k *Kit) LogCallback() session.LogCallback {
	k.mx.RLock()
	defer k.mx.RUnlock()
	return k.logCb
}

func (k *Kit) EnableStatisticsCallback(cb session.StatisticsCallback) {
	k.mx.Lock()
	k.statsCb = cb
	k.mx.Unlock()
}

func (k *Kit) StatisticsCallback() session.StatisticsCallback {
	k.mx.RLock()
	defer k.mx.RUnlock()
	return k.statsCb
}

// EnableCompleteCallback sets the global complete callback of a session kind.
// A nil cb removes it.
func (k *Kit) EnableCompleteCallback(kind session.Kind, cb session.CompleteCallback) {
	k.mx.Lock()
	defer k.mx.Unlock()
	if cb == nil {
		delete(k.completeCbs, kind)
		return
	}
	k.completeCbs[kind] = cb
}

func (k *Kit) CompleteCallback(kind session.Kind) session.CompleteCallback {
	k.mx.RLock()
	defer k.mx.RUnlock()
	return k.completeCbs[kind]
}

func (k *Kit) SessionHistorySize() int {
	return k.registry.HistorySize()
}

func (k *Kit) SetSessionHistorySize(n int) error {
	return k.registry.SetHistorySize(n)
}

func (k *Kit) AsyncConcurrencyLimit() int {
	k.poolMx.RLock()
	defer k.poolMx.RUnlock()
	return k.limit
}

// SetAsyncConcurrencyLimit replaces the pool. Work already submitted finishes
// on the old pool; new submissions go to the new one.
func (k *Kit) SetAsyncConcurrencyLimit(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrencyLimit, n)
	}
	np, err := pool.New(n)
	if err != nil {
		return err
	}

	k.poolMx.Lock()
	if k.closed {
		k.poolMx.Unlock()
		np.Shutdown()
		np.Wait()
		return ErrClosed
	}
	old := k.pool
	k.pool = np
	k.limit = n
	k.retired = append(k.retired, old)
	// forget the old pool once it drained; Close waits for this too
	k.retiring.Go(func() {
		old.Wait()
		k.poolMx.Lock()
		k.retired = slices.DeleteFunc(k.retired, func(p *pool.Pool) bool { return p == old })
		k.poolMx.Unlock()
	})
	k.poolMx.Unlock()

	old.Shutdown()
	return nil
}

// lookup resolves a session by id from the running set, then the history.
func (k *Kit) lookup(id int64) (*session.Session, bool) {
	k.runningMx.Lock()
	s, ok := k.running[id]
	k.runningMx.Unlock()
	if ok {
		return s, true
	}
	return k.registry.Get(id)
}

func (k *Kit) track(s *session.Session) {
	k.runningMx.Lock()
	k.running[s.ID()] = s
	k.runningMx.Unlock()
}

func (k *Kit) untrack(s *session.Session) {
	k.runningMx.Lock()
	delete(k.running, s.ID())
	k.runningMx.Unlock()
}

// Apply changes the runtime settings in one go. Settings that fail to apply
// are reported together; the others still take effect.
func (k *Kit) Apply(cfg model.Kit) error {
	var errs []error
	if cfg.LogLevel != "" {
		if l, err := session.ParseLevel(cfg.LogLevel); err != nil {
			errs = append(errs, err)
		} else {
			k.SetLogLevel(l)
		}
	}
	if cfg.LogRedirection != "" {
		if s, err := session.ParseStrategy(cfg.LogRedirection); err != nil {
			errs = append(errs, err)
		} else {
			k.SetLogRedirectionStrategy(s)
		}
	}
	if cfg.SessionHistorySize != 0 && cfg.SessionHistorySize != k.SessionHistorySize() {
		if err := k.SetSessionHistorySize(cfg.SessionHistorySize); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.AsyncConcurrencyLimit != 0 && cfg.AsyncConcurrencyLimit != k.AsyncConcurrencyLimit() {
		if err := k.SetAsyncConcurrencyLimit(cfg.AsyncConcurrencyLimit); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
