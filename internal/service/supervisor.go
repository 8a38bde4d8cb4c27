package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/kit"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"
)

// AllJobs starts every registered job.
const AllJobs = "**"

type Supervisor struct {
	kit       *kit.Kit
	scheduler gocron.Scheduler
	start     chan string
	done      chan struct{}

	closeOnce sync.Once
	closeErr  error

	jobsMx sync.Mutex
	jobs   map[string]*Job
}

// NewSupervisor registers the configured jobs on a new scheduler. Sessions
// are submitted through k.
func NewSupervisor(ctx context.Context, k *kit.Kit, cfg model.Service, opts ...gocron.SchedulerOption) (*Supervisor, error) {
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	s := &Supervisor{
		kit:       k,
		scheduler: scheduler,
		start:     make(chan string, 1),
		done:      make(chan struct{}),
		jobs:      make(map[string]*Job),
	}

	var errs []error
	for _, j := range cfg.Jobs {
		if err := s.AddJob(ctx, j); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return s, nil
}

// AddJob schedules cfg. Job names are unique.
func (s *Supervisor) AddJob(ctx context.Context, cfg model.Job) error {
	j, err := NewJob(cfg)
	if err != nil {
		return err
	}
	def, err := jobDefinition(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", cfg.Name, err)
	}

	s.jobsMx.Lock()
	defer s.jobsMx.Unlock()
	if _, ok := s.jobs[cfg.Name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, cfg.Name)
	}
	name := cfg.Name
	gj, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(func() { s.Start(name) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("initializing gocron job %s: %w", name, err)
	}
	j.id = gj.ID()
	s.jobs[name] = j
	slog.DebugContext(ctx, "job added", "job_name", name, "program", cfg.Program, "schedule", cfg.Schedule)
	return nil
}

// RemoveJob unschedules a job. A session it already submitted keeps running.
func (s *Supervisor) RemoveJob(name string) error {
	s.jobsMx.Lock()
	defer s.jobsMx.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	delete(s.jobs, name)
	if err := s.scheduler.RemoveJob(j.id); err != nil {
		return fmt.Errorf("removing gocron job %s: %w", name, err)
	}
	return nil
}

// Reconfigure replaces the job set. Unchanged jobs keep their schedule and
// history; changed ones are rescheduled.
func (s *Supervisor) Reconfigure(ctx context.Context, jobs []model.Job) error {
	want := make(map[string]model.Job, len(jobs))
	for _, j := range jobs {
		want[j.Name] = j
	}

	var errs []error
	for _, name := range s.Jobs() {
		cfg, ok := want[name]
		if j, found := s.Job(name); ok && found && j.Config() == cfg {
			delete(want, name)
			continue
		}
		if err := s.RemoveJob(name); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(want)) {
		if err := s.AddJob(ctx, want[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload applies a reloaded configuration, kit settings first and then the
// job set. It fits ReloadFunc.
func (s *Supervisor) Reload(ctx context.Context, cfg *model.Config) {
	if err := s.kit.Apply(cfg.Kit); err != nil {
		slog.ErrorContext(ctx, "applying kit settings", "error", err)
	}
	if err := s.Reconfigure(ctx, cfg.Service.Jobs); err != nil {
		slog.ErrorContext(ctx, "reconfiguring jobs", "error", err)
	}
}

// Jobs returns the names of the registered jobs, sorted.
func (s *Supervisor) Jobs() []string {
	s.jobsMx.Lock()
	defer s.jobsMx.Unlock()
	return slices.Sorted(maps.Keys(s.jobs))
}

// Job returns the registered job called name.
func (s *Supervisor) Job(name string) (*Job, bool) {
	s.jobsMx.Lock()
	defer s.jobsMx.Unlock()
	j, ok := s.jobs[name]
	return j, ok
}

// Start asks the event loop to start a job, AllJobs starts all of them. It
// returns immediately once Do has ended.
func (s *Supervisor) Start(name string) {
	select {
	case s.start <- name:
	case <-s.done:
	}
}

// Do runs the scheduler and the event loop until ctx is done. On the way out
// the scheduler is stopped, running job sessions are cancelled and waited
// for.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "jobs", s.Jobs())
	s.scheduler.Start()
	defer func() { _ = s.Close() }()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(context.WithoutCancel(ctx))
		case name := <-s.start:
			s.callStart(ctx, name)
		}
	}
}

// Close stops the scheduler without touching running sessions. Do calls it
// on the way out; call it directly when Do is never run.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.scheduler.Shutdown()
	})
	return s.closeErr
}

func (s *Supervisor) shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Close(); err != nil {
		slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		errs = append(errs, err)
	}

	s.jobsMx.Lock()
	jobs := slices.Collect(maps.Values(s.jobs))
	s.jobsMx.Unlock()
	for _, j := range jobs {
		if err := j.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping job %s: %w", j.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) callStart(ctx context.Context, name string) {
	if name == AllJobs {
		slog.DebugContext(ctx, "triggering all jobs")
		for _, n := range s.Jobs() {
			s.startJob(ctx, n)
		}
		return
	}
	s.startJob(ctx, name)
}

func (s *Supervisor) startJob(ctx context.Context, name string) {
	j, ok := s.Job(name)
	if !ok {
		slog.WarnContext(ctx, "cannot start job: not known", "job_name", name)
		return
	}
	sess, err := j.Start(ctx, s.kit)
	switch {
	case errors.Is(err, ErrJobRunning):
		slog.WarnContext(ctx, "job still running: skipping", "job_name", name, "error", err)
	case err != nil:
		slog.ErrorContext(ctx, "job start failed", "job_name", name, "error", err)
	default:
		slog.InfoContext(ctx, "job started", "job_name", name, "session_id", sess.ID())
	}
}
