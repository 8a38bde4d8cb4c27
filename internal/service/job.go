package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/kit"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

var (
	ErrJobRunning     = errors.New("job in progress")
	ErrUnknownProgram = errors.New("unknown program")
	ErrJobExists      = errors.New("job already added")
	ErrJobNotFound    = errors.New("job not found")
)

const stopRetry = 100 * time.Millisecond

// Job submits one configured command each time it is started. At most one
// session of a job runs at a time.
type Job struct {
	cfg  model.Job
	args []string
	id   uuid.UUID // gocron job id

	mx   sync.Mutex
	last *session.Session
	runs int
}

func NewJob(cfg model.Job) (*Job, error) {
	j := &Job{cfg: cfg}
	switch cfg.Program {
	case "", model.ProgramFFmpeg, model.ProgramFFprobe:
		j.args = session.ParseArguments(cfg.Command)
	case model.ProgramMediaInformation:
		j.args = []string{cfg.Command}
	default:
		return nil, fmt.Errorf("%w %q in job %s", ErrUnknownProgram, cfg.Program, cfg.Name)
	}
	return j, nil
}

func (j *Job) Name() string {
	return j.cfg.Name
}

func (j *Job) Config() model.Job {
	return j.cfg
}

func (j *Job) Arguments() []string {
	return slices.Clone(j.args)
}

// Last returns the session of the latest run, nil before the first one.
func (j *Job) Last() *session.Session {
	j.mx.Lock()
	defer j.mx.Unlock()
	return j.last
}

// Runs counts the sessions submitted by the job.
func (j *Job) Runs() int {
	j.mx.Lock()
	defer j.mx.Unlock()
	return j.runs
}

// Start submits a new session unless the previous one is still going.
func (j *Job) Start(ctx context.Context, k *kit.Kit) (*session.Session, error) {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.last != nil && !j.last.State().Terminal() {
		return nil, fmt.Errorf("%w: session %d", ErrJobRunning, j.last.ID())
	}

	var (
		s   *session.Session
		err error
	)
	switch j.cfg.Program {
	case model.ProgramMediaInformation:
		s, err = k.MediaInformationAsync(ctx, j.args[0])
	case model.ProgramFFprobe:
		s, err = k.FFprobeAsync(ctx, j.args)
	default:
		s, err = k.FFmpegAsync(ctx, j.args)
	}
	j.last = s
	j.runs++
	return s, err
}

// stop cancels the latest session and waits until it is terminal or ctx
// ends. A session still queued is cancelled once it starts running.
func (j *Job) stop(ctx context.Context) error {
	s := j.Last()
	if s == nil {
		return nil
	}
	for {
		s.Cancel()
		select {
		case <-s.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopRetry):
		}
	}
}
