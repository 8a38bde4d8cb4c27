package model

import (
	"errors"
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ProgramFFmpeg           = "ffmpeg"
	ProgramFFprobe          = "ffprobe"
	ProgramMediaInformation = "media_information"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx      *cue.Context
	definitions cue.Value
	schema      cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	definitions = compiled
	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Engine  Engine  `json:"engine" yaml:"engine"`
	Kit     Kit     `json:"kit" yaml:"kit"`
	Service Service `json:"service" yaml:"service"`
}

// Engine locates the binaries the process engine runs.
type Engine struct {
	FFmpeg    string   `json:"ffmpeg" yaml:"ffmpeg"`
	FFprobe   string   `json:"ffprobe" yaml:"ffprobe"`
	Env       []string `json:"env,omitempty" yaml:"env,omitempty"`
	WaitDelay int      `json:"wait_delay" yaml:"wait_delay"` // seconds
}

func (e Engine) WaitDelayDuration() time.Duration {
	return time.Duration(e.WaitDelay) * time.Second
}

// Kit holds the runtime settings of the session kit. All of them can be
// changed while sessions run.
type Kit struct {
	LogLevel              string `json:"log_level" yaml:"log_level"`
	LogRedirection        string `json:"log_redirection" yaml:"log_redirection"`
	SessionHistorySize    int    `json:"session_history_size" yaml:"session_history_size"`
	AsyncConcurrencyLimit int    `json:"async_concurrency_limit" yaml:"async_concurrency_limit"`
}

type Service struct {
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	Jobs        []Job  `json:"jobs,omitempty" yaml:"jobs,omitempty"`
}

// Job is a command submitted on a schedule.
type Job struct {
	Name     string   `json:"name" yaml:"name"`
	Program  string   `json:"program" yaml:"program"`   // ffmpeg | ffprobe | media_information
	Command  string   `json:"command" yaml:"command"`   // media_information: the input path
	Schedule Schedule `json:"schedule" yaml:"schedule"` // exactly one of cron and duration
}

type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"` // ISO8601, e.g. PT15M
}

// DefaultConfig is the configuration stored when none exists.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Engine: Engine{
			FFmpeg:    "ffmpeg",
			FFprobe:   "ffprobe",
			WaitDelay: 5,
		},
		Kit: Kit{
			LogLevel:              "info",
			LogRedirection:        "print_logs_when_no_callbacks_defined",
			SessionHistorySize:    10,
			AsyncConcurrencyLimit: 10,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}
	if err := out.validateJobs(); err != nil {
		return nil, err
	}

	return &out, nil
}

// validateJobs checks what the schema cannot express: unique names and
// parseable schedules.
func (c Config) validateJobs() error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Service.Jobs))
	for _, j := range c.Service.Jobs {
		if _, ok := seen[j.Name]; ok {
			errs = append(errs, fmt.Errorf("service.jobs: duplicate job name %q", j.Name))
		}
		seen[j.Name] = struct{}{}
		if _, err := j.Schedule.Interval(); err != nil {
			errs = append(errs, fmt.Errorf("service.jobs.%s.schedule: %w", j.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Interval returns the period of the schedule, for cron expressions the
// gap between the next two activations.
func (s Schedule) Interval() (time.Duration, error) {
	switch {
	case s.Cron != "":
		return ParseCron(s.Cron)
	case s.Duration != "":
		d, err := ParseISODuration(s.Duration)
		if err != nil {
			return 0, err
		}
		if d <= 0 {
			return 0, fmt.Errorf("%w: duration must be positive", ErrISOFormat)
		}
		return d, nil
	default:
		return 0, errors.New("both cron and duration are empty")
	}
}
