package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/engine"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/kit"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/log"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/metrics"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/model"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/service"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/walk"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// returnCodeError carries a non zero engine return code to the exit status.
type returnCodeError int

func (e returnCodeError) Error() string {
	return fmt.Sprintf("engine returned %d", int(e))
}

var execCmd = &cobra.Command{
	Use:     "exec -- [ffmpeg arguments]",
	Aliases: []string{"ffmpeg"},
	Short:   "exec runs ffmpeg with the given arguments",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doSession(cmd, func(ctx context.Context, k *kit.Kit) *session.Session {
			return k.FFmpeg(ctx, args)
		})
	},
}

var probeCmd = &cobra.Command{
	Use:     "probe -- [ffprobe arguments]",
	Aliases: []string{"ffprobe"},
	Short:   "probe runs ffprobe with the given arguments",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doSession(cmd, func(ctx context.Context, k *kit.Kit) *session.Session {
			return k.FFprobe(ctx, args)
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info path...",
	Short: "info prints the media information of files as JSON",
	Long: "info prints the media information of files as JSON. Directories are searched for media files " +
		"and the files are probed concurrently; with more than one file each result is printed on its own line.",
	Args: cobra.MinimumNArgs(1),
	RunE: doInfo,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run reads the configuration and executes the scheduled jobs",
	RunE:  doRun,
}

// newKit builds a kit on the process engine from the loaded configuration.
func newKit(cfg model.Config, opts ...kit.Option) (*kit.Kit, error) {
	e := engine.NewProcess(engine.ProcessConfig{
		FFmpeg:    cfg.Engine.FFmpeg,
		FFprobe:   cfg.Engine.FFprobe,
		Env:       cfg.Engine.Env,
		WaitDelay: cfg.Engine.WaitDelayDuration(),
	})
	k, err := kit.New(e, opts...)
	if err != nil {
		return nil, err
	}
	if err := k.Apply(cfg.Kit); err != nil {
		k.Close()
		return nil, fmt.Errorf("applying kit config: %w", err)
	}
	return k, nil
}

func doSession(cmd *cobra.Command, fn func(context.Context, *kit.Kit) *session.Session) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("ffkit",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	))
	k, err := newKit(config, kit.WithPrinter(kit.NewWriterPrinter(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer k.Close()

	s := fn(ctx, k)
	slog.DebugContext(ctx, "session done", "session", s.String())
	if s.State() == session.StateFailed {
		return fmt.Errorf("session %d failed: %s", s.ID(), s.Failure())
	}
	if rc, _ := s.ReturnCode(); !rc.IsSuccess() {
		return returnCodeError(rc)
	}
	return nil
}

func doInfo(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("ffkit",
		slog.String("cmd", "info"),
		slog.Int("pid", os.Getpid()),
	))
	k, err := newKit(config, kit.WithPrinter(kit.NewWriterPrinter(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer k.Close()

	var (
		sessions []*session.Session
		errs     []error
	)
	for path, err := range walk.Files(ctx, nil, args...) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s, err := k.MediaInformationAsync(ctx, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sessions = append(sessions, s)
	}

	single := len(args) == 1 && len(sessions) == 1
	out := cmd.OutOrStdout()
	for _, s := range sessions {
		if err := s.Wait(ctx); err != nil {
			k.CancelAll()
			return err
		}
		path := s.Arguments()[len(s.Arguments())-1]
		info := s.MediaInformation()
		switch {
		case s.State() == session.StateFailed:
			errs = append(errs, fmt.Errorf("%s: %s", path, s.Failure()))
		case info == nil:
			rc, _ := s.ReturnCode()
			errs = append(errs, fmt.Errorf("%s: %w", path, returnCodeError(rc)))
		case single:
			fmt.Fprintln(out, info.JSON())
		default:
			fmt.Fprintln(out, gjson.Get(info.JSON(), "@ugly").Raw)
		}
	}
	if single && len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

func doRun(cmd *cobra.Command, args []string) error {
	attrs := slog.Group("ffkit",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx := log.ContextAttrs(cmd.Context(), attrs)

	opts := []kit.Option{kit.WithPrinter(kit.SlogPrinter{})}
	var m *metrics.Metrics
	if config.Service.MetricsAddr != "" {
		m = metrics.New()
		opts = append(opts, kit.WithObserver(m))
	}
	k, err := newKit(config, opts...)
	if err != nil {
		return err
	}
	defer k.Close()

	supervisor, err := service.NewSupervisor(ctx, k, config.Service)
	if err != nil {
		return err
	}
	watcher, err := service.NewWatcher(configPath, service.DefaultDebounce, supervisor.Reload)
	if err != nil {
		_ = supervisor.Close()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Do(ctx) })
	g.Go(func() error { return watcher.Do(ctx) })
	if m != nil {
		exporter := metrics.NewExporter(config.Service.MetricsAddr, m)
		g.Go(func() error { return exporter.Do(ctx) })
	}
	return g.Wait()
}
