package kit

import (
	"context"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/mediainfo"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

// newSession creates and registers a session. It inherits the kit's current
// strategy unless opts set one.
func (k *Kit) newSession(kind session.Kind, args []string, opts []session.Option) *session.Session {
	all := make([]session.Option, 0, len(opts)+2)
	all = append(all, session.WithStrategy(k.LogRedirectionStrategy()))
	all = append(all, opts...)
	all = append(all, session.WithEngine(k.engine))
	s := session.New(kind, args, all...)
	k.registry.Add(s)
	return s
}

func (k *Kit) NewFFmpegSession(args []string, opts ...session.Option) *session.Session {
	return k.newSession(session.KindFFmpeg, args, opts)
}

func (k *Kit) NewFFprobeSession(args []string, opts ...session.Option) *session.Session {
	return k.newSession(session.KindFFprobe, args, opts)
}

// NewMediaInformationSession takes the full ffprobe arguments, see
// mediainfo.ProbeArguments.
func (k *Kit) NewMediaInformationSession(args []string, opts ...session.Option) *session.Session {
	return k.newSession(session.KindMediaInformation, args, opts)
}

// FFmpeg runs a transcoding command and returns its terminal session.
func (k *Kit) FFmpeg(ctx context.Context, args []string, opts ...session.Option) *session.Session {
	s := k.NewFFmpegSession(args, opts...)
	k.Execute(ctx, s)
	return s
}

func (k *Kit) FFprobe(ctx context.Context, args []string, opts ...session.Option) *session.Session {
	s := k.NewFFprobeSession(args, opts...)
	k.Execute(ctx, s)
	return s
}

// MediaInformation probes path. On success the session carries the parsed
// media information.
func (k *Kit) MediaInformation(ctx context.Context, path string, opts ...session.Option) *session.Session {
	s := k.NewMediaInformationSession(mediainfo.ProbeArguments(path), opts...)
	k.Execute(ctx, s)
	return s
}

// FFmpegAsync starts a transcoding command on the kit's pool. The returned
// session is usable even when err is not nil; it is then Failed.
func (k *Kit) FFmpegAsync(ctx context.Context, args []string, opts ...session.Option) (*session.Session, error) {
	return k.FFmpegAsyncOn(ctx, nil, args, opts...)
}

func (k *Kit) FFmpegAsyncOn(ctx context.Context, ex Executor, args []string, opts ...session.Option) (*session.Session, error) {
	s := k.NewFFmpegSession(args, opts...)
	return s, k.ExecuteAsyncOn(ctx, s, ex)
}

func (k *Kit) FFprobeAsync(ctx context.Context, args []string, opts ...session.Option) (*session.Session, error) {
	return k.FFprobeAsyncOn(ctx, nil, args, opts...)
}

func (k *Kit) FFprobeAsyncOn(ctx context.Context, ex Executor, args []string, opts ...session.Option) (*session.Session, error) {
	s := k.NewFFprobeSession(args, opts...)
	return s, k.ExecuteAsyncOn(ctx, s, ex)
}

func (k *Kit) MediaInformationAsync(ctx context.Context, path string, opts ...session.Option) (*session.Session, error) {
	return k.MediaInformationAsyncOn(ctx, nil, path, opts...)
}

func (k *Kit) MediaInformationAsyncOn(ctx context.Context, ex Executor, path string, opts ...session.Option) (*session.Session, error) {
	s := k.NewMediaInformationSession(mediainfo.ProbeArguments(path), opts...)
	return s, k.ExecuteAsyncOn(ctx, s, ex)
}

// Cancel stops the session with id; 0 stops every running session.
// Unknown ids are forwarded to the engine.
func (k *Kit) Cancel(id int64) {
	if id == 0 {
		k.CancelAll()
		return
	}
	if s, ok := k.lookup(id); ok {
		s.Cancel()
		return
	}
	k.engine.Cancel(id)
}

// CancelAll stops every running session.
func (k *Kit) CancelAll() {
	k.engine.Cancel(0)
}

func (k *Kit) Session(id int64) (*session.Session, bool) {
	return k.registry.Get(id)
}

func (k *Kit) LastSession() (*session.Session, bool) {
	return k.registry.Last()
}

func (k *Kit) LastCompletedSession() (*session.Session, bool) {
	return k.registry.LastCompleted()
}

// Sessions returns the history, oldest first.
func (k *Kit) Sessions() []*session.Session {
	return k.registry.All()
}

func (k *Kit) SessionsByState(st session.State) []*session.Session {
	return k.registry.ByState(st)
}

func (k *Kit) FFmpegSessions() []*session.Session {
	return k.registry.ByKind(session.KindFFmpeg)
}

func (k *Kit) FFprobeSessions() []*session.Session {
	return k.registry.ByKind(session.KindFFprobe)
}

func (k *Kit) MediaInformationSessions() []*session.Session {
	return k.registry.ByKind(session.KindMediaInformation)
}

// ClearSessions empties the history. Running sessions keep running.
func (k *Kit) ClearSessions() {
	k.registry.Clear()
}
