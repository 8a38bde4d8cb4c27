package kit

import (
	"context"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

// OnLog receives a log message from the engine. It may be called from any
// goroutine.
func (k *Kit) OnLog(sessionID int64, level int, message []byte) {
	lvl := session.LevelFrom(level)
	k.mx.RLock()
	active := k.level
	strategy := k.strategy
	global := k.logCb
	k.mx.RUnlock()

	if !lvl.Passes(active) {
		return
	}

	l := session.Log{SessionID: sessionID, Level: lvl, Message: string(message)}
	sessionDefined := false
	if s, ok := k.lookup(sessionID); ok {
		strategy = s.Strategy()
		s.AddLog(l)
		if cb := s.LogCallback(); cb != nil {
			sessionDefined = true
			k.safeCall("session log", sessionID, func() { cb(l) })
		}
	}

	globalDefined := global != nil
	if globalDefined {
		k.safeCall("global log", sessionID, func() { global(l) })
	}

	if strategy.ShouldPrint(sessionDefined, globalDefined) {
		k.printer.Print(l)
	}
}

// OnStatistics receives a progress sample from the engine. Samples are
// stored only on transcoding sessions; the global callback sees all of them.
func (k *Kit) OnStatistics(sessionID int64, frame int, fps, quality float32, size int64, timeMs, bitrate, speed float64) {
	st := session.Statistics{
		SessionID:        sessionID,
		VideoFrameNumber: frame,
		VideoFPS:         fps,
		VideoQuality:     quality,
		Size:             size,
		Time:             timeMs,
		Bitrate:          bitrate,
		Speed:            speed,
	}

	if s, ok := k.lookup(sessionID); ok && s.Kind() == session.KindFFmpeg {
		s.AddStatistics(st)
		if cb := s.StatisticsCallback(); cb != nil {
			k.safeCall("session statistics", sessionID, func() { cb(st) })
		}
	}

	if global := k.StatisticsCallback(); global != nil {
		k.safeCall("global statistics", sessionID, func() { global(st) })
	}
}

// safeCall runs a caller supplied callback. A panic is logged and dropped.
func (k *Kit) safeCall(name string, sessionID int64, fn func()) {
	k.safeCallContext(context.Background(), name, sessionID, fn)
}

func (k *Kit) safeCallContext(ctx context.Context, name string, sessionID int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			k.logger.ErrorContext(ctx, "callback panicked", "callback", name, "session_id", sessionID, "panic", r)
		}
	}()
	fn()
}
