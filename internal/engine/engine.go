// Package engine defines the contract between the kit and the media engine
// that actually runs ffmpeg and ffprobe commands.
package engine

import (
	"context"
	"fmt"
	"strings"
)

type Program int

const (
	ProgramFFmpeg Program = iota
	ProgramFFprobe
)

func (p Program) String() string {
	switch p {
	case ProgramFFmpeg:
		return "ffmpeg"
	case ProgramFFprobe:
		return "ffprobe"
	default:
		return fmt.Sprintf("program(%d)", int(p))
	}
}

func ParseProgram(name string) (Program, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ffmpeg":
		return ProgramFFmpeg, nil
	case "ffprobe":
		return ProgramFFprobe, nil
	default:
		return 0, fmt.Errorf("unknown program %q", name)
	}
}

// Engine executes one command per session id. Execute blocks until the run
// ends and returns the engine's integer result; an error means the engine
// could not run the command at all.
type Engine interface {
	Execute(ctx context.Context, sessionID int64, program Program, args []string) (int, error)
	// Cancel stops the run of sessionID, or every run when sessionID is 0.
	// It must not block.
	Cancel(sessionID int64)
	// PendingMessages is the number of messages of sessionID produced by the
	// engine but not yet handed to the Sink.
	PendingMessages(sessionID int64) int
}

// Sink receives the messages of running sessions, possibly from several
// goroutines at once.
type Sink interface {
	OnLog(sessionID int64, level int, message []byte)
	OnStatistics(sessionID int64, frame int, fps, quality float32, size int64, timeMs, bitrate, speed float64)
}

// Connector is implemented by engines that deliver messages.
type Connector interface {
	Connect(Sink)
}
