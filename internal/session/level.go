package session

import (
	"fmt"
	"strings"
)

// Level is the engine log severity. Lower values are more severe; Stderr and
// Quiet are special values outside the severity scale.
type Level int

const (
	// LevelStderr marks raw engine output. It is never filtered.
	LevelStderr  Level = -16
	LevelQuiet   Level = -8
	LevelPanic   Level = 0
	LevelFatal   Level = 8
	LevelError   Level = 16
	LevelWarning Level = 24
	LevelInfo    Level = 32
	LevelVerbose Level = 40
	LevelDebug   Level = 48
	LevelTrace   Level = 56
)

var levelNames = map[Level]string{
	LevelStderr:  "stderr",
	LevelQuiet:   "quiet",
	LevelPanic:   "panic",
	LevelFatal:   "fatal",
	LevelError:   "error",
	LevelWarning: "warning",
	LevelInfo:    "info",
	LevelVerbose: "verbose",
	LevelDebug:   "debug",
	LevelTrace:   "trace",
}

// LevelFrom maps a raw engine value to a Level. Unknown values are Trace.
func LevelFrom(value int) Level {
	l := Level(value)
	if _, ok := levelNames[l]; ok {
		return l
	}
	return LevelTrace
}

// ParseLevel accepts the lower case level names used by ffmpeg's -loglevel.
func ParseLevel(name string) (Level, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "warn" {
		n = "warning"
	}
	for l, s := range levelNames {
		if s == n {
			return l, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "trace"
}

func (l Level) Value() int {
	return int(l)
}

// Passes reports whether a message of level l is delivered when active is
// the configured threshold.
func (l Level) Passes(active Level) bool {
	if l == LevelStderr {
		return true
	}
	if active == LevelQuiet {
		return false
	}
	return l <= active
}
