package session

// State of a session. Completed and Failed are terminal.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Kind tells which engine program a session runs and what it collects.
type Kind int

const (
	// KindFFmpeg is the transcoding variant, the only one with statistics.
	KindFFmpeg Kind = iota
	KindFFprobe
	KindMediaInformation
)

func (k Kind) String() string {
	switch k {
	case KindFFmpeg:
		return "ffmpeg"
	case KindFFprobe:
		return "ffprobe"
	case KindMediaInformation:
		return "media_information"
	default:
		return "unknown"
	}
}

// Log is a single engine message.
type Log struct {
	SessionID int64
	Level     Level
	Message   string
}

// Statistics is a progress sample of a transcoding run. Size is in bytes,
// Time in milliseconds and Bitrate in kbit/s.
type Statistics struct {
	SessionID        int64
	VideoFrameNumber int
	VideoFPS         float32
	VideoQuality     float32
	Size             int64
	Time             float64
	Bitrate          float64
	Speed            float64
}

type (
	LogCallback        func(Log)
	StatisticsCallback func(Statistics)
	CompleteCallback   func(*Session)
)

// Engine is the part of the engine adapter a session talks to directly.
type Engine interface {
	Cancel(sessionID int64)
	PendingMessages(sessionID int64) int
}

// Future is the handle of an asynchronous run.
type Future interface {
	Done() <-chan struct{}
}
