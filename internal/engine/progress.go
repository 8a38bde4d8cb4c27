package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
)

var (
	frameRegex   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRegex     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	qRegex       = regexp.MustCompile(`\bq=\s*(-?[\d.]+)`)
	sizeRegex    = regexp.MustCompile(`size=\s*(\d+)\s*(B|kB|KiB|mB|MiB)?`)
	timeRegex    = regexp.MustCompile(`time=\s*(-?)(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	bitrateRegex = regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`)
	speedRegex   = regexp.MustCompile(`speed=\s*([\d.]+)x`)

	levelRegex = regexp.MustCompile(`^((?:\[[^\]]+ @ [^\]]+\] )?)\[(panic|fatal|error|warning|info|verbose|debug|trace)\] `)
)

// Progress is one parsed ffmpeg progress line. Fields ffmpeg printed as
// N/A stay zero.
type Progress struct {
	Frame   int
	FPS     float32
	Quality float32
	Size    int64
	TimeMs  float64
	Bitrate float64
	Speed   float64
}

// ParseProgress recognizes lines such as
//
//	frame=  100 fps= 25 q=28.0 size=    1024kB time=00:00:04.00 bitrate=2097.2kbits/s speed=1.00x
func ParseProgress(line string) (Progress, bool) {
	if !strings.Contains(line, "time=") || !(strings.Contains(line, "size=") || strings.Contains(line, "frame=")) {
		return Progress{}, false
	}
	var p Progress
	if m := frameRegex.FindStringSubmatch(line); m != nil {
		p.Frame, _ = strconv.Atoi(m[1])
	}
	if m := fpsRegex.FindStringSubmatch(line); m != nil {
		p.FPS = parseFloat32(m[1])
	}
	if m := qRegex.FindStringSubmatch(line); m != nil {
		p.Quality = parseFloat32(m[1])
	}
	if m := sizeRegex.FindStringSubmatch(line); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		switch m[2] {
		case "kB", "KiB":
			n *= 1024
		case "mB", "MiB":
			n *= 1024 * 1024
		}
		p.Size = n
	}
	if m := timeRegex.FindStringSubmatch(line); m != nil {
		h, _ := strconv.ParseFloat(m[2], 64)
		mi, _ := strconv.ParseFloat(m[3], 64)
		s, _ := strconv.ParseFloat(m[4], 64)
		p.TimeMs = (h*3600 + mi*60 + s) * 1000
		if m[1] == "-" {
			p.TimeMs = -p.TimeMs
		}
	}
	if m := bitrateRegex.FindStringSubmatch(line); m != nil {
		p.Bitrate, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := speedRegex.FindStringSubmatch(line); m != nil {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
	}
	return p, true
}

func parseFloat32(s string) float32 {
	f, _ := strconv.ParseFloat(s, 32)
	return float32(f)
}

// SplitLevel strips the "[level] " marker ffmpeg prints with
// -loglevel level+... and returns the matching level. Lines without the
// marker are Info.
func SplitLevel(line string) (session.Level, string) {
	m := levelRegex.FindStringSubmatchIndex(line)
	if m == nil {
		return session.LevelInfo, line
	}
	level, err := session.ParseLevel(line[m[4]:m[5]])
	if err != nil {
		return session.LevelInfo, line
	}
	return level, line[m[2]:m[3]] + line[m[1]:]
}
