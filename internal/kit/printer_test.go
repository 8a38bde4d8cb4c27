package kit_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/kit"
	"github.com/arthenica/ffmpeg-kit-sub000/internal/session"
	"github.com/stretchr/testify/require"
)

func TestSlogPrinter(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    session.Level
		then     string
	}{
		{"stderr", session.LevelStderr, "INFO"},
		{"fatal", session.LevelFatal, "ERROR"},
		{"error", session.LevelError, "ERROR"},
		{"warning", session.LevelWarning, "WARN"},
		{"info", session.LevelInfo, "INFO"},
		{"verbose", session.LevelVerbose, "DEBUG"},
		{"trace", session.LevelTrace, "DEBUG"},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			kit.SlogPrinter{Logger: logger}.Print(session.Log{SessionID: 7, Level: tc.given, Message: "hello\r\n"})

			var rec map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			require.Equal(t, tc.then, rec["level"])
			require.Equal(t, "hello", rec["msg"])
			require.EqualValues(t, 7, rec["session_id"])
			require.Equal(t, tc.given.String(), rec["engine_level"])
		})
	}
}

func TestWriterPrinter(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	p := kit.NewWriterPrinter(&sb)
	p.Print(session.Log{Message: "a\n"})
	p.Print(session.Log{Message: "frame=  1\r"})
	require.Equal(t, "a\nframe=  1\r", sb.String())
}
