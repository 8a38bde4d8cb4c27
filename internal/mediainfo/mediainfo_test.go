package mediainfo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/mediainfo"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, name string) *mediainfo.Information {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	info, err := mediainfo.Parse(string(b))
	require.NoError(t, err)
	return info
}

func TestMP3(t *testing.T) {
	t.Parallel()
	info := load(t, "mp3.json")

	require.Equal(t, "sample.mp3", info.Filename())
	require.Equal(t, "mp3", info.Format())
	require.Equal(t, "MP2/3 (MPEG audio layer 2/3)", info.LongFormat())
	require.Equal(t, "327.549388", info.Duration())
	require.Equal(t, "0.011995", info.StartTime())
	require.Equal(t, "320026", info.Bitrate())
	require.Equal(t, "13103064", info.Size())
	require.Equal(t, map[string]string{
		"album":  "Impact",
		"title":  "Impact Moderato",
		"artist": "Kevin MacLeod",
	}, info.Tags())
	require.Equal(t, int64(51), info.FormatProperty("probe_score").Int())

	require.Len(t, info.Streams(), 1)
	s := info.Streams()[0]
	require.Equal(t, int64(0), s.Index())
	require.Equal(t, "audio", s.Type())
	require.Equal(t, "mp3", s.Codec())
	require.Equal(t, "MP3 (MPEG audio layer 3)", s.CodecLong())
	require.Equal(t, "44100", s.SampleRate())
	require.Equal(t, "stereo", s.ChannelLayout())
	require.Equal(t, "fltp", s.SampleFormat())
	require.Equal(t, "320000", s.Bitrate())
	require.Equal(t, "1/44100", s.CodecTimeBase())
	require.Equal(t, int64(2), s.Property("channels").Int())
	require.Equal(t, "Lavf", s.Tags()["encoder"])
	require.Zero(t, s.Width())

	require.Len(t, info.Chapters(), 2)
	c := info.Chapters()[1]
	require.Equal(t, int64(1), c.ID())
	require.Equal(t, "1/22050", c.TimeBase())
	require.Equal(t, int64(11158238), c.Start())
	require.Equal(t, "506.042540", c.StartTime())
	require.Equal(t, int64(21433051), c.End())
	require.Equal(t, "972.020454", c.EndTime())
	require.Equal(t, "3 Attack By Stratagem - 4 Tactical Dispositions", c.Tags()["title"])
	require.Equal(t, "mp3", info.Property("streams.0.codec_name").String())
	require.Contains(t, info.JSON(), `"filename": "sample.mp3"`)
}

func TestJPG(t *testing.T) {
	t.Parallel()
	info := load(t, "jpg.json")
	require.Equal(t, "image2", info.Format())
	require.Nil(t, info.Tags())
	require.Empty(t, info.Chapters())

	s := info.Streams()[0]
	require.Equal(t, "video", s.Type())
	require.Equal(t, "mjpeg", s.Codec())
	require.Equal(t, "yuvj444p", s.PixelFormat())
	require.Equal(t, int64(1496), s.Width())
	require.Equal(t, int64(1729), s.Height())
	require.Equal(t, "1:1", s.SampleAspectRatio())
	require.Equal(t, "1496:1729", s.DisplayAspectRatio())
	require.Empty(t, s.Bitrate())
	require.Equal(t, "0/0", s.AverageFrameRate())
	require.Equal(t, "25/1", s.RealFrameRate())
	require.Equal(t, "1/25", s.TimeBase())
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, given := range []string{"", "   ", "not json", `{"streams": [`, `[1,2]`, "Invalid data found when processing input\n"} {
		_, err := mediainfo.Parse(given)
		require.ErrorIs(t, err, mediainfo.ErrInvalidJSON, given)
	}
}

func TestProbeArguments(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{
		"-v", "error", "-hide_banner", "-print_format", "json",
		"-show_format", "-show_streams", "-show_chapters", "-i", "in.mp4",
	}, mediainfo.ProbeArguments("in.mp4"))
}
