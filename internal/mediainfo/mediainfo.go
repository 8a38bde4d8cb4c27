// Package mediainfo exposes the JSON ffprobe prints with
// -print_format json -show_format -show_streams -show_chapters.
package mediainfo

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrInvalidJSON = errors.New("invalid media information json")

// ProbeArguments returns the ffprobe arguments that produce the JSON Parse
// understands.
func ProbeArguments(path string) []string {
	return []string{
		"-v", "error",
		"-hide_banner",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_chapters",
		"-i", path,
	}
}

// Information is the parsed document. Missing keys read as zero values;
// every key stays reachable through Property.
type Information struct {
	root     gjson.Result
	format   gjson.Result
	streams  []Stream
	chapters []Chapter
}

func Parse(text string) (*Information, error) {
	text = strings.TrimSpace(text)
	if text == "" || !gjson.Valid(text) {
		return nil, ErrInvalidJSON
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return nil, ErrInvalidJSON
	}
	info := &Information{
		root:   root,
		format: root.Get("format"),
	}
	for _, s := range root.Get("streams").Array() {
		info.streams = append(info.streams, Stream{props: s})
	}
	for _, c := range root.Get("chapters").Array() {
		info.chapters = append(info.chapters, Chapter{props: c})
	}
	return info, nil
}

func (i *Information) Filename() string   { return i.format.Get("filename").String() }
func (i *Information) Format() string     { return i.format.Get("format_name").String() }
func (i *Information) LongFormat() string { return i.format.Get("format_long_name").String() }
func (i *Information) StartTime() string  { return i.format.Get("start_time").String() }
func (i *Information) Duration() string   { return i.format.Get("duration").String() }
func (i *Information) Size() string       { return i.format.Get("size").String() }
func (i *Information) Bitrate() string    { return i.format.Get("bit_rate").String() }

func (i *Information) Tags() map[string]string { return tags(i.format) }

func (i *Information) Streams() []Stream { return i.streams }

func (i *Information) Chapters() []Chapter { return i.chapters }

// FormatProperty looks up a gjson path inside the format object.
func (i *Information) FormatProperty(path string) gjson.Result {
	return i.format.Get(path)
}

// Property looks up a gjson path in the whole document.
func (i *Information) Property(path string) gjson.Result {
	return i.root.Get(path)
}

// JSON returns the document as ffprobe printed it.
func (i *Information) JSON() string {
	return i.root.Raw
}

type Stream struct {
	props gjson.Result
}

func (s Stream) Index() int64               { return s.props.Get("index").Int() }
func (s Stream) Type() string               { return s.props.Get("codec_type").String() }
func (s Stream) Codec() string              { return s.props.Get("codec_name").String() }
func (s Stream) CodecLong() string          { return s.props.Get("codec_long_name").String() }
func (s Stream) PixelFormat() string        { return s.props.Get("pix_fmt").String() }
func (s Stream) Width() int64               { return s.props.Get("width").Int() }
func (s Stream) Height() int64              { return s.props.Get("height").Int() }
func (s Stream) Bitrate() string            { return s.props.Get("bit_rate").String() }
func (s Stream) SampleRate() string         { return s.props.Get("sample_rate").String() }
func (s Stream) SampleFormat() string       { return s.props.Get("sample_fmt").String() }
func (s Stream) ChannelLayout() string      { return s.props.Get("channel_layout").String() }
func (s Stream) SampleAspectRatio() string  { return s.props.Get("sample_aspect_ratio").String() }
func (s Stream) DisplayAspectRatio() string { return s.props.Get("display_aspect_ratio").String() }
func (s Stream) AverageFrameRate() string   { return s.props.Get("avg_frame_rate").String() }
func (s Stream) RealFrameRate() string      { return s.props.Get("r_frame_rate").String() }
func (s Stream) TimeBase() string           { return s.props.Get("time_base").String() }
func (s Stream) CodecTimeBase() string      { return s.props.Get("codec_time_base").String() }
func (s Stream) Tags() map[string]string    { return tags(s.props) }

func (s Stream) Property(path string) gjson.Result {
	return s.props.Get(path)
}

type Chapter struct {
	props gjson.Result
}

func (c Chapter) ID() int64                         { return c.props.Get("id").Int() }
func (c Chapter) TimeBase() string                  { return c.props.Get("time_base").String() }
func (c Chapter) Start() int64                      { return c.props.Get("start").Int() }
func (c Chapter) StartTime() string                 { return c.props.Get("start_time").String() }
func (c Chapter) End() int64                        { return c.props.Get("end").Int() }
func (c Chapter) EndTime() string                   { return c.props.Get("end_time").String() }
func (c Chapter) Tags() map[string]string           { return tags(c.props) }
func (c Chapter) Property(path string) gjson.Result { return c.props.Get(path) }

func tags(obj gjson.Result) map[string]string {
	t := obj.Get("tags")
	if !t.IsObject() {
		return nil
	}
	ret := make(map[string]string)
	t.ForEach(func(k, v gjson.Result) bool {
		ret[k.String()] = v.String()
		return true
	})
	return ret
}
