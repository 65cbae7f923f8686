package player

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

type Playback int

const (
	Stopped Playback = iota
	Forward
	Reverse
)

func (p Playback) String() string {
	switch p {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "stopped"
	}
}

func ParsePlayback(s string) (Playback, error) {
	switch strings.ToLower(s) {
	case "stopped", "stop":
		return Stopped, nil
	case "forward":
		return Forward, nil
	case "reverse":
		return Reverse, nil
	}
	return Stopped, fmt.Errorf("unknown playback %q", s)
}

type Loop int

const (
	LoopRepeat Loop = iota
	LoopOnce
	LoopPingPong
)

func (l Loop) String() string {
	switch l {
	case LoopOnce:
		return "once"
	case LoopPingPong:
		return "pingpong"
	default:
		return "loop"
	}
}

func ParseLoop(s string) (Loop, error) {
	switch strings.ToLower(s) {
	case "loop", "repeat":
		return LoopRepeat, nil
	case "once":
		return LoopOnce, nil
	case "pingpong", "ping-pong":
		return LoopPingPong, nil
	}
	return LoopRepeat, fmt.Errorf("unknown loop mode %q", s)
}

// CacheOptions bound the player's frame caches and prefetch window.
type CacheOptions struct {
	VideoBytes int64         `yaml:"video_cache_bytes"`
	AudioBytes int64         `yaml:"audio_cache_bytes"`
	ReadAhead  time.Duration `yaml:"read_ahead"`
	ReadBehind time.Duration `yaml:"read_behind"`
}

var DefaultCacheOptions = CacheOptions{
	VideoBytes: 1 << 30,
	AudioBytes: 256 << 20,
	ReadAhead:  2 * time.Second,
	ReadBehind: 500 * time.Millisecond,
}

func (o CacheOptions) Validate() error {
	if o.VideoBytes < 0 || o.AudioBytes < 0 || o.ReadAhead < 0 || o.ReadBehind < 0 {
		return fmt.Errorf("cache options must not be negative: %+v", o)
	}
	return nil
}

// CacheInfo reports what the player holds, in global timeline time.
type CacheInfo struct {
	VideoPercent float64           `json:"videoPercent"`
	VideoFrames  []otime.TimeRange `json:"videoFrames"`
	AudioFrames  []otime.TimeRange `json:"audioFrames"`
}

func (c CacheInfo) Equal(o CacheInfo) bool {
	return c.VideoPercent == o.VideoPercent &&
		slices.EqualFunc(c.VideoFrames, o.VideoFrames, otime.TimeRange.Equal) &&
		slices.EqualFunc(c.AudioFrames, o.AudioFrames, otime.TimeRange.Equal)
}

// VideoLayer is one video track's contribution to a frame. Inside a
// transition ImageB holds the other clip and TransitionValue the position
// through it; blending is left to the renderer. Gaps have no image.
type VideoLayer struct {
	Image           *media.Image
	ImageB          *media.Image
	Transition      string
	TransitionValue float64
}

// VideoData is the frame at Time, one layer per video track.
type VideoData struct {
	Time   otime.RationalTime
	Layers []VideoLayer
}

func (d VideoData) Equal(o VideoData) bool {
	return d.Time.Equal(o.Time) && d.Time.IsValid() == o.Time.IsValid() && slices.Equal(d.Layers, o.Layers)
}

// AudioOptions describe the PCM the player mixes for its sink.
type AudioOptions struct {
	SampleRate   int           `yaml:"sample_rate"`
	Channels     int           `yaml:"channels"`
	BufferFrames int           `yaml:"buffer_frames"`
	MuteTimeout  time.Duration `yaml:"mute_timeout"`
}

var DefaultAudioOptions = AudioOptions{
	SampleRate:   48000,
	Channels:     2,
	BufferFrames: 1024,
	MuteTimeout:  500 * time.Millisecond,
}

func (o AudioOptions) Info() media.AudioInfo {
	return media.AudioInfo{Channels: o.Channels, SampleRate: o.SampleRate}
}
