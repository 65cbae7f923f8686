package reader

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

// Reader answers info, video and audio queries for one media file. Times
// passed to a Reader are in the media's own coordinate space.
type Reader interface {
	Path() media.Path
	// Info returns the same future on every call.
	Info() *Future[media.Info]
	ReadVideo(t otime.RationalTime, opts Options) *Future[media.VideoFrame]
	// ReadAudio returns PCM covering at least r, at the sample rate of r.
	ReadAudio(r otime.TimeRange, opts Options) *Future[media.AudioFrame]
	// CancelRequests resolves every pending request as canceled.
	CancelRequests()
	// Close stops the reader and blocks until its workers quit.
	Close() error
}

// Writer stores images at media times.
type Writer interface {
	WriteVideo(t otime.RationalTime, img *media.Image) error
	Close() error
}

// MemoryFile is one in-memory byte span standing in for a file.
type MemoryFile []byte

// Plugin opens readers for the extensions it claims.
type Plugin interface {
	Name() string
	Extensions() []string
	Read(path media.Path, memory []MemoryFile, opts Options, logger zerolog.Logger) (Reader, error)
}

// WritePlugin is implemented by plugins that can also write.
type WritePlugin interface {
	Plugin
	Write(path media.Path, info media.Info, opts Options, logger zerolog.Logger) (Writer, error)
}

// InfoStore persists probe results between runs.
type InfoStore interface {
	GetInfo(path string, size, modTime int64) (media.Info, bool, error)
	PutInfo(path string, size, modTime int64, info media.Info) error
}

// Option keys recognized by the built-in plugins.
const (
	OptionSequenceDefaultSpeed = "SequenceIO/DefaultSpeed"
	OptionSequenceThreadCount  = "SequenceIO/ThreadCount"
	OptionFFmpegYUVToRGB       = "FFmpeg/YUVToRGBConversion"
	OptionFFmpegThreadCount    = "FFmpeg/ThreadCount"
	OptionEXRChannelName       = "OpenEXR/ChannelName"
	OptionUSDRenderWidth       = "USD/renderWidth"
)

// Options is an open-ended string map. Unknown keys are ignored.
type Options map[string]string

// Merge returns a copy of o with the entries of over applied on top.
func (o Options) Merge(over Options) Options {
	out := make(Options, len(o)+len(over))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func (o Options) Float(key string, def float64) float64 {
	if v, ok := o[key]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Fingerprint renders the options as sorted "key:value" pairs joined by ';'.
func (o Options) Fingerprint() string {
	keys := lo.Keys(o)
	slices.Sort(keys)
	return strings.Join(lo.Map(keys, func(k string, _ int) string {
		return k + ":" + o[k]
	}), ";")
}

type ErrorKind int

const (
	OpenError ErrorKind = iota + 1
	DecodeError
	PluginMissing
)

func (k ErrorKind) String() string {
	switch k {
	case OpenError:
		return "open error"
	case DecodeError:
		return "decode error"
	case PluginMissing:
		return "plugin missing"
	default:
		return "unknown error"
	}
}

// Error is returned by plugins and readers.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrCanceled resolves requests abandoned by CancelRequests or Close.
var ErrCanceled = errors.New("request canceled")

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}
