// Package player turns a timeline into timed video frames and mixed audio.
//
// A Player is driven by Tick from a single goroutine, which owns its state,
// caches and observable updates. FillBuffer may be called concurrently from
// an audio thread. Driver provides a tick goroutine and a command queue for
// callers that live elsewhere.
package player

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tlplay/internal/iomanager"
	"tlplay/internal/observer"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
	"tlplay/internal/timeline"
)

// Options configure a player.
type Options struct {
	Cache  CacheOptions
	Audio  AudioOptions
	IO     iomanager.Options
	Loop   Loop
	Speed  float64
	Volume float64
	// Clock defaults to SystemClock.
	Clock Clock
	// WarnOnce reports whether a missing-media warning for path should be
	// logged. Defaults to once per path per player.
	WarnOnce func(path string) bool
}

var DefaultOptions = Options{
	Cache:  DefaultCacheOptions,
	Audio:  DefaultAudioOptions,
	IO:     iomanager.DefaultOptions,
	Loop:   LoopRepeat,
	Speed:  1,
	Volume: 1,
}

var ErrNoPlugins = errors.New("no reader plugins registered")

type Player struct {
	id       uuid.UUID
	timeline *timeline.Timeline
	io       *iomanager.Manager
	clock    Clock
	mixer    *mixer
	audio    AudioOptions
	logger   zerolog.Logger

	rate        float64
	videoTracks []int
	audioTracks []int

	playback    *observer.Value[Playback]
	loop        *observer.Value[Loop]
	current     *observer.Value[otime.RationalTime]
	inOut       *observer.Value[otime.TimeRange]
	speed       *observer.Value[float64]
	volume      *observer.Value[float64]
	mute        *observer.Value[bool]
	muteTimeout *observer.Value[bool]
	cacheInfo   *observer.Value[CacheInfo]
	video       *observer.Value[VideoData]
	tracks      *observer.List[*timeline.Track]

	// Tick goroutine state. position is in frames of global time at rate.
	state    Playback
	position float64
	in, out  int64
	lastTick time.Time

	cacheOpts   CacheOptions
	videoCache  map[int64]*videoEntry
	audioCache  map[int64]*audioEntry
	videoBytes  int64
	audioBytes  int64
	frameBytes  int64
	chunksDirty bool

	epoch      uint64
	pendingCmd *mixCommand
}

// New creates a stopped player parked on the first frame of tl.
func New(tl *timeline.Timeline, registry *reader.Registry, opts Options, logger zerolog.Logger) (*Player, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, ErrNoPlugins
	}
	if tl == nil {
		return nil, errors.New("player needs a timeline")
	}
	if err := opts.Cache.Validate(); err != nil {
		return nil, err
	}
	if opts.Audio.SampleRate <= 0 {
		opts.Audio.SampleRate = DefaultAudioOptions.SampleRate
	}
	if opts.Audio.Channels <= 0 {
		opts.Audio.Channels = DefaultAudioOptions.Channels
	}
	if opts.Audio.BufferFrames <= 0 {
		opts.Audio.BufferFrames = DefaultAudioOptions.BufferFrames
	}
	if opts.Audio.MuteTimeout <= 0 {
		opts.Audio.MuteTimeout = DefaultAudioOptions.MuteTimeout
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	opts.Volume = math.Min(math.Max(opts.Volume, 0), 1)
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.WarnOnce == nil {
		opts.WarnOnce = warnOnce()
	}

	id := uuid.New()
	logger = logger.With().Str("component", "player").Str("player", id.String()).Logger()
	io, err := iomanager.New(registry, opts.IO, opts.WarnOnce, logger)
	if err != nil {
		return nil, fmt.Errorf("create io manager: %w", err)
	}

	rate := tl.Rate()
	global := tl.GlobalRange()
	p := &Player{
		id:          id,
		timeline:    tl,
		io:          io,
		clock:       opts.Clock,
		mixer:       newMixer(opts.Audio.Info(), opts.Audio.MuteTimeout, opts.Clock),
		audio:       opts.Audio,
		logger:      logger,
		rate:        rate,
		videoTracks: tl.TrackIndexes(timeline.VideoTrack),
		audioTracks: tl.TrackIndexes(timeline.AudioTrack),
		in:          global.Start.Frame(rate),
		out:         global.End().Frame(rate),
		cacheOpts:   opts.Cache,
		videoCache:  make(map[int64]*videoEntry),
		audioCache:  make(map[int64]*audioEntry),
		lastTick:    opts.Clock.Now(),
	}
	p.position = float64(p.in)
	p.mixer.setVolume(opts.Volume)

	p.playback = observer.NewValue(Stopped)
	p.loop = observer.NewValue(opts.Loop)
	p.current = observer.NewValue(otime.FromFrame(p.in, rate))
	p.inOut = observer.NewValue(p.inOutRange())
	p.speed = observer.NewValue(opts.Speed)
	p.volume = observer.NewValue(opts.Volume)
	p.mute = observer.NewValue(false)
	p.muteTimeout = observer.NewValue(false)
	p.cacheInfo = observer.NewValueFunc(CacheInfo{}, CacheInfo.Equal)
	p.video = observer.NewValueFunc(VideoData{Time: otime.Invalid}, VideoData.Equal)
	p.tracks = observer.NewList(tl.Tracks)

	p.logger.Info().
		Str("timeline", tl.Path).
		Float64("rate", rate).
		Int64("frames", p.out-p.in).
		Int("video_tracks", len(p.videoTracks)).
		Int("audio_tracks", len(p.audioTracks)).
		Str("video_cache", humanize.IBytes(uint64(opts.Cache.VideoBytes))).
		Str("audio_cache", humanize.IBytes(uint64(opts.Cache.AudioBytes))).
		Msg("player created")
	return p, nil
}

func warnOnce() func(string) bool {
	var seen sync.Map
	return func(path string) bool {
		_, loaded := seen.LoadOrStore(path, struct{}{})
		return !loaded
	}
}

func (p *Player) ID() uuid.UUID                { return p.id }
func (p *Player) Timeline() *timeline.Timeline { return p.timeline }
func (p *Player) Rate() float64                { return p.rate }
func (p *Player) AudioOptions() AudioOptions   { return p.audio }

func (p *Player) Playback() observer.Observable[Playback]             { return p.playback }
func (p *Player) Loop() observer.Observable[Loop]                     { return p.loop }
func (p *Player) CurrentTime() observer.Observable[otime.RationalTime] { return p.current }
func (p *Player) InOutRange() observer.Observable[otime.TimeRange]    { return p.inOut }
func (p *Player) Speed() observer.Observable[float64]                 { return p.speed }
func (p *Player) Volume() observer.Observable[float64]                { return p.volume }
func (p *Player) Mute() observer.Observable[bool]                     { return p.mute }
func (p *Player) CacheInfo() observer.Observable[CacheInfo]           { return p.cacheInfo }
func (p *Player) CurrentVideo() observer.Observable[VideoData]        { return p.video }
func (p *Player) Tracks() observer.Observable[[]*timeline.Track]      { return p.tracks }

// MuteTimeout reports, as of the last tick, whether audio is held silent
// after an underrun.
func (p *Player) MuteTimeout() observer.Observable[bool] { return p.muteTimeout }

// IsMuted reports whether the sink hears silence because of the user mute
// or an active mute timeout.
func (p *Player) IsMuted() bool {
	return p.mixer.muted.Load() || p.mixer.timedOut(p.clock.Now())
}

// Underruns counts audio callbacks that found their PCM missing.
func (p *Player) Underruns() int64 {
	return p.mixer.underruns.Load()
}

func (p *Player) inOutRange() otime.TimeRange {
	return otime.RangeFromFrames(p.in, p.out-p.in, p.rate)
}

// SetPlayback changes direction. Starting forward on the out-point rewinds
// to the in-point and starting in reverse on the in-point rewinds to the
// out-point; with ping-pong the direction flips instead.
func (p *Player) SetPlayback(pb Playback) {
	if pb == p.state {
		return
	}
	now := p.clock.Now()
	if p.state != Stopped {
		p.advance(now.Sub(p.lastTick))
	}
	p.lastTick = now

	pingPong := p.loop.Get() == LoopPingPong
	switch {
	case pb == Forward && p.position >= float64(p.out):
		if pingPong {
			pb = Reverse
		} else {
			p.position = float64(p.in)
		}
	case pb == Reverse && p.position <= float64(p.in):
		if pingPong {
			pb = Forward
		} else {
			p.position = float64(p.out)
		}
	}

	p.state = pb
	p.playback.SetIfChanged(pb)
	p.resetAudio()
	p.logger.Debug().Stringer("playback", pb).Int64("frame", p.frame()).Msg("playback changed")
}

func (p *Player) SetLoop(l Loop) {
	if p.loop.SetIfChanged(l) {
		p.logger.Debug().Stringer("loop", l).Msg("loop mode changed")
	}
}

// Seek moves the playhead to t, clamped to the in/out range, without
// changing the playback state. Pending reads far from t are abandoned.
// Observers see the new time on the next tick.
func (p *Player) Seek(t otime.RationalTime) {
	f := otime.Quantize(t, p.rate).Value
	p.position = math.Min(math.Max(f, float64(p.in)), float64(p.out))
	p.lastTick = p.clock.Now()

	frames, seconds, _, _ := p.window(p.frame())
	p.releasePending(frames, seconds)
	p.resetAudio()
}

// Step stops playback and moves n frames, staying inside the in/out range.
func (p *Player) Step(n int64) {
	p.state = Stopped
	p.playback.SetIfChanged(Stopped)
	f := min(max(p.frame()+n, p.in), p.out-1)
	p.position = float64(f)
	p.resetAudio()
}

// SetInOutRange bounds playback and seeking to r, clamped to the timeline.
func (p *Player) SetInOutRange(r otime.TimeRange) {
	global := p.timeline.GlobalRange()
	lo, hi := global.Start.Frame(p.rate), global.End().Frame(p.rate)
	in := min(max(otime.Quantize(r.Start, p.rate).Frame(p.rate), lo), hi)
	out := min(max(otime.Quantize(r.End(), p.rate).Frame(p.rate), in), hi)
	if out == in && in < hi {
		out = in + 1
	}
	p.in, p.out = in, out
	p.position = math.Min(math.Max(p.position, float64(in)), float64(out))
	p.inOut.SetIfChanged(p.inOutRange())
	p.resetAudio()
}

func (p *Player) ResetInOutRange() {
	p.SetInOutRange(p.timeline.GlobalRange())
}

func (p *Player) SetSpeed(speed float64) {
	if speed <= 0 || speed == p.speed.Get() {
		return
	}
	now := p.clock.Now()
	if p.state != Stopped {
		p.advance(now.Sub(p.lastTick))
	}
	p.lastTick = now
	p.speed.SetIfChanged(speed)
	p.resetAudio()
}

// SetVolume sets the output gain in [0, 1].
func (p *Player) SetVolume(v float64) {
	v = math.Min(math.Max(v, 0), 1)
	p.mixer.setVolume(v)
	p.volume.SetIfChanged(v)
}

func (p *Player) SetMute(mute bool) {
	p.mixer.muted.Store(mute)
	p.mute.SetIfChanged(mute)
}

func (p *Player) CacheOptions() CacheOptions {
	return p.cacheOpts
}

// SetCacheOptions applies new budgets, evicting immediately.
func (p *Player) SetCacheOptions(opts CacheOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	p.cacheOpts = opts
	frame := p.frame()
	_, _, keepFrames, keepSeconds := p.window(frame)
	p.evict(frame, keepFrames, keepSeconds)
	p.publishChunks()
	p.logger.Debug().
		Str("video", humanize.IBytes(uint64(opts.VideoBytes))).
		Str("audio", humanize.IBytes(uint64(opts.AudioBytes))).
		Dur("read_ahead", opts.ReadAhead).
		Dur("read_behind", opts.ReadBehind).
		Msg("cache options changed")
	return nil
}

func (p *Player) SetIOOptions(opts iomanager.Options) {
	p.io.SetOptions(opts)
}

func (p *Player) IOStats() iomanager.Stats {
	return p.io.Stats()
}

// CancelRequests abandons every pending read. Nothing canceled is delivered
// afterwards; frames in the window are requested again on the next tick.
func (p *Player) CancelRequests() {
	p.releasePending(nil, nil)
	p.io.CancelRequests()
}

// FillBuffer writes interleaved PCM in the player's audio format. It is the
// only method safe to call from the audio thread and never blocks.
func (p *Player) FillBuffer(out []float32) {
	p.mixer.fill(out)
}

// Close abandons outstanding reads and closes the readers.
func (p *Player) Close() {
	p.state = Stopped
	p.resetAudio()
	for f, e := range p.videoCache {
		p.dropVideo(f, e)
	}
	for s, e := range p.audioCache {
		p.dropAudio(s, e)
	}
	p.mixer.publish(chunkSet{})
	p.io.Close()
	p.logger.Debug().Msg("player closed")
}
