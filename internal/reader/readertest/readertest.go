// Package readertest provides a scriptable reader plugin for tests.
package readertest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
)

// DefaultInfo is five seconds of 24 fps video with stereo 48 kHz audio.
var DefaultInfo = media.Info{
	Video:     []media.ImageInfo{{Width: 4, Height: 4, PixelType: media.PixelRGBA8}},
	VideoTime: otime.RangeFromFrames(0, 120, otime.Rate24),
	Audio:     media.AudioInfo{Channels: 2, SampleRate: 48000},
	AudioTime: otime.RangeFromFrames(0, 5*48000, 48000),
}

// Plugin opens in-process readers that count their calls. Reads can be
// held at a gate to make timing deterministic.
type Plugin struct {
	exts []string
	info media.Info

	mu       sync.Mutex
	gate     chan struct{}
	failOpen map[string]bool
	failInfo map[string]bool
	failRead map[string]bool
	active   map[string]int
	readers  []*Reader

	opens      atomic.Int32
	closes     atomic.Int32
	cancels    atomic.Int32
	videoCalls atomic.Int32
	audioCalls atomic.Int32
	running    atomic.Int32
	maxRunning atomic.Int32
	maxPerKey  atomic.Int32
}

// New returns a plugin claiming exts, ".test" when none are given.
func New(exts ...string) *Plugin {
	if len(exts) == 0 {
		exts = []string{".test"}
	}
	return &Plugin{
		exts:     exts,
		info:     DefaultInfo,
		failOpen: make(map[string]bool),
		failInfo: make(map[string]bool),
		failRead: make(map[string]bool),
		active:   make(map[string]int),
	}
}

// SetInfo replaces the info returned by readers opened afterwards.
func (p *Plugin) SetInfo(info media.Info) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
}

// FailOpen makes opening path fail with an OpenError.
func (p *Plugin) FailOpen(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOpen[path] = true
}

// FailInfo lets path open but resolves its info with an OpenError, like a
// file that exists but is not a readable container. Reads then fail too.
func (p *Plugin) FailInfo(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failInfo[path] = true
}

// FailDecode makes every video and audio read of path fail with a
// DecodeError.
func (p *Plugin) FailDecode(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRead[path] = true
}

func (p *Plugin) decodeFails(path media.Path) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failRead[path.String()]
}

// Block holds every read started from now on until Unblock.
func (p *Plugin) Block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate == nil {
		p.gate = make(chan struct{})
	}
}

func (p *Plugin) Unblock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

func (p *Plugin) Opens() int      { return int(p.opens.Load()) }
func (p *Plugin) Closes() int     { return int(p.closes.Load()) }
func (p *Plugin) Cancels() int    { return int(p.cancels.Load()) }
func (p *Plugin) VideoCalls() int { return int(p.videoCalls.Load()) }
func (p *Plugin) AudioCalls() int { return int(p.audioCalls.Load()) }

// Running is the number of reads currently executing.
func (p *Plugin) Running() int { return int(p.running.Load()) }

// MaxRunning is the peak number of reads executing at once.
func (p *Plugin) MaxRunning() int { return int(p.maxRunning.Load()) }

// MaxPerKey is the peak number of reads executing at once for one
// path and time.
func (p *Plugin) MaxPerKey() int { return int(p.maxPerKey.Load()) }

func (p *Plugin) Name() string         { return "test" }
func (p *Plugin) Extensions() []string { return p.exts }

func (p *Plugin) Read(path media.Path, _ []reader.MemoryFile, _ reader.Options, _ zerolog.Logger) (reader.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOpen[path.String()] {
		return nil, &reader.Error{Kind: reader.OpenError, Path: path.String(), Err: fmt.Errorf("scripted open failure")}
	}
	p.opens.Add(1)
	r := &Reader{
		plugin: p,
		path:   path,
		meta:   p.info.Clone(),
		pool:   reader.NewPool(4),
	}
	r.info = reader.Resolved(r.meta, nil)
	if p.failInfo[path.String()] {
		err := &reader.Error{Kind: reader.OpenError, Path: path.String(), Err: fmt.Errorf("scripted info failure")}
		r.info = reader.Resolved(media.Info{}, err)
	}
	p.readers = append(p.readers, r)
	return r, nil
}

func (p *Plugin) currentGate() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate
}

func (p *Plugin) enter(key string) func() {
	n := p.running.Add(1)
	for {
		m := p.maxRunning.Load()
		if n <= m || p.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}
	p.mu.Lock()
	p.active[key]++
	if k := int32(p.active[key]); k > p.maxPerKey.Load() {
		p.maxPerKey.Store(k)
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		p.active[key]--
		p.mu.Unlock()
		p.running.Add(-1)
	}
}

func (p *Plugin) wait(ctx context.Context) error {
	gate := p.currentGate()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return reader.ErrCanceled
	}
}

// Reader is the reader opened by Plugin.
type Reader struct {
	plugin *Plugin
	path   media.Path
	meta   media.Info
	pool   *reader.Pool
	info   *reader.Future[media.Info]
}

func (r *Reader) Path() media.Path                 { return r.path }
func (r *Reader) Info() *reader.Future[media.Info] { return r.info }

// ReadVideo produces a fresh image whose first byte is the frame number.
func (r *Reader) ReadVideo(t otime.RationalTime, _ reader.Options) *reader.Future[media.VideoFrame] {
	return reader.Go(r.pool, reader.NewFuture[media.VideoFrame](), media.VideoFrame{Time: t},
		func(ctx context.Context) (media.VideoFrame, error) {
			r.plugin.videoCalls.Add(1)
			if _, err, _ := r.info.Result(); err != nil {
				return media.VideoFrame{Time: t}, err
			}
			if r.plugin.decodeFails(r.path) {
				return media.VideoFrame{Time: t}, &reader.Error{Kind: reader.DecodeError, Path: r.path.String(), Err: fmt.Errorf("scripted decode failure")}
			}
			defer r.plugin.enter(r.path.String() + "@" + t.String())()
			if err := r.plugin.wait(ctx); err != nil {
				return media.VideoFrame{Time: t}, err
			}
			img := media.NewImage(r.meta.Video[0])
			img.Data[0] = byte(t.Frame(r.meta.VideoTime.Rate()))
			img.Data[1] = 1
			return media.VideoFrame{Time: t, Image: img}, nil
		})
}

// ReadAudio produces a constant 0.5 signal.
func (r *Reader) ReadAudio(rng otime.TimeRange, _ reader.Options) *reader.Future[media.AudioFrame] {
	return reader.Go(r.pool, reader.NewFuture[media.AudioFrame](), media.AudioFrame{Time: rng.Start},
		func(ctx context.Context) (media.AudioFrame, error) {
			r.plugin.audioCalls.Add(1)
			if _, err, _ := r.info.Result(); err != nil {
				return media.AudioFrame{Time: rng.Start}, err
			}
			if r.plugin.decodeFails(r.path) {
				return media.AudioFrame{Time: rng.Start}, &reader.Error{Kind: reader.DecodeError, Path: r.path.String(), Err: fmt.Errorf("scripted decode failure")}
			}
			defer r.plugin.enter(r.path.String() + "@" + rng.String())()
			if err := r.plugin.wait(ctx); err != nil {
				return media.AudioFrame{Time: rng.Start}, err
			}
			info := media.AudioInfo{
				Channels:   r.meta.Audio.Channels,
				SampleRate: int(math.Round(rng.Rate())),
			}
			audio := media.NewAudio(info, int(math.Ceil(rng.Duration.Value)))
			for i := range audio.Samples {
				audio.Samples[i] = 0.5
			}
			return media.AudioFrame{Time: rng.Start, Audio: audio}, nil
		})
}

func (r *Reader) CancelRequests() {
	r.plugin.cancels.Add(1)
	r.pool.Cancel()
}

func (r *Reader) Close() error {
	r.plugin.closes.Add(1)
	r.pool.Close()
	return nil
}
