package player

import (
	"math"
	"time"

	"tlplay/internal/otime"
)

// Tick advances the playhead by the time elapsed since the previous tick,
// keeps the prefetch window requested, collects finished reads and
// publishes observable changes. Notifications fire in the order current
// time, current video, cache info, mute timeout, playback.
func (p *Player) Tick() {
	now := p.clock.Now()
	if p.state != Stopped {
		p.advance(now.Sub(p.lastTick))
	}
	p.lastTick = now
	p.flushAudioCommand()

	frame := p.frame()
	frames, seconds, keepFrames, keepSeconds := p.window(frame)
	p.releasePending(frames, seconds)
	p.prefetchVideo(frames)
	p.prefetchAudio(seconds)
	p.drain()
	p.evict(frame, keepFrames, keepSeconds)
	p.publishChunks()
	info := p.snapshotCacheInfo()

	p.current.SetIfChanged(otime.FromFrame(frame, p.rate))
	// Parked on the out-point shows the last frame.
	if e, ok := p.videoCache[min(max(frame, p.in), p.out-1)]; ok && e.ready {
		p.video.SetIfChanged(e.data)
	}
	p.cacheInfo.SetIfChanged(info)
	p.muteTimeout.SetIfChanged(p.mixer.timedOut(now))
	p.playback.SetIfChanged(p.state)
}

// frame is the playhead quantized down to the frame that contains it.
func (p *Player) frame() int64 {
	return otime.New(p.position, p.rate).Frame(p.rate)
}

func (p *Player) advance(elapsed time.Duration) {
	dir := 1.0
	if p.state == Reverse {
		dir = -1
	}
	p.position += dir * elapsed.Seconds() * p.speed.Get() * p.rate
	p.syncAudioClock()
	p.applyBounds()
}

// syncAudioClock snaps the playhead to the audio thread's position when
// they drift apart by more than a frame.
func (p *Player) syncAudioClock() {
	if p.state != Forward || p.speed.Get() != 1 || p.pendingCmd != nil {
		return
	}
	if p.mixer.epoch.Load() != p.epoch || p.mixer.consumed.Load() == 0 {
		return
	}
	audio := float64(p.mixer.position.Load()) / float64(p.audio.SampleRate) * p.rate
	if math.Abs(audio-p.position) > 1 {
		p.position = audio
	}
}

// applyBounds resolves the playhead leaving the in/out range according to
// the loop mode. The out-point is exclusive.
func (p *Player) applyBounds() {
	in, out := float64(p.in), float64(p.out)
	length := out - in
	if length <= 0 {
		p.position = in
		p.state = Stopped
		return
	}

	hit := false
	for {
		switch {
		case p.state == Forward && p.position >= out:
			hit = true
			switch p.loop.Get() {
			case LoopRepeat:
				p.position = in + math.Mod(p.position-in, length)
			case LoopOnce:
				p.position = out
				p.state = Stopped
			case LoopPingPong:
				p.position = 2*out - p.position
				p.state = Reverse
				continue
			}
		case p.state == Reverse && p.position < in:
			hit = true
			switch p.loop.Get() {
			case LoopRepeat:
				if d := math.Mod(in-p.position, length); d == 0 {
					p.position = in
				} else {
					p.position = out - d
				}
			case LoopOnce:
				p.position = in
				p.state = Stopped
			case LoopPingPong:
				p.position = 2*in - p.position
				p.state = Forward
				continue
			}
		}
		break
	}

	if hit {
		p.logger.Debug().
			Stringer("playback", p.state).
			Stringer("loop", p.loop.Get()).
			Float64("position", p.position).
			Msg("range bound reached")
		p.resetAudio()
	}
}

// window returns the frames and audio seconds to keep requested, nearest
// first in the playback direction, and the read-behind sets that eviction
// must preserve. The window wraps at the bounds when looping.
func (p *Player) window(frame int64) (frames, seconds []int64, keepFrames, keepSeconds map[int64]bool) {
	keepFrames = make(map[int64]bool)
	keepSeconds = make(map[int64]bool)
	length := p.out - p.in
	if length <= 0 {
		return nil, nil, keepFrames, keepSeconds
	}
	cur := min(max(frame, p.in), p.out-1)
	ahead := int64(math.Ceil(p.cacheOpts.ReadAhead.Seconds() * p.rate))
	behind := int64(math.Ceil(p.cacheOpts.ReadBehind.Seconds() * p.rate))
	step := int64(1)
	if p.state == Reverse {
		step = -1
	}
	wrap := p.loop.Get() == LoopRepeat

	seen := make(map[int64]bool)
	for i := int64(0); i <= ahead && int64(len(frames)) < length; i++ {
		f := cur + i*step
		if f < p.in || f >= p.out {
			if !wrap {
				break
			}
			f = p.in + ((f-p.in)%length+length)%length
		}
		if seen[f] {
			break
		}
		seen[f] = true
		frames = append(frames, f)
	}
	keepFrames[cur] = true
	for i := int64(1); i <= behind; i++ {
		f := cur - i*step
		if f < p.in || f >= p.out {
			break
		}
		keepFrames[f] = true
		if !seen[f] {
			seen[f] = true
			frames = append(frames, f)
		}
	}

	if len(p.audioTracks) == 0 {
		return frames, nil, keepFrames, keepSeconds
	}
	secs := make(map[int64]bool)
	for _, f := range frames {
		s := p.second(f)
		if !secs[s] {
			secs[s] = true
			seconds = append(seconds, s)
		}
		if keepFrames[f] {
			keepSeconds[s] = true
		}
	}
	return frames, seconds, keepFrames, keepSeconds
}

// second is the second of global time containing frame f.
func (p *Player) second(f int64) int64 {
	return int64(math.Floor(float64(f)/p.rate + 1e-9))
}

// resetAudio queues the playhead state for the audio thread.
func (p *Player) resetAudio() {
	p.epoch++
	sr := float64(p.audio.SampleRate)
	p.pendingCmd = &mixCommand{
		epoch:   p.epoch,
		playing: p.state == Forward && p.speed.Get() == 1 && len(p.audioTracks) > 0,
		start:   int64(math.Round(p.position / p.rate * sr)),
		end:     int64(math.Round(float64(p.out) / p.rate * sr)),
	}
	p.flushAudioCommand()
}

// flushAudioCommand hands the pending command to the audio thread, retrying
// on the next tick when the ring is full.
func (p *Player) flushAudioCommand() {
	if p.pendingCmd != nil && p.mixer.commands.push(*p.pendingCmd) {
		p.pendingCmd = nil
	}
}
