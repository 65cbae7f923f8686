package player

import (
	"math"
	"sync/atomic"
	"time"

	"tlplay/internal/media"
)

// mixCommand repositions the audio thread. Positions are sample frames of
// global time at the output rate.
type mixCommand struct {
	epoch   uint64
	playing bool
	start   int64
	end     int64
}

// chunkSet maps a second of global time to its mixed PCM. A nil buffer is
// silence that is known to be silence.
type chunkSet map[int64]*media.Audio

// mixer is the realtime half of the player. FillBuffer runs on the audio
// thread; everything it touches is either owned by that thread or atomic.
type mixer struct {
	format      media.AudioInfo
	muteTimeout time.Duration
	clock       Clock

	commands *ring[mixCommand]
	chunks   atomic.Pointer[chunkSet]
	volume   atomic.Uint64
	muted    atomic.Bool

	// underrunAt is the clock reading of the last underrun in nanoseconds.
	underrunAt atomic.Int64
	underruns  atomic.Int64

	// Audio thread state.
	state mixCommand
	pos   int64

	// Published by the audio thread.
	position atomic.Int64
	epoch    atomic.Uint64
	consumed atomic.Int64
}

const commandRingSize = 16

func newMixer(format media.AudioInfo, muteTimeout time.Duration, clock Clock) *mixer {
	m := &mixer{
		format:      format,
		muteTimeout: muteTimeout,
		clock:       clock,
		commands:    newRing[mixCommand](commandRingSize),
	}
	empty := chunkSet{}
	m.chunks.Store(&empty)
	m.setVolume(1)
	m.underrunAt.Store(math.MinInt64)
	return m
}

func (m *mixer) setVolume(v float64) {
	m.volume.Store(math.Float64bits(v))
}

func (m *mixer) publish(chunks chunkSet) {
	m.chunks.Store(&chunks)
}

// timedOut reports whether an underrun happened within the mute timeout.
func (m *mixer) timedOut(now time.Time) bool {
	last := m.underrunAt.Load()
	return last != math.MinInt64 && now.UnixNano()-last < int64(m.muteTimeout)
}

// fill writes len(out)/channels frames of interleaved PCM. It never blocks
// and never allocates.
func (m *mixer) fill(out []float32) {
	for cmd, ok := m.commands.pop(); ok; cmd, ok = m.commands.pop() {
		m.state = cmd
		m.pos = cmd.start
		m.consumed.Store(0)
		m.epoch.Store(cmd.epoch)
	}

	clear(out)
	ch := m.format.Channels
	rate := int64(m.format.SampleRate)
	frames := int64(len(out) / ch)
	if !m.state.playing || frames == 0 {
		return
	}

	now := m.clock.Now()
	gain := float32(math.Float64frombits(m.volume.Load()))
	if m.muted.Load() || m.timedOut(now) {
		gain = 0
	}

	chunks := *m.chunks.Load()
	underrun := false
	for i := int64(0); i < frames; {
		p := m.pos + i
		if p >= m.state.end {
			break
		}
		sec := floorDiv(p, rate)
		offset := p - sec*rate
		n := min(frames-i, rate-offset, m.state.end-p)

		chunk, ok := chunks[sec]
		switch {
		case !ok:
			underrun = true
		case chunk != nil && gain != 0:
			src := chunk.Samples
			dst := out[i*int64(ch) : (i+n)*int64(ch)]
			from := offset * int64(ch)
			for j := range dst {
				if k := from + int64(j); k < int64(len(src)) {
					dst[j] = src[k] * gain
				}
			}
		}
		i += n
	}

	m.pos = min(m.pos+frames, max(m.state.end, m.state.start))
	if underrun {
		clear(out)
		m.underrunAt.Store(now.UnixNano())
		m.underruns.Add(1)
	}
	m.position.Store(m.pos)
	m.consumed.Add(frames)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
