package media

// AudioInfo describes interleaved float32 PCM.
type AudioInfo struct {
	Channels   int `json:"channels"`
	SampleRate int `json:"sample_rate"`
}

func (i AudioInfo) IsValid() bool {
	return i.Channels > 0 && i.SampleRate > 0
}

// Audio is an immutable interleaved PCM buffer.
type Audio struct {
	Info    AudioInfo
	Samples []float32
}

// NewAudio allocates frames of silence.
func NewAudio(info AudioInfo, frames int) *Audio {
	return &Audio{Info: info, Samples: make([]float32, frames*info.Channels)}
}

// FrameCount is the number of sample frames (one sample per channel).
func (a *Audio) FrameCount() int {
	if a == nil || a.Info.Channels <= 0 {
		return 0
	}
	return len(a.Samples) / a.Info.Channels
}

func (a *Audio) ByteCount() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Samples)) * 4
}

// Resample converts to rate with linear interpolation.
func (a *Audio) Resample(rate int) *Audio {
	if a == nil || rate <= 0 || a.Info.SampleRate == rate {
		return a
	}
	ch := a.Info.Channels
	in := a.FrameCount()
	out := int(int64(in) * int64(rate) / int64(a.Info.SampleRate))
	dst := NewAudio(AudioInfo{Channels: ch, SampleRate: rate}, out)
	step := float64(a.Info.SampleRate) / float64(rate)
	for i := 0; i < out; i++ {
		pos := float64(i) * step
		i0 := int(pos)
		i1 := min(i0+1, in-1)
		f := float32(pos - float64(i0))
		for c := 0; c < ch; c++ {
			s0 := a.Samples[i0*ch+c]
			s1 := a.Samples[i1*ch+c]
			dst.Samples[i*ch+c] = s0 + (s1-s0)*f
		}
	}
	return dst
}

// MixInto adds src frames [srcOffset, srcOffset+frames) into dst starting at
// dstOffset, mapping channels: mono is spread to every output channel and
// extra input channels are dropped.
func MixInto(dst []float32, dstChannels, dstOffset int, src *Audio, srcOffset, frames int) {
	if src == nil || dstChannels <= 0 {
		return
	}
	sch := src.Info.Channels
	for i := 0; i < frames; i++ {
		si := srcOffset + i
		di := dstOffset + i
		if si < 0 || si >= src.FrameCount() || di < 0 || (di+1)*dstChannels > len(dst) {
			continue
		}
		for c := 0; c < dstChannels; c++ {
			sc := c
			if sch == 1 {
				sc = 0
			} else if sc >= sch {
				continue
			}
			dst[di*dstChannels+c] += src.Samples[si*sch+sc]
		}
	}
}
