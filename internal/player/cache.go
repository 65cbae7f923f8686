package player

import (
	"errors"
	"math"
	"slices"
	"sort"

	"github.com/samber/lo"

	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
	"tlplay/internal/timeline"
)

type layerRequest struct {
	a, b       *reader.Future[media.VideoFrame]
	missingA   bool
	missingB   bool
	transition string
	value      float64
}

// videoEntry is one frame of the video cache: pending until every layer's
// reads have resolved.
type videoEntry struct {
	layers []layerRequest
	ready  bool
	data   VideoData
	bytes  int64
}

type audioPart struct {
	future *reader.Future[media.AudioFrame]
	offset int
	frames int
}

// audioEntry is one second of mixed audio.
type audioEntry struct {
	parts []audioPart
	ready bool
	audio *media.Audio
	bytes int64
}

func releaseVideo(f *reader.Future[media.VideoFrame]) {
	if f != nil {
		f.Release()
	}
}

func (e *videoEntry) release() {
	for _, l := range e.layers {
		releaseVideo(l.a)
		releaseVideo(l.b)
	}
}

func (e *audioEntry) release() {
	for _, part := range e.parts {
		part.future.Release()
	}
}

func (p *Player) requestVideo(frame int64) *videoEntry {
	t := otime.FromFrame(frame, p.rate)
	e := &videoEntry{layers: make([]layerRequest, len(p.videoTracks))}
	for i, track := range p.videoTracks {
		hit, ok := p.timeline.Lookup(track, t)
		if !ok {
			continue
		}
		l := &e.layers[i]
		l.a, l.missingA = p.readVideo(hit.Item, hit.Time)
		if hit.Transition != nil {
			l.transition = hit.Transition.TransitionType
			l.value = hit.Value
			if hit.Other != nil {
				l.b, l.missingB = p.readVideo(hit.Other, hit.OtherTime)
			}
		}
	}
	return e
}

// readVideo requests the frame of a clip. Clips without media report missing.
func (p *Player) readVideo(item *timeline.Item, t otime.RationalTime) (*reader.Future[media.VideoFrame], bool) {
	if item.Kind != timeline.ItemClip {
		return nil, false
	}
	if item.Path.IsEmpty() {
		return nil, true
	}
	return p.io.ReadVideo(item.Path, item.Memory, t, nil), false
}

func (p *Player) requestAudio(second int64) *audioEntry {
	sr := p.audio.SampleRate
	chunk := otime.RangeFromFrames(second*int64(sr), int64(sr), float64(sr))
	e := &audioEntry{}
	for _, track := range p.audioTracks {
		for _, item := range p.timeline.ItemsInRange(track, chunk.Rescale(p.rate)) {
			if item.Kind != timeline.ItemClip || item.Path.IsEmpty() {
				continue
			}
			part, ok := chunk.Intersection(item.ParentRange.Rescale(float64(sr)))
			if !ok || part.Duration.Value <= 0 {
				continue
			}
			rng := item.MediaRange(part).Rescale(float64(sr))
			e.parts = append(e.parts, audioPart{
				future: p.io.ReadAudio(item.Path, item.Memory, rng, nil),
				offset: int(math.Round(part.Start.Value - chunk.Start.Value)),
				frames: int(math.Round(part.Duration.Value)),
			})
		}
	}
	return e
}

func (p *Player) prefetchVideo(frames []int64) {
	budget := p.cacheOpts.VideoBytes
	pending := int64(lo.CountBy(lo.Values(p.videoCache), func(e *videoEntry) bool { return !e.ready }))
	for _, f := range frames {
		if _, ok := p.videoCache[f]; ok {
			continue
		}
		if budget <= 0 || p.videoBytes+(pending+1)*p.frameBytes > budget {
			return
		}
		p.videoCache[f] = p.requestVideo(f)
		pending++
	}
}

func (p *Player) prefetchAudio(seconds []int64) {
	budget := p.cacheOpts.AudioBytes
	chunkBytes := int64(p.audio.SampleRate) * int64(p.audio.Channels) * 4
	pending := int64(lo.CountBy(lo.Values(p.audioCache), func(e *audioEntry) bool { return !e.ready }))
	for _, s := range seconds {
		if _, ok := p.audioCache[s]; ok {
			continue
		}
		if budget <= 0 || p.audioBytes+(pending+1)*chunkBytes > budget {
			return
		}
		p.audioCache[s] = p.requestAudio(s)
		pending++
	}
}

// releasePending abandons pending reads outside the given frames and
// seconds. Nil slices abandon everything pending.
func (p *Player) releasePending(frames, seconds []int64) {
	keepF := lo.SliceToMap(frames, func(f int64) (int64, bool) { return f, true })
	keepS := lo.SliceToMap(seconds, func(s int64) (int64, bool) { return s, true })
	for f, e := range p.videoCache {
		if !e.ready && !keepF[f] {
			p.dropVideo(f, e)
		}
	}
	for s, e := range p.audioCache {
		if !e.ready && !keepS[s] {
			p.dropAudio(s, e)
		}
	}
}

// drain moves finished reads into the caches. Canceled reads are dropped so
// the next tick asks again.
func (p *Player) drain() {
	for f, e := range p.videoCache {
		if e.ready || !e.done() {
			continue
		}
		if e.canceled() {
			p.dropVideo(f, e)
			continue
		}
		e.resolve(otime.FromFrame(f, p.rate))
		p.videoBytes += e.bytes
		if e.bytes > 0 {
			p.frameBytes = e.bytes
		}
	}

	for s, e := range p.audioCache {
		if e.ready || !e.done() {
			continue
		}
		if e.canceled() {
			p.dropAudio(s, e)
			continue
		}
		e.resolve(p.audio.Info())
		p.audioBytes += e.bytes
		p.chunksDirty = true
	}
}

func (e *videoEntry) done() bool {
	for _, l := range e.layers {
		if (l.a != nil && !l.a.Ready()) || (l.b != nil && !l.b.Ready()) {
			return false
		}
	}
	return true
}

func isCanceled[T any](f *reader.Future[T]) bool {
	if f == nil {
		return false
	}
	_, err, _ := f.Result()
	return errors.Is(err, reader.ErrCanceled)
}

func (e *videoEntry) canceled() bool {
	return slices.ContainsFunc(e.layers, func(l layerRequest) bool {
		return isCanceled(l.a) || isCanceled(l.b)
	})
}

// frameImage returns the decoded image; failed decodes and missing media
// become black.
func frameImage(f *reader.Future[media.VideoFrame], missing bool) *media.Image {
	if missing {
		return reader.MissingImage()
	}
	if f == nil {
		return nil
	}
	v, _, _ := f.Result()
	if v.Image == nil {
		return reader.MissingImage()
	}
	return v.Image
}

func (e *videoEntry) resolve(t otime.RationalTime) {
	e.data = VideoData{Time: t, Layers: make([]VideoLayer, len(e.layers))}
	seen := make(map[*media.Image]bool)
	for i, l := range e.layers {
		layer := VideoLayer{
			Image:           frameImage(l.a, l.missingA),
			ImageB:          frameImage(l.b, l.missingB),
			Transition:      l.transition,
			TransitionValue: l.value,
		}
		for _, img := range []*media.Image{layer.Image, layer.ImageB} {
			if img != nil && !seen[img] {
				seen[img] = true
				e.bytes += img.ByteCount()
			}
		}
		e.data.Layers[i] = layer
	}
	e.release()
	e.layers = nil
	e.ready = true
}

func (e *audioEntry) done() bool {
	return lo.EveryBy(e.parts, func(part audioPart) bool { return part.future.Ready() })
}

func (e *audioEntry) canceled() bool {
	return lo.SomeBy(e.parts, func(part audioPart) bool { return isCanceled(part.future) })
}

// resolve mixes the parts into one second of PCM in format. Failed reads
// leave silence. A second with no clips stays nil.
func (e *audioEntry) resolve(format media.AudioInfo) {
	if len(e.parts) > 0 {
		e.audio = media.NewAudio(format, format.SampleRate)
		for _, part := range e.parts {
			v, _, _ := part.future.Result()
			src := v.Audio.Resample(format.SampleRate)
			media.MixInto(e.audio.Samples, format.Channels, part.offset, src, 0, min(part.frames, src.FrameCount()))
		}
		e.bytes = e.audio.ByteCount()
	}
	e.release()
	e.parts = nil
	e.ready = true
}

func (p *Player) dropVideo(f int64, e *videoEntry) {
	if e.ready {
		p.videoBytes -= e.bytes
	} else {
		e.release()
	}
	delete(p.videoCache, f)
}

func (p *Player) dropAudio(s int64, e *audioEntry) {
	if e.ready {
		p.audioBytes -= e.bytes
		p.chunksDirty = true
	} else {
		e.release()
	}
	delete(p.audioCache, s)
}

// evict drops cached frames outside the in/out range extended by the read
// behind, then the frames farthest from the playhead until each cache fits
// its budget. Frames in keepFrames and keepSeconds are never evicted.
func (p *Player) evict(frame int64, keepFrames, keepSeconds map[int64]bool) {
	behind := int64(math.Ceil(p.cacheOpts.ReadBehind.Seconds() * p.rate))
	global := p.timeline.GlobalRange()
	first, end := max(p.in-behind, global.Start.Frame(p.rate)), p.out
	for f, e := range p.videoCache {
		if f < first || f >= end {
			p.dropVideo(f, e)
		}
	}
	loSec, hiSec := p.second(first), p.second(end-1)
	for s, e := range p.audioCache {
		if s < loSec || s > hiSec {
			p.dropAudio(s, e)
		}
	}

	if p.videoBytes > p.cacheOpts.VideoBytes {
		for _, f := range farthest(p.videoCache, frame, keepFrames, func(e *videoEntry) bool { return e.ready }) {
			if p.videoBytes <= p.cacheOpts.VideoBytes {
				break
			}
			p.dropVideo(f, p.videoCache[f])
		}
	}
	if p.audioBytes > p.cacheOpts.AudioBytes {
		for _, s := range farthest(p.audioCache, p.second(frame), keepSeconds, func(e *audioEntry) bool { return e.ready }) {
			if p.audioBytes <= p.cacheOpts.AudioBytes {
				break
			}
			p.dropAudio(s, p.audioCache[s])
		}
	}
}

// farthest lists the ready keys not in keep, farthest from center first.
func farthest[E any](cache map[int64]E, center int64, keep map[int64]bool, ready func(E) bool) []int64 {
	var keys []int64
	for k, e := range cache {
		if ready(e) && !keep[k] {
			keys = append(keys, k)
		}
	}
	dist := func(k int64) int64 {
		if k < center {
			return center - k
		}
		return k - center
	}
	sort.Slice(keys, func(i, j int) bool {
		if di, dj := dist(keys[i]), dist(keys[j]); di != dj {
			return di > dj
		}
		return keys[i] > keys[j]
	})
	return keys
}

// publishChunks hands the audio thread a fresh snapshot of mixed seconds.
func (p *Player) publishChunks() {
	if !p.chunksDirty {
		return
	}
	p.chunksDirty = false
	chunks := make(chunkSet, len(p.audioCache))
	for s, e := range p.audioCache {
		if e.ready {
			chunks[s] = e.audio
		}
	}
	p.mixer.publish(chunks)
}

// spans merges sorted keys into [start, start+count) runs.
func spans(keys []int64) [][2]int64 {
	slices.Sort(keys)
	var out [][2]int64
	for _, k := range keys {
		if n := len(out); n > 0 && out[n-1][0]+out[n-1][1] == k {
			out[n-1][1]++
			continue
		}
		out = append(out, [2]int64{k, 1})
	}
	return out
}

func (p *Player) snapshotCacheInfo() CacheInfo {
	var info CacheInfo
	if p.cacheOpts.VideoBytes > 0 {
		info.VideoPercent = math.Min(100, float64(p.videoBytes)/float64(p.cacheOpts.VideoBytes)*100)
	}

	frames := lo.FilterMap(lo.Entries(p.videoCache), func(kv lo.Entry[int64, *videoEntry], _ int) (int64, bool) {
		return kv.Key, kv.Value.ready
	})
	for _, s := range spans(frames) {
		info.VideoFrames = append(info.VideoFrames, otime.RangeFromFrames(s[0], s[1], p.rate))
	}

	seconds := lo.FilterMap(lo.Entries(p.audioCache), func(kv lo.Entry[int64, *audioEntry], _ int) (int64, bool) {
		return kv.Key, kv.Value.ready
	})
	for _, s := range spans(seconds) {
		info.AudioFrames = append(info.AudioFrames, otime.NewRange(
			otime.FromSeconds(float64(s[0]), p.rate),
			otime.FromSeconds(float64(s[1]), p.rate)))
	}
	return info
}
