package timeline

import (
	"fmt"

	"github.com/samber/mo"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

// FromMedia wraps a single media file in a timeline with one video and one
// audio track, as available.
func FromMedia(path media.Path, info media.Info) (*Timeline, error) {
	if !info.HasVideo() && !info.HasAudio() {
		return nil, fmt.Errorf("%s has no video or audio", path)
	}

	rate := otime.Rate24
	var start otime.RationalTime
	if info.HasVideo() {
		rate = info.VideoTime.Rate()
		start = info.VideoTime.Start
	} else {
		start = info.AudioTime.Start.Rescale(rate).Floor()
	}

	ref := &Reference{
		Schema:         schemaExternal + ".1",
		TargetURL:      path.String(),
		AvailableRange: info.VideoTime,
	}
	if !info.HasVideo() {
		ref.AvailableRange = info.AudioTime
	}
	if path.IsSequence() && info.HasVideo() {
		first := int64(info.VideoTime.Start.Value)
		ref = &Reference{
			Schema:           schemaImageSequence + ".1",
			AvailableRange:   info.VideoTime,
			TargetURLBase:    path.Directory,
			NamePrefix:       path.BaseName,
			NameSuffix:       path.Extension,
			StartFrame:       first,
			FrameStep:        1,
			Rate:             rate,
			FrameZeroPadding: path.Padding,
		}
		path.Sequence = mo.Some(media.FrameRange{Start: first, End: first + int64(info.VideoTime.Duration.Value) - 1})
	}

	tl := &Timeline{
		Name:        path.BaseName + path.Number + path.Extension,
		GlobalStart: start,
		Duration:    otime.FromFrame(0, rate),
	}
	addTrack := func(kind TrackKind, r otime.TimeRange) {
		duration := r.Duration.Rescale(rate)
		tl.Tracks = append(tl.Tracks, &Track{
			Kind: kind,
			Items: []*Item{{
				Kind:        ItemClip,
				Name:        tl.Name,
				ParentRange: otime.NewRange(start, duration),
				SourceRange: r,
				Reference:   ref,
				Path:        path,
				In:          -1,
				Out:         -1,
			}},
		})
		if duration.After(tl.Duration) {
			tl.Duration = duration
		}
	}
	if info.HasVideo() {
		addTrack(VideoTrack, info.VideoTime)
	}
	if info.HasAudio() {
		addTrack(AudioTrack, info.AudioTime)
	}

	end := start.Add(tl.Duration)
	for _, track := range tl.Tracks {
		trackEnd := track.Items[0].ParentRange.End()
		if trackEnd.Before(end) {
			track.Items = append(track.Items, &Item{
				Kind:        ItemGap,
				ParentRange: otime.RangeFromStartEnd(trackEnd, end),
				SourceRange: otime.InvalidRange,
				In:          -1,
				Out:         -1,
			})
		}
	}
	return tl, nil
}
