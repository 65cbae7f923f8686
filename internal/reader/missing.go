package reader

import (
	"math"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

const missingSize = 16

var missingImage = media.NewImage(media.ImageInfo{
	Width:     missingSize,
	Height:    missingSize,
	PixelType: media.PixelRGBA8,
})

// MissingImage is the shared black frame returned for unreadable media.
func MissingImage() *media.Image {
	return missingImage
}

type missingReader struct {
	path media.Path
	info *Future[media.Info]
}

// NewMissing returns a reader that produces black frames and silence for
// any request and never fails.
func NewMissing(path media.Path) Reader {
	return &missingReader{
		path: path,
		info: Resolved(media.Info{
			Video:     []media.ImageInfo{missingImage.Info},
			VideoTime: otime.InvalidRange,
			AudioTime: otime.InvalidRange,
			Tags:      map[string]string{"Missing": "true"},
		}, nil),
	}
}

// IsMissing reports whether r is a missing-media stand-in.
func IsMissing(r Reader) bool {
	_, ok := r.(*missingReader)
	return ok
}

func (r *missingReader) Path() media.Path          { return r.path }
func (r *missingReader) Info() *Future[media.Info] { return r.info }
func (r *missingReader) CancelRequests()           {}
func (r *missingReader) Close() error              { return nil }

func (r *missingReader) ReadVideo(t otime.RationalTime, _ Options) *Future[media.VideoFrame] {
	return Resolved(media.VideoFrame{Time: t, Image: missingImage}, nil)
}

func (r *missingReader) ReadAudio(rng otime.TimeRange, _ Options) *Future[media.AudioFrame] {
	rate := int(math.Round(rng.Rate()))
	frames := int(math.Ceil(rng.Duration.Rescale(rng.Rate()).Value))
	return Resolved(media.AudioFrame{
		Time:  rng.Start,
		Audio: media.NewAudio(media.AudioInfo{Channels: 1, SampleRate: rate}, max(frames, 0)),
	}, nil)
}
