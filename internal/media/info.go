package media

import (
	"maps"
	"slices"

	"tlplay/internal/otime"
)

// Info describes the streams of a media file. Time ranges are in the
// media's own coordinate space.
type Info struct {
	Video     []ImageInfo       `json:"video,omitempty"`
	VideoTime otime.TimeRange   `json:"video_time"`
	Audio     AudioInfo         `json:"audio"`
	AudioTime otime.TimeRange   `json:"audio_time"`
	Tags      map[string]string `json:"tags,omitempty"`
}

func (i Info) HasVideo() bool {
	return len(i.Video) > 0 && i.VideoTime.IsValid()
}

func (i Info) HasAudio() bool {
	return i.Audio.IsValid() && i.AudioTime.IsValid()
}

// Clone returns a copy that shares nothing mutable with i.
func (i Info) Clone() Info {
	i.Video = slices.Clone(i.Video)
	i.Tags = maps.Clone(i.Tags)
	return i
}

// VideoFrame is the result of a video read. Image is nil only for canceled
// or failed reads.
type VideoFrame struct {
	Time  otime.RationalTime
	Layer int
	Image *Image
}

// AudioFrame is the result of an audio read.
type AudioFrame struct {
	Time  otime.RationalTime
	Audio *Audio
}
