package reader

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Channels     int               `json:"channels"`
	SampleRate   string            `json:"sample_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	NbFrames     string            `json:"nb_frames"`
	StartTime    string            `json:"start_time"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
}

type ffprobeFormat struct {
	FormatName string            `json:"format_name"`
	StartTime  string            `json:"start_time"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// parseProbe converts ffprobe JSON into media info. Only the first video
// and first audio stream are used.
func parseProbe(output []byte, pixelType media.PixelType) (media.Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return media.Info{}, err
	}

	info := media.Info{
		VideoTime: otime.InvalidRange,
		AudioTime: otime.InvalidRange,
		Tags:      make(map[string]string),
	}
	for k, v := range probe.Format.Tags {
		info.Tags[k] = v
	}
	if probe.Format.FormatName != "" {
		info.Tags["Format"] = probe.Format.FormatName
	}
	if probe.Format.BitRate != "" {
		info.Tags["Bitrate"] = probe.Format.BitRate
	}

	formatDuration := parseFloat(probe.Format.Duration)
	formatStart := parseFloat(probe.Format.StartTime)

	var haveVideo, haveAudio bool
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if haveVideo || stream.Width <= 0 || stream.Height <= 0 {
				continue
			}
			haveVideo = true
			rate := parseRatio(stream.RFrameRate)
			if rate <= 0 {
				rate = parseRatio(stream.AvgFrameRate)
			}
			if rate <= 0 {
				rate = otime.Rate24
			}
			start := formatStart
			if stream.StartTime != "" {
				start = parseFloat(stream.StartTime)
			}
			frames, err := strconv.ParseInt(stream.NbFrames, 10, 64)
			if err != nil || frames <= 0 {
				duration := parseFloat(stream.Duration)
				if duration <= 0 {
					duration = formatDuration
				}
				frames = int64(math.Round(duration * rate))
			}
			info.Video = append(info.Video, media.ImageInfo{
				Width:     stream.Width,
				Height:    stream.Height,
				PixelType: pixelType,
			})
			info.VideoTime = otime.NewRange(
				otime.FromSeconds(start, rate).Round(),
				otime.FromFrame(frames, rate))
			info.Tags["Video Codec"] = strings.ToUpper(stream.CodecName)
		case "audio":
			if haveAudio {
				continue
			}
			sampleRate, _ := strconv.Atoi(stream.SampleRate)
			if sampleRate <= 0 || stream.Channels <= 0 {
				continue
			}
			haveAudio = true
			start := formatStart
			if stream.StartTime != "" {
				start = parseFloat(stream.StartTime)
			}
			duration := parseFloat(stream.Duration)
			if duration <= 0 {
				duration = formatDuration
			}
			sr := float64(sampleRate)
			info.Audio = media.AudioInfo{Channels: stream.Channels, SampleRate: sampleRate}
			info.AudioTime = otime.NewRange(
				otime.FromSeconds(start, sr).Round(),
				otime.FromSeconds(duration, sr).Round())
			info.Tags["Audio Codec"] = strings.ToUpper(stream.CodecName)
		}
	}
	return info, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

// parseRatio parses "num/den" rates such as "24000/1001".
func parseRatio(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}
