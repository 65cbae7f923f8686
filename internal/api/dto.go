package api

import (
	"tlplay/internal/otime"
	"tlplay/internal/storage"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Player DTOs

type PlayerResponse struct {
	ID          string          `json:"id"`
	Timeline    string          `json:"timeline"`
	Rate        float64         `json:"rate"`
	Playback    string          `json:"playback"`
	Loop        string          `json:"loop"`
	Frame       int64           `json:"frame"`
	Seconds     float64         `json:"seconds"`
	InOut       otime.TimeRange `json:"in_out"`
	Speed       float64         `json:"speed"`
	Volume      float64         `json:"volume"`
	Mute        bool            `json:"mute"`
	MuteTimeout bool            `json:"mute_timeout"`
	Underruns   int64           `json:"underruns"`
}

type PlaybackRequest struct {
	Playback string `json:"playback"`
}

type LoopRequest struct {
	Loop string `json:"loop"`
}

// SeekRequest takes either a frame at the timeline rate or seconds.
type SeekRequest struct {
	Frame   *int64   `json:"frame,omitempty"`
	Seconds *float64 `json:"seconds,omitempty"`
}

type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

type MuteRequest struct {
	Mute bool `json:"mute"`
}

// InOutRequest sets the range to [in, out) in frames, or resets it.
type InOutRequest struct {
	In    int64 `json:"in"`
	Out   int64 `json:"out"`
	Reset bool  `json:"reset,omitempty"`
}

type StepRequest struct {
	Frames int64 `json:"frames"`
}

// Timeline DTOs

type TimelineResponse struct {
	Name   string          `json:"name"`
	Path   string          `json:"path"`
	Rate   float64         `json:"rate"`
	Range  otime.TimeRange `json:"range"`
	Tracks []TrackNode     `json:"tracks"`
}

type TrackNode struct {
	Kind  string     `json:"kind"`
	Name  string     `json:"name,omitempty"`
	Items []ItemNode `json:"items"`
}

type ItemNode struct {
	Kind       string          `json:"kind"`
	Name       string          `json:"name,omitempty"`
	Path       string          `json:"path,omitempty"`
	Range      otime.TimeRange `json:"range"`
	Transition string          `json:"transition,omitempty"`
}

type InfoCacheResponse struct {
	Items []storage.InfoRecord `json:"items"`
}
