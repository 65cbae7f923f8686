package storage

import (
	"time"

	"tlplay/internal/media"
)

// InfoRecord is a cached probe result. Size and ModTime identify the
// version of the file that was probed.
type InfoRecord struct {
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	ModTime   int64      `json:"mod_time"`
	Info      media.Info `json:"info"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PlaybackState is where a timeline was left, restored on the next open.
type PlaybackState struct {
	Timeline  string    `json:"timeline"`
	Frame     int64     `json:"frame"`
	InFrame   int64     `json:"in_frame"`
	OutFrame  int64     `json:"out_frame"`
	Loop      string    `json:"loop"`
	UpdatedAt time.Time `json:"-"`
}
