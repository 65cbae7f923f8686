package storage

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
)

var _ reader.InfoStore = (*SQLiteStorage)(nil)

func newStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "data", "tlplay.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInfoRoundTrip(t *testing.T) {
	s := newStorage(t)
	info := media.Info{
		Video:     []media.ImageInfo{{Width: 1920, Height: 1080, PixelType: media.PixelRGBA8}},
		VideoTime: otime.RangeFromFrames(0, 240, 24),
		Audio:     media.AudioInfo{Channels: 2, SampleRate: 48000},
		AudioTime: otime.RangeFromFrames(0, 480000, 48000),
		Tags:      map[string]string{"codec": "prores"},
	}

	_, ok, err := s.GetInfo("/media/a.mov", 100, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutInfo("/media/a.mov", 100, 7, info))
	got, ok, err := s.GetInfo("/media/a.mov", 100, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, info, got)

	t.Run("stale versions miss", func(t *testing.T) {
		_, ok, err := s.GetInfo("/media/a.mov", 101, 7)
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = s.GetInfo("/media/a.mov", 100, 8)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put replaces", func(t *testing.T) {
		audioOnly := media.Info{
			VideoTime: otime.InvalidRange,
			Audio:     media.AudioInfo{Channels: 1, SampleRate: 44100},
			AudioTime: otime.RangeFromFrames(0, 44100, 44100),
		}
		require.NoError(t, s.PutInfo("/media/a.mov", 200, 9, audioOnly))
		got, ok, err := s.GetInfo("/media/a.mov", 200, 9)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, audioOnly, got)

		records, err := s.ListInfo(10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.EqualValues(t, 200, records[0].Size)
	})

	n, err := s.ClearInfo()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	records, err := s.ListInfo(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPlaybackState(t *testing.T) {
	s := newStorage(t)

	state, err := s.GetPlaybackState("/edits/cut.otio")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, s.SavePlaybackState(&PlaybackState{
		Timeline: "/edits/cut.otio",
		Frame:    42,
		InFrame:  10,
		OutFrame: 100,
		Loop:     "once",
	}))
	require.NoError(t, s.SavePlaybackState(&PlaybackState{
		Timeline: "/edits/cut.otio",
		Frame:    43,
		InFrame:  10,
		OutFrame: 100,
		Loop:     "pingpong",
	}))

	state, err = s.GetPlaybackState("/edits/cut.otio")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.EqualValues(t, 43, state.Frame)
	assert.EqualValues(t, 10, state.InFrame)
	assert.EqualValues(t, 100, state.OutFrame)
	assert.Equal(t, "pingpong", state.Loop)
}
