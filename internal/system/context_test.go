package system

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlplay/internal/media"
	"tlplay/internal/player"
	"tlplay/internal/reader"
	"tlplay/internal/reader/readertest"
	"tlplay/internal/timeline"
)

const shortDoc = `{
  "OTIO_SCHEMA": "Timeline.1",
  "name": "short",
  "tracks": {
    "OTIO_SCHEMA": "Stack.1",
    "children": [{
      "OTIO_SCHEMA": "Track.1",
      "kind": "Video",
      "children": [{
        "OTIO_SCHEMA": "Clip.1",
        "name": "shot",
        "source_range": {"start_time": {"rate": 24, "value": 0}, "duration": {"rate": 24, "value": 48}},
        "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "shot.test"}
      }]
    }]
  }
}`

func newContext(t *testing.T) (*Context, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	c, err := New(Options{
		Fs:      fs,
		InfoDB:  filepath.Join(t.TempDir(), "info.db"),
		Plugins: []reader.Plugin{readertest.New()},
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, fs
}

func TestRegistry(t *testing.T) {
	c, _ := newContext(t)

	r := c.Registry()
	assert.Same(t, r, c.Registry())
	assert.Equal(t, 3, r.Len())
	assert.Contains(t, r.Extensions(), ".mov")
	assert.Contains(t, r.Extensions(), ".png")
	assert.Contains(t, r.Extensions(), ".test")
	assert.NotNil(t, c.Storage())
}

func TestWarnOnce(t *testing.T) {
	c, _ := newContext(t)
	assert.True(t, c.WarnOnce("/a.mov"))
	assert.False(t, c.WarnOnce("/a.mov"))
	assert.True(t, c.WarnOnce("/b.mov"))
}

func TestInfo(t *testing.T) {
	c, _ := newContext(t)

	info, err := c.Info(context.Background(), media.ParsePath("/media/shot.test", media.PathOptions{}), nil)
	require.NoError(t, err)
	assert.Equal(t, readertest.DefaultInfo, info)

	_, err = c.Info(context.Background(), media.ParsePath("/media/shot.xyz", media.PathOptions{}), nil)
	var re *reader.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, reader.PluginMissing, re.Kind)
}

func TestLoadTimeline(t *testing.T) {
	c, fs := newContext(t)
	require.NoError(t, afero.WriteFile(fs, "/edits/short.otio", []byte(shortDoc), 0644))

	t.Run("document", func(t *testing.T) {
		tl, err := c.LoadTimeline(context.Background(), "/edits/short.otio", nil)
		require.NoError(t, err)
		require.Len(t, tl.Tracks, 1)
		assert.Equal(t, "/edits/shot.test", tl.Tracks[0].Items[0].Path.String())
	})

	t.Run("media file", func(t *testing.T) {
		tl, err := c.LoadTimeline(context.Background(), "/media/shot.test", nil)
		require.NoError(t, err)
		assert.Len(t, tl.TrackIndexes(timeline.VideoTrack), 1)
		assert.Len(t, tl.TrackIndexes(timeline.AudioTrack), 1)
		assert.Equal(t, readertest.DefaultInfo.VideoTime.Duration, tl.GlobalRange().Duration)
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := c.LoadTimeline(context.Background(), "/edits/none.otio", nil)
		var pe *timeline.ParseError
		assert.ErrorAs(t, err, &pe)
	})
}

func TestNewPlayerAndClose(t *testing.T) {
	c, fs := newContext(t)
	require.NoError(t, afero.WriteFile(fs, "/edits/short.otio", []byte(shortDoc), 0644))
	tl, err := c.LoadTimeline(context.Background(), "/edits/short.otio", nil)
	require.NoError(t, err)

	p, err := c.NewPlayer(tl, player.DefaultOptions)
	require.NoError(t, err)
	p.Close()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.NewPlayer(tl, player.DefaultOptions)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.LoadTimeline(context.Background(), "/edits/short.otio", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
