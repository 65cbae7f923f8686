package timeline

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
)

const editDoc = `{
  "OTIO_SCHEMA": "Timeline.1",
  "name": "edit",
  "global_start_time": {"OTIO_SCHEMA": "RationalTime.1", "rate": 24, "value": 86400},
  "tracks": {
    "OTIO_SCHEMA": "Stack.1",
    "children": [
      {
        "OTIO_SCHEMA": "Track.1",
        "kind": "Video",
        "children": [
          {
            "OTIO_SCHEMA": "Clip.1",
            "name": "a",
            "source_range": {"start_time": {"rate": 24, "value": 10}, "duration": {"rate": 24, "value": 48}},
            "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "media/a.mov"}
          },
          {
            "OTIO_SCHEMA": "Transition.1",
            "transition_type": "SMPTE_Dissolve",
            "in_offset": {"rate": 24, "value": 6},
            "out_offset": {"rate": 24, "value": 6}
          },
          {
            "OTIO_SCHEMA": "Clip.2",
            "name": "b",
            "active_media_reference_key": "DEFAULT_MEDIA",
            "media_references": {
              "DEFAULT_MEDIA": {
                "OTIO_SCHEMA": "ImageSequenceReference.1",
                "target_url_base": "frames/",
                "name_prefix": "b.",
                "name_suffix": ".png",
                "start_frame": 1,
                "frame_step": 1,
                "rate": 24,
                "frame_zero_padding": 4,
                "available_range": {"start_time": {"rate": 24, "value": 1}, "duration": {"rate": 24, "value": 24}}
              }
            }
          },
          {
            "OTIO_SCHEMA": "Gap.1",
            "source_range": {"start_time": {"rate": 24, "value": 0}, "duration": {"rate": 24, "value": 12}}
          }
        ]
      },
      {
        "OTIO_SCHEMA": "Track.1",
        "kind": "Audio",
        "children": [
          {
            "OTIO_SCHEMA": "Clip.1",
            "name": "music",
            "source_range": {"start_time": {"rate": 48000, "value": 0}, "duration": {"rate": 48000, "value": 48000}},
            "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "/abs/music.wav"}
          }
        ]
      }
    ]
  }
}`

func loadEdit(t *testing.T) (*Timeline, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/edits/edit.otio", []byte(editDoc), 0o644))
	tl, err := Load("/edits/edit.otio", LoadOptions{Fs: fs})
	require.NoError(t, err)
	return tl, fs
}

func TestLoad(t *testing.T) {
	tl, _ := loadEdit(t)

	assert.Equal(t, "edit", tl.Name)
	assert.Equal(t, "/edits/edit.otio", tl.Path)
	assert.Equal(t, 24.0, tl.Rate())
	assert.Equal(t, otime.New(86400, 24), tl.GlobalStart)
	assert.Equal(t, otime.New(84, 24), tl.Duration)
	assert.Equal(t, []int{0}, tl.TrackIndexes(VideoTrack))
	assert.Equal(t, []int{1}, tl.TrackIndexes(AudioTrack))

	video := tl.Tracks[0]
	require.Len(t, video.Items, 3)
	a, b, gap := video.Items[0], video.Items[1], video.Items[2]
	assert.Equal(t, otime.RangeFromFrames(86400, 48, 24), a.ParentRange)
	assert.Equal(t, otime.RangeFromFrames(86448, 24, 24), b.ParentRange)
	assert.Equal(t, otime.RangeFromFrames(86472, 12, 24), gap.ParentRange)
	assert.Equal(t, ItemGap, gap.Kind)

	assert.Equal(t, "/edits/media/a.mov", a.Path.String())
	assert.Equal(t, "/edits/frames/b.%04d.png", b.Path.Pattern())
	assert.Equal(t, media.FrameRange{Start: 1, End: 24}, b.Path.Sequence.MustGet())
	assert.Equal(t, otime.RangeFromFrames(1, 24, 24), b.SourceRange)

	require.Len(t, video.Transitions, 1)
	tx := video.Transitions[0]
	assert.Equal(t, "SMPTE_Dissolve", tx.TransitionType)
	assert.Equal(t, otime.RangeFromFrames(86442, 12, 24), tx.ParentRange)
	assert.Equal(t, 0, tx.In)
	assert.Equal(t, 1, tx.Out)

	audio := tl.Tracks[1]
	require.Len(t, audio.Items, 2, "padded to the timeline duration")
	assert.Equal(t, otime.RangeFromFrames(86400, 24, 24), audio.Items[0].ParentRange)
	assert.Equal(t, otime.RangeFromFrames(86424, 60, 24), audio.Items[1].ParentRange)
	assert.Equal(t, "/abs/music.wav", audio.Items[0].Path.String())

	assert.Len(t, tl.Clips(), 3)
}

func TestLookup(t *testing.T) {
	tl, _ := loadEdit(t)

	hit, ok := tl.Lookup(0, otime.New(86420, 24))
	require.True(t, ok)
	assert.Equal(t, "a", hit.Item.Name)
	assert.Equal(t, otime.New(30, 24), hit.Time)
	assert.Nil(t, hit.Transition)

	hit, ok = tl.Lookup(0, otime.New(86445, 24))
	require.True(t, ok)
	assert.Equal(t, "a", hit.Item.Name)
	require.NotNil(t, hit.Transition)
	require.NotNil(t, hit.Other)
	assert.Equal(t, "b", hit.Other.Name)
	assert.Equal(t, otime.New(-2, 24), hit.OtherTime)
	assert.InDelta(t, 0.25, hit.Value, 1e-9)

	hit, ok = tl.Lookup(0, otime.New(86450, 24))
	require.True(t, ok)
	assert.Equal(t, "b", hit.Item.Name)
	assert.Equal(t, "a", hit.Other.Name)

	hit, ok = tl.Lookup(1, otime.New(86430, 24))
	require.True(t, ok)
	assert.Equal(t, ItemGap, hit.Item.Kind)
	assert.Equal(t, otime.New(86430, 24), hit.Time)

	_, ok = tl.Lookup(0, otime.New(86484, 24))
	assert.False(t, ok, "out-point is exclusive")
	_, ok = tl.Lookup(5, otime.New(86400, 24))
	assert.False(t, ok)

	items := tl.ItemsInRange(0, otime.RangeFromFrames(86440, 40, 24))
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Name)
}

func TestSaveRoundTrip(t *testing.T) {
	first, fs := loadEdit(t)
	require.NoError(t, first.SaveFile(fs, "/edits/copy.otio"))

	second, err := Load("/edits/copy.otio", LoadOptions{Fs: fs})
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.GlobalStart, second.GlobalStart)
	assert.Equal(t, first.Duration, second.Duration)
	assert.Equal(t, first.Metadata, second.Metadata)
	assert.Equal(t, first.Tracks, second.Tracks)
}

func TestDefaultRate(t *testing.T) {
	doc := `{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1", "children": [
	  {"OTIO_SCHEMA": "Track.1", "kind": "Video", "children": [
	    {"OTIO_SCHEMA": "Gap.1", "source_range": {"start_time": {"rate": 25, "value": 0}, "duration": {"rate": 25, "value": 50}}}
	  ]}
	]}}`
	tl, err := Parse([]byte(doc), "", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 25.0, tl.Rate())
	assert.Equal(t, otime.New(0, 25), tl.GlobalStart)
	assert.Equal(t, otime.New(50, 25), tl.Duration)

	tl, err = Parse([]byte(`{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1"}}`), "", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, otime.Rate24, tl.Rate())
	assert.Empty(t, tl.Tracks)
}

func TestMemoryReferences(t *testing.T) {
	doc := `{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1", "children": [
	  {"OTIO_SCHEMA": "Track.1", "kind": "Video", "children": [
	    {"OTIO_SCHEMA": "Clip.1", "name": "still",
	     "source_range": {"start_time": {"rate": 24, "value": 0}, "duration": {"rate": 24, "value": 10}},
	     "media_reference": {"OTIO_SCHEMA": "RawMemoryReference.1", "target_url": "mem://still.png"}},
	    {"OTIO_SCHEMA": "Clip.1", "name": "frames",
	     "source_range": {"start_time": {"rate": 24, "value": 0}, "duration": {"rate": 24, "value": 3}},
	     "media_reference": {"OTIO_SCHEMA": "RawMemorySequenceReference.1", "target_url": "mem://seq",
	       "name_prefix": "f.", "name_suffix": ".png", "start_frame": 1, "frame_zero_padding": 3}}
	  ]}
	]}}`
	memory := map[string][]reader.MemoryFile{
		"mem://still.png": {[]byte("still")},
		"mem://seq":       {[]byte("1"), []byte("2"), []byte("3")},
	}

	tl, err := Parse([]byte(doc), "/ignored", LoadOptions{Memory: memory})
	require.NoError(t, err)
	still, frames := tl.Tracks[0].Items[0], tl.Tracks[0].Items[1]

	assert.Equal(t, memory["mem://still.png"], still.Memory)
	assert.Equal(t, "mem://still.png", still.Path.String())

	assert.Len(t, frames.Memory, 3)
	assert.Equal(t, "f.%03d.png", frames.Path.Pattern())
	assert.Equal(t, media.FrameRange{Start: 1, End: 3}, frames.Path.Sequence.MustGet())

	_, err = Parse([]byte(doc), "", LoadOptions{})
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func writeBundle(t *testing.T, fs afero.Fs, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func TestLoadBundle(t *testing.T) {
	doc := `{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1", "children": [
	  {"OTIO_SCHEMA": "Track.1", "kind": "Video", "children": [
	    {"OTIO_SCHEMA": "Clip.1", "name": "a",
	     "source_range": {"start_time": {"rate": 24, "value": 0}, "duration": {"rate": 24, "value": 5}},
	     "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "media/a.png"}},
	    {"OTIO_SCHEMA": "Clip.1", "name": "z",
	     "source_range": {"start_time": {"rate": 24, "value": 0}, "duration": {"rate": 24, "value": 5}},
	     "media_reference": {"OTIO_SCHEMA": "ZipMemoryReference.1", "target_url": "media/z.wav"}}
	  ]}
	]}}`
	fs := afero.NewMemMapFs()
	writeBundle(t, fs, "/b/edit.otioz", map[string]string{
		"content.otio": doc,
		"media/a.png":  "png bytes",
		"media/z.wav":  "wav bytes",
	})

	tl, err := Load("/b/edit.otioz", LoadOptions{Fs: fs})
	require.NoError(t, err)
	a, z := tl.Tracks[0].Items[0], tl.Tracks[0].Items[1]
	assert.Equal(t, "/b/edit.otioz/media/a.png", a.Path.String())
	assert.Equal(t, []reader.MemoryFile{[]byte("png bytes")}, a.Memory)
	assert.Equal(t, []reader.MemoryFile{[]byte("wav bytes")}, z.Memory)

	writeBundle(t, fs, "/b/broken.otioz", map[string]string{"media/a.png": "png bytes"})
	_, err = Load("/b/broken.otioz", LoadOptions{Fs: fs})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "/b/broken.otioz", pe.Path)
}

func TestParseErrors(t *testing.T) {
	clip := func(ref string) string {
		return `{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1", "children": [
		  {"OTIO_SCHEMA": "Track.1", "children": [{"OTIO_SCHEMA": "Clip.1", "name": "c", "media_reference": ` + ref + `}]}]}}`
	}
	for name, doc := range map[string]string{
		"json":        `{`,
		"root":        `{"OTIO_SCHEMA": "Clip.1"}`,
		"no tracks":   `{"OTIO_SCHEMA": "Timeline.1"}`,
		"nested":      `{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1", "children": [{"OTIO_SCHEMA": "Stack.1"}]}}`,
		"gap range":   `{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1", "children": [{"OTIO_SCHEMA": "Track.1", "children": [{"OTIO_SCHEMA": "Gap.1"}]}]}}`,
		"clip range":  clip(`{"OTIO_SCHEMA": "ExternalReference.1", "target_url": "a.mov"}`),
		"zip outside": clip(`{"OTIO_SCHEMA": "ZipMemoryReference.1", "target_url": "a.mov"}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), "", LoadOptions{})
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "got %v", err)
		})
	}

	fs := afero.NewMemMapFs()
	_, err := Load("/nope.otio", LoadOptions{Fs: fs})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "/nope.otio", pe.Path)

	_, err = Load("/clip.mov", LoadOptions{Fs: fs})
	assert.ErrorAs(t, err, &pe)
}

func TestClipRangeFromInfo(t *testing.T) {
	doc := `{"OTIO_SCHEMA": "Timeline.1", "tracks": {"OTIO_SCHEMA": "Stack.1", "children": [
	  {"OTIO_SCHEMA": "Track.1", "children": [{"OTIO_SCHEMA": "Clip.1", "name": "c",
	    "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "a.mov"}}]}]}}`
	var asked media.Path
	opts := LoadOptions{Info: func(p media.Path, _ []reader.MemoryFile) (media.Info, error) {
		asked = p
		return media.Info{
			Video:     []media.ImageInfo{{Width: 4, Height: 4, PixelType: media.PixelRGBA8}},
			VideoTime: otime.RangeFromFrames(0, 30, 30),
		}, nil
	}}

	tl, err := Parse([]byte(doc), "/m", opts)
	require.NoError(t, err)
	assert.Equal(t, "/m/a.mov", asked.String())
	assert.Equal(t, otime.RangeFromFrames(0, 30, 30), tl.Tracks[0].Items[0].SourceRange)
	assert.Equal(t, otime.New(24, 24), tl.Duration)
}

func TestFromMedia(t *testing.T) {
	info := media.Info{
		Video:     []media.ImageInfo{{Width: 4, Height: 4, PixelType: media.PixelRGBA8}},
		VideoTime: otime.RangeFromFrames(0, 48, 24),
		Audio:     media.AudioInfo{Channels: 2, SampleRate: 48000},
		AudioTime: otime.RangeFromFrames(0, 48000, 48000),
	}
	opts := LoadOptions{
		Fs:   afero.NewMemMapFs(),
		Info: func(media.Path, []reader.MemoryFile) (media.Info, error) { return info, nil },
	}

	tl, err := Load("/m/clip.mov", opts)
	require.NoError(t, err)
	assert.Equal(t, "/m/clip.mov", tl.Path)
	assert.Equal(t, otime.New(48, 24), tl.Duration)
	require.Len(t, tl.Tracks, 2)
	assert.Equal(t, VideoTrack, tl.Tracks[0].Kind)
	assert.Equal(t, AudioTrack, tl.Tracks[1].Kind)
	require.Len(t, tl.Tracks[1].Items, 2)
	assert.Equal(t, otime.RangeFromFrames(24, 24, 24), tl.Tracks[1].Items[1].ParentRange)

	seq := media.ParsePath("/r/shot.0010.png", media.DefaultPathOptions)
	info.VideoTime = otime.RangeFromFrames(10, 5, 24)
	info.Audio = media.AudioInfo{}
	tl, err = FromMedia(seq, info)
	require.NoError(t, err)
	require.Len(t, tl.Tracks, 1)
	clip := tl.Tracks[0].Items[0]
	assert.Equal(t, "ImageSequenceReference.1", clip.Reference.Schema)
	assert.Equal(t, int64(10), clip.Reference.StartFrame)
	assert.Equal(t, media.FrameRange{Start: 10, End: 14}, clip.Path.Sequence.MustGet())
	assert.Equal(t, otime.New(10, 24), tl.GlobalStart)

	_, err = FromMedia(seq, media.Info{})
	assert.Error(t, err)
}
