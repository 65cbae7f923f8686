package reader

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

func TestFuture(t *testing.T) {
	t.Run("first resolve wins", func(t *testing.T) {
		f := NewFuture[int]()
		assert.False(t, f.Ready())
		assert.True(t, f.Resolve(1, nil))
		assert.False(t, f.Resolve(2, nil))

		v, err := f.Wait()
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("get honours context", func(t *testing.T) {
		f := NewFuture[int]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.Get(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("callbacks", func(t *testing.T) {
		f := NewFuture[string]()
		var got []string
		f.OnDone(func(v string, _ error) { got = append(got, "a:"+v) })
		f.Resolve("x", nil)
		f.OnDone(func(v string, _ error) { got = append(got, "b:"+v) })
		assert.Equal(t, []string{"a:x", "b:x"}, got)
	})

	t.Run("release fires once holders drop to zero", func(t *testing.T) {
		f := NewFuture[int]()
		var released atomic.Int32
		f.OnRelease(func() { released.Add(1) })
		f.Acquire()
		f.Acquire()
		f.Release()
		assert.Equal(t, int32(0), released.Load())
		f.Release()
		assert.Equal(t, int32(1), released.Load())
		f.Release()
		assert.Equal(t, int32(1), released.Load())
	})

	t.Run("release after resolve is quiet", func(t *testing.T) {
		f := NewFuture[int]()
		var released bool
		f.OnRelease(func() { released = true })
		f.Acquire()
		f.Resolve(1, nil)
		f.Release()
		assert.False(t, released)
	})
}

func TestPool(t *testing.T) {
	p := NewPool(1)
	started := make(chan struct{})
	gate := make(chan struct{})

	first := Go(p, NewFuture[int](), -1, func(ctx context.Context) (int, error) {
		close(started)
		<-gate
		return 1, nil
	})
	second := Go(p, NewFuture[int](), -1, func(ctx context.Context) (int, error) {
		return 2, nil
	})

	<-started
	assert.Equal(t, 1, p.Pending())
	p.Cancel()
	p.Cancel()

	v, err := second.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, -1, v)

	_, err = first.Wait()
	assert.ErrorIs(t, err, ErrCanceled)

	close(gate)
	p.Close()

	late := Go(p, NewFuture[int](), -1, func(ctx context.Context) (int, error) { return 3, nil })
	_, err = late.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestOptions(t *testing.T) {
	base := Options{"b": "2", "a": "1"}
	merged := base.Merge(Options{"a": "x", OptionSequenceThreadCount: "8"})

	assert.Equal(t, "1", base["a"])
	assert.Equal(t, "x", merged["a"])
	assert.Equal(t, 8, merged.Int(OptionSequenceThreadCount, 1))
	assert.Equal(t, 3, merged.Int("missing", 3))
	assert.True(t, Options{OptionFFmpegYUVToRGB: "true"}.Bool(OptionFFmpegYUVToRGB, false))
	assert.Equal(t, "a:1;b:2", base.Fingerprint())
	assert.Equal(t, "", Options{}.Fingerprint())
}

func TestErrors(t *testing.T) {
	err := error(&Error{Kind: OpenError, Path: "/a.mov", Err: assert.AnError})
	assert.True(t, IsKind(err, OpenError))
	assert.False(t, IsKind(err, DecodeError))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "open error: /a.mov")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	fs := afero.NewMemMapFs()
	r.Register(NewSequence(fs))
	r.Register(NewFFmpeg(fs, nil))

	assert.Equal(t, 2, r.Len())
	assert.Contains(t, r.Extensions(), ".png")
	assert.Contains(t, r.Extensions(), ".mov")

	_, err := r.Read(media.ParsePath("/a.xyz", media.DefaultPathOptions), nil, nil)
	assert.True(t, IsKind(err, PluginMissing))

	_, err = r.Read(media.ParsePath("/missing.mov", media.PathOptions{}), nil, nil)
	assert.True(t, IsKind(err, OpenError))

	_, err = r.Write(media.ParsePath("/a.mov", media.PathOptions{}), media.Info{}, nil)
	assert.True(t, IsKind(err, PluginMissing))
}

func TestMissing(t *testing.T) {
	r := NewMissing(media.ParsePath("/gone.mov", media.PathOptions{}))
	assert.True(t, IsMissing(r))

	frame, err := r.ReadVideo(otime.New(10, 24), nil).Wait()
	require.NoError(t, err)
	require.NotNil(t, frame.Image)
	assert.True(t, frame.Image.IsBlack())

	audio, err := r.ReadAudio(otime.RangeFromFrames(0, 480, 48000), nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, 480, audio.Audio.FrameCount())
	for _, s := range audio.Audio.Samples {
		assert.Zero(t, s)
	}
	assert.NoError(t, r.Close())
}

func encodePNG(t *testing.T, v uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: v, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSequence(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 10; i <= 14; i++ {
		name := media.ParsePath("/seq/shot.0010.png", media.DefaultPathOptions).Frame(int64(i))
		require.NoError(t, afero.WriteFile(fs, name, encodePNG(t, uint8(i)), 0o644))
	}
	require.NoError(t, afero.WriteFile(fs, "/seq/shot.10.png", []byte("unpadded"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/seq/other.0001.png", encodePNG(t, 1), 0o644))

	path := media.ParsePath("/seq/shot.0010.png", media.DefaultPathOptions)
	frames, err := ScanSequence(fs, path)
	require.NoError(t, err)
	assert.Equal(t, media.FrameRange{Start: 10, End: 14}, frames)

	r, err := NewSequence(fs).Read(path, nil, Options{OptionSequenceDefaultSpeed: "25"}, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	info, err := r.Info().Wait()
	require.NoError(t, err)
	require.Len(t, info.Video, 1)
	assert.Equal(t, 2, info.Video[0].Width)
	assert.Equal(t, otime.RangeFromFrames(10, 5, 25), info.VideoTime)
	assert.Same(t, r.Info(), r.Info())

	frame, err := r.ReadVideo(otime.New(12, 25), nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, uint8(12), frame.Image.Data[0])

	clamped, err := r.ReadVideo(otime.New(99, 25), nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, uint8(14), clamped.Image.Data[0])
}

func TestSequenceMemory(t *testing.T) {
	path := media.ParsePath("mem/frame.0001.png", media.DefaultPathOptions)
	memory := []MemoryFile{encodePNG(t, 1), encodePNG(t, 2), []byte("broken")}

	r, err := NewSequence(afero.NewMemMapFs()).Read(path, memory, nil, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	info, err := r.Info().Wait()
	require.NoError(t, err)
	assert.Equal(t, otime.RangeFromFrames(1, 3, 24), info.VideoTime)

	frame, err := r.ReadVideo(otime.New(2, 24), nil).Wait()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), frame.Image.Data[0])

	broken, err := r.ReadVideo(otime.New(3, 24), nil).Wait()
	assert.True(t, IsKind(err, DecodeError))
	assert.Nil(t, broken.Image)
}

func TestSequenceWriter(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewSequence(fs)
	path := media.ParsePath("/out/render.0001.png", media.DefaultPathOptions)

	w, err := p.Write(path, media.Info{VideoTime: otime.RangeFromFrames(0, 10, 24)}, nil, zerolog.Nop())
	require.NoError(t, err)
	img := media.NewImage(media.ImageInfo{Width: 2, Height: 2, PixelType: media.PixelRGBA8})
	require.NoError(t, w.WriteVideo(otime.New(7, 24), img))
	require.NoError(t, w.Close())

	ok, err := afero.Exists(fs, "/out/render.0007.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseProbe(t *testing.T) {
	output := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
			 "r_frame_rate": "24000/1001", "nb_frames": "240", "start_time": "0.000000"},
			{"codec_type": "audio", "codec_name": "aac", "channels": 2, "sample_rate": "48000",
			 "duration": "10.010000"}
		],
		"format": {"format_name": "mov,mp4", "duration": "10.010000", "bit_rate": "5000000",
			"tags": {"timecode": "01:00:00:00"}}
	}`)

	info, err := parseProbe(output, media.PixelRGBA8)
	require.NoError(t, err)

	require.True(t, info.HasVideo())
	assert.Equal(t, media.ImageInfo{Width: 1920, Height: 1080, PixelType: media.PixelRGBA8}, info.Video[0])
	assert.InDelta(t, otime.Rate23976, info.VideoTime.Rate(), 1e-9)
	assert.Equal(t, float64(240), info.VideoTime.Duration.Value)

	require.True(t, info.HasAudio())
	assert.Equal(t, media.AudioInfo{Channels: 2, SampleRate: 48000}, info.Audio)
	assert.Equal(t, float64(480480), info.AudioTime.Duration.Value)

	assert.Equal(t, "H264", info.Tags["Video Codec"])
	assert.Equal(t, "01:00:00:00", info.Tags["timecode"])

	_, err = parseProbe([]byte("not json"), media.PixelRGBA8)
	assert.Error(t, err)
}

func TestParseRatio(t *testing.T) {
	assert.Equal(t, 24.0, parseRatio("24/1"))
	assert.Equal(t, 25.0, parseRatio("25"))
	assert.Equal(t, 0.0, parseRatio("1/0"))
}
