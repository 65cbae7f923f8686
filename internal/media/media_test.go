package media

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		opts    PathOptions
		dir     string
		base    string
		number  string
		padding int
		ext     string
	}{
		{"movie", "/media/shot.mov", PathOptions{}, "/media/", "shot", "", 0, ".mov"},
		{"file url", "file:///media/my%20shot.mov", PathOptions{}, "/media/", "my shot", "", 0, ".mov"},
		{"padded sequence", "/r/render.0001.exr", DefaultPathOptions, "/r/", "render.", "0001", 4, ".exr"},
		{"unpadded sequence", "render.12.png", DefaultPathOptions, "", "render.", "12", 0, ".png"},
		{"numbers only", "0100.jpg", DefaultPathOptions, "", "", "0100", 4, ".jpg"},
		{"no sequence detection", "shot2.mov", PathOptions{}, "", "shot2", "", 0, ".mov"},
		{"windows", `C:\media\a.0010.png`, DefaultPathOptions, `C:\media\`, "a.", "0010", 4, ".png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePath(tt.in, tt.opts)
			assert.Equal(t, tt.dir, p.Directory)
			assert.Equal(t, tt.base, p.BaseName)
			assert.Equal(t, tt.number, p.Number)
			assert.Equal(t, tt.padding, p.Padding)
			assert.Equal(t, tt.ext, p.Extension)
		})
	}
}

func TestPathSequence(t *testing.T) {
	p := ParsePath("/r/render.0001.exr", DefaultPathOptions)

	assert.True(t, p.IsSequence())
	assert.Equal(t, "/r/render.0001.exr", p.String())
	assert.Equal(t, "/r/render.0042.exr", p.Frame(42))
	assert.Equal(t, "/r/render.%04d.exr", p.Pattern())
	n, ok := p.FrameNumber()
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)

	movie := ParsePath("/m/a.mov", PathOptions{})
	assert.Equal(t, "/m/a.mov", movie.Pattern())
	assert.Equal(t, ".mov", movie.Ext())
}

func TestPathJoin(t *testing.T) {
	p := ParsePath("media/a.mov", PathOptions{})
	assert.Equal(t, "/docs/media/a.mov", p.Join("/docs").String())

	abs := ParsePath("/abs/a.mov", PathOptions{})
	assert.Equal(t, "/abs/a.mov", abs.Join("/docs").String())
}

func TestImage(t *testing.T) {
	info := ImageInfo{Width: 4, Height: 2, PixelType: PixelRGBA8}
	assert.Equal(t, 32, info.ByteCount())
	assert.Equal(t, 4*2+2*2*1, ImageInfo{Width: 4, Height: 2, PixelType: PixelYUV420P8}.ByteCount())

	img := NewImage(info)
	assert.True(t, img.IsBlack())

	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(1, 1, color.NRGBA{R: 255, A: 255})
	converted := FromImage(src)
	require.Equal(t, PixelRGBA8, converted.Info.PixelType)
	assert.False(t, converted.IsBlack())
	assert.Equal(t, uint8(255), converted.Data[(1*2+1)*4])

	back := converted.ToImage()
	assert.Equal(t, image.Rect(0, 0, 2, 2), back.Bounds())
}

func TestAudio(t *testing.T) {
	a := NewAudio(AudioInfo{Channels: 1, SampleRate: 100}, 100)
	for i := range a.Samples {
		a.Samples[i] = 1
	}
	assert.Equal(t, 100, a.FrameCount())
	assert.Equal(t, int64(400), a.ByteCount())

	r := a.Resample(200)
	assert.Equal(t, 200, r.FrameCount())
	assert.Equal(t, float32(1), r.Samples[57])

	dst := make([]float32, 2*10)
	MixInto(dst, 2, 5, a, 0, 10)
	assert.Equal(t, float32(0), dst[9])
	assert.Equal(t, float32(1), dst[10])
	assert.Equal(t, float32(1), dst[11])
	assert.Equal(t, float32(1), dst[19])
}
