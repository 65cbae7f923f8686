package media

import (
	"image"
	"image/draw"
)

type PixelType int

const (
	PixelNone PixelType = iota
	PixelL8
	PixelRGBA8
	// PixelYUV420P8 is planar 8-bit YUV with quarter-size chroma planes.
	PixelYUV420P8
)

func (t PixelType) String() string {
	switch t {
	case PixelL8:
		return "L_U8"
	case PixelRGBA8:
		return "RGBA_U8"
	case PixelYUV420P8:
		return "YUV_420P_U8"
	default:
		return "None"
	}
}

type ImageInfo struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	PixelType PixelType `json:"pixel_type"`
}

func (i ImageInfo) IsValid() bool {
	return i.Width > 0 && i.Height > 0 && i.PixelType != PixelNone
}

// ByteCount is the size of the pixel buffer described by i.
func (i ImageInfo) ByteCount() int {
	n := i.Width * i.Height
	switch i.PixelType {
	case PixelL8:
		return n
	case PixelRGBA8:
		return n * 4
	case PixelYUV420P8:
		cw, ch := (i.Width+1)/2, (i.Height+1)/2
		return n + 2*cw*ch
	default:
		return 0
	}
}

// Image is an immutable decoded picture. Images are shared between caches
// by pointer and must not be modified once published.
type Image struct {
	Info ImageInfo
	Data []byte
	Tags map[string]string
}

// NewImage allocates a zeroed (black) image.
func NewImage(info ImageInfo) *Image {
	return &Image{Info: info, Data: make([]byte, info.ByteCount())}
}

func (i *Image) ByteCount() int64 {
	if i == nil {
		return 0
	}
	return int64(len(i.Data))
}

// IsBlack reports whether every pixel value is zero.
func (i *Image) IsBlack() bool {
	for _, b := range i.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// FromImage converts a decoded standard library image to RGBA8.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}
	return &Image{
		Info: ImageInfo{Width: b.Dx(), Height: b.Dy(), PixelType: PixelRGBA8},
		Data: rgba.Pix,
	}
}

// ToImage wraps the pixel buffer as a standard library image without copying.
func (i *Image) ToImage() image.Image {
	w, h := i.Info.Width, i.Info.Height
	rect := image.Rect(0, 0, w, h)
	switch i.Info.PixelType {
	case PixelL8:
		return &image.Gray{Pix: i.Data, Stride: w, Rect: rect}
	case PixelRGBA8:
		return &image.RGBA{Pix: i.Data, Stride: w * 4, Rect: rect}
	case PixelYUV420P8:
		cw, ch := (w+1)/2, (h+1)/2
		y := i.Data[:w*h]
		cb := i.Data[w*h : w*h+cw*ch]
		cr := i.Data[w*h+cw*ch : w*h+2*cw*ch]
		return &image.YCbCr{
			Y:              y,
			Cb:             cb,
			Cr:             cr,
			YStride:        w,
			CStride:        cw,
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           rect,
		}
	default:
		return image.NewRGBA(rect)
	}
}
