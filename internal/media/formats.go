package media

import (
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

var movieExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".mxf":  true,
}

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".aac":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".exr":  true,
	".dpx":  true,
	".cin":  true,
}

func MovieExtensions() []string { return lo.Keys(movieExtensions) }
func AudioExtensions() []string { return lo.Keys(audioExtensions) }

func IsMovie(filename string) bool {
	return movieExtensions[strings.ToLower(filepath.Ext(filename))]
}

func IsAudio(filename string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(filename))]
}

// IsImage reports whether the extension names a still image format; those
// are candidates for frame number detection.
func IsImage(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

func GetContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	case ".mxf":
		return "application/mxf"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".exr":
		return "image/x-exr"
	default:
		return "application/octet-stream"
	}
}
