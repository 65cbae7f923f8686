package streaming

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"strconv"

	"tlplay/internal/media"
	"tlplay/internal/otime"
)

// Handler serves decoded frames as PNG.
type Handler struct {
	encoder png.Encoder
}

func NewHandler() *Handler {
	return &Handler{encoder: png.Encoder{CompressionLevel: png.BestSpeed}}
}

// ServeImage writes img, tagging the response with the frame's time.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request, img *media.Image, t otime.RationalTime) {
	var buf bytes.Buffer
	if err := h.encoder.Encode(&buf, img.ToImage()); err != nil {
		http.Error(w, "Cannot encode frame", http.StatusInternalServerError)
		return
	}

	etag := fmt.Sprintf(`"%g-%g-%p"`, t.Value, t.Rate, img)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Frame-Time", t.String())

	if r.Method == http.MethodHead {
		return
	}
	w.Write(buf.Bytes())
}
