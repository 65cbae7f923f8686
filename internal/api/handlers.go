package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"tlplay/internal/otime"
	"tlplay/internal/player"
	"tlplay/internal/storage"
	"tlplay/internal/streaming"
	"tlplay/internal/timeline"
)

const Version = "0.1.0"

type Handler struct {
	driver   *player.Driver
	storage  *storage.SQLiteStorage
	logger   zerolog.Logger
	streamer *streaming.Handler
}

// NewHandler serves the player run by driver. store may be nil.
func NewHandler(driver *player.Driver, store *storage.SQLiteStorage, logger zerolog.Logger) *Handler {
	return &Handler{
		driver:   driver,
		storage:  store,
		logger:   logger,
		streamer: streaming.NewHandler(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.playerState())
}

func (h *Handler) playerState() PlayerResponse {
	p := h.driver.Player()
	current := p.CurrentTime().Get()
	return PlayerResponse{
		ID:          p.ID().String(),
		Timeline:    p.Timeline().Path,
		Rate:        p.Rate(),
		Playback:    p.Playback().Get().String(),
		Loop:        p.Loop().Get().String(),
		Frame:       current.Frame(p.Rate()),
		Seconds:     current.Seconds(),
		InOut:       p.InOutRange().Get(),
		Speed:       p.Speed().Get(),
		Volume:      p.Volume().Get(),
		Mute:        p.Mute().Get(),
		MuteTimeout: p.MuteTimeout().Get(),
		Underruns:   p.Underruns(),
	}
}

func (h *Handler) GetCacheInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.driver.Player().CacheInfo().Get())
}

func (h *Handler) GetIOStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.driver.Player().IOStats())
}

func (h *Handler) SetPlayback(w http.ResponseWriter, r *http.Request) {
	var req PlaybackRequest
	if !decode(w, r, &req) {
		return
	}
	pb, err := player.ParsePlayback(req.Playback)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	h.do(w, r, func(p *player.Player) { p.SetPlayback(pb) })
}

func (h *Handler) SetLoop(w http.ResponseWriter, r *http.Request) {
	var req LoopRequest
	if !decode(w, r, &req) {
		return
	}
	loop, err := player.ParseLoop(req.Loop)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	h.do(w, r, func(p *player.Player) { p.SetLoop(loop) })
}

func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !decode(w, r, &req) {
		return
	}
	rate := h.driver.Player().Rate()
	var t otime.RationalTime
	switch {
	case req.Frame != nil:
		t = otime.FromFrame(*req.Frame, rate)
	case req.Seconds != nil:
		t = otime.FromSeconds(*req.Seconds, rate)
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Frame or seconds required")
		return
	}
	h.do(w, r, func(p *player.Player) { p.Seek(t) })
}

func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Speed <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Speed must be positive")
		return
	}
	h.do(w, r, func(p *player.Player) { p.SetSpeed(req.Speed) })
}

func (h *Handler) SetVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !decode(w, r, &req) {
		return
	}
	h.do(w, r, func(p *player.Player) { p.SetVolume(req.Volume) })
}

func (h *Handler) SetMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if !decode(w, r, &req) {
		return
	}
	h.do(w, r, func(p *player.Player) { p.SetMute(req.Mute) })
}

func (h *Handler) SetInOut(w http.ResponseWriter, r *http.Request) {
	var req InOutRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Reset && req.Out <= req.In {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Out must be after in")
		return
	}
	h.do(w, r, func(p *player.Player) {
		if req.Reset {
			p.ResetInOutRange()
			return
		}
		p.SetInOutRange(otime.RangeFromFrames(req.In, req.Out-req.In, p.Rate()))
	})
}

func (h *Handler) Step(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if !decode(w, r, &req) {
		return
	}
	h.do(w, r, func(p *player.Player) { p.Step(req.Frames) })
}

// do runs fn on the tick goroutine and answers with the resulting state.
func (h *Handler) do(w http.ResponseWriter, r *http.Request, fn func(*player.Player)) {
	err := h.driver.Do(r.Context(), func(p *player.Player) {
		fn(p)
		p.Tick()
	})
	switch {
	case errors.Is(err, player.ErrDriverStopped):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Player stopped")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Request canceled")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("player command failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Player command failed")
		return
	}
	writeJSON(w, http.StatusOK, h.playerState())
}

func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	video := h.driver.Player().CurrentVideo().Get()
	layer, ok := lo.Find(video.Layers, func(l player.VideoLayer) bool { return l.Image != nil })
	if !ok {
		writeError(w, http.StatusNotFound, "FRAME_NOT_READY", "No frame decoded yet")
		return
	}
	h.streamer.ServeImage(w, r, layer.Image, video.Time)
}

func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	p := h.driver.Player()
	tl := p.Timeline()
	resp := TimelineResponse{
		Name:  tl.Name,
		Path:  tl.Path,
		Rate:  p.Rate(),
		Range: tl.GlobalRange(),
		Tracks: lo.Map(tl.Tracks, func(track *timeline.Track, _ int) TrackNode {
			return trackNode(track)
		}),
	}
	writeJSON(w, http.StatusOK, resp)
}

func trackNode(track *timeline.Track) TrackNode {
	node := TrackNode{Kind: string(track.Kind), Name: track.Name}
	for _, item := range track.Items {
		node.Items = append(node.Items, ItemNode{
			Kind:  item.Kind.String(),
			Name:  item.Name,
			Path:  item.Path.String(),
			Range: item.ParentRange,
		})
	}
	for _, tx := range track.Transitions {
		node.Items = append(node.Items, ItemNode{
			Kind:       tx.Kind.String(),
			Name:       tx.Name,
			Range:      tx.ParentRange,
			Transition: tx.TransitionType,
		})
	}
	return node
}

// ExportTimeline writes the loaded timeline as an OpenTimelineIO document.
func (h *Handler) ExportTimeline(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.driver.Player().Timeline().Save(w); err != nil {
		h.logger.Error().Err(err).Msg("failed to export timeline")
	}
}

func (h *Handler) GetInfoCache(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Info cache disabled")
		return
	}
	records, err := h.storage.ListInfo(100)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list info cache")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list info cache")
		return
	}
	writeJSON(w, http.StatusOK, InfoCacheResponse{Items: records})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
