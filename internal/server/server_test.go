package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlplay/internal/api"
	"tlplay/internal/config"
	"tlplay/internal/otime"
	"tlplay/internal/player"
	"tlplay/internal/reader"
	"tlplay/internal/reader/readertest"
	"tlplay/internal/timeline"
)

const doc = `{
  "OTIO_SCHEMA": "Timeline.1",
  "name": "served",
  "tracks": {
    "OTIO_SCHEMA": "Stack.1",
    "children": [{
      "OTIO_SCHEMA": "Track.1",
      "kind": "Video",
      "children": [{
        "OTIO_SCHEMA": "Clip.1",
        "name": "lost",
        "source_range": {"start_time": {"rate": 24, "value": 0}, "duration": {"rate": 24, "value": 48}},
        "media_reference": {"OTIO_SCHEMA": "ExternalReference.1", "target_url": "/nowhere/lost.mov"}
      }]
    }]
  }
}`

type harness struct {
	server *httptest.Server
	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tl, err := timeline.Parse([]byte(doc), "", timeline.LoadOptions{})
	require.NoError(t, err)

	registry := reader.NewRegistry(zerolog.Nop())
	registry.Register(readertest.New())
	p, err := player.New(tl, registry, player.DefaultOptions, zerolog.Nop())
	require.NoError(t, err)

	driver := player.NewDriver(p, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx, 5*time.Millisecond) }()

	srv := New(config.Default(), zerolog.Nop(), driver, nil)
	h := &harness{server: httptest.NewServer(srv.Handler()), cancel: cancel, done: done}
	t.Cleanup(func() {
		h.server.Close()
		h.stop()
		p.Close()
	})
	return h
}

func (h *harness) stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
		h.cancel = nil
	}
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp := h.get(t, "/api/v1/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, api.Version, body.Version)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestPlayerCommands(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/api/v1/player")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decodeBody[api.PlayerResponse](t, resp)
	assert.Equal(t, "stopped", state.Playback)
	assert.Equal(t, "loop", state.Loop)
	assert.EqualValues(t, 0, state.Frame)
	assert.Equal(t, 24.0, state.Rate)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		check  func(t *testing.T, s api.PlayerResponse)
	}{
		{"loop", "/api/v1/player/loop", `{"loop": "once"}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.Equal(t, "once", s.Loop)
		}},
		{"seek frame", "/api/v1/player/seek", `{"frame": 12}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.EqualValues(t, 12, s.Frame)
			assert.InDelta(t, 0.5, s.Seconds, 1e-9)
		}},
		{"seek seconds", "/api/v1/player/seek", `{"seconds": 1.5}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.EqualValues(t, 36, s.Frame)
		}},
		{"step", "/api/v1/player/step", `{"frames": -6}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.EqualValues(t, 30, s.Frame)
		}},
		{"volume", "/api/v1/player/volume", `{"volume": 0.5}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.Equal(t, 0.5, s.Volume)
		}},
		{"mute", "/api/v1/player/mute", `{"mute": true}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.True(t, s.Mute)
		}},
		{"speed", "/api/v1/player/speed", `{"speed": 2}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.Equal(t, 2.0, s.Speed)
		}},
		{"in-out", "/api/v1/player/in-out", `{"in": 10, "out": 20}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.Equal(t, otime.RangeFromFrames(10, 10, 24), s.InOut)
			assert.EqualValues(t, 20, s.Frame)
		}},
		{"in-out reset", "/api/v1/player/in-out", `{"reset": true}`, http.StatusOK, func(t *testing.T, s api.PlayerResponse) {
			assert.Equal(t, otime.RangeFromFrames(0, 48, 24), s.InOut)
		}},
		{"bad seek", "/api/v1/player/seek", `{}`, http.StatusBadRequest, nil},
		{"bad playback", "/api/v1/player/playback", `{"playback": "sideways"}`, http.StatusBadRequest, nil},
		{"bad loop", "/api/v1/player/loop", `{"loop": "forever"}`, http.StatusBadRequest, nil},
		{"bad speed", "/api/v1/player/speed", `{"speed": 0}`, http.StatusBadRequest, nil},
		{"bad in-out", "/api/v1/player/in-out", `{"in": 10, "out": 5}`, http.StatusBadRequest, nil},
		{"bad body", "/api/v1/player/mute", `{`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.post(t, tt.path, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.check != nil {
				tt.check(t, decodeBody[api.PlayerResponse](t, resp))
			} else {
				body := decodeBody[api.ErrorResponse](t, resp)
				assert.Equal(t, "BAD_REQUEST", body.Error.Code)
			}
		})
	}
}

func TestFrame(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.post(t, "/api/v1/player/seek", `{"frame": 5}`).StatusCode)

	resp := h.get(t, "/api/v1/player/frame")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, otime.FromFrame(5, 24).String(), resp.Header.Get("X-Frame-Time"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, reader.MissingImage().Info.Width, img.Bounds().Dx())

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/api/v1/player/frame", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", resp.Header.Get("ETag"))
	again, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotModified, again.StatusCode)
}

func TestTimelineAndStats(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/api/v1/timeline")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tl := decodeBody[api.TimelineResponse](t, resp)
	assert.Equal(t, "served", tl.Name)
	require.Len(t, tl.Tracks, 1)
	assert.Equal(t, "Video", tl.Tracks[0].Kind)
	require.Len(t, tl.Tracks[0].Items, 1)
	assert.Equal(t, "clip", tl.Tracks[0].Items[0].Kind)
	assert.Equal(t, "/nowhere/lost.mov", tl.Tracks[0].Items[0].Path)

	resp = h.get(t, "/api/v1/timeline/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	exported, err := timeline.Parse(data, "", timeline.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "served", exported.Name)

	resp = h.get(t, "/api/v1/io/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.get(t, "/api/v1/player/cache")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cache map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cache))
	assert.Contains(t, cache, "videoPercent")
	assert.Contains(t, cache, "videoFrames")
	assert.Contains(t, cache, "audioFrames")

	resp = h.get(t, "/api/v1/io/info-cache")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodOptions, h.server.URL+"/api/v1/player/seek", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestRequestID(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/api/v1/health")
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/api/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestStoppedDriver(t *testing.T) {
	h := newHarness(t)
	h.stop()

	resp := h.post(t, "/api/v1/player/step", `{"frames": 1}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = h.get(t, "/api/v1/player")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
