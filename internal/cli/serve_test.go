package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pixelmorph/pkg/cache"
	"github.com/matzehuels/pixelmorph/pkg/morph"
)

func newTestServer(t *testing.T, opts ...func(*server)) (*server, *httptest.Server) {
	t.Helper()
	cfg := defaultFileConfig()
	cfg.Server.MaxMorphs = 2
	s := newServer(cache.NewNullCache(), cfg, newLogger(io.Discard, LogInfo))
	for _, opt := range opts {
		opt(s)
	}
	ts := httptest.NewServer(s.routes())
	t.Cleanup(func() {
		ts.Close()
		s.close()
	})
	return s, ts
}

func startForm(t *testing.T, src, dst []byte, config string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range map[string][]byte{"source": src, "target": dst} {
		if data == nil {
			continue
		}
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	if config != "" {
		require.NoError(t, mw.WriteField("config", config))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func postMorph(t *testing.T, ts *httptest.Server, src, dst []byte, config string) *http.Response {
	t.Helper()
	body, ct := startForm(t, src, dst, config)
	resp, err := http.Post(ts.URL+"/morphs", ct, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerMorphRoundTrip(t *testing.T) {
	s, ts := newTestServer(t)
	src := encodePNG(t, quadrants([4]color.RGBA{red, green, blue, white}))
	dst := encodePNG(t, quadrants([4]color.RGBA{white, blue, green, red}))

	resp := postMorph(t, ts, src, dst, `{"resolution": 2, "scale": 2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started startResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.Equal(t, 2, started.Status.Resolution)

	s.mu.Lock()
	sess := s.morphs[started.ID]
	s.mu.Unlock()
	require.NotNil(t, sess)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sess.handle.Wait(ctx))

	resp = do(t, http.MethodGet, ts.URL+"/morphs/"+started.ID.String()+"/frame?dt=16ms")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get("X-Morph-Frame"))
	frame, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 4, frame.Bounds().Dx())
	assert.Equal(t, 4, frame.Bounds().Dy())

	resp = do(t, http.MethodGet, ts.URL+"/morphs/"+started.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status morph.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, started.ID, status.ID)
	assert.Equal(t, 1, status.Frame)
	assert.Equal(t, 4, status.Particles)

	resp = do(t, http.MethodDelete, ts.URL+"/morphs/"+started.ID.String())
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/morphs/"+started.ID.String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerErrors(t *testing.T) {
	_, ts := newTestServer(t)
	img := encodePNG(t, quadrants([4]color.RGBA{red, green, blue, white}))

	tests := []struct {
		name   string
		resp   func() *http.Response
		status int
		code   string
	}{
		{
			name:   "missing target",
			resp:   func() *http.Response { return postMorph(t, ts, img, nil, "") },
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "undecodable image",
			resp:   func() *http.Response { return postMorph(t, ts, img, []byte("not an image"), "") },
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "bad config json",
			resp:   func() *http.Response { return postMorph(t, ts, img, img, "{") },
			status: http.StatusBadRequest,
			code:   "INVALID_CONFIG",
		},
		{
			name:   "invalid resolution",
			resp:   func() *http.Response { return postMorph(t, ts, img, img, `{"resolution": -1}`) },
			status: http.StatusBadRequest,
			code:   "INVALID_CONFIG",
		},
		{
			name:   "zero resolution",
			resp:   func() *http.Response { return postMorph(t, ts, img, img, `{"resolution": 0}`) },
			status: http.StatusBadRequest,
			code:   "INVALID_CONFIG",
		},
		{
			name: "zero genetic population",
			resp: func() *http.Response {
				return postMorph(t, ts, img, img, `{"resolution": 2, "algorithm": "genetic", "genetic": {"population_size": 0}}`)
			},
			status: http.StatusBadRequest,
			code:   "INVALID_CONFIG",
		},
		{
			name:   "resolution above image size",
			resp:   func() *http.Response { return postMorph(t, ts, img, img, `{"resolution": 16}`) },
			status: http.StatusBadRequest,
			code:   "IMAGE_SIZE_MISMATCH",
		},
		{
			name:   "malformed id",
			resp:   func() *http.Response { return do(t, http.MethodGet, ts.URL+"/morphs/nope") },
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "unknown id",
			resp:   func() *http.Response { return do(t, http.MethodGet, ts.URL+"/morphs/6f1c64a4-7e43-4b1e-9d55-3f3f0c1e2a10") },
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp()
			assert.Equal(t, tt.status, resp.StatusCode)
			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestServerFrameRejectsBadDT(t *testing.T) {
	_, ts := newTestServer(t)
	img := encodePNG(t, quadrants([4]color.RGBA{red, green, blue, white}))

	resp := postMorph(t, ts, img, img, `{"resolution": 2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started startResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))

	for _, dt := range []string{"fast", "-1ms", "2s"} {
		resp := do(t, http.MethodGet, ts.URL+"/morphs/"+started.ID.String()+"/frame?dt="+dt)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "dt=%s", dt)
	}
}

func TestServerMaxMorphs(t *testing.T) {
	_, ts := newTestServer(t)
	img := encodePNG(t, quadrants([4]color.RGBA{red, green, blue, white}))

	for i := 0; i < 2; i++ {
		resp := postMorph(t, ts, img, img, `{"resolution": 2}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := postMorph(t, ts, img, img, `{"resolution": 2}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerEvictsIdleMorphs(t *testing.T) {
	var clock atomic.Int64
	clock.Store(time.Now().UnixNano())
	s, ts := newTestServer(t, func(s *server) {
		s.now = func() time.Time { return time.Unix(0, clock.Load()) }
	})
	img := encodePNG(t, quadrants([4]color.RGBA{red, green, blue, white}))

	for i := 0; i < 2; i++ {
		resp := postMorph(t, ts, img, img, `{"resolution": 2}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	clock.Add(int64(defaultIdleTTL + time.Second))
	resp := postMorph(t, ts, img, img, `{"resolution": 2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.morphs, 1)
}
