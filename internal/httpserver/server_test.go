package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/tphakala/longrec/internal/catalog"
	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/recorder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRecorder struct {
	mu          sync.Mutex
	recording   bool
	path        string
	maxDuration time.Duration
	startErr    error
	last        *recorder.Block
	stopped     *recorder.StopEvent
}

func (f *fakeRecorder) Start(path string, maxDuration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.recording, f.path, f.maxDuration = true, path, maxDuration
	return nil
}

func (f *fakeRecorder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recording {
		// the final flush lands after any status read taken while recording
		f.stopped = &recorder.StopEvent{
			SessionID: "s1", Path: f.path, Reason: recorder.StopManual,
			BlocksCaptured: 40, BlocksWritten: 40, Flushes: 3,
		}
	}
	f.recording = false
	return nil
}

func (f *fakeRecorder) LastStop() (recorder.StopEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped == nil {
		return recorder.StopEvent{}, false
	}
	return *f.stopped, true
}

func (f *fakeRecorder) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeRecorder) Metadata() recorder.Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	md := recorder.Metadata{SampleRate: 48000, BlockSize: 2400, BlockLength: 0.05, RecordingTime: -1}
	if f.recording {
		md.Recording = true
		md.RecordingTime = 1.5
	}
	return md
}

func (f *fakeRecorder) Status() recorder.Status {
	st := recorder.Status{Metadata: f.Metadata()}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recording {
		st.SessionID = "s1"
		st.Path = f.path
	}
	return st
}

func (f *fakeRecorder) LastBlock() *recorder.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeCatalog struct{}

func (fakeCatalog) Sessions(int) ([]catalog.Session, error) {
	return []catalog.Session{{ID: "b"}, {ID: "a"}}, nil
}

func (fakeCatalog) Session(id string) (*catalog.Session, error) {
	if id != "a" {
		return nil, fmt.Errorf("lookup: %w", gorm.ErrRecordNotFound)
	}
	return &catalog.Session{ID: "a", Segments: []catalog.Segment{{File: "/rec/a.wav"}}}, nil
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Recorder.OutputDir = t.TempDir()
	s.Recorder.DefaultFormat = "wav"
	s.Recorder.MaxDuration = time.Hour
	s.WebServer.Listen = "127.0.0.1:0"
	return s
}

func newTestServer(t *testing.T, settings *conf.Settings, rec Recorder, opts Options) *Server {
	t.Helper()
	return New(settings, rec, opts, logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil))
}

func do(t *testing.T, s *Server, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestStartStopLifecycle(t *testing.T) {
	settings := testSettings(t)
	fr := &fakeRecorder{}
	s := newTestServer(t, settings, fr, Options{})

	resp := do(t, s, http.MethodGet, "/api/v1/metadata", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var md recorder.Metadata
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &md))
	assert.False(t, md.Recording)
	assert.InDelta(t, -1.0, md.RecordingTime, 1e-9)

	resp = do(t, s, http.MethodPost, "/api/v1/start", `{"path":"night/take.wav","max_duration":"90m"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, filepath.Join(settings.Recorder.OutputDir, "night", "take.wav"), fr.path)
	assert.Equal(t, 90*time.Minute, fr.maxDuration)

	resp = do(t, s, http.MethodPost, "/api/v1/start", `{}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = do(t, s, http.MethodGet, "/api/v1/status", "")
	var st recorder.Status
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &st))
	assert.True(t, st.Recording)
	assert.Equal(t, "s1", st.SessionID)

	resp = do(t, s, http.MethodPost, "/api/v1/stop", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &st))
	assert.False(t, st.Recording)
	assert.Equal(t, "s1", st.SessionID)
	assert.Equal(t, int64(40), st.BlocksWritten, "counters include the final flush")
	assert.Equal(t, int64(3), st.Flushes)
	assert.False(t, fr.IsRecording())

	resp = do(t, s, http.MethodPost, "/api/v1/stop", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestStartDefaults(t *testing.T) {
	settings := testSettings(t)
	fr := &fakeRecorder{}
	s := newTestServer(t, settings, fr, Options{})

	resp := do(t, s, http.MethodPost, "/api/v1/start", `{}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, settings.Recorder.OutputDir, filepath.Dir(fr.path))
	assert.Equal(t, ".wav", filepath.Ext(fr.path))
	assert.Equal(t, time.Hour, fr.maxDuration)
	require.NoError(t, fr.Stop())

	resp = do(t, s, http.MethodPost, "/api/v1/start", `{"discard":true,"path":"ignored.wav"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, fr.path)
}

func TestStartRejectsBadInput(t *testing.T) {
	s := newTestServer(t, testSettings(t), &fakeRecorder{}, Options{})

	for _, body := range []string{
		`{"path":"../escape.wav"}`,
		`{"path":"/etc/passwd.wav"}`,
		`{"max_duration":"forever"}`,
		`{"max_duration":"-5s"}`,
		`not json`,
	} {
		resp := do(t, s, http.MethodPost, "/api/v1/start", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
}

func TestStartMapsRecorderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"exists", errors.New(fmt.Errorf("%w: take.wav", recorder.ErrAlreadyExists)).Category(errors.CategoryFileExists).Build(), http.StatusConflict},
		{"device", errors.New(fmt.Errorf("%w: unplugged", recorder.ErrDevice)).Category(errors.CategoryAudioDevice).Build(), http.StatusServiceUnavailable},
		{"format", errors.Newf("mp3 cannot be appended").Category(errors.CategoryFormat).Build(), http.StatusBadRequest},
		{"other", errors.NewStd("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testSettings(t), &fakeRecorder{startErr: tt.err}, Options{})
			resp := do(t, s, http.MethodPost, "/api/v1/start", `{}`)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestLive(t *testing.T) {
	fr := &fakeRecorder{}
	s := newTestServer(t, testSettings(t), fr, Options{})

	resp := do(t, s, http.MethodGet, "/api/v1/live", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	fr.last = &recorder.Block{Samples: []int16{3, -900, 12}, Frames: 3, Channels: 1}
	resp = do(t, s, http.MethodGet, "/api/v1/live", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var live LiveResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &live))
	assert.Equal(t, 900, live.Peak)
	assert.Equal(t, []int16{3, -900, 12}, live.Samples)
	assert.Equal(t, "ok", live.Status)
}

func TestAPITokenRequired(t *testing.T) {
	settings := testSettings(t)
	settings.WebServer.APIToken = "s3cret-token"
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "longrec_recording 0\n")
	})
	s := newTestServer(t, settings, &fakeRecorder{}, Options{Metrics: metrics})

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/v1/status", "", "Authorization", "Bearer wrong").Code)
	assert.NotEqual(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/status", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/status", "", "Authorization", "Bearer s3cret-token").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/health", "").Code)

	resp := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "longrec_recording 0")
}

func TestHealthReportsDisk(t *testing.T) {
	settings := testSettings(t)
	s := newTestServer(t, settings, &fakeRecorder{}, Options{})
	resp := do(t, s, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	require.NotNil(t, h.Disk)
	assert.Positive(t, h.Disk.TotalBytes)
}

func TestSessionRoutes(t *testing.T) {
	s := newTestServer(t, testSettings(t), &fakeRecorder{}, Options{Catalog: fakeCatalog{}})

	resp := do(t, s, http.MethodGet, "/api/v1/sessions?limit=1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list []catalog.Session
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.NotEmpty(t, list)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/sessions?limit=x", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/sessions/a", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/sessions/zz", "").Code)
}

func TestSessionRoutesAbsentWithoutCatalog(t *testing.T) {
	s := newTestServer(t, testSettings(t), &fakeRecorder{}, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/sessions", "").Code)
}

func TestListenAndServeShutsDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	settings := testSettings(t)
	settings.WebServer.Listen = addr
	s := newTestServer(t, settings, &fakeRecorder{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}
