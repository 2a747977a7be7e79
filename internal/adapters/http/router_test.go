package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Avatar/internal/adapters/signal"
	"github.com/dkeye/Avatar/internal/app"
	"github.com/dkeye/Avatar/internal/app/sfu"
	"github.com/dkeye/Avatar/internal/config"
	"github.com/dkeye/Avatar/internal/domain"
)

type stubSession struct {
	snap app.Snapshot
	err  error
}

func (s *stubSession) Snapshot() app.Snapshot { return s.snap }

func (s *stubSession) Subscribe() (<-chan app.Snapshot, func()) {
	ch := make(chan app.Snapshot, 1)
	ch <- s.snap
	return ch, func() {}
}

func (s *stubSession) ToggleMute(context.Context) (bool, error) {
	if s.err != nil {
		return s.snap.Muted, s.err
	}
	s.snap.Muted = !s.snap.Muted
	return s.snap.Muted, nil
}

func newRouter(t *testing.T, sess signal.Session, limiter *signal.MuteRateLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>overlay</html>"), 0o644))

	cfg := &config.Config{Mode: "test", StaticPath: dir, Secret: "test-secret"}
	ctl := &signal.SignalWSController{
		Session:  sess,
		Registry: app.NewRegistry(),
		Stage:    app.NewStage(sfu.NewRelayManager()),
		Limiter:  limiter,
	}
	return SetupRouter(context.Background(), cfg, ctl)
}

func TestRouter_Index(t *testing.T) {
	r := newRouter(t, &stubSession{snap: app.Snapshot{State: domain.Initializing{}}}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "overlay")
	assert.NotEmpty(t, w.Result().Cookies(), "viewer cookie issued")
}

func TestViewerMiddleware_IssuesStableID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions(sessionName, cookie.NewStore([]byte("test-secret"))))
	r.Use(ViewerMiddleware())
	r.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(viewerKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
	id := w.Body.String()
	_, err := uuid.Parse(id)
	require.NoError(t, err, "viewer id %q", id)

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, id, w.Body.String())
}

func TestRouter_SessionView(t *testing.T) {
	f := domain.NewFailed(domain.NewSessionError(domain.KindTimeout, domain.MsgTimeout, nil))
	r := newRouter(t, &stubSession{snap: app.Snapshot{State: f}}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["phase"])
	assert.Equal(t, "Stream initialization timeout", body["error"])
}

func TestRouter_ToggleMute(t *testing.T) {
	r := newRouter(t, &stubSession{snap: app.Snapshot{State: domain.Starting{}}}, signal.NewMuteRateLimiter(1, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session/mute", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"muted":true}`, w.Body.String())
}

func TestRouter_ToggleMuteRateLimited(t *testing.T) {
	r := newRouter(t, &stubSession{snap: app.Snapshot{State: domain.Starting{}}}, signal.NewMuteRateLimiter(1, 1<<62))

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/session/mute", nil))
	require.Equal(t, http.StatusOK, first.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/session/mute", nil)
	for _, c := range first.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestToggleStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNoSession, http.StatusConflict},
		{domain.ErrToggleInFlight, http.StatusConflict},
		{domain.ErrTerminated, http.StatusGone},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{domain.NewSessionError(domain.KindMuteToggle, "", errors.New("ws closed")), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toggleStatus(tt.err), tt.err.Error())
	}
}
