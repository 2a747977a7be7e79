package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/adapters/signal"
	"github.com/dkeye/Avatar/internal/config"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/dkeye/Avatar/internal/view"
)

const (
	sessionName   = "AvatarSessions"
	viewerKey     = "viewer_id"
	toggleTimeout = 10 * time.Second
)

// ViewerMiddleware gives every browser a stable viewer id kept in the
// cookie session.
func ViewerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, _ := session.Get(viewerKey).(string)
		if _, err := domain.ParseViewerID(id); err != nil {
			id = string(domain.NewViewer().ID)
			session.Set(viewerKey, id)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save viewer session")
			}
		}
		c.Set(viewerKey, id)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ViewerMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, view.Render(ctl.Session.Snapshot()))
	})

	api.POST("/session/mute", func(c *gin.Context) {
		handleToggleMute(c, ctl)
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("viewer", c.GetString(viewerKey)).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}

func handleToggleMute(c *gin.Context, ctl *signal.SignalWSController) {
	id := domain.ViewerID(c.GetString(viewerKey))
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), toggleTimeout)
	defer cancel()
	muted, err := ctl.Session.ToggleMute(ctx)
	if err != nil {
		c.JSON(toggleStatus(err), gin.H{"error": err.Error(), "muted": muted})
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func toggleStatus(err error) int {
	var se *domain.SessionError
	switch {
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrToggleInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTerminated):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &se) && se.Kind == domain.KindMuteToggle:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
