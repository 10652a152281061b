package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ringline/ringline/internal/adapters/signal"
	"github.com/ringline/ringline/internal/app"
	"github.com/ringline/ringline/internal/config"
	"github.com/ringline/ringline/internal/token"
)

// ClientTokenMiddleware tags every browser with a stable cookie token so
// connections from the same client can be correlated in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, _ := c.Cookie("ct")
		if t == "" {
			t = uuid.NewString()
			c.SetCookie("ct", t, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", t)
		c.Next()
	}
}

// SetupRouter wires REST + WS routes.
// - REST is under /api/*
// - WebSocket upgrade lives at /api/ws/signal
func SetupRouter(ctx context.Context, cfg *config.Config, engine *app.Engine, issuer *token.Issuer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RinglineSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &CallHandler{
		Engine:  engine,
		Issuer:  issuer,
		Limiter: app.NewCallRateLimiter(cfg.CallLimit, cfg.CallWindow),
		TTL:     cfg.TokenTTL,
	}

	api := r.Group("/api")
	api.POST("/token", h.IssueToken)
	api.POST("/start-call", h.StartCall)
	api.POST("/accept-call", h.AcceptCall)
	api.POST("/reject-call", h.RejectCall)
	api.POST("/end-call", h.EndCall)

	ctl := signal.NewController(engine, h.Limiter, cfg)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}
