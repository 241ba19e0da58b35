package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/adapters/signal"
	"github.com/tasteshift/live/internal/app/orch"
	"github.com/tasteshift/live/internal/config"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// corsMiddleware lets browser clients on other origins use the records API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, store core.RecordStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	sessStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TasteShiftSessions", sessStore))
	r.Use(ClientTokenMiddleware())
	r.Use(corsMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(o, cfg.ReadLimit, cfg.PingPeriod)
	api.GET("/ws/directory", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws directory endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	records := NewRecordsHandler(store, NewCommentRateLimiter(cfg.Records.CommentLimit, cfg.Records.CommentWindow))
	records.Register(api.Group("/stories"))

	api.GET("/health", func(c *gin.Context) {
		channels := o.Channels()
		if channels == nil {
			channels = []domain.Identity{}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "peers": o.Registry.Len(), "channels": channels})
	})

	return r
}
