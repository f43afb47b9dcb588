package http

import (
	"context"
	"io"
	"net/http"

	"github.com/avelin/peercall/internal/adapters/signal"
	"github.com/avelin/peercall/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, hub *signal.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	r.GET("/ws", func(c *gin.Context) {
		hub.HandleWS(ctx, c)
	})

	// Broadcast to every websocket client. Lets a peer signal over plain
	// HTTP POST while receiving over its websocket.
	r.POST("/send", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, cfg.ReadLimit))
		if err != nil {
			c.String(http.StatusBadRequest, "read body")
			return
		}
		hub.Broadcast(body)
		c.String(http.StatusOK, "sent\n")
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"clients": hub.ClientCount()})
	})

	return r
}
