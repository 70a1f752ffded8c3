package http

import (
	"net/http"
	"time"

	"challenge-service/internal/app"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig holds what NewRouter wires together.
type RouterConfig struct {
	Service        *app.ChallengeService
	Hub            Subscriber
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter builds the HTTP surface: REST API, websocket endpoint, health and metrics.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), MetricsMiddleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := NewWSHandler(cfg.Service, cfg.Hub, logger, cfg.AllowedOrigins)
	r.GET("/ws", gin.WrapF(ws.ServeWS))

	NewAPI(cfg.Service, logger).Register(r)
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", UserHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
