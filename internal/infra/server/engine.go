package server

import (
	"net/http"
	"time"

	httpmw "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type EngineOptions struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.PerIP
	AllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For; other peers are keyed by
	// their socket address.
	TrustedProxies []string
}

// NewEngine builds the gin engine shared by both services: recovery,
// request id, logging, metrics, per-IP limiting, CORS, /health and /metrics.
func NewEngine(opts EngineOptions) *gin.Engine {
	router := gin.New()
	_ = router.SetTrustedProxies(opts.TrustedProxies)

	router.Use(gin.Recovery())
	router.Use(httpmw.RequestID())
	router.Use(httpmw.RequestLogger(opts.Logger))
	router.Use(httpmw.Metrics(opts.Metrics))
	if opts.Limiter != nil {
		router.Use(httpmw.NewHTTPRateLimitPerIP(opts.Limiter))
	}

	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders: []string{
				"Origin", "Content-Type", "Accept",
				"Authorization",
				"X-Requested-With",
				httpmw.RequestIDHeader,
			},
			ExposeHeaders: []string{"Content-Length", httpmw.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	return router
}
