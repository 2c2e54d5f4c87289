package app

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interview-scheduler/internal/logging"
	"interview-scheduler/internal/metrics"
)

// RouterConfig carries the transport settings NewRouter needs.
type RouterConfig struct {
	AllowedOrigins    []string
	JWTSecret         string
	StaticTokens      []string
	MaxRequestsPerMin int
}

// NewRouter mounts the schedule routes at /schedule and /api/schedule.
// m may be nil.
func NewRouter(a *App, cfg RouterConfig, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(recovery(a.Logger))
	router.Use(logging.Middleware(a.Logger))
	if m != nil {
		router.Use(m.Middleware())
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	// browsers refuse credentials on a wildcard origin
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))
	router.Use(RateLimitMiddleware(cfg.MaxRequestsPerMin, a.Logger))

	router.GET("/health", a.HealthHandler)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	auth := AuthMiddleware(cfg.JWTSecret, cfg.StaticTokens)
	for _, prefix := range []string{"/schedule", "/api/schedule"} {
		g := router.Group(prefix, auth)
		{
			g.GET("/slots", a.ListSlotsHandler)
			g.POST("/slots", a.CreateSlotsHandler)
			g.DELETE("/slots/:id", a.DeleteSlotHandler)

			g.GET("", a.ListScheduleHandler)
			g.POST("", a.CreateInterviewHandler)
			g.GET("/:id", a.GetInterviewHandler)
			g.PUT("/:id", a.RescheduleInterviewHandler)
			g.DELETE("/:id", a.CancelInterviewHandler)
			g.POST("/:id/complete", a.CompleteInterviewHandler)
		}
	}
	return router
}

// recovery turns a panic into the standard error envelope and logs it
// through zap instead of gin's stderr writer.
func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("unhandled panic",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal error",
			"code":    "INTERNAL_ERROR",
		})
	})
}
