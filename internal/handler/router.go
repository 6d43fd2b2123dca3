package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"faceattend/internal/apperrors"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logger"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Attendance      *AttendanceHandler
	Health          *HealthHandler
	Logger          *zap.Logger
	RateLimitPerMin int
	CORSOrigin      string
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(httpmiddleware.RequestIDMiddleware())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		l.Error("panic recovered",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", httpmiddleware.RequestID(c)),
			zap.String("panic", fmt.Sprint(recovered)))
		fail(c, apperrors.ErrInternal)
	}))
	r.Use(logger.GinMiddleware(l, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS(cfg.CORSOrigin))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/", Home)
	r.GET("/hi", Hi)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.Health != nil {
		r.GET("/healthz", cfg.Health.Healthz)
	}

	api := r.Group("/")
	if cfg.RateLimitPerMin > 0 {
		api.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	}
	api.GET("/classes", cfg.Attendance.Classes)
	api.POST("/upload", cfg.Attendance.Upload)
	api.GET("/export", cfg.Attendance.Export)

	return r
}
