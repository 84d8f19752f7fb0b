// Package server exposes the wizard flow as an HTTP API with gin.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"advance-wizard/internal/common/config"
	"advance-wizard/internal/common/logger"
	"advance-wizard/internal/wizard/session"
)

// NewRouter wires the full HTTP surface.
func NewRouter(cfg *config.Config, store *session.Store, orch StepRunner, log logger.Logger) *gin.Engine {
	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(originGuard(cfg.Server.AllowedOrigins, cfg.App.IsDevelopment(), log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandlers(store, orch, log)
	api := r.Group("/api/v1")
	{
		api.POST("/sessions", h.createSession)
		api.GET("/sessions/:id", h.getSession)
		api.POST("/sessions/:id/phone", h.submitPhone)
		api.POST("/sessions/:id/profile", h.submitProfile)
		api.POST("/sessions/:id/otp", h.submitOTP)
		api.POST("/sessions/:id/otp/resend", h.resendOTP)
		api.POST("/sessions/:id/disbursement", h.submitDisbursement)
		api.POST("/sessions/:id/amount", h.changeAmount)
		api.POST("/sessions/:id/retry", h.retry)
		api.POST("/sessions/:id/reset", h.reset)
	}

	return r
}
