// Package handler exposes the forum over HTTP with gin.
package handler

import (
	"net/http"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/analysis"
	"queryforum/backend/internal/complaint"
	"queryforum/backend/internal/feedhub"
	"queryforum/backend/internal/localization"
	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/voting"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler holds the services behind the HTTP routes.
type Handler struct {
	Complaints *complaint.Service
	Votes      *voting.Service
	Stats      *analysis.Service
	Hub        *feedhub.ManagerService
	Guard      *access.Guard
	Localizer  *localization.Localizer
	Logger     *zap.Logger
}

func NewHandler(
	complaints *complaint.Service,
	votes *voting.Service,
	stats *analysis.Service,
	hub *feedhub.ManagerService,
	guard *access.Guard,
	localizer *localization.Localizer,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Complaints: complaints,
		Votes:      votes,
		Stats:      stats,
		Hub:        hub,
		Guard:      guard,
		Localizer:  localizer,
		Logger:     logging.OrNop(logger).Named("http"),
	}
}

// RouterOptions configure NewRouter.
type RouterOptions struct {
	Auth *Authenticator
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// UploadsDir is served at /uploads when set.
	UploadsDir string
}

// NewRouter builds the gin engine with every route.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	if opts.UploadsDir != "" {
		r.Static("/uploads", opts.UploadsDir)
	}

	api := r.Group("/api", h.SessionMiddleware(opts.Auth))
	api.POST("/profiles", h.RegisterProfile)
	api.GET("/profiles/me", h.GetProfile)
	api.GET("/categories", h.ListCategories)
	api.GET("/categories/:category/complaints", h.ListComplaints)
	api.POST("/complaints", h.CreateComplaint)
	api.GET("/complaints/:id", h.GetComplaint)
	api.POST("/complaints/:id/vote", h.CastVote)
	api.PATCH("/complaints/:id/status", h.SetStatus)
	api.POST("/complaints/:id/replies", h.PostReply)
	api.GET("/complaints/:id/replies", h.ListReplies)
	api.GET("/me/votes", h.UserVotes)
	api.GET("/stats", h.GetStats)
	api.GET("/ws", h.ServeWebSocket)

	return r
}
