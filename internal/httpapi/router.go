// Package httpapi exposes the operator surface over HTTP with gin, plus the
// /health and /metrics endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmate/campaign-service/internal/campaign"
	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/scheduler"
)

// Scanner runs one campaign scan on demand.
type Scanner interface {
	RunCampaign(ctx context.Context, c *model.Campaign, now time.Time) scheduler.ScanResult
}

// Postings reads the stored copy of a fetched posting.
type Postings interface {
	GetPosting(ctx context.Context, key model.PostingKey) (*model.JobPosting, error)
}

// Deps are the services the router serves.
type Deps struct {
	Campaigns *campaign.Service
	Cards     *kanban.Service
	// Scanner enables POST /campaigns/:id/scan when set.
	Scanner Scanner
	// Postings enables GET /cards/:id/posting when set.
	Postings Postings
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
	Version  string
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(d.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "campaign-service",
			"version": d.Version,
		})
	})
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	h := &handlers{campaigns: d.Campaigns, cards: d.Cards, scanner: d.Scanner, postings: d.Postings}
	v1 := router.Group("/api/v1", RequireUser())

	v1.POST("/campaigns", h.createCampaign)
	v1.GET("/campaigns", h.listCampaigns)
	v1.GET("/campaigns/:id", h.getCampaign)
	v1.PUT("/campaigns/:id", h.updateCampaign)
	v1.POST("/campaigns/:id/pause", h.pauseCampaign)
	v1.POST("/campaigns/:id/resume", h.resumeCampaign)
	v1.DELETE("/campaigns/:id", h.archiveCampaign)
	v1.POST("/campaigns/:id/scan", h.scanCampaign)

	v1.GET("/cards", h.listCards)
	v1.GET("/cards/:id", h.getCard)
	v1.GET("/cards/:id/posting", h.getCardPosting)
	v1.POST("/cards/:id/transition", h.transitionCard)
	v1.PUT("/cards/:id/notes", h.addNote)
	v1.PUT("/cards/:id/dates", h.setDates)
	v1.POST("/cards/:id/contacts", h.addContact)

	return router
}

type handlers struct {
	campaigns *campaign.Service
	cards     *kanban.Service
	scanner   Scanner
	postings  Postings
}
