package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/internal/pipeline"
)

// Drafts exposes the draft table read-only.
type Drafts interface {
	Snapshot() []domain.Draft
	Stats() map[domain.DraftState]int
}

// Cycles triggers and reports ingestion cycles.
type Cycles interface {
	StartCycle(ctx context.Context) error
	Running() bool
	LastReport() (pipeline.CycleReport, bool)
}

// Options wires the HTTP surface.
type Options struct {
	// Interactions handles signed Discord interaction webhooks.
	Interactions gin.HandlerFunc
	Drafts       Drafts
	Cycles       Cycles
	Gatherer     prometheus.Gatherer
	// BaseContext outlives individual requests; manually triggered cycles run on it.
	BaseContext context.Context
	// AdminToken is the bearer token /api requires. When empty the /api routes are
	// not registered.
	AdminToken string
	Logger     logger.Logger
}

type handlers struct {
	drafts Drafts
	cycles Cycles
	base   context.Context
	log    logger.Logger
}

// NewRouter constructs a gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handlers{
		drafts: opts.Drafts,
		cycles: opts.Cycles,
		base:   opts.BaseContext,
		log:    logger.Ensure(opts.Logger),
	}
	if h.base == nil {
		h.base = context.Background()
	}

	r.GET("/healthz", handleHealth)
	if opts.Interactions != nil {
		r.POST("/discord/interactions", opts.Interactions)
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.AdminToken == "" {
		return r
	}
	api := r.Group("/api", requireBearer(opts.AdminToken))
	if h.drafts != nil {
		api.GET("/drafts", h.listDrafts)
	}
	if h.cycles != nil {
		api.GET("/cycles/last", h.lastCycle)
		api.POST("/cycles", h.startCycle)
	}
	return r
}

func requireBearer(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="localainews"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listDrafts(c *gin.Context) {
	state := domain.DraftState(c.Query("state"))
	all := h.drafts.Snapshot()
	out := make([]domain.Draft, 0, len(all))
	for _, d := range all {
		if state == "" || d.State == state {
			out = append(out, d)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"drafts": out,
		"stats":  h.drafts.Stats(),
	})
}

func (h *handlers) lastCycle(c *gin.Context) {
	report, ok := h.cycles.LastReport()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has run yet", "running": h.cycles.Running()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "running": h.cycles.Running()})
}

func (h *handlers) startCycle(c *gin.Context) {
	err := h.cycles.StartCycle(h.base)
	switch {
	case errors.Is(err, pipeline.ErrCycleRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.log.ErrorObj("manual cycle failed to start", "server_cycle_start_failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.log.InfoObj("manual cycle started", "server_cycle_started", map[string]any{"remote": c.ClientIP()})
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	}
}
