package handlers

import (
	"context"
	"net/http"
	"time"

	"report-intake-pipeline/dedup"
	"report-intake-pipeline/models"
	"report-intake-pipeline/rules"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const serviceName = "report-intake-pipeline"

// Processor decides one report.
type Processor interface {
	Process(ctx context.Context, report models.Report) models.ClassificationResult
}

// DedupStats reports the sizes of the duplicate stores.
type DedupStats interface {
	Stats() dedup.Stats
}

// DecisionCounter reports persisted decision counts.
type DecisionCounter interface {
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

// Handlers represents the HTTP handlers
type Handlers struct {
	processor Processor
	table     *rules.Table
	dedup     DedupStats
	counter   DecisionCounter
}

// NewHandlers creates new HTTP handlers. counter may be nil when decisions
// are not stored in a database.
func NewHandlers(processor Processor, table *rules.Table, dd DedupStats, counter DecisionCounter) *Handlers {
	return &Handlers{
		processor: processor,
		table:     table,
		dedup:     dd,
		counter:   counter,
	}
}

// RegisterRoutes mounts all endpoints on router.
func (h *Handlers) RegisterRoutes(router gin.IRouter) {
	router.GET("/", h.HealthCheck)
	router.POST("/submit", h.SubmitReport)

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.POST("/reports", h.SubmitReport)
		api.GET("/rules", h.GetRules)
		api.GET("/stats", h.GetStats)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ML API running",
		"service":       serviceName,
		"rules_version": h.table.Version,
		"time":          time.Now().UTC().Format(time.RFC3339),
	})
}

// SubmitReport runs a report through the pipeline. Accepted and rejected
// reports both answer 200; only an unreadable body is a client error.
func (h *Handlers) SubmitReport(c *gin.Context) {
	var report models.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		log.WithError(err).Warn("invalid report body")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result := h.processor.Process(c.Request.Context(), report)
	c.JSON(http.StatusOK, result)
}

type categoryInfo struct {
	Name        models.Category `json:"name"`
	Keywords    int             `json:"keywords"`
	ImageLabels []string        `json:"image_labels"`
}

// GetRules describes the active rule table.
func (h *Handlers) GetRules(c *gin.Context) {
	categories := make([]categoryInfo, 0, len(h.table.Categories))
	for _, cat := range h.table.Categories {
		categories = append(categories, categoryInfo{
			Name:        cat.Name,
			Keywords:    len(cat.Keywords),
			ImageLabels: cat.ImageLabels,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"version":    h.table.Version,
		"categories": categories,
	})
}

// GetStats returns duplicate store sizes and, with a database, decision counts.
func (h *Handlers) GetStats(c *gin.Context) {
	resp := gin.H{
		"service": serviceName,
		"dedup":   h.dedup.Stats(),
	}

	if h.counter != nil {
		counts, err := h.counter.CountByStatus(c.Request.Context())
		if err != nil {
			log.WithError(err).Error("failed to count decisions")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get decision counts",
			})
			return
		}
		resp["decisions"] = counts
	}

	c.JSON(http.StatusOK, resp)
}
