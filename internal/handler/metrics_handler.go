package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mashov-bridge/internal/models"
	"github.com/noah-isme/mashov-bridge/internal/service"
	"github.com/noah-isme/mashov-bridge/pkg/response"
)

type instanceLister interface {
	List() []models.InstanceStatus
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics   *service.MetricsService
	instances instanceLister
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, instances instanceLister) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, instances: instances}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports ok while at least one instance is available, or while
// nothing is configured yet.
func (h *MetricsHandler) Health(c *gin.Context) {
	statuses := h.instances.List()
	available := 0
	for _, st := range statuses {
		if st.State == models.InstanceAvailable {
			available++
		}
	}
	status, code := "ok", http.StatusOK
	if len(statuses) > 0 && available == 0 {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "instances": len(statuses), "available": available})
}

// System godoc
// @Summary Service metrics snapshot
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/metrics [get]
func (h *MetricsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
