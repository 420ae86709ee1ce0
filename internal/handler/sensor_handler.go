package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mashov-bridge/internal/middleware"
	"github.com/noah-isme/mashov-bridge/internal/models"
	"github.com/noah-isme/mashov-bridge/pkg/response"
)

type sensorReader interface {
	Sensors(ctx context.Context, id string) ([]models.SensorState, error)
	Sensor(ctx context.Context, id, key string) (*models.SensorState, error)
	Status(id string) (*models.InstanceStatus, error)
}

// SensorHandler serves the bounded per-kind state published after each refresh.
type SensorHandler struct {
	service sensorReader
}

// NewSensorHandler constructs the handler.
func NewSensorHandler(svc sensorReader) *SensorHandler {
	return &SensorHandler{service: svc}
}

// List godoc
// @Summary Published sensors of an instance
// @Tags Sensors
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/sensors [get]
func (h *SensorHandler) List(c *gin.Context) {
	id := c.Param("id")
	states, err := h.service.Sensors(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.annotate(c, id)
	response.JSON(c, http.StatusOK, states, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary One published sensor
// @Tags Sensors
// @Produce json
// @Param id path string true "Instance ID"
// @Param key path string true "Sensor key, e.g. mashov_dana_levi_homework"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/sensors/{key} [get]
func (h *SensorHandler) Get(c *gin.Context) {
	id := c.Param("id")
	state, err := h.service.Sensor(c.Request.Context(), id, c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.annotate(c, id)
	response.JSON(c, http.StatusOK, state, nil, middleware.ExtractMeta(c))
}

// annotate marks state served while the instance is unavailable as stale.
func (h *SensorHandler) annotate(c *gin.Context, id string) {
	status, err := h.service.Status(id)
	if err != nil {
		return
	}
	middleware.SetMeta(c, "available", status.State == models.InstanceAvailable)
	if status.Error != "" {
		middleware.SetMeta(c, "error", status.Error)
	}
}
