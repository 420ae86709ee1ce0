package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/mashov-bridge/internal/dto"
	"github.com/noah-isme/mashov-bridge/internal/middleware"
	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
	"github.com/noah-isme/mashov-bridge/pkg/response"
)

type instanceManager interface {
	List() []models.InstanceStatus
	Status(id string) (*models.InstanceStatus, error)
	Diagnostics(ctx context.Context, id string) (*models.InstanceDiagnostics, error)
	Reconfigure(ctx context.Context, id string, update models.InstanceOptions) (*models.InstanceStatus, error)
	Unload(ctx context.Context, id string) error
	NextRuns(id string) ([]time.Time, error)
	Runs(ctx context.Context, filter models.RefreshRunFilter) ([]models.RefreshRun, *models.Pagination, error)
}

// InstanceHandler exposes instance status and management endpoints.
type InstanceHandler struct {
	service   instanceManager
	validator *validator.Validate
}

// NewInstanceHandler constructs the handler.
func NewInstanceHandler(svc instanceManager, validate *validator.Validate) *InstanceHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &InstanceHandler{service: svc, validator: validate}
}

// List godoc
// @Summary List instances
// @Tags Instances
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /instances [get]
func (h *InstanceHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.List(), nil)
}

// Get godoc
// @Summary Get instance status
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id} [get]
func (h *InstanceHandler) Get(c *gin.Context) {
	status, err := h.service.Status(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Diagnostics godoc
// @Summary Instance diagnostics
// @Description Configuration with credentials redacted, schedule in effect and last refresh.
// @Tags Instances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/diagnostics [get]
func (h *InstanceHandler) Diagnostics(c *gin.Context) {
	diag, err := h.service.Diagnostics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, diag, nil)
}

// UpdateOptions godoc
// @Summary Update instance options
// @Description Applies structured options, persists them and re-arms the refresh schedule.
// @Tags Instances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID"
// @Param payload body dto.UpdateOptionsRequest true "Options"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/options [put]
func (h *InstanceHandler) UpdateOptions(c *gin.Context) {
	var req dto.UpdateOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid options payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}
	status, err := h.service.Reconfigure(c.Request.Context(), c.Param("id"), req.Options())
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{}
	if claims := middleware.Claims(c); claims != nil {
		meta["updated_by"] = claims.Username
	}
	response.JSON(c, http.StatusOK, status, nil, meta)
}

// Unload godoc
// @Summary Unload instance
// @Description Stops the schedule, closes the upstream session and drops published state.
// @Tags Instances
// @Security BearerAuth
// @Param id path string true "Instance ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /instances/{id} [delete]
func (h *InstanceHandler) Unload(c *gin.Context) {
	if err := h.service.Unload(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// NextRuns godoc
// @Summary Pending scheduled refreshes
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/schedule [get]
func (h *InstanceHandler) NextRuns(c *gin.Context) {
	id := c.Param("id")
	status, err := h.service.Status(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	runs, err := h.service.NextRuns(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := dto.NextRunsResponse{InstanceID: id, Schedule: status.Options.Schedule, NextRuns: make([]string, len(runs))}
	for i, at := range runs {
		out.NextRuns[i] = at.Format(time.RFC3339)
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Runs godoc
// @Summary Refresh history
// @Tags Refresh
// @Produce json
// @Param instance_id query string false "Instance ID"
// @Param status query string false "running, succeeded or failed"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /refresh/runs [get]
func (h *InstanceHandler) Runs(c *gin.Context) {
	var q dto.RefreshRunQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	if err := h.validator.Struct(q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}
	filter := models.RefreshRunFilter{InstanceID: q.InstanceID, Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := models.RefreshStatus(q.Status)
		filter.Status = &status
	}
	runs, page, err := h.service.Runs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, page)
}
