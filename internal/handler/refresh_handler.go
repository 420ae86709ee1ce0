package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mashov-bridge/internal/dto"
	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
	"github.com/noah-isme/mashov-bridge/pkg/response"
)

type refresher interface {
	RefreshNow(ctx context.Context, instanceID string, wait bool) ([]models.RefreshOutcome, error)
}

// RefreshHandler triggers manual refreshes.
type RefreshHandler struct {
	service refresher
}

// NewRefreshHandler constructs the handler.
func NewRefreshHandler(svc refresher) *RefreshHandler {
	return &RefreshHandler{service: svc}
}

// Refresh godoc
// @Summary Refresh now
// @Description Refreshes one instance, or every instance when instance_id is empty. With wait the call returns after the cycles finish.
// @Tags Refresh
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RefreshRequest false "Refresh target"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /refresh [post]
func (h *RefreshHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	if id := c.Query("instance_id"); id != "" {
		req.InstanceID = id
	}

	outcomes, err := h.service.RefreshNow(c.Request.Context(), req.InstanceID, req.Wait)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusAccepted
	if req.Wait {
		status = http.StatusOK
	}
	response.JSON(c, status, dto.RefreshResponse{Outcomes: outcomes}, nil)
}
