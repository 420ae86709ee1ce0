package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mashov-bridge/internal/dto"
	"github.com/noah-isme/mashov-bridge/internal/models"
	"github.com/noah-isme/mashov-bridge/internal/service"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
	"github.com/noah-isme/mashov-bridge/pkg/response"
)

type studentReader interface {
	Status(id string) (*models.InstanceStatus, error)
	StudentData(instanceID, slug string) (models.StudentSummary, models.StudentData, error)
}

type exporter interface {
	Export(instanceID, slug string, kind models.DataKind, format service.ExportFormat) (*service.ExportResult, error)
}

// StudentHandler serves the full, unbounded data of each student.
type StudentHandler struct {
	service  studentReader
	exporter exporter
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(svc studentReader, exp exporter) *StudentHandler {
	return &StudentHandler{service: svc, exporter: exp}
}

// List godoc
// @Summary Students of an instance
// @Tags Students
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	status, err := h.service.Status(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status.Students, nil)
}

// Get godoc
// @Summary Student data
// @Description Full data of the last successful refresh, optionally narrowed to one kind.
// @Tags Students
// @Produce json
// @Param id path string true "Instance ID"
// @Param slug path string true "Student slug"
// @Param kind query string false "homework, behavior, weekly_plan, timetable or lessons_history"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /instances/{id}/students/{slug} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, data, err := h.service.StudentData(c.Param("id"), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	out := dto.StudentDataResponse{Student: student, Data: data}
	if raw := c.Query("kind"); raw != "" {
		kind := models.DataKind(raw)
		if !kind.Valid() || kind == models.KindHolidays {
			response.Error(c, appErrors.Clonef(appErrors.ErrValidation, "unknown kind %q", raw))
			return
		}
		out.Data = data.Items(kind)
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Export godoc
// @Summary Export student data
// @Tags Students
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Instance ID"
// @Param slug path string true "Student slug"
// @Param kind query string true "homework, timetable or lessons_history"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/students/{slug}/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	kind := models.DataKind(c.Query("kind"))
	if !exportable(kind) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "kind must be one of homework, timetable, lessons_history"))
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportCSV)))
	if format != service.ExportCSV && format != service.ExportPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}

	out, err := h.exporter.Export(c.Param("id"), c.Param("slug"), kind, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Payload)
}

func exportable(kind models.DataKind) bool {
	for _, k := range service.ExportableKinds {
		if k == kind {
			return true
		}
	}
	return false
}
