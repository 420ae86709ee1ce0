package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mashov-bridge/internal/dto"
	"github.com/noah-isme/mashov-bridge/internal/models"
	"github.com/noah-isme/mashov-bridge/internal/service"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
	"github.com/noah-isme/mashov-bridge/pkg/response"
)

type resultReader interface {
	Result(id string) (*models.FetchResult, error)
	StudentData(instanceID, slug string) (models.StudentSummary, models.StudentData, error)
}

// CalendarHandler projects holidays and timetables onto calendar events.
type CalendarHandler struct {
	results  resultReader
	calendar *service.CalendarService
	now      func() time.Time
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(results resultReader, calendar *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{results: results, calendar: calendar, now: time.Now}
}

// CurrentHoliday godoc
// @Summary Current or next holiday
// @Tags Calendar
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/calendar/holidays/current [get]
func (h *CalendarHandler) CurrentHoliday(c *gin.Context) {
	result, err := h.results.Result(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	event := h.calendar.CurrentHoliday(result.Holidays, h.now().In(h.calendar.Location()))
	if event == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no current or upcoming holiday"))
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Holidays godoc
// @Summary Holidays in a range
// @Tags Calendar
// @Produce json
// @Param id path string true "Instance ID"
// @Param start query string true "Range start"
// @Param end query string true "Range end (exclusive)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /instances/{id}/calendar/holidays [get]
func (h *CalendarHandler) Holidays(c *gin.Context) {
	start, end, ok := h.bindRange(c)
	if !ok {
		return
	}
	result, err := h.results.Result(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.calendar.HolidaysBetween(result.Holidays, start, end), nil)
}

// Timetable godoc
// @Summary Timetable events in a range
// @Description Lesson slots projected onto dates, skipping holidays and dates outside the school year.
// @Tags Calendar
// @Produce json
// @Param id path string true "Instance ID"
// @Param slug path string true "Student slug"
// @Param start query string true "Range start"
// @Param end query string true "Range end (exclusive)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /instances/{id}/students/{slug}/calendar [get]
func (h *CalendarHandler) Timetable(c *gin.Context) {
	start, end, ok := h.bindRange(c)
	if !ok {
		return
	}
	result, data, ok := h.studentTimetable(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, h.calendar.TimetableBetween(data.Timetable, result.Holidays, start, end), nil)
}

// NextLesson godoc
// @Summary Current or next lesson
// @Tags Calendar
// @Produce json
// @Param id path string true "Instance ID"
// @Param slug path string true "Student slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/students/{slug}/calendar/next [get]
func (h *CalendarHandler) NextLesson(c *gin.Context) {
	result, data, ok := h.studentTimetable(c)
	if !ok {
		return
	}
	event := h.calendar.NextLesson(data.Timetable, result.Holidays, h.now().In(h.calendar.Location()))
	if event == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no upcoming lesson"))
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

func (h *CalendarHandler) studentTimetable(c *gin.Context) (*models.FetchResult, models.StudentData, bool) {
	id := c.Param("id")
	_, data, err := h.results.StudentData(id, c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return nil, models.StudentData{}, false
	}
	result, err := h.results.Result(id)
	if err != nil {
		response.Error(c, err)
		return nil, models.StudentData{}, false
	}
	return result, data, true
}

func (h *CalendarHandler) bindRange(c *gin.Context) (time.Time, time.Time, bool) {
	var q dto.DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.Start == "" || q.End == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start and end are required"))
		return time.Time{}, time.Time{}, false
	}
	start, ok1 := h.parseTime(q.Start)
	end, ok2 := h.parseTime(q.End)
	if !ok1 || !ok2 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dates must be YYYY-MM-DD or RFC 3339"))
		return time.Time{}, time.Time{}, false
	}
	if !end.After(start) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "end must be after start"))
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (h *CalendarHandler) parseTime(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(h.calendar.Location()), true
	}
	return service.ParseHolidayDate(raw, h.calendar.Location())
}
