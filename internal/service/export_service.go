package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
	"github.com/noah-isme/mashov-bridge/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// ExportableKinds lists the kinds that can be exported.
var ExportableKinds = []models.DataKind{models.KindHomework, models.KindTimetable, models.KindLessonsHistory}

// ExportResult is a rendered export file.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type studentDataSource interface {
	StudentData(instanceID, slug string) (models.StudentSummary, models.StudentData, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportService renders the full data of one student as CSV or PDF.
type ExportService struct {
	source studentDataSource
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(source studentDataSource, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	return &ExportService{source: source, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export renders one kind of a student's data.
func (s *ExportService) Export(instanceID, slug string, kind models.DataKind, format ExportFormat) (*ExportResult, error) {
	student, data, err := s.source.StudentData(instanceID, slug)
	if err != nil {
		return nil, err
	}
	dataset, err := buildDataset(student, data, kind)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportCSV:
		payload, err = s.csv.Render(dataset)
	case ExportPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("export rendered",
		zap.String("instance", instanceID),
		zap.String("student", slug),
		zap.String("kind", string(kind)),
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)),
		zap.Int("bytes", len(payload)))

	return &ExportResult{
		Filename:    fmt.Sprintf("%s_%s_%s.%s", slug, kind, s.now().Format("20060102"), format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

func buildDataset(student models.StudentSummary, data models.StudentData, kind models.DataKind) (export.Dataset, error) {
	switch kind {
	case models.KindHomework:
		return homeworkDataset(student, data.Homework), nil
	case models.KindTimetable:
		return timetableDataset(student, data.Timetable), nil
	case models.KindLessonsHistory:
		return historyDataset(student, data.LessonsHistory), nil
	default:
		return export.Dataset{}, fmt.Errorf("unsupported export kind %s", kind)
	}
}

func homeworkDataset(student models.StudentSummary, items []models.Homework) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for _, h := range items {
		rows = append(rows, map[string]string{
			"date":     FormatHolidayDate(str(h.LessonDate)),
			"lesson":   num(h.Lesson),
			"subject":  str(h.SubjectName),
			"homework": str(h.Homework),
			"remark":   str(h.Remark),
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("%s - homework", student.Name),
		Columns: []export.Column{
			{Key: "date", Header: "Date"},
			{Key: "lesson", Header: "Lesson", Weight: 0.6},
			{Key: "subject", Header: "Subject", Weight: 1.4},
			{Key: "homework", Header: "Homework", Weight: 3},
			{Key: "remark", Header: "Remark", Weight: 1.5},
		},
		Rows: rows,
	}
}

func timetableDataset(student models.StudentSummary, entries []models.TimetableEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		row := map[string]string{
			"day":      "",
			"lesson":   num(e.TimeTable.Lesson),
			"time":     "",
			"subject":  e.Subject(),
			"teachers": strings.Join(e.TeacherNames(), ", "),
			"room":     strings.TrimSpace(str(e.TimeTable.RoomNum)),
		}
		if e.TimeTable.Day != nil {
			if wd, ok := models.MashovDayToWeekday(*e.TimeTable.Day); ok {
				row["day"] = wd.String()
			}
		}
		if e.TimeTable.Lesson != nil {
			if clock, ok := LessonClock(*e.TimeTable.Lesson); ok {
				row["time"] = clock.String()
			}
		}
		rows = append(rows, row)
	}
	return export.Dataset{
		Title: fmt.Sprintf("%s - timetable", student.Name),
		Columns: []export.Column{
			{Key: "day", Header: "Day"},
			{Key: "lesson", Header: "Lesson", Weight: 0.6},
			{Key: "time", Header: "Time"},
			{Key: "subject", Header: "Subject", Weight: 1.5},
			{Key: "teachers", Header: "Teachers", Weight: 2},
			{Key: "room", Header: "Room", Weight: 0.8},
		},
		Rows: rows,
	}
}

func historyDataset(student models.StudentSummary, items []models.LessonHistory) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for _, h := range items {
		took := ""
		if h.TookPlace != nil {
			took = strconv.FormatBool(*h.TookPlace)
		}
		subject := str(h.SubjectName)
		if subject == "" {
			subject = str(h.GroupName)
		}
		rows = append(rows, map[string]string{
			"date":       FormatHolidayDate(str(h.LessonDate)),
			"lesson":     num(h.Lesson),
			"subject":    subject,
			"took_place": took,
			"homework":   str(h.Homework),
			"remark":     str(h.Remark),
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("%s - lesson history", student.Name),
		Columns: []export.Column{
			{Key: "date", Header: "Date"},
			{Key: "lesson", Header: "Lesson", Weight: 0.6},
			{Key: "subject", Header: "Subject", Weight: 1.4},
			{Key: "took_place", Header: "Took place", Weight: 0.8},
			{Key: "homework", Header: "Homework", Weight: 2},
			{Key: "remark", Header: "Remark", Weight: 1.5},
		},
		Rows: rows,
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
