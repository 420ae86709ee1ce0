package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

const (
	defaultLessonSummary = "שיעור"
	isoDateLayout        = "2006-01-02"
	displayDateLayout    = "02/01/2006"
	maxOccurrenceWeeks   = 53
)

type lessonClock struct {
	startHour, startMinute int
	endHour, endMinute     int
}

func (c lessonClock) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", c.startHour, c.startMinute, c.endHour, c.endMinute)
}

// Bell schedule by lesson number.
var lessonClocks = map[int]lessonClock{
	1: {8, 0, 9, 0},
	2: {9, 0, 9, 45},
	3: {10, 15, 11, 0},
	4: {11, 0, 11, 45},
	5: {12, 0, 12, 45},
	6: {12, 45, 13, 30},
}

// LessonClock returns the bell times of a lesson number.
func LessonClock(lesson int) (fmt.Stringer, bool) {
	clock, ok := lessonClocks[lesson]
	return clock, ok
}

// ParseHolidayDate parses an upstream ISO date, ignoring any time-of-day suffix.
func ParseHolidayDate(raw string, loc *time.Location) (time.Time, bool) {
	part := models.DatePart(raw)
	if part == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(isoDateLayout, part, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatHolidayDate renders an ISO date as dd/mm/yyyy. Unparseable input is
// returned without its time-of-day suffix.
func FormatHolidayDate(raw string) string {
	if t, ok := ParseHolidayDate(raw, time.UTC); ok {
		return t.Format(displayDateLayout)
	}
	return models.DatePart(raw)
}

// SchoolYearBounds returns the school year containing now, from 1 September
// to 1 July. July and August belong to the upcoming year.
func SchoolYearBounds(now time.Time) (time.Time, time.Time) {
	startYear := now.Year()
	if now.Month() < time.July {
		startYear--
	}
	loc := now.Location()
	return time.Date(startYear, time.September, 1, 0, 0, 0, 0, loc),
		time.Date(startYear+1, time.July, 1, 0, 0, 0, 0, loc)
}

type holidayRange struct {
	name  string
	start time.Time
	end   time.Time // exclusive
}

// CalendarService projects holidays and timetable slots onto concrete dates.
type CalendarService struct {
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewCalendarService constructs the service. A nil location means local time.
func NewCalendarService(loc *time.Location, logger *zap.Logger) *CalendarService {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{loc: loc, logger: logger, now: time.Now}
}

// Location returns the time zone events are projected in.
func (s *CalendarService) Location() *time.Location {
	return s.loc
}

func (s *CalendarService) holidayRanges(holidays []models.Holiday) []holidayRange {
	ranges := make([]holidayRange, 0, len(holidays))
	for _, h := range holidays {
		start, okStart := ParseHolidayDate(h.Start, s.loc)
		end, okEnd := ParseHolidayDate(h.End, s.loc)
		if !okStart || !okEnd {
			s.logger.Debug("skipping holiday with unparseable dates", zap.String("start", h.Start), zap.String("end", h.End))
			continue
		}
		name := h.Name
		if name == "" {
			name = models.DefaultHolidayName
		}
		ranges = append(ranges, holidayRange{name: name, start: start, end: end.AddDate(0, 0, 1)})
	}
	return ranges
}

func (r holidayRange) event() models.CalendarEvent {
	return models.CalendarEvent{Summary: r.name, Start: r.start, End: r.end, AllDay: true}
}

// CurrentHoliday returns the holiday containing now, else the nearest upcoming one.
func (s *CalendarService) CurrentHoliday(holidays []models.Holiday, now time.Time) *models.CalendarEvent {
	var next *holidayRange
	for _, r := range s.holidayRanges(holidays) {
		r := r
		if !now.Before(r.start) && now.Before(r.end) {
			ev := r.event()
			return &ev
		}
		if r.start.After(now) && (next == nil || r.start.Before(next.start)) {
			next = &r
		}
	}
	if next == nil {
		return nil
	}
	ev := next.event()
	return &ev
}

// HolidaysBetween returns every holiday overlapping [start, end), ordered by start then name.
func (s *CalendarService) HolidaysBetween(holidays []models.Holiday, start, end time.Time) []models.CalendarEvent {
	events := make([]models.CalendarEvent, 0)
	for _, r := range s.holidayRanges(holidays) {
		if r.end.After(start) && r.start.Before(end) {
			events = append(events, r.event())
		}
	}
	sortEvents(events)
	return events
}

// IsHoliday reports whether the calendar date of day falls inside any holiday.
func (s *CalendarService) IsHoliday(holidays []models.Holiday, day time.Time) bool {
	return inHoliday(s.holidayRanges(holidays), day.In(s.loc))
}

func inHoliday(ranges []holidayRange, day time.Time) bool {
	midnight := startOfDay(day)
	for _, r := range ranges {
		if !midnight.Before(r.start) && midnight.Before(r.end) {
			return true
		}
	}
	return false
}

// TimetableBetween projects recurring lesson slots onto every school day in
// [start, end). Holidays and dates outside the current school year yield nothing.
func (s *CalendarService) TimetableBetween(entries []models.TimetableEntry, holidays []models.Holiday, start, end time.Time) []models.CalendarEvent {
	events := make([]models.CalendarEvent, 0)
	if len(entries) == 0 {
		return events
	}
	yearStart, yearEnd := SchoolYearBounds(s.now().In(s.loc))
	from, to := start.In(s.loc), end.In(s.loc)
	if from.Before(yearStart) {
		from = yearStart
	}
	if to.After(yearEnd) {
		to = yearEnd
	}
	if !from.Before(to) {
		return events
	}

	ranges := s.holidayRanges(holidays)
	for day := startOfDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		if inHoliday(ranges, day) {
			continue
		}
		mashovDay := models.WeekdayToMashovDay(day.Weekday())
		for _, entry := range entries {
			if entry.TimeTable.Day == nil || *entry.TimeTable.Day != mashovDay {
				continue
			}
			ev, ok := lessonEvent(entry, day)
			if !ok {
				continue
			}
			if ev.End.After(start) && ev.Start.Before(end) {
				events = append(events, ev)
			}
		}
	}
	sortEvents(events)
	return events
}

// NextLesson returns the lesson in progress at now, else the earliest upcoming one.
func (s *CalendarService) NextLesson(entries []models.TimetableEntry, holidays []models.Holiday, now time.Time) *models.CalendarEvent {
	now = now.In(s.loc)
	yearStart, yearEnd := SchoolYearBounds(now)
	if now.Before(yearStart) || !now.Before(yearEnd) {
		return nil
	}

	ranges := s.holidayRanges(holidays)
	var next *models.CalendarEvent
	for _, entry := range entries {
		ev, ok := s.nextOccurrence(entry, ranges, now, yearEnd)
		if !ok {
			continue
		}
		if !now.Before(ev.Start) && now.Before(ev.End) {
			return &ev
		}
		if next == nil || ev.Start.Before(next.Start) {
			next = &ev
		}
	}
	return next
}

func (s *CalendarService) nextOccurrence(entry models.TimetableEntry, ranges []holidayRange, now, yearEnd time.Time) (models.CalendarEvent, bool) {
	if entry.TimeTable.Day == nil {
		return models.CalendarEvent{}, false
	}
	weekday, ok := models.MashovDayToWeekday(*entry.TimeTable.Day)
	if !ok {
		return models.CalendarEvent{}, false
	}
	today := startOfDay(now)
	day := today.AddDate(0, 0, (int(weekday)-int(today.Weekday())+7)%7)
	for week := 0; week < maxOccurrenceWeeks; week, day = week+1, day.AddDate(0, 0, 7) {
		if !day.Before(yearEnd) {
			return models.CalendarEvent{}, false
		}
		if inHoliday(ranges, day) {
			continue
		}
		ev, ok := lessonEvent(entry, day)
		if !ok {
			return models.CalendarEvent{}, false
		}
		if ev.End.After(now) {
			return ev, true
		}
	}
	return models.CalendarEvent{}, false
}

func lessonEvent(entry models.TimetableEntry, day time.Time) (models.CalendarEvent, bool) {
	if entry.TimeTable.Lesson == nil {
		return models.CalendarEvent{}, false
	}
	lesson := *entry.TimeTable.Lesson
	clock, ok := lessonClocks[lesson]
	if !ok {
		return models.CalendarEvent{}, false
	}

	subject := entry.Subject()
	if subject == "" {
		subject = defaultLessonSummary
	}
	room := ""
	if entry.TimeTable.RoomNum != nil {
		room = strings.TrimSpace(*entry.TimeTable.RoomNum)
	}

	lines := []string{"מקצוע: " + subject}
	if teachers := entry.TeacherNames(); len(teachers) > 0 {
		lines = append(lines, "מורה: "+strings.Join(teachers, ", "))
	}
	if room != "" {
		lines = append(lines, "כיתה: "+room)
	}
	lines = append(lines, fmt.Sprintf("שיעור: %d", lesson))

	y, m, d := day.Date()
	loc := day.Location()
	return models.CalendarEvent{
		Summary:     subject,
		Description: strings.Join(lines, "\n"),
		Location:    room,
		Start:       time.Date(y, m, d, clock.startHour, clock.startMinute, 0, 0, loc),
		End:         time.Date(y, m, d, clock.endHour, clock.endMinute, 0, 0, loc),
	}, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sortEvents(events []models.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].Summary < events[j].Summary
	})
}
