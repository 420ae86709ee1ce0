package mashov

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

// Keys under which upstream deployments have been seen wrapping list payloads.
var listKeys = []string{"items", "data", "results", "value", "list"}

// extractList accepts a list, or an object wrapping a list under one of the
// given keys, and returns the list. Anything else yields nil.
func extractList(raw any, keys ...string) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range append(keys, listKeys...) {
			if list, ok := v[key].([]any); ok {
				return list
			}
		}
	}
	return nil
}

// normalizeEach applies fn to every object in list. A panicking or rejected
// item is skipped.
func normalizeEach[T any](list []any, fn func(map[string]any) (T, bool)) []T {
	out := make([]T, 0, len(list))
	for _, raw := range list {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if rec, ok := safeNormalize(item, fn); ok {
			out = append(out, rec)
		}
	}
	return out
}

func safeNormalize[T any](item map[string]any, fn func(map[string]any) (T, bool)) (rec T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fn(item)
}

// first returns the first non-nil value found under any alias.
func first(m map[string]any, aliases ...string) any {
	for _, alias := range aliases {
		if v, exists := m[alias]; exists && v != nil {
			return v
		}
	}
	return nil
}

func object(m map[string]any, aliases ...string) map[string]any {
	obj, _ := first(m, aliases...).(map[string]any)
	return obj
}

func str(m map[string]any, aliases ...string) *string {
	for _, alias := range aliases {
		if s, ok := toString(m[alias]); ok {
			return &s
		}
	}
	return nil
}

func integer(m map[string]any, aliases ...string) *int {
	for _, alias := range aliases {
		if n, ok := toInt(m[alias]); ok {
			return &n
		}
	}
	return nil
}

func boolean(m map[string]any, aliases ...string) *bool {
	for _, alias := range aliases {
		switch v := m[alias].(type) {
		case bool:
			return &v
		case float64:
			b := v != 0
			return &b
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return &b
			}
		}
	}
	return nil
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

// NormalizeHomework maps a raw homework payload into homework records.
func NormalizeHomework(raw any) []models.Homework {
	return normalizeEach(extractList(raw, "homework"), func(m map[string]any) (models.Homework, bool) {
		return models.Homework{
			LessonID:    str(m, "lessonId", "lesson_id", "id"),
			LessonDate:  str(m, "lessonDate", "lesson_date", "date"),
			Lesson:      integer(m, "lesson", "lessonNum", "lesson_number"),
			SubjectName: str(m, "subjectName", "subject_name", "subject"),
			Homework:    str(m, "homework", "homeworkText", "text", "content"),
			Remark:      str(m, "remark", "remarks", "note"),
			GroupID:     str(m, "groupId", "group_id"),
		}, true
	})
}

// NormalizeBehavior maps a raw behavior payload into behavior records.
func NormalizeBehavior(raw any) []models.Behavior {
	return normalizeEach(extractList(raw, "behave", "behaviour", "behavior"), func(m map[string]any) (models.Behavior, bool) {
		return models.Behavior{
			StudentGUID:     str(m, "studentGuid", "student_guid"),
			EventCode:       integer(m, "eventCode", "event_code"),
			LessonID:        str(m, "lessonId", "lesson_id"),
			LessonDate:      str(m, "lessonDate", "lesson_date", "date", "eventDate"),
			Lesson:          integer(m, "lesson", "lessonNum", "lesson_number"),
			Subject:         str(m, "subject", "subjectName", "subject_name"),
			TeacherName:     str(m, "reporter", "teacherName", "teacher_name", "teacher"),
			AchvaCode:       integer(m, "achvaCode", "achva_code"),
			AchvaName:       str(m, "achvaName", "achva_name"),
			JustificationID: str(m, "justificationId", "justification_id"),
			Justification:   str(m, "justification"),
		}, true
	})
}

func timetableEntry(m map[string]any) models.TimetableEntry {
	slot := object(m, "timeTable", "time_table", "timetable")
	if slot == nil {
		slot = m
	}
	group := object(m, "groupDetails", "group_details", "group")
	if group == nil {
		group = m
	}
	teachers := extractList(first(group, "groupTeachers", "group_teachers", "teachers"))
	if teachers == nil {
		teachers = extractList(first(m, "groupTeachers", "group_teachers", "teachers"))
	}

	return models.TimetableEntry{
		TimeTable: models.TimeTableSlot{
			Day:     integer(slot, "day", "weekDay", "dayOfWeek"),
			Lesson:  integer(slot, "lesson", "lessonNum", "lesson_number"),
			RoomNum: str(slot, "roomNum", "room_num", "room"),
			GroupID: str(slot, "groupId", "group_id"),
		},
		GroupDetails: models.GroupDetails{
			SubjectName:   str(group, "subjectName", "subject_name", "subject"),
			GroupName:     str(group, "groupName", "group_name"),
			GroupTeachers: normalizeEach(teachers, groupTeacher),
		},
	}
}

func groupTeacher(m map[string]any) (models.GroupTeacher, bool) {
	t := models.GroupTeacher{
		TeacherName: str(m, "teacherName", "teacher_name", "name"),
		TeacherGUID: str(m, "teacherGuid", "teacher_guid", "guid"),
	}
	return t, t.TeacherName != nil || t.TeacherGUID != nil
}

// NormalizeTimetable maps a raw timetable payload into recurring lesson slots.
func NormalizeTimetable(raw any) []models.TimetableEntry {
	return normalizeEach(extractList(raw, "timetable", "timeTable", "lessons"), func(m map[string]any) (models.TimetableEntry, bool) {
		return timetableEntry(m), true
	})
}

// NormalizeWeeklyPlan maps a raw lesson-plan payload into weekly plan entries.
func NormalizeWeeklyPlan(raw any) []models.WeeklyPlanEntry {
	return normalizeEach(extractList(raw, "plans", "lessons", "weeklyPlan"), func(m map[string]any) (models.WeeklyPlanEntry, bool) {
		return models.WeeklyPlanEntry{
			TimetableEntry: timetableEntry(m),
			LessonDate:     str(m, "lessonDate", "lesson_date", "date"),
			Plan:           str(m, "plan", "lessonPlan", "description", "content"),
		}, true
	})
}

// NormalizeLessonsHistory flattens lessonLog wrappers into history records.
func NormalizeLessonsHistory(raw any) []models.LessonHistory {
	return normalizeEach(extractList(raw, "history", "lessons"), func(m map[string]any) (models.LessonHistory, bool) {
		log := object(m, "lessonLog", "lesson_log")
		if log == nil {
			log = m
		}
		names := object(m, "groupDetails", "group_details")
		if names == nil {
			names = m
		}
		return models.LessonHistory{
			LessonID:     str(log, "lessonId", "lesson_id", "id"),
			GroupID:      str(log, "groupId", "group_id"),
			LessonDate:   str(log, "lessonDate", "lesson_date", "date"),
			Lesson:       integer(log, "lesson", "lessonNum", "lesson_number"),
			TookPlace:    boolean(log, "lessonTookPlace", "tookPlace", "took_place"),
			Remark:       str(log, "remark", "remarks"),
			Homework:     str(log, "homework"),
			ReporterGUID: str(log, "reporterGuid", "reporter_guid"),
			GroupName:    str(names, "groupName", "group_name"),
			SubjectName:  str(names, "subjectName", "subject_name"),
		}, true
	})
}

// NormalizeHolidays maps a raw holiday payload into date-only holiday ranges.
// Holidays without a start date are dropped; a missing end equals the start.
func NormalizeHolidays(raw any) []models.Holiday {
	return normalizeEach(extractList(raw, "holidays"), func(m map[string]any) (models.Holiday, bool) {
		start := str(m, "start", "startDate", "start_date", "from")
		if start == nil || strings.TrimSpace(*start) == "" {
			return models.Holiday{}, false
		}
		end := str(m, "end", "endDate", "end_date", "to")
		if end == nil || strings.TrimSpace(*end) == "" {
			end = start
		}
		name := models.DefaultHolidayName
		if n := str(m, "name", "description", "title"); n != nil && strings.TrimSpace(*n) != "" {
			name = *n
		}
		return models.Holiday{
			ID:    str(m, "id", "holidayId", "holiday_id"),
			Name:  name,
			Start: models.DatePart(*start),
			End:   models.DatePart(*end),
		}, true
	})
}
