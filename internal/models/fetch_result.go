package models

import "time"

// StudentData holds every normalized kind fetched for one student.
type StudentData struct {
	Homework       []Homework        `json:"homework"`
	Behavior       []Behavior        `json:"behavior"`
	WeeklyPlan     []WeeklyPlanEntry `json:"weekly_plan"`
	Timetable      []TimetableEntry  `json:"timetable"`
	LessonsHistory []LessonHistory   `json:"lessons_history"`
}

// Items returns the records of the given kind as an untyped slice value.
func (d StudentData) Items(kind DataKind) any {
	switch kind {
	case KindHomework:
		return d.Homework
	case KindBehavior:
		return d.Behavior
	case KindWeeklyPlan:
		return d.WeeklyPlan
	case KindTimetable:
		return d.Timetable
	case KindLessonsHistory:
		return d.LessonsHistory
	default:
		return nil
	}
}

// Count returns the number of records of the given kind.
func (d StudentData) Count(kind DataKind) int {
	switch kind {
	case KindHomework:
		return len(d.Homework)
	case KindBehavior:
		return len(d.Behavior)
	case KindWeeklyPlan:
		return len(d.WeeklyPlan)
	case KindTimetable:
		return len(d.Timetable)
	case KindLessonsHistory:
		return len(d.LessonsHistory)
	default:
		return 0
	}
}

// FetchResult is the product of one full refresh cycle. It is replaced as a
// whole on every refresh.
type FetchResult struct {
	Students  []StudentSummary       `json:"students"`
	BySlug    map[string]StudentData `json:"by_slug"`
	Holidays  []Holiday              `json:"holidays"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Student looks up a student summary by slug.
func (r *FetchResult) Student(slug string) (StudentSummary, bool) {
	if r == nil {
		return StudentSummary{}, false
	}
	for _, s := range r.Students {
		if s.Slug == slug {
			return s, true
		}
	}
	return StudentSummary{}, false
}

// TotalItems sums every per-student record plus holidays.
func (r *FetchResult) TotalItems() int {
	if r == nil {
		return 0
	}
	total := len(r.Holidays)
	for _, data := range r.BySlug {
		for _, kind := range StudentKinds {
			total += data.Count(kind)
		}
	}
	return total
}
