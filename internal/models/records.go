package models

// DataKind names one normalized data family fetched per student.
type DataKind string

const (
	KindHomework       DataKind = "homework"
	KindBehavior       DataKind = "behavior"
	KindWeeklyPlan     DataKind = "weekly_plan"
	KindTimetable      DataKind = "timetable"
	KindLessonsHistory DataKind = "lessons_history"
	KindHolidays       DataKind = "holidays"
)

// StudentKinds lists the per-student kinds in publication order.
var StudentKinds = []DataKind{KindHomework, KindBehavior, KindWeeklyPlan, KindTimetable, KindLessonsHistory}

// Valid reports whether the kind is known.
func (k DataKind) Valid() bool {
	switch k {
	case KindHomework, KindBehavior, KindWeeklyPlan, KindTimetable, KindLessonsHistory, KindHolidays:
		return true
	default:
		return false
	}
}

// Homework is a single assignment attached to a lesson.
type Homework struct {
	LessonID    *string `json:"lesson_id"`
	LessonDate  *string `json:"lesson_date"`
	Lesson      *int    `json:"lesson"`
	SubjectName *string `json:"subject_name"`
	Homework    *string `json:"homework"`
	Remark      *string `json:"remark"`
	GroupID     *string `json:"group_id"`
}

// Behavior is a discipline or achievement event reported by a teacher.
type Behavior struct {
	StudentGUID     *string `json:"student_guid"`
	EventCode       *int    `json:"event_code"`
	LessonID        *string `json:"lesson_id"`
	LessonDate      *string `json:"lesson_date"`
	Lesson          *int    `json:"lesson"`
	Subject         *string `json:"subject"`
	TeacherName     *string `json:"teacher_name"`
	AchvaCode       *int    `json:"achva_code"`
	AchvaName       *string `json:"achva_name"`
	JustificationID *string `json:"justification_id"`
	Justification   *string `json:"justification"`
}

// TimeTableSlot places a group in a weekday and lesson number.
type TimeTableSlot struct {
	Day     *int    `json:"day"`
	Lesson  *int    `json:"lesson"`
	RoomNum *string `json:"roomNum"`
	GroupID *string `json:"groupId"`
}

// GroupTeacher is a teacher assigned to a study group.
type GroupTeacher struct {
	TeacherName *string `json:"teacherName"`
	TeacherGUID *string `json:"teacherGuid"`
}

// GroupDetails describes the study group occupying a slot.
type GroupDetails struct {
	SubjectName   *string        `json:"subjectName"`
	GroupName     *string        `json:"groupName"`
	GroupTeachers []GroupTeacher `json:"groupTeachers"`
}

// TimetableEntry is one recurring lesson slot.
type TimetableEntry struct {
	TimeTable    TimeTableSlot `json:"timeTable"`
	GroupDetails GroupDetails  `json:"groupDetails"`
}

// Subject returns the best display name for the slot.
func (e TimetableEntry) Subject() string {
	if e.GroupDetails.SubjectName != nil && *e.GroupDetails.SubjectName != "" {
		return *e.GroupDetails.SubjectName
	}
	if e.GroupDetails.GroupName != nil && *e.GroupDetails.GroupName != "" {
		return *e.GroupDetails.GroupName
	}
	return ""
}

// TeacherNames returns the non-empty teacher names of the slot.
func (e TimetableEntry) TeacherNames() []string {
	names := make([]string, 0, len(e.GroupDetails.GroupTeachers))
	for _, t := range e.GroupDetails.GroupTeachers {
		if t.TeacherName != nil && *t.TeacherName != "" {
			names = append(names, *t.TeacherName)
		}
	}
	return names
}

// WeeklyPlanEntry is a timetable slot with an optional dated lesson plan.
type WeeklyPlanEntry struct {
	TimetableEntry
	LessonDate *string `json:"lesson_date,omitempty"`
	Plan       *string `json:"plan,omitempty"`
}

// LessonHistory is a past lesson log flattened with its group names.
type LessonHistory struct {
	LessonID     *string `json:"lesson_id"`
	GroupID      *string `json:"group_id"`
	LessonDate   *string `json:"lesson_date"`
	Lesson       *int    `json:"lesson"`
	TookPlace    *bool   `json:"took_place"`
	Remark       *string `json:"remark"`
	Homework     *string `json:"homework"`
	ReporterGUID *string `json:"reporter_guid"`
	GroupName    *string `json:"group_name"`
	SubjectName  *string `json:"subject_name"`
}

// DefaultHolidayName is used when the upstream holiday carries no name.
const DefaultHolidayName = "חג/חופשה"

// Holiday is an inclusive school holiday range. Start and End hold ISO dates.
type Holiday struct {
	ID    *string `json:"id"`
	Name  string  `json:"name"`
	Start string  `json:"start"`
	End   string  `json:"end"`
}
