package models

import "time"

// Upstream timetables number days from 1 (Sunday) to 7 (Saturday). Schedule
// options number days from 0 (Monday) to 6 (Sunday). These four functions are
// the only place either convention is translated.

// MashovDayToWeekday converts an upstream day number into a time.Weekday.
func MashovDayToWeekday(day int) (time.Weekday, bool) {
	if day < 1 || day > 7 {
		return 0, false
	}
	return time.Weekday(day - 1), true
}

// WeekdayToMashovDay converts a time.Weekday into the upstream day number.
func WeekdayToMashovDay(w time.Weekday) int {
	return int(w) + 1
}

// ScheduleDayToWeekday converts a Monday-based schedule index into a time.Weekday.
func ScheduleDayToWeekday(day int) (time.Weekday, bool) {
	if day < 0 || day > 6 {
		return 0, false
	}
	return time.Weekday((day + 1) % 7), true
}

// WeekdayToScheduleDay converts a time.Weekday into a Monday-based schedule index.
func WeekdayToScheduleDay(w time.Weekday) int {
	return (int(w) + 6) % 7
}
