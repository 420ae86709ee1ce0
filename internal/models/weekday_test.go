package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMashovDayMapping(t *testing.T) {
	w, ok := MashovDayToWeekday(2)
	assert.True(t, ok)
	assert.Equal(t, time.Monday, w)

	w, ok = MashovDayToWeekday(1)
	assert.True(t, ok)
	assert.Equal(t, time.Sunday, w)

	_, ok = MashovDayToWeekday(0)
	assert.False(t, ok)
	_, ok = MashovDayToWeekday(8)
	assert.False(t, ok)

	for day := 1; day <= 7; day++ {
		w, ok := MashovDayToWeekday(day)
		assert.True(t, ok)
		assert.Equal(t, day, WeekdayToMashovDay(w))
	}
}

func TestScheduleDayMapping(t *testing.T) {
	w, ok := ScheduleDayToWeekday(0)
	assert.True(t, ok)
	assert.Equal(t, time.Monday, w)

	w, ok = ScheduleDayToWeekday(6)
	assert.True(t, ok)
	assert.Equal(t, time.Sunday, w)

	_, ok = ScheduleDayToWeekday(7)
	assert.False(t, ok)
	_, ok = ScheduleDayToWeekday(-1)
	assert.False(t, ok)

	for day := 0; day <= 6; day++ {
		w, _ := ScheduleDayToWeekday(day)
		assert.Equal(t, day, WeekdayToScheduleDay(w))
	}
}
