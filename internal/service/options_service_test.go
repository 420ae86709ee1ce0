package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestSanitizeOptionsDefaults(t *testing.T) {
	eff := SanitizeOptions(models.InstanceOptions{}, nil)

	assert.Equal(t, models.ScheduleDaily, eff.Schedule.Type)
	assert.Equal(t, "02:30", eff.Schedule.Time)
	assert.Equal(t, 2, eff.Schedule.Hour)
	assert.Equal(t, 30, eff.Schedule.Minute)
	assert.Equal(t, []int{6}, eff.Schedule.Days)
	assert.Equal(t, 60, eff.Schedule.IntervalMinutes)
	assert.Equal(t, 7, eff.HomeworkDaysBack)
	assert.Equal(t, 21, eff.HomeworkDaysForward)
	assert.Equal(t, 100, eff.MaxItemsInAttributes)
}

func TestSanitizeOptionsInvalidValuesFallBackAndLog(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	eff := SanitizeOptions(models.InstanceOptions{
		ScheduleType:     strPtr("weekly"),
		ScheduleTime:     strPtr("25:99"),
		ScheduleInterval: intPtr(3),
		ScheduleDays:     []int{7, -1},
	}, zap.New(core))

	assert.Equal(t, models.ScheduleWeekly, eff.Schedule.Type)
	assert.Equal(t, DefaultScheduleTime, eff.Schedule.Time)
	assert.Equal(t, DefaultScheduleInterval, eff.Schedule.IntervalMinutes)
	assert.Equal(t, []int{DefaultScheduleDay}, eff.Schedule.Days)

	assert.Equal(t, 1, logs.FilterMessage("invalid schedule_time, using default").Len())
	assert.Equal(t, 1, logs.FilterMessage("schedule_interval out of range, using default").Len())
	assert.Equal(t, 2, logs.FilterMessage("dropping schedule day out of range").Len())
	assert.Equal(t, 1, logs.FilterMessage("no valid schedule days, using default").Len())
}

func TestSanitizeOptionsKeepsValidValues(t *testing.T) {
	eff := SanitizeOptions(models.InstanceOptions{
		HomeworkDaysBack:     intPtr(0),
		HomeworkDaysForward:  intPtr(120),
		ScheduleType:         strPtr("Interval"),
		ScheduleTime:         strPtr("7:05"),
		ScheduleInterval:     intPtr(1440),
		ScheduleDays:         []int{4, 0, 4, 9},
		MaxItemsInAttributes: intPtr(1000),
	}, nil)

	assert.Equal(t, 0, eff.HomeworkDaysBack)
	assert.Equal(t, 120, eff.HomeworkDaysForward)
	assert.Equal(t, models.ScheduleInterval, eff.Schedule.Type)
	assert.Equal(t, "07:05", eff.Schedule.Time)
	assert.Equal(t, 1440, eff.Schedule.IntervalMinutes)
	assert.Equal(t, []int{0, 4}, eff.Schedule.Days)
	assert.Equal(t, 500, eff.MaxItemsInAttributes)
}

func TestSanitizeOptionsOutOfRangeWindows(t *testing.T) {
	eff := SanitizeOptions(models.InstanceOptions{
		HomeworkDaysBack:    intPtr(61),
		HomeworkDaysForward: intPtr(0),
		ScheduleType:        strPtr("hourly"),
	}, nil)
	assert.Equal(t, DefaultHomeworkDaysBack, eff.HomeworkDaysBack)
	assert.Equal(t, DefaultHomeworkDaysForward, eff.HomeworkDaysForward)
	assert.Equal(t, models.ScheduleDaily, eff.Schedule.Type)
}

func TestMergeOptionsOverridesWin(t *testing.T) {
	options := models.InstanceOptions{
		ScheduleType:     strPtr("daily"),
		ScheduleTime:     strPtr("06:00"),
		ScheduleInterval: intPtr(30),
		ScheduleDays:     []int{1},
	}
	overrides := models.InstanceOptions{
		ScheduleType: strPtr("weekly"),
		ScheduleDays: []int{2, 3},
	}

	merged := MergeOptions(options, overrides)
	assert.Equal(t, "weekly", *merged.ScheduleType)
	assert.Equal(t, "06:00", *merged.ScheduleTime)
	assert.Equal(t, 30, *merged.ScheduleInterval)
	assert.Equal(t, []int{2, 3}, merged.ScheduleDays)
	assert.Nil(t, merged.MaxItemsInAttributes)
}

func TestClampMaxItems(t *testing.T) {
	assert.Equal(t, 10, ClampMaxItems(1))
	assert.Equal(t, 250, ClampMaxItems(250))
	assert.Equal(t, 500, ClampMaxItems(501))
}
