package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

func TestAttributeLimiterFitsByteBudget(t *testing.T) {
	items := make([]models.Homework, 0, 1000)
	for i := 0; i < 1000; i++ {
		items = append(items, models.Homework{
			LessonID:    strPtr(fmt.Sprintf("lesson-%d", i)),
			LessonDate:  strPtr(fmt.Sprintf("2024-01-%02dT00:00:00", i%28+1)),
			Lesson:      intPtr(i%6 + 1),
			SubjectName: strPtr("Math"),
			Homework:    strPtr(strings.Repeat("x", 420)),
		})
	}

	limited := NewAttributeLimiter(nil).Limit(items, 500)

	require.NotEmpty(t, limited)
	raw, err := json.Marshal(limited)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(raw), AttributeByteBudget)
	assert.Less(t, len(limited), 500)
	for _, item := range limited {
		assert.NotContains(t, item, "lesson_id")
	}
}

func TestAttributeLimiterKeepsSmallListsWhole(t *testing.T) {
	items := []models.Holiday{
		{Name: "Hanukkah", Start: "2023-12-07", End: "2023-12-15"},
		{Name: "Passover", Start: "2024-04-22", End: "2024-04-30"},
	}
	limited := NewAttributeLimiter(nil).Limit(items, 100)

	require.Len(t, limited, 2)
	assert.Equal(t, "Passover", limited[0]["name"], "newest first")
}

func TestAttributeLimiterRespectsMaxItems(t *testing.T) {
	items := make([]models.Holiday, 30)
	for i := range items {
		items[i] = models.Holiday{Name: "h", Start: fmt.Sprintf("2024-02-%02d", i+1), End: fmt.Sprintf("2024-02-%02d", i+1)}
	}
	limited := NewAttributeLimiter(nil).Limit(items, 12)

	require.Len(t, limited, 12)
	assert.Equal(t, "2024-02-30", limited[0]["start"])
	assert.Equal(t, "2024-02-19", limited[11]["start"])
}

func TestAttributeLimiterStripsNestedTechnicalFields(t *testing.T) {
	items := []models.TimetableEntry{{
		TimeTable: models.TimeTableSlot{Day: intPtr(2), Lesson: intPtr(1), GroupID: strPtr("g-1")},
		GroupDetails: models.GroupDetails{
			SubjectName:   strPtr("Math"),
			GroupTeachers: []models.GroupTeacher{{TeacherName: strPtr("Cohen"), TeacherGUID: strPtr("t-1")}},
		},
	}}
	limited := NewAttributeLimiter(nil).Limit(items, 100)
	require.Len(t, limited, 1)

	raw, err := json.Marshal(limited)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "groupId")
	assert.NotContains(t, string(raw), "teacherGuid")
	assert.Contains(t, string(raw), "Cohen")
}

func TestAttributeLimiterOrdersUndatedSlots(t *testing.T) {
	items := []models.TimetableEntry{
		{TimeTable: models.TimeTableSlot{Day: intPtr(3), Lesson: intPtr(1)}},
		{TimeTable: models.TimeTableSlot{Day: intPtr(2), Lesson: intPtr(4)}},
		{TimeTable: models.TimeTableSlot{Day: intPtr(2), Lesson: intPtr(2)}},
	}
	limited := NewAttributeLimiter(nil).Limit(items, 100)
	require.Len(t, limited, 3)

	var order [][2]float64
	for _, item := range limited {
		slot := item["timeTable"].(map[string]any)
		order = append(order, [2]float64{slot["day"].(float64), slot["lesson"].(float64)})
	}
	assert.Equal(t, [][2]float64{{2, 2}, {2, 4}, {3, 1}}, order)
}

func TestAttributeLimiterFallbackOnProbeError(t *testing.T) {
	items := make([]models.Holiday, 60)
	for i := range items {
		items[i] = models.Holiday{Name: "h", Start: "2024-01-01", End: "2024-01-01"}
	}
	core, logs := observer.New(zap.WarnLevel)
	limiter := NewAttributeLimiter(zap.New(core))
	calls := 0
	limiter.encode = func(v any) ([]byte, error) {
		calls++
		if calls == 1 {
			return json.Marshal(v)
		}
		return nil, errors.New("boom")
	}

	limited := limiter.Limit(items, 100)
	assert.Len(t, limited, fallbackItemCount)
	assert.Equal(t, 1, logs.FilterMessage("size probing failed, using fallback item count").Len())
}

func TestAttributeLimiterEmptyInput(t *testing.T) {
	limiter := NewAttributeLimiter(nil)
	assert.Empty(t, limiter.Limit(nil, 100))
	assert.Empty(t, limiter.Limit([]models.Homework{}, 100))
	assert.NotNil(t, limiter.Limit(nil, 100))
}
