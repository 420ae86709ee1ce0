package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
)

type stateRepoStub struct {
	mu       sync.Mutex
	data     map[string][]models.SensorState
	replaces int
	err      error
}

func newStateRepoStub() *stateRepoStub {
	return &stateRepoStub{data: make(map[string][]models.SensorState)}
}

func (s *stateRepoStub) Replace(_ context.Context, instanceID string, states []models.SensorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replaces++
	s.data[instanceID] = states
	return nil
}

func (s *stateRepoStub) List(_ context.Context, instanceID string) ([]models.SensorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	states, ok := s.data[instanceID]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return states, nil
}

func (s *stateRepoStub) Get(_ context.Context, instanceID, key string) (*models.SensorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.data[instanceID] {
		if st.Key == key {
			st := st
			return &st, nil
		}
	}
	return nil, appErrors.ErrCacheMiss
}

func (s *stateRepoStub) Delete(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, instanceID)
	return nil
}

func danaResult() *models.FetchResult {
	return &models.FetchResult{
		Students: []models.StudentSummary{{ID: "S1", Name: "Dana Levi", Slug: "dana_levi", Year: 2024}},
		BySlug: map[string]models.StudentData{
			"dana_levi": {
				Homework: []models.Homework{
					{LessonID: strPtr("l1"), LessonDate: strPtr("2024-01-10"), Homework: strPtr("p. 4")},
					{LessonID: strPtr("l2"), LessonDate: strPtr("2024-01-12"), Homework: strPtr("p. 9")},
				},
			},
		},
		Holidays:  []models.Holiday{{Name: "Passover", Start: "2024-04-22", End: "2024-04-30"}},
		FetchedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuildSensorStates(t *testing.T) {
	states := BuildSensorStates("home", danaResult(), 100, NewAttributeLimiter(nil))

	require.Len(t, states, len(models.StudentKinds)+1)
	homework := states[0]
	assert.Equal(t, "mashov_dana_levi_homework", homework.Key)
	assert.Equal(t, 2, homework.State)
	assert.Equal(t, "Dana Levi", homework.StudentName)
	assert.Equal(t, "S1", homework.StudentID)
	assert.Equal(t, 2024, homework.Year)
	require.Len(t, homework.Items, 2)
	assert.Equal(t, "2024-01-12", homework.Items[0]["lesson_date"])
	assert.NotContains(t, homework.Items[0], "lesson_id")

	behavior := states[1]
	assert.Equal(t, 0, behavior.State)
	assert.NotNil(t, behavior.Items)

	holidays := states[len(states)-1]
	assert.Equal(t, "mashov_home_holidays", holidays.Key)
	assert.Equal(t, 1, holidays.TotalItems)
	assert.Empty(t, holidays.StudentSlug)
}

func TestStatePublisherWritesThroughAndReplaces(t *testing.T) {
	repo := newStateRepoStub()
	publisher := NewStatePublisher(nil, NewStateCacheService(repo, nil, nil, true), nil, nil)
	ctx := context.Background()

	publisher.Publish(ctx, "home", danaResult(), 100)
	second := danaResult()
	second.BySlug["dana_levi"] = models.StudentData{}
	publisher.Publish(ctx, "home", second, 100)

	assert.Equal(t, 2, repo.replaces)
	sensor, err := publisher.Sensor(ctx, "home", "mashov_dana_levi_homework")
	require.NoError(t, err)
	assert.Equal(t, 0, sensor.State, "no merge with the previous cycle")

	// A fresh publisher falls back to the sink.
	cold := NewStatePublisher(nil, NewStateCacheService(repo, nil, nil, true), nil, nil)
	states, err := cold.Sensors(ctx, "home")
	require.NoError(t, err)
	assert.Len(t, states, len(models.StudentKinds)+1)

	_, err = cold.Sensor(ctx, "home", "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStatePublisherSinkFailureKeepsMemoryView(t *testing.T) {
	repo := newStateRepoStub()
	repo.err = errors.New("redis down")
	publisher := NewStatePublisher(nil, NewStateCacheService(repo, nil, nil, true), nil, nil)

	states := publisher.Publish(context.Background(), "home", danaResult(), 100)
	require.NotEmpty(t, states)

	got, err := publisher.Sensors(context.Background(), "home")
	require.NoError(t, err)
	assert.Len(t, got, len(states))
}

func TestStatePublisherClear(t *testing.T) {
	repo := newStateRepoStub()
	publisher := NewStatePublisher(nil, NewStateCacheService(repo, nil, nil, true), nil, nil)
	ctx := context.Background()
	publisher.Publish(ctx, "home", danaResult(), 100)

	publisher.Clear(ctx, "home")
	_, err := publisher.Sensors(ctx, "home")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, repo.data)
}

func TestStatePublisherWithoutSink(t *testing.T) {
	publisher := NewStatePublisher(nil, nil, nil, nil)
	_, err := publisher.Sensors(context.Background(), "home")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	publisher.Publish(context.Background(), "home", danaResult(), 100)
	states, err := publisher.Sensors(context.Background(), "home")
	require.NoError(t, err)
	assert.NotEmpty(t, states)
}
