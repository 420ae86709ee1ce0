package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	t.Cleanup(func() { _ = sqlxDB.Close() })
	return sqlxDB, mock
}

func textPtr(v string) *string { return &v }
func numPtr(v int) *int       { return &v }

func TestInstanceOptionsRepositoryGet(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceOptionsRepository(db, nil)

	rows := sqlmock.NewRows([]string{"instance_id", "homework_days_back", "homework_days_forward", "schedule_type",
		"schedule_time", "schedule_days", "schedule_interval", "max_items_in_attributes", "updated_at"}).
		AddRow("home", 14, nil, "weekly", "06:15", "{0,2}", nil, 50, time.Now())
	mock.ExpectQuery("SELECT instance_id, homework_days_back").WithArgs("home").WillReturnRows(rows)

	opts, err := repo.Get(context.Background(), "home")
	require.NoError(t, err)
	require.NotNil(t, opts.HomeworkDaysBack)
	assert.Equal(t, 14, *opts.HomeworkDaysBack)
	assert.Nil(t, opts.HomeworkDaysForward)
	assert.Equal(t, "weekly", *opts.ScheduleType)
	assert.Equal(t, []int{0, 2}, opts.ScheduleDays)
	assert.Nil(t, opts.ScheduleInterval)
	assert.Equal(t, 50, *opts.MaxItemsInAttributes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceOptionsRepositoryGetMissing(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceOptionsRepository(db, nil)
	mock.ExpectQuery("SELECT instance_id").WithArgs("home").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "home")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInstanceOptionsRepositoryUpsert(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceOptionsRepository(db, nil)
	mock.ExpectExec("INSERT INTO instance_options").
		WithArgs("home", 14, nil, "interval", nil, sqlmock.AnyArg(), 30, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Upsert(context.Background(), "home", models.InstanceOptions{
		HomeworkDaysBack: numPtr(14),
		ScheduleType:     textPtr("interval"),
		ScheduleInterval: numPtr(30),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceOptionsRepositoryDelete(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewInstanceOptionsRepository(db, nil)
	mock.ExpectExec("DELETE FROM instance_options").WithArgs("home").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "home"))
	require.NoError(t, mock.ExpectationsWereMet())
}
