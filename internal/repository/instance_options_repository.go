package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

// InstanceOptionsRepository persists options edited through the API.
type InstanceOptionsRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewInstanceOptionsRepository constructs the repository. observer may be nil.
func NewInstanceOptionsRepository(db *sqlx.DB, observer QueryObserver) *InstanceOptionsRepository {
	return &InstanceOptionsRepository{db: db, observer: observer}
}

type instanceOptionsRow struct {
	InstanceID string `db:"instance_id"`
	models.InstanceOptions
	ScheduleDays pq.Int64Array `db:"schedule_days"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// Get returns the stored options of an instance or sql.ErrNoRows.
func (r *InstanceOptionsRepository) Get(ctx context.Context, instanceID string) (*models.InstanceOptions, error) {
	const query = `SELECT instance_id, homework_days_back, homework_days_forward, schedule_type, schedule_time,
schedule_days, schedule_interval, max_items_in_attributes, updated_at
FROM instance_options WHERE instance_id = $1`
	defer observe(r.observer, "instance_options_get", time.Now())
	var row instanceOptionsRow
	if err := r.db.GetContext(ctx, &row, query, instanceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get instance options: %w", err)
	}
	opts := row.InstanceOptions
	if row.ScheduleDays != nil {
		opts.ScheduleDays = make([]int, len(row.ScheduleDays))
		for i, day := range row.ScheduleDays {
			opts.ScheduleDays[i] = int(day)
		}
	}
	return &opts, nil
}

// Upsert stores the options of an instance, replacing any previous row.
func (r *InstanceOptionsRepository) Upsert(ctx context.Context, instanceID string, opts models.InstanceOptions) error {
	const query = `INSERT INTO instance_options (instance_id, homework_days_back, homework_days_forward, schedule_type,
schedule_time, schedule_days, schedule_interval, max_items_in_attributes, updated_at)
VALUES (:instance_id, :homework_days_back, :homework_days_forward, :schedule_type,
:schedule_time, :schedule_days, :schedule_interval, :max_items_in_attributes, :updated_at)
ON CONFLICT (instance_id)
DO UPDATE SET homework_days_back = EXCLUDED.homework_days_back, homework_days_forward = EXCLUDED.homework_days_forward,
              schedule_type = EXCLUDED.schedule_type, schedule_time = EXCLUDED.schedule_time,
              schedule_days = EXCLUDED.schedule_days, schedule_interval = EXCLUDED.schedule_interval,
              max_items_in_attributes = EXCLUDED.max_items_in_attributes, updated_at = EXCLUDED.updated_at`
	defer observe(r.observer, "instance_options_upsert", time.Now())
	row := instanceOptionsRow{
		InstanceID:      instanceID,
		InstanceOptions: opts,
		UpdatedAt:       time.Now().UTC(),
	}
	if opts.ScheduleDays != nil {
		row.ScheduleDays = make(pq.Int64Array, len(opts.ScheduleDays))
		for i, day := range opts.ScheduleDays {
			row.ScheduleDays[i] = int64(day)
		}
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert instance options: %w", err)
	}
	return nil
}

// Delete removes the stored options of an instance.
func (r *InstanceOptionsRepository) Delete(ctx context.Context, instanceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM instance_options WHERE instance_id = $1`, instanceID); err != nil {
		return fmt.Errorf("delete instance options: %w", err)
	}
	return nil
}
