package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

const refreshRunColumns = `id, instance_id, trigger, status, error, students, items, started_at, finished_at`

// RefreshRunRepository records refresh cycles.
type RefreshRunRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewRefreshRunRepository constructs the repository. observer may be nil.
func NewRefreshRunRepository(db *sqlx.DB, observer QueryObserver) *RefreshRunRepository {
	return &RefreshRunRepository{db: db, observer: observer}
}

// Create inserts a run in its running state.
func (r *RefreshRunRepository) Create(ctx context.Context, run *models.RefreshRun) error {
	const query = `INSERT INTO refresh_runs (` + refreshRunColumns + `)
VALUES (:id, :instance_id, :trigger, :status, :error, :students, :items, :started_at, :finished_at)`
	defer observe(r.observer, "refresh_runs_create", time.Now())
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create refresh run: %w", err)
	}
	return nil
}

// Finish stores the outcome of a run.
func (r *RefreshRunRepository) Finish(ctx context.Context, run *models.RefreshRun) error {
	const query = `UPDATE refresh_runs SET status = :status, error = :error, students = :students, items = :items,
finished_at = :finished_at WHERE id = :id`
	defer observe(r.observer, "refresh_runs_finish", time.Now())
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("finish refresh run: %w", err)
	}
	return nil
}

// Latest returns the most recent finished run of an instance or sql.ErrNoRows.
func (r *RefreshRunRepository) Latest(ctx context.Context, instanceID string) (*models.RefreshRun, error) {
	const query = `SELECT ` + refreshRunColumns + ` FROM refresh_runs
WHERE instance_id = $1 AND finished_at IS NOT NULL ORDER BY started_at DESC LIMIT 1`
	var run models.RefreshRun
	if err := r.db.GetContext(ctx, &run, query, instanceID); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns a page of runs, newest first, and the total matching count.
func (r *RefreshRunRepository) List(ctx context.Context, filter models.RefreshRunFilter) ([]models.RefreshRun, int, error) {
	defer observe(r.observer, "refresh_runs_list", time.Now())
	var (
		conditions []string
		args       []interface{}
	)
	if filter.InstanceID != "" {
		args = append(args, filter.InstanceID)
		conditions = append(conditions, fmt.Sprintf("instance_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM refresh_runs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count refresh runs: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	query := fmt.Sprintf("SELECT %s FROM refresh_runs%s ORDER BY started_at DESC LIMIT $%d OFFSET $%d",
		refreshRunColumns, where, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	runs := make([]models.RefreshRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list refresh runs: %w", err)
	}
	return runs, total, nil
}
