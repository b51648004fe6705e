package sqlbackend

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/saryou/taskkit"
	"github.com/saryou/taskkit/result"
	"github.com/saryou/taskkit/task"
)

// Backend implements taskkit.Backend on a *bun.DB.
type Backend struct {
	db *bun.DB
}

var _ taskkit.Backend = (*Backend)(nil)

// New wraps db. Schema initialization (InitDB) must already be complete.
func New(db *bun.DB) *Backend {
	return &Backend{db: db}
}

// PutTasks inserts tasks, skipping any id that already exists. This is
// the mechanism by which racing Scheduler hosts converge on one
// materialized task per slot.
func (b *Backend) PutTasks(ctx context.Context, tasks ...*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	models := make([]*taskModel, len(tasks))
	for i, t := range tasks {
		models[i] = fromTask(t)
	}
	_, err := b.db.NewInsert().
		Model(&models).
		Ignore(). // dialect-portable "insert or ignore" equivalent bun provides
		Exec(ctx)
	return err
}

// ClaimTasks atomically selects up to limit due, unleased tasks in group
// and marks them leased, using an UPDATE...WHERE id IN (subquery)
// RETURNING pattern to avoid a separate select-then-update race.
func (b *Backend) ClaimTasks(ctx context.Context, group string, limit int, now time.Time, leaseDuration time.Duration) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 1
	}
	lockUntil := now.Add(leaseDuration)

	subQuery := b.db.NewSelect().
		Model((*taskModel)(nil)).
		Column("id").
		Where("group_name = ?", group).
		Where("status = ?", task.Pending).
		Where("due_ts <= ?", now).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("locked_until IS NULL").
				WhereOr("locked_until < ?", now)
		}).
		Order("due_ts ASC").
		Limit(limit)

	var models []*taskModel
	err := b.db.NewUpdate().
		Model((*taskModel)(nil)).
		Set("status = ?", task.Claimed).
		Set("attempts = attempts + 1").
		Set("locked_until = ?", lockUntil).
		Where("id IN (?)", subQuery).
		Returning("*").
		Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, len(models))
	for i, m := range models {
		tasks[i] = m.toTask()
	}
	return tasks, nil
}

// RenewLease extends the lease on id if the caller still holds it
// (status still Claimed).
func (b *Backend) RenewLease(ctx context.Context, id uuid.UUID, newExpiry time.Time) error {
	res, err := b.db.NewUpdate().
		Model((*taskModel)(nil)).
		Set("locked_until = ?", newExpiry).
		Where("id = ?", id).
		Where("status = ?", task.Claimed).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !affected(res) {
		return taskkit.ErrLeaseLost
	}
	return nil
}

// CompleteTask stores res and transitions id to its terminal status,
// clearing the lease. Only a Claimed task may be completed.
func (b *Backend) CompleteTask(ctx context.Context, id uuid.UUID, res result.Result) error {
	ok, err := b.finalize(ctx, id, []task.Status{task.Claimed}, res)
	if err != nil {
		return err
	}
	if !ok {
		return taskkit.ErrCompleteFailed
	}
	return nil
}

// finalize transitions id to res's terminal status if its current status
// is one of fromStatuses, and upserts the Result row. ok is false if id
// did not match fromStatuses (a no-op, not an error).
func (b *Backend) finalize(ctx context.Context, id uuid.UUID, fromStatuses []task.Status, res result.Result) (bool, error) {
	status := statusForResult(res)
	var ok bool
	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		upd, err := tx.NewUpdate().
			Model((*taskModel)(nil)).
			Set("status = ?", status).
			Set("locked_until = NULL").
			Where("id = ?", id).
			Where("status IN (?)", bun.In(fromStatuses)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if !affected(upd) {
			ok = false
			return nil
		}
		ok = true
		model := &resultModel{
			ID:        id,
			Kind:      res.Kind,
			Encoded:   res.Encoded,
			ErrorKind: res.ErrorKind,
			Message:   res.Message,
			UpdatedAt: time.Now(),
		}
		_, err = tx.NewInsert().
			Model(model).
			On("CONFLICT (id) DO UPDATE").
			Set("kind = EXCLUDED.kind").
			Set("encoded = EXCLUDED.encoded").
			Set("error_kind = EXCLUDED.error_kind").
			Set("message = EXCLUDED.message").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	return ok, err
}

// statusForResult maps a terminal Result.Kind onto the task.Status it
// drives a task to.
func statusForResult(res result.Result) task.Status {
	switch res.Kind {
	case result.KindSuccess:
		return task.Done
	case result.KindExpired:
		return task.Expired
	case result.KindDiscarded:
		return task.Discarded
	default:
		return task.Failed
	}
}

// DiscardTask terminally discards id regardless of its current state,
// other than a terminal one (idempotent no-op in that case).
func (b *Backend) DiscardTask(ctx context.Context, id uuid.UUID, reason string) error {
	return b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*taskModel)(nil)).
			Set("status = ?", task.Discarded).
			Set("locked_until = NULL").
			Where("id = ?", id).
			Where("status IN (?)", bun.In([]task.Status{task.Pending, task.Claimed})).
			Exec(ctx)
		if err != nil {
			return err
		}
		if !affected(res) {
			exists, err := tx.NewSelect().
				Model((*taskModel)(nil)).
				Where("id = ?", id).
				Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return taskkit.ErrTaskLost
			}
			return nil // already terminal
		}
		model := &resultModel{
			ID:        id,
			Kind:      result.KindDiscarded,
			Message:   reason,
			UpdatedAt: time.Now(),
		}
		_, err = tx.NewInsert().
			Model(model).
			On("CONFLICT (id) DO UPDATE").
			Set("kind = EXCLUDED.kind").
			Set("message = EXCLUDED.message").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
}

// GetResult returns id's stored Result, or result.Pending() if id exists
// but has no terminal result yet.
func (b *Backend) GetResult(ctx context.Context, id uuid.UUID) (result.Result, error) {
	var rm resultModel
	err := b.db.NewSelect().Model(&rm).Where("id = ?", id).Scan(ctx)
	if err == nil {
		return rm.toResult(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return result.Result{}, err
	}

	exists, err := b.db.NewSelect().
		Model((*taskModel)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return result.Result{}, err
	}
	if !exists {
		return result.Result{}, taskkit.ErrTaskLost
	}
	return result.Pending(), nil
}

// ScheduleCheckpoint compare-and-sets (group, key)'s checkpoint to
// lastFiredTS, succeeding only if no row exists yet or the stored value
// is strictly earlier.
func (b *Backend) ScheduleCheckpoint(ctx context.Context, group, key string, lastFiredTS time.Time) (bool, error) {
	var ok bool
	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*checkpointModel)(nil)).
			Set("last_fired_ts = ?", lastFiredTS).
			Where("group_name = ?", group).
			Where("key = ?", key).
			Where("last_fired_ts < ?", lastFiredTS).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected(res) {
			ok = true
			return nil
		}

		exists, err := tx.NewSelect().
			Model((*checkpointModel)(nil)).
			Where("group_name = ?", group).
			Where("key = ?", key).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			// Row exists but lastFiredTS didn't advance it: another
			// host already claimed this slot (or a stale/duplicate
			// fire). CAS fails.
			ok = false
			return nil
		}

		_, err = tx.NewInsert().
			Model(&checkpointModel{Group: group, Key: key, LastFiredTS: lastFiredTS}).
			Exec(ctx)
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

// Housekeeping reclaims expired leases (returning tasks to Pending),
// expires tasks that were never claimed before their deadline, and trims
// results past a fixed retention window.
func (b *Backend) Housekeeping(ctx context.Context, now time.Time) error {
	if _, err := b.db.NewUpdate().
		Model((*taskModel)(nil)).
		Set("status = ?", task.Pending).
		Set("locked_until = NULL").
		Where("status = ?", task.Claimed).
		Where("locked_until < ?", now).
		Exec(ctx); err != nil {
		return err
	}

	// due_ts+ttl is computed in Go rather than in SQL: ttl is stored as a
	// plain int64 nanosecond count, and adding it to a dialect-specific
	// timestamp column in a WHERE clause isn't portable. The candidate
	// set (still-pending, already-due tasks) is small and bounded by
	// claim traffic, so scanning it here is cheap.
	var candidates []*taskModel
	if err := b.db.NewSelect().
		Model(&candidates).
		Where("status = ?", task.Pending).
		Where("due_ts <= ?", now).
		Scan(ctx); err != nil {
		return err
	}
	for _, m := range candidates {
		if m.DueTS.Add(m.TTL).Before(now) {
			if _, err := b.finalize(ctx, m.ID, []task.Status{task.Pending}, result.Expired()); err != nil {
				return err
			}
		}
	}

	retention := now.Add(-resultRetention)
	if _, err := b.db.NewDelete().
		Model((*resultModel)(nil)).
		Where("updated_at <= ?", retention).
		Exec(ctx); err != nil {
		return err
	}

	return nil
}

var _ taskkit.Inspector = (*Backend)(nil)

// GetTask returns a snapshot of id (taskkit.Inspector).
func (b *Backend) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	model := new(taskModel)
	err := b.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toTask(), nil
}

// ListTasks returns up to limit tasks in group matching status (taskkit.
// Inspector); status == task.Unknown means no status filter.
func (b *Backend) ListTasks(ctx context.Context, group string, status task.Status, limit int) ([]*task.Task, error) {
	var models []*taskModel
	q := b.db.NewSelect().Model(&models).Where("group_name = ?", group).OrderExpr("due_ts ASC")
	if status != task.Unknown {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	tasks := make([]*task.Task, len(models))
	for i, m := range models {
		tasks[i] = m.toTask()
	}
	return tasks, nil
}

// resultRetention is how long a terminal Result remains readable via
// GetResult before Housekeeping reaps it.
const resultRetention = 7 * 24 * time.Hour

func affected(res sql.Result) bool {
	rows, err := res.RowsAffected()
	if err != nil {
		return true
	}
	return rows != 0
}
