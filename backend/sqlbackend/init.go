package sqlbackend

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createTables(ctx context.Context, db bun.IDB) error {
	for _, model := range []any{
		(*taskModel)(nil),
		(*resultModel)(nil),
		(*checkpointModel)(nil),
		(*eventModel)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func createIndexes(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateIndex().
		Model((*taskModel)(nil)).
		Index("idx_tasks_group_due").
		Column("group_name", "due_ts").
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateIndex().
		Model((*taskModel)(nil)).
		Index("idx_tasks_status_locked").
		Column("status", "locked_until").
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateIndex().
		Model((*eventModel)(nil)).
		Index("idx_events_id").
		Column("id").
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	return nil
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createTables(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createIndexes(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// InitDB initializes the schema required by Backend: the tasks, results,
// schedule_checkpoints, and events tables plus their indexes, inside a
// single transaction. InitDB is idempotent.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}

// MustInitDB behaves like InitDB but panics on failure. Intended for
// application bootstrap code where a failed schema init is unrecoverable.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := initDB(ctx, db); err != nil {
		panic(err)
	}
}
