// Package sqlbackend provides a bun-based implementation of taskkit.Backend.
//
// This is the reference Backend: durable task persistence, lease-based
// claiming via UPDATE ... RETURNING, schedule checkpoints, stored
// results, and a poll-based events table standing in for a cluster event
// bus.
//
// # Schema
//
// InitDB (or MustInitDB) creates four tables: tasks, results,
// schedule_checkpoints, and events, plus the indexes ClaimTasks and
// Housekeeping rely on. InitDB is idempotent and runs in a transaction.
//
// # Concurrency model
//
// ClaimTasks uses a single UPDATE with a subquery to avoid a race between
// selecting eligible rows and marking them claimed. RenewLease/CompleteTask use
// UPDATE ... WHERE id = ? AND locked_by-equivalent-condition, returning
// an affected-rows count the caller checks instead of relying on a
// separate read-then-write.
//
// ScheduleCheckpoint runs an UPDATE ... WHERE last_fired_ts < ? and, if
// no row exists yet, an INSERT on first fire, both inside one transaction
// so the CAS is atomic.
//
// # Events
//
// SQL has no native pub/sub, so SubscribeEvents polls the events table on
// a short interval (events.go) and delivers every row whose id is greater
// than the last one this subscriber observed. This satisfies the
// at-least-once, no-replay-after-restart contract Backend.PublishEvent
// documents; it is not a low-latency bus.
//
// # Database lifecycle
//
// This package does not manage connection pooling or migrations. The
// caller configures *bun.DB (WAL mode and a busy_timeout for SQLite) and
// calls InitDB before use.
package sqlbackend
