// Package taskkit provides a storage-agnostic task execution kit with
// at-least-once delivery semantics and visibility timeout behavior.
//
// # Overview
//
// taskkit models a durable task queue with explicit state transitions. It
// separates wire payload (an opaque Encoder-produced []byte) from
// lifecycle state (task.Task) and defines a small set of interfaces —
// Backend, Encoder, Inspector — for storing, claiming, completing and
// inspecting tasks. taskkit does not mandate a particular storage backend;
// backend/sqlbackend ships a reference implementation over bun/SQLite, and
// codec/msgpack ships a reference Encoder.
//
// # Delivery Semantics
//
// taskkit provides at-least-once processing guarantees. A task may be
// delivered more than once if a worker crashes before completing it, its
// visibility timeout expires, or its lease is lost to a concurrent
// claimant. Handlers must therefore be idempotent.
//
// # Visibility Timeout (Lease Model)
//
// When a task is claimed, it transitions from Pending to Claimed and
// receives a visibility timeout (task.Lease.LockedUntil). While the lease
// is held, the task is not eligible for claiming by other workers. If the
// lease expires before completion, the task becomes eligible again once
// Backend.Housekeeping reclaims it. The worker pool automatically renews
// the lease while a handler is running.
//
// # State Machine
//
// Tasks follow this lifecycle:
//
//	Pending -> Claimed
//	Pending -> Expired    (Housekeeping: not claimed before DueTS+TTL)
//	Pending -> Discarded  (Backend.DiscardTask)
//	Claimed -> Pending    (Housekeeping: lease expired)
//	Claimed -> Done
//	Claimed -> Failed
//	Claimed -> Expired
//	Claimed -> Discarded
//
// Terminal states (Done, Failed, Expired, Discarded) are immutable; a
// caller wanting another attempt issues a fresh InitiateTask call.
//
// # Components
//
// Kit is the façade an embedding application constructs once: InitiateTask
// enqueues (or, with InitiateOptions.Eager, synchronously runs) work;
// Start/StartProcess/StartProcesses run one or more ProcessHosts, each
// composing a Scheduler (recurring task materialization), a Pool (worker
// dispatch) and a Housekeeper (periodic lease reclamation and retention)
// behind a single Start/Terminate lifecycle. Supervisor spawns and
// restarts ProcessHosts as OS processes when Kit.Start is used instead of
// StartProcess(es).
//
// # Concurrency Model
//
// Each worker-pool group runs a fixed number of goroutines, each claiming
// and running one task at a time directly against the Backend. The
// Scheduler owns its due-time heap on a single goroutine, accepting
// mutations through a command channel. Shutdown is graceful: in-flight
// handlers observe context cancellation and are given up to a configured
// timeout to finish.
//
// # Storage Expectations
//
// Implementations of Backend must provide the atomicity guarantees
// documented on each method — most importantly that ClaimTasks is
// serializable per group and that ScheduleCheckpoint's compare-and-set is
// the sole mechanism preventing double materialization of a recurring
// entry across a cluster of Scheduler instances.
package taskkit
