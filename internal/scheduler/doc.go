// Package scheduler runs remindbot's standing timers: the daily broadcast
// jobs (registered at a fixed UTC time-of-day) and the periodic reminder
// sweep.
//
// Jobs are registered under a logical name (e.g. "broadcast:2",
// "reminder.sweep"). Names are stable and human readable so that a job can
// be replaced (upserted) and removed deterministically: re-registering a
// name replaces the previous definition instead of duplicating it, which
// makes registration idempotent across config reloads.
//
// Fired jobs are executed on a small worker pool draining a bounded queue.
// A job never overlaps itself: a fire arriving while the previous run of
// the same job is still going is skipped.
package scheduler
