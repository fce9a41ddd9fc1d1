// Package store holds the ephemeral auth sessions: an in-memory TTL map of
// tagged records (login vs phone-change), with per-record locking so one
// session's step and attempt counters cannot be mutated concurrently, and an
// idempotent sweep API for the background eviction task.
package store
