// Package postgres implements the scheduler's durable queue backend on
// PostgreSQL: per-priority queue rows popped with SKIP LOCKED, plus a
// metadata table with row-level expiry for task status lookup.
package postgres
