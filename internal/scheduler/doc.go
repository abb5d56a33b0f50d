// Package scheduler implements the priority task scheduling engine. It
// accepts asynchronous units of work, orders them across five priority
// levels, executes them under a bounded worker pool with per-task timeouts,
// and retains terminal results for status lookup until they expire.
package scheduler
