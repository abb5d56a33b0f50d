// Package api implements the HTTP wrapper around the scheduler facade:
// task submission, status lookup, cancellation, and queue statistics.
package api
