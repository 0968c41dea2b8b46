// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import "log/slog"

// Go runs fn in a new goroutine. A panic in fn is recovered and logged with the task
// name instead of crashing the process. Use it for fire-and-forget work such as audit
// shipping, event publishing and background jobs.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}
