package safego

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not finish within 2s", what)
	}
}

func TestGo_RunsInBackground(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	Go("audit-ship", func() {
		<-release
		close(done)
	})

	// Go must return before fn completes.
	close(release)
	waitFor(t, done, "task")
}

func TestGo_PanicDoesNotCrashOrBlockLaterTasks(t *testing.T) {
	panicked := make(chan struct{})
	Go("event-publish", func() {
		close(panicked)
		panic("webhook encoder exploded")
	})
	waitFor(t, panicked, "panicking task")

	next := make(chan struct{})
	Go("event-publish", func() { close(next) })
	waitFor(t, next, "follow-up task")
}
