// Package testutil holds small helpers shared by the package tests.
package testutil

import (
	"testing"
	"time"
)

// WaitUntil polls cond every 10ms until it returns true or the timeout
// elapses, failing the test on timeout.
func WaitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
