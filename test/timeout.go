package test

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// Guard implements a test level timeout and checks for leaked goroutines
// once the returned function is called.
func Guard(t *testing.T) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(2 * Timeout):
			DumpGoroutines()

			panic("test timeout")
		case <-done:
		}
	}()

	fn := leaktest.CheckTimeout(t, Timeout)

	return func() {
		close(done)
		fn()
	}
}
