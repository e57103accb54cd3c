// Package utils holds helpers shared by the protocol packages: JSON schema
// reflection and validation, and a goroutine leak detector for tests.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector helps detect goroutine leaks in tests
type GoroutineLeakDetector struct {
	t              testing.TB
	initialCount   int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
	samples        int
}

// NewGoroutineLeakDetector creates a new goroutine leak detector
func NewGoroutineLeakDetector(t testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:              t,
		checkInterval:  100 * time.Millisecond,
		stabilizeDelay: 200 * time.Millisecond,
		samples:        3,
	}
}

// Start records the initial goroutine count
func (d *GoroutineLeakDetector) Start() *GoroutineLeakDetector {
	time.Sleep(d.stabilizeDelay)
	d.initialCount = runtime.NumGoroutine()
	d.t.Logf("Starting goroutine count: %d", d.initialCount)
	return d
}

// Leaked returns how many goroutines exist beyond the starting count, taking
// the minimum over several samples so goroutines mid-exit are not counted.
func (d *GoroutineLeakDetector) Leaked() int {
	time.Sleep(d.stabilizeDelay)

	finalCount := runtime.NumGoroutine()
	for i := 1; i < d.samples; i++ {
		time.Sleep(d.checkInterval)
		if c := runtime.NumGoroutine(); c < finalCount {
			finalCount = c
		}
	}
	return finalCount - d.initialCount
}

// Check fails the test when growth exceeds the allowance.
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()

	leaked := d.Leaked()
	if leaked > d.allowedGrowth {
		d.t.Errorf("Goroutine leak detected: started with %d (leaked: %d, allowed: %d)",
			d.initialCount, leaked, d.allowedGrowth)

		buf := make([]byte, 1<<20)
		stackLen := runtime.Stack(buf, true)
		d.t.Logf("Current goroutine stack traces:\n%s", buf[:stackLen])
		return
	}
	d.t.Logf("No goroutine leak: started with %d, growth %d", d.initialCount, leaked)
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay sets the delay to allow goroutines to stabilize
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.stabilizeDelay = delay
	return d
}
