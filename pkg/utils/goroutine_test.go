package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// recordingTB captures failures without failing the enclosing test
type recordingTB struct {
	testing.TB
	mu     sync.Mutex
	failed bool
}

func (r *recordingTB) Helper()                         {}
func (r *recordingTB) Logf(format string, args ...any) {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = true
}

func TestGoroutineLeakDetector(t *testing.T) {
	t.Run("NoLeak", func(t *testing.T) {
		detector := NewGoroutineLeakDetector(t).SetStabilizeDelay(50 * time.Millisecond).Start()

		ch := make(chan struct{})
		go func() {
			ch <- struct{}{}
		}()
		<-ch

		detector.Check()
	})

	t.Run("DetectsLeak", func(t *testing.T) {
		rec := &recordingTB{TB: t}
		detector := NewGoroutineLeakDetector(rec).SetStabilizeDelay(50 * time.Millisecond).Start()

		stop := make(chan struct{})
		defer close(stop)
		go func() {
			<-stop
		}()

		detector.Check()
		assert.True(t, rec.failed, "expected leak detector to report the blocked goroutine")
	})
}
