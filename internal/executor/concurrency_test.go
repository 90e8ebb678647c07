package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConcurrencyGateBoundsInflight(t *testing.T) {
	gate := NewConcurrencyGate(3)
	var inflight, maxInflight int32

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			gate.Acquire(context.Background())
			n := atomic.AddInt32(&inflight, 1)
			for {
				cur := atomic.LoadInt32(&maxInflight)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInflight, cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
			gate.Release()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxInflight)), 3)
}

func TestAutoTunerShrinksWindowOnHigh429Rate(t *testing.T) {
	gate := NewConcurrencyGate(20)
	metrics := newLatencyMetrics(64)
	tuner := NewAutoTuner(gate, metrics, 1, 20, 2.0, 0.01, 0)

	for i := 0; i < 10; i++ {
		metrics.record(429, 100)
	}
	tuner.Recalc()
	assert.Less(t, gate.Window(), 20)
}
