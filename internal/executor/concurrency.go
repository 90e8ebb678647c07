package executor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ConcurrencyGate bounds the number of in-flight search calls within one
// batch to the job's fixed concurrency parameter (spec §4.5 step 2: "fan out
// ... with parallelism bounded by the job's concurrency"). Adapted verbatim
// from the teacher's fetchd.go ConcurrencyGate — a condition-variable
// semaphore whose window can shrink under load.
type ConcurrencyGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	window  int
	current int
}

func NewConcurrencyGate(n int) *ConcurrencyGate {
	if n < 1 {
		n = 1
	}
	g := &ConcurrencyGate{window: n}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *ConcurrencyGate) Acquire(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.current >= g.window {
		if ctx.Err() != nil {
			return false
		}
		g.cond.Wait()
	}
	g.current++
	return true
}

func (g *ConcurrencyGate) Release() {
	g.mu.Lock()
	if g.current > 0 {
		g.current--
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *ConcurrencyGate) SetWindow(n int) {
	g.mu.Lock()
	if n < 1 {
		n = 1
	}
	g.window = n
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *ConcurrencyGate) Window() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window
}

// latencyMetrics is a minimal ring-buffer p95 tracker plus a 429-rate
// counter, trimmed from the teacher's Metrics (fetchd.go) to only what
// AutoTuner needs: this package logs batch summaries via slog rather than
// serving its own /metrics endpoint.
type latencyMetrics struct {
	mu           sync.Mutex
	samples      []float64
	idx          int
	count        int
	req429       uint64
	reqTotal     uint64
}

func newLatencyMetrics(window int) *latencyMetrics {
	if window < 1 {
		window = 1
	}
	return &latencyMetrics{samples: make([]float64, window)}
}

func (m *latencyMetrics) record(statusCode int, elapsedMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if statusCode == 429 {
		m.req429++
	}
	m.reqTotal++
	m.samples[m.idx] = elapsedMs
	m.idx = (m.idx + 1) % len(m.samples)
	if m.count < len(m.samples) {
		m.count++
	}
}

func (m *latencyMetrics) p95() float64 {
	m.mu.Lock()
	n := m.count
	buf := make([]float64, n)
	copy(buf, m.samples[:n])
	m.mu.Unlock()
	if n == 0 {
		return 0
	}
	sort.Float64s(buf)
	idx := 0.95 * float64(n-1)
	i := int(idx)
	if i >= n-1 {
		return buf[n-1]
	}
	frac := idx - float64(i)
	return buf[i]*(1-frac) + buf[i+1]*frac
}

func (m *latencyMetrics) resetRate429() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ratio float64
	if m.reqTotal > 0 {
		ratio = float64(m.req429) / float64(m.reqTotal)
	}
	m.req429, m.reqTotal = 0, 0
	return ratio
}

// AutoTuner implements the AIMD adjustment loop from the teacher's fetchd.go:
// shrink the gate's window by 30% when p95 latency exceeds a learned
// baseline or the 429 rate crosses a ceiling, grow it cautiously otherwise.
// The per-job `concurrency` parameter is AutoTuner's maxW ceiling — it never
// raises effective parallelism above what the job asked for, only shrinks
// below it under load (spec §5's "polite concurrency caps and backoff on
// 429 are the only controls").
type AutoTuner struct {
	mu            sync.Mutex
	gate          *ConcurrencyGate
	metrics       *latencyMetrics
	minW, maxW    int
	sloMult       float64
	max429Rate    float64
	evalEvery     time.Duration
	lastRecalc    time.Time
	baselineP95   float64
	baselineSet   bool
	goodStreak    int
}

func NewAutoTuner(gate *ConcurrencyGate, metrics *latencyMetrics, minW, maxW int, sloMult, max429Rate float64, evalEvery time.Duration) *AutoTuner {
	if minW < 1 {
		minW = 1
	}
	if maxW < minW {
		maxW = minW
	}
	if evalEvery <= 0 {
		evalEvery = 2 * time.Second
	}
	return &AutoTuner{
		gate: gate, metrics: metrics, minW: minW, maxW: maxW,
		sloMult: sloMult, max429Rate: max429Rate, evalEvery: evalEvery,
	}
}

func (t *AutoTuner) Recalc() {
	now := time.Now()
	t.mu.Lock()
	if !t.lastRecalc.IsZero() && now.Sub(t.lastRecalc) < t.evalEvery {
		t.mu.Unlock()
		return
	}
	t.lastRecalc = now
	t.mu.Unlock()

	p95 := t.metrics.p95()
	r429 := t.metrics.resetRate429()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.baselineSet && p95 > 0 {
		t.baselineP95 = p95
		t.baselineSet = true
	}
	base := t.baselineP95
	if base <= 0 {
		base = 400 // ms; a reasonable guess before any samples exist
	}
	tooSlow := p95 > base*t.sloMult
	tooMany429 := r429 > t.max429Rate

	w := t.gate.Window()
	switch {
	case tooSlow || tooMany429:
		newW := int(float64(w) * 0.70)
		if newW < t.minW {
			newW = t.minW
		}
		t.gate.SetWindow(newW)
		t.goodStreak = 0
	default:
		t.goodStreak++
		if p95 < base*t.sloMult*0.75 && r429 < t.max429Rate*0.5 {
			inc := w / 16
			if inc < 2 {
				inc = 2
			}
			newW := min(w+inc, t.maxW)
			t.gate.SetWindow(newW)
		} else if t.goodStreak%2 == 0 {
			t.gate.SetWindow(min(w+1, t.maxW))
		}
	}
}
