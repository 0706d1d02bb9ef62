package transport

import "sync"

// progressTracker turns raw transfer percentages into the sequence seen by
// the caller: non-decreasing, below 100 while bytes are in flight, and 100
// only once the call has succeeded.
type progressTracker struct {
	mu   sync.Mutex
	last int
	fn   func(int)
}

func newProgressTracker(fn func(int)) *progressTracker {
	return &progressTracker{last: -1, fn: fn}
}

// transfer reports an intermediate value. Safe for use from the transport's
// body-writing goroutine.
func (p *progressTracker) transfer(v int) {
	p.emit(clamp(v, 0, 99))
}

func (p *progressTracker) complete() {
	p.emit(100)
}

func (p *progressTracker) emit(v int) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= p.last {
		return
	}
	p.last = v
	p.fn(v)
}
