// Package calltimer counts the seconds of an active call.
package calltimer

import "sync"

// Timer is a monotonic elapsed-seconds counter. The owner drives it with
// Tick once per second while the call is active.
type Timer struct {
	mu      sync.Mutex
	running bool
	elapsed int
}

func New() *Timer { return &Timer{} }

// Start resets the count to zero and begins accepting ticks.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.elapsed = 0
}

// Tick advances the count by one second. Ticks while stopped are ignored.
func (t *Timer) Tick() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.elapsed++
	}
	return t.elapsed
}

// Stop halts the timer and discards the elapsed value.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.elapsed = 0
}

func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
