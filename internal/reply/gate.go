package reply

import (
	"sync"
	"time"
)

// InFlight is the token of the one reply a bot is composing.
type InFlight struct {
	ID    uint64
	Start time.Time
	Delay time.Duration
}

// Gate admits at most one in-flight reply per bot. The busy check and the
// token creation happen under one lock.
type Gate struct {
	mu  sync.Mutex
	cur *InFlight
	seq uint64
	now func() time.Time
}

func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// TryAcquire creates the in-flight token, or reports false when one exists.
func (g *Gate) TryAcquire(delay time.Duration) (*InFlight, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur != nil {
		return nil, false
	}
	g.seq++
	g.cur = &InFlight{ID: g.seq, Start: g.now(), Delay: delay}
	return g.cur, true
}

// Release destroys the token if it is still the current one.
func (g *Gate) Release(t *InFlight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t != nil && g.cur == t {
		g.cur = nil
	}
}

func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur != nil
}

// Current returns a copy of the in-flight token, if any.
func (g *Gate) Current() (InFlight, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil {
		return InFlight{}, false
	}
	return *g.cur, true
}
