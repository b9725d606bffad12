package publish

import (
	"context"
	"sync"
)

// Gate is the per-user pause/resume signal for a drain loop. It is
// level-triggered: Open wakes every waiter and stays open until Close.
// Closing does not interrupt a cycle already past its gate check; it only
// blocks the next one.
type Gate struct {
	mu   sync.Mutex
	open bool
	ch   chan struct{} // closed on Open; replaced on Close
}

func NewGate(open bool) *Gate {
	g := &Gate{open: open, ch: make(chan struct{})}
	if open {
		close(g.ch)
	}
	return g
}

func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.open = true
		close(g.ch)
	}
}

func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.open = false
		g.ch = make(chan struct{})
	}
}

func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait blocks until the gate is open or ctx is done. A signal arriving while
// the caller is suspended is never missed: the wake channel is captured
// under the same lock that Open closes it under.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.open {
			g.mu.Unlock()
			return nil
		}
		ch := g.ch
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
