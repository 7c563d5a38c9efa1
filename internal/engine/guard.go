package engine

import "sync"

// Guard is the held/not-held flag protecting every token-settling
// entry point of an Engine against re-entry. One Guard instance covers
// all guarded entry points, not just the one being entered: a token
// implementation that calls back into any guarded operation while an
// outer guarded operation is in flight is rejected.
type Guard struct {
	mu   sync.Mutex
	held bool
}

// Enter acquires the guard or fails with a reentrancy error.
func (g *Guard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return Errorf(KindReentrant, "reentrant call rejected")
	}
	g.held = true
	return nil
}

// Exit releases the guard.
func (g *Guard) Exit() {
	g.mu.Lock()
	g.held = false
	g.mu.Unlock()
}
