package ledger

import "sync/atomic"

// ReentrancyGuard makes state-mutating operations on one ledger instance
// mutually exclusive. It never waits: a second Enter while the guard is
// held fails with ErrReentrancyDetected, whether the caller re-entered from
// a collaborator callback or arrived concurrently.
type ReentrancyGuard struct {
	held atomic.Bool
}

// Enter acquires the guard and returns its release function. Callers
// defer the release right away so every exit path unlocks.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, ErrReentrancyDetected
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.held.Store(false)
		}
	}, nil
}

// Do runs fn while holding the guard. The guard is released even if fn panics.
func (g *ReentrancyGuard) Do(fn func() error) error {
	release, err := g.Enter()
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Held reports whether an operation is in progress.
func (g *ReentrancyGuard) Held() bool {
	return g.held.Load()
}
