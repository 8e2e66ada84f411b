package common

import "errors"

// ErrReentrant is returned when a guarded method is entered while already held.
var ErrReentrant = errors.New("reentrancy guard: reentrant call")

// ReentrancyGuard rejects nested entry into a guarded section. The zero value is
// ready for use.
type ReentrancyGuard struct {
	entered bool
}

// Enter acquires the guard. The returned release function must be deferred by
// the caller; it is safe to call more than once.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if g.entered {
		return nil, ErrReentrant
	}
	g.entered = true
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.entered = false
	}, nil
}

// Held reports whether the guard is currently acquired.
func (g *ReentrancyGuard) Held() bool {
	return g != nil && g.entered
}
