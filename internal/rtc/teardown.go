package rtc

import "sync"

// teardown collects cleanup callbacks for one call. pion stores a single
// OnConnectionStateChange handler per peer connection, so all cleanup stages
// enroll here and a single handler fires the registry.
type teardown struct {
	mu    sync.Mutex
	fns   []func()
	fired bool
}

// add registers fn to run on teardown. If teardown already fired, fn runs
// immediately so late-registered cleanup is never lost.
func (t *teardown) add(fn func()) {
	t.mu.Lock()
	fired := t.fired
	if !fired {
		t.fns = append(t.fns, fn)
	}
	t.mu.Unlock()
	if fired {
		fn()
	}
}

// run executes all registered callbacks exactly once, newest first.
func (t *teardown) run() {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	fns := t.fns
	t.fns = nil
	t.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
