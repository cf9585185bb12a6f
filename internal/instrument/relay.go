package instrument

import "sync"

// QueryRelay is the recorder a driver keeps for its whole lifetime. It
// forwards each statement to the counter currently attached and drops it
// when none is.
type QueryRelay struct {
	mu     sync.RWMutex
	target *QueryCounter
}

func NewQueryRelay() *QueryRelay {
	return &QueryRelay{}
}

// Attach routes statements to c, replacing any previous counter.
func (r *QueryRelay) Attach(c *QueryCounter) {
	r.mu.Lock()
	r.target = c
	r.mu.Unlock()
}

// Detach stops forwarding to c. A counter attached since is left in place.
func (r *QueryRelay) Detach(c *QueryCounter) {
	r.mu.Lock()
	if r.target == c {
		r.target = nil
	}
	r.mu.Unlock()
}

func (r *QueryRelay) Attached() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.target != nil
}

func (r *QueryRelay) Record(text string, params ...any) {
	r.mu.RLock()
	target := r.target
	r.mu.RUnlock()
	target.Record(text, params...)
}
