// Package instrument holds the collectors that observe a workload while it runs:
// statements issued, heap usage and the outcomes of concurrent operations.
//
// Every collector does its own locking; callers never synchronise around them.
package instrument

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrActive is returned by operations that are only valid between windows.
	ErrActive = errors.New("instrument: measurement window is active")
	// ErrNotActive is returned by operations that need an open window.
	ErrNotActive = errors.New("instrument: measurement window is not active")
	// ErrStopped is returned when a collector has been frozen by Stop.
	ErrStopped = errors.New("instrument: collector is stopped")
)

// QueryRecord is one data-access statement observed inside a window.
type QueryRecord struct {
	Text      string
	Params    []any
	Timestamp time.Time
}

// QueryRecorder is the narrow interface drivers report statements through.
type QueryRecorder interface {
	Record(text string, params ...any)
}

// QueryCounter counts statements issued between Start and Stop.
type QueryCounter struct {
	mu      sync.Mutex
	active  bool
	count   int
	queries []QueryRecord
	now     func() time.Time
}

func NewQueryCounter() *QueryCounter {
	return &QueryCounter{now: time.Now}
}

// Start opens a new window, discarding the records of any previous one.
// Starting an active counter keeps the current window.
func (c *QueryCounter) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	c.active = true
	c.count = 0
	c.queries = nil
}

// Stop closes the window. Records are kept until the next Start or Reset.
func (c *QueryCounter) Stop() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

func (c *QueryCounter) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Record appends a statement when the window is open and is a no-op otherwise.
func (c *QueryCounter) Record(text string, params ...any) {
	if c == nil {
		return
	}
	var p []any
	if len(params) > 0 {
		p = make([]any, len(params))
		copy(p, params)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.count++
	c.queries = append(c.queries, QueryRecord{Text: text, Params: p, Timestamp: c.now()})
}

// Count returns the number of statements recorded in the current or last window.
func (c *QueryCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Queries returns a copy of the recorded statements in call order.
func (c *QueryCounter) Queries() []QueryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]QueryRecord, len(c.queries))
	copy(out, c.queries)
	return out
}

// Reset clears all records. It fails while a window is open.
func (c *QueryCounter) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrActive
	}
	c.count = 0
	c.queries = nil
	return nil
}

// Measure runs fn inside a window and returns how many statements it issued.
// The window is closed even when fn panics.
func (c *QueryCounter) Measure(fn func() error) (int, error) {
	c.Start()
	err := func() error {
		defer c.Stop()
		return fn()
	}()
	return c.Count(), err
}
