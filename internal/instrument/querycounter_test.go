package instrument

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCounter_RecordOutsideWindowIsNoop(t *testing.T) {
	c := NewQueryCounter()
	c.Record("SELECT 1")
	assert.Equal(t, 0, c.Count())
	assert.Empty(t, c.Queries())

	c.Start()
	c.Record("SELECT 1")
	c.Stop()
	c.Record("SELECT 2")
	assert.Equal(t, 1, c.Count())
}

func TestQueryCounter_NilIsSafe(t *testing.T) {
	var c *QueryCounter
	assert.NotPanics(t, func() { c.Record("SELECT 1", 1) })
}

func TestQueryCounter_ResetOnlyBetweenWindows(t *testing.T) {
	c := NewQueryCounter()
	c.Start()
	c.Record("SELECT 1")
	assert.ErrorIs(t, c.Reset(), ErrActive)
	c.Stop()
	require.NoError(t, c.Reset())
	assert.Equal(t, 0, c.Count())
}

func TestQueryCounter_StartOpensFreshWindow(t *testing.T) {
	c := NewQueryCounter()
	c.Start()
	c.Record("SELECT 1")
	c.Stop()
	c.Start()
	c.Record("SELECT 2")
	c.Stop()

	q := c.Queries()
	require.Len(t, q, 1)
	assert.Equal(t, "SELECT 2", q[0].Text)
}

func TestQueryCounter_SnapshotsAreCopies(t *testing.T) {
	c := NewQueryCounter()
	params := []any{"a", 1}
	c.Start()
	c.Record("SELECT * FROM products WHERE id = ?", params...)
	c.Stop()

	params[0] = "mutated"
	q := c.Queries()
	q[0].Text = "changed"
	q[0].Params[1] = 2

	again := c.Queries()
	assert.Equal(t, "SELECT * FROM products WHERE id = ?", again[0].Text)
	assert.Equal(t, "a", again[0].Params[0])
}

func TestQueryCounter_MeasureClosesWindowOnError(t *testing.T) {
	c := NewQueryCounter()
	boom := errors.New("boom")
	n, err := c.Measure(func() error {
		c.Record("INSERT INTO orders VALUES (?)", 1)
		c.Record("INSERT INTO orders VALUES (?)", 2)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
	assert.False(t, c.Active())
}

func TestQueryCounter_MeasureClosesWindowOnPanic(t *testing.T) {
	c := NewQueryCounter()
	assert.Panics(t, func() {
		_, _ = c.Measure(func() error { panic("workload") })
	})
	assert.False(t, c.Active())
}

func TestQueryCounter_PerWorkerOrderIsKept(t *testing.T) {
	c := NewQueryCounter()
	c.Start()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Record(fmt.Sprintf("w%d", w), i)
			}
		}(w)
	}
	wg.Wait()
	c.Stop()

	last := map[string]int{}
	for _, q := range c.Queries() {
		i := q.Params[0].(int)
		if prev, ok := last[q.Text]; ok {
			assert.Greater(t, i, prev)
		}
		last[q.Text] = i
	}
	assert.Equal(t, 200, c.Count())
}

func TestProperty_QueryCounterCountsEveryRecord(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("start; record x N across workers; stop => count == N", prop.ForAll(
		func(workers, perWorker int) bool {
			c := NewQueryCounter()
			c.Record("before")
			c.Start()
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						c.Record("SELECT 1")
					}
				}()
			}
			wg.Wait()
			c.Stop()
			ok := c.Count() == workers*perWorker && len(c.Queries()) == workers*perWorker
			return ok && c.Reset() == nil && c.Count() == 0
		},
		gen.IntRange(1, 16),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}
