package database

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/instrument"
)

type Row interface {
	Scan(dest ...interface{}) error
}

type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Driver is a connected backend. Every statement a driver issues is reported
// to the recorder set with Instrument.
type Driver interface {
	Name() string
	Connect(ctx context.Context, dsn string) error
	Close() error
	Ping(ctx context.Context) error
	// Reset drops every table or collection the harness may have created.
	Reset(ctx context.Context) error
	// ExecuteTx runs fn in a transaction carried by the context passed to fn.
	// Calls nested inside fn join the outer transaction.
	ExecuteTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Capabilities returns the features this backend is declared to support.
	Capabilities() *capability.Registry
	Instrument(rec instrument.QueryRecorder)
	// IsDeadlock reports whether err is a lock conflict the backend resolved
	// by aborting the transaction.
	IsDeadlock(err error) bool
}

// SQLDriver is a Driver that speaks SQL. Queries use ? placeholders and are
// rebound to the backend's dialect.
type SQLDriver interface {
	Driver
	ExecContext(ctx context.Context, query string, args ...interface{}) (int64, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) Row
}

var (
	registryMu sync.RWMutex
	factories  = map[string]func() Driver{}
)

// Register makes a driver available to New under name.
func Register(name string, factory func() Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// New returns an unconnected driver for the named backend.
func New(name string) (Driver, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", name)
	}
	return factory(), nil
}

// Names lists the registered backends.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("postgres", func() Driver { return &PostgresDriver{} })
	Register("mysql", func() Driver { return &MySQLDriver{} })
	Register("sqlite", func() Driver { return &SQLiteDriver{} })
	Register("mongo", func() Driver { return &MongoDriver{} })
}

// recorderSlot holds the recorder a driver reports to. The zero value drops
// every statement.
type recorderSlot struct {
	mu  sync.RWMutex
	rec instrument.QueryRecorder
}

func (s *recorderSlot) set(rec instrument.QueryRecorder) {
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
}

func (s *recorderSlot) record(text string, args ...interface{}) {
	s.mu.RLock()
	rec := s.rec
	s.mu.RUnlock()
	if rec != nil {
		rec.Record(text, args...)
	}
}

// Rebind rewrites ? placeholders into $1, $2, ... leaving quoted text alone.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Placeholders returns rows groups of width ? markers for a multi-row VALUES
// clause.
func Placeholders(rows, width int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	return strings.TrimSuffix(strings.Repeat(group+", ", rows), ", ")
}
