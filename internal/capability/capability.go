// Package capability models the optional features a storage backend declares and
// the features a benchmark requires before it can run against that backend.
//
// Capabilities form a closed set: every Category has its own feature enum, and
// Capability is sealed so a type switch over the feature types is exhaustive.
package capability

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCategory = errors.New("unknown capability category")
	ErrUnknownFeature  = errors.New("unknown capability feature")
)

// Category groups related backend features.
type Category uint8

const (
	Transaction Category = iota + 1
	Locking
	Aggregate
	CTE
	Window
	Bulk
	Connection
	Cache
	Index
)

var categoryNames = map[Category]string{
	Transaction: "transaction",
	Locking:     "locking",
	Aggregate:   "aggregate",
	CTE:         "cte",
	Window:      "window",
	Bulk:        "bulk",
	Connection:  "connection",
	Cache:       "cache",
	Index:       "index",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{Transaction, Locking, Aggregate, CTE, Window, Bulk, Connection, Cache, Index}
}

// Capability is a single backend feature. The set of implementations is closed.
type Capability interface {
	Category() Category
	Name() string
	capability()
}

// Key identifies a capability by its (category, name) pair.
type Key struct {
	Category Category
	Name     string
}

func (k Key) String() string {
	return k.Category.String() + "." + k.Name
}

// KeyOf returns the identifying pair of c.
func KeyOf(c Capability) Key {
	return Key{Category: c.Category(), Name: c.Name()}
}

type TransactionFeature uint8

const (
	Savepoints TransactionFeature = iota + 1
	NestedTransactions
	SerializableIsolation
	ReadOnlyTransactions
	TransactionalDDL
)

type LockingFeature uint8

const (
	RowLevelLocking LockingFeature = iota + 1
	SkipLocked
	NoWait
	AdvisoryLocks
	TableLocking
)

type AggregateFeature uint8

const (
	FilteredAggregates AggregateFeature = iota + 1
	StringAggregation
	JSONAggregation
	StatisticalAggregates
	DistinctAggregates
)

type CTEFeature uint8

const (
	BasicCTE CTEFeature = iota + 1
	RecursiveCTE
	MaterializedCTE
	WritableCTE
)

type WindowFeature uint8

const (
	RankingFunctions WindowFeature = iota + 1
	OffsetFunctions
	AggregateWindows
	FrameClauses
)

type BulkFeature uint8

const (
	MultiRowInsert BulkFeature = iota + 1
	BulkUpdate
	Upsert
	Returning
	CopyFrom
)

type ConnectionFeature uint8

const (
	Pooling ConnectionFeature = iota + 1
	PreparedStatements
	ConcurrentWriters
	SessionReset
)

type CacheFeature uint8

const (
	QueryCache CacheFeature = iota + 1
	StatementCache
	IdentityMap
)

type IndexFeature uint8

const (
	PartialIndex IndexFeature = iota + 1
	ExpressionIndex
	FullTextIndex
	JSONIndex
	CoveringIndex
)

var (
	transactionNames = []string{Savepoints: "savepoints", NestedTransactions: "nested", SerializableIsolation: "serializable", ReadOnlyTransactions: "read_only", TransactionalDDL: "ddl"}
	lockingNames     = []string{RowLevelLocking: "row_level", SkipLocked: "skip_locked", NoWait: "nowait", AdvisoryLocks: "advisory", TableLocking: "table"}
	aggregateNames   = []string{FilteredAggregates: "filter", StringAggregation: "string_agg", JSONAggregation: "json_agg", StatisticalAggregates: "statistical", DistinctAggregates: "distinct"}
	cteNames         = []string{BasicCTE: "basic", RecursiveCTE: "recursive", MaterializedCTE: "materialized", WritableCTE: "writable"}
	windowNames      = []string{RankingFunctions: "ranking", OffsetFunctions: "offset", AggregateWindows: "aggregate", FrameClauses: "frames"}
	bulkNames        = []string{MultiRowInsert: "multi_row_insert", BulkUpdate: "update", Upsert: "upsert", Returning: "returning", CopyFrom: "copy_from"}
	connectionNames  = []string{Pooling: "pooling", PreparedStatements: "prepared_statements", ConcurrentWriters: "concurrent_writers", SessionReset: "session_reset"}
	cacheNames       = []string{QueryCache: "query", StatementCache: "statement", IdentityMap: "identity_map"}
	indexNames       = []string{PartialIndex: "partial", ExpressionIndex: "expression", FullTextIndex: "full_text", JSONIndex: "json", CoveringIndex: "covering"}
)

func featureName(names []string, v uint8) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return fmt.Sprintf("feature(%d)", v)
}

func (f TransactionFeature) Category() Category { return Transaction }
func (f TransactionFeature) Name() string       { return featureName(transactionNames, uint8(f)) }
func (f TransactionFeature) String() string     { return KeyOf(f).String() }
func (TransactionFeature) capability()          {}

func (f LockingFeature) Category() Category { return Locking }
func (f LockingFeature) Name() string       { return featureName(lockingNames, uint8(f)) }
func (f LockingFeature) String() string     { return KeyOf(f).String() }
func (LockingFeature) capability()          {}

func (f AggregateFeature) Category() Category { return Aggregate }
func (f AggregateFeature) Name() string       { return featureName(aggregateNames, uint8(f)) }
func (f AggregateFeature) String() string     { return KeyOf(f).String() }
func (AggregateFeature) capability()          {}

func (f CTEFeature) Category() Category { return CTE }
func (f CTEFeature) Name() string       { return featureName(cteNames, uint8(f)) }
func (f CTEFeature) String() string     { return KeyOf(f).String() }
func (CTEFeature) capability()          {}

func (f WindowFeature) Category() Category { return Window }
func (f WindowFeature) Name() string       { return featureName(windowNames, uint8(f)) }
func (f WindowFeature) String() string     { return KeyOf(f).String() }
func (WindowFeature) capability()          {}

func (f BulkFeature) Category() Category { return Bulk }
func (f BulkFeature) Name() string       { return featureName(bulkNames, uint8(f)) }
func (f BulkFeature) String() string     { return KeyOf(f).String() }
func (BulkFeature) capability()          {}

func (f ConnectionFeature) Category() Category { return Connection }
func (f ConnectionFeature) Name() string       { return featureName(connectionNames, uint8(f)) }
func (f ConnectionFeature) String() string     { return KeyOf(f).String() }
func (ConnectionFeature) capability()          {}

func (f CacheFeature) Category() Category { return Cache }
func (f CacheFeature) Name() string       { return featureName(cacheNames, uint8(f)) }
func (f CacheFeature) String() string     { return KeyOf(f).String() }
func (CacheFeature) capability()          {}

func (f IndexFeature) Category() Category { return Index }
func (f IndexFeature) Name() string       { return featureName(indexNames, uint8(f)) }
func (f IndexFeature) String() string     { return KeyOf(f).String() }
func (IndexFeature) capability()          {}

// Features returns every known capability of category c in declaration order.
func Features(c Category) []Capability {
	var out []Capability
	switch c {
	case Transaction:
		for i := range transactionNames[1:] {
			out = append(out, TransactionFeature(i+1))
		}
	case Locking:
		for i := range lockingNames[1:] {
			out = append(out, LockingFeature(i+1))
		}
	case Aggregate:
		for i := range aggregateNames[1:] {
			out = append(out, AggregateFeature(i+1))
		}
	case CTE:
		for i := range cteNames[1:] {
			out = append(out, CTEFeature(i+1))
		}
	case Window:
		for i := range windowNames[1:] {
			out = append(out, WindowFeature(i+1))
		}
	case Bulk:
		for i := range bulkNames[1:] {
			out = append(out, BulkFeature(i+1))
		}
	case Connection:
		for i := range connectionNames[1:] {
			out = append(out, ConnectionFeature(i+1))
		}
	case Cache:
		for i := range cacheNames[1:] {
			out = append(out, CacheFeature(i+1))
		}
	case Index:
		for i := range indexNames[1:] {
			out = append(out, IndexFeature(i+1))
		}
	}
	return out
}

// Parse converts a "category.name" tag, as used in declaration files, into a
// typed Capability.
func Parse(tag string) (Capability, error) {
	category, name, ok := strings.Cut(strings.TrimSpace(tag), ".")
	if !ok {
		return nil, fmt.Errorf("%w: %q is not of the form category.name", ErrUnknownFeature, tag)
	}
	return Lookup(category, name)
}

// Lookup resolves a (category, name) pair into a typed Capability.
func Lookup(category, name string) (Capability, error) {
	var cat Category
	for c, n := range categoryNames {
		if n == category {
			cat = c
			break
		}
	}
	if cat == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	for _, f := range Features(cat) {
		if f.Name() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFeature, category, name)
}

// MustParse is like Parse but panics on an unknown tag. It is meant for
// package-level declarations.
func MustParse(tag string) Capability {
	c, err := Parse(tag)
	if err != nil {
		panic(err)
	}
	return c
}
