// Package graphdb is an embedded, transactional property-graph store: an
// ordered KV engine underneath, a schema catalog of inheriting vertex/edge
// classes on top, and a Transaction type exposing schema, data, fetch, and
// query/traversal operations (§6's public API surface).
//
// Most callers only need Open and Transaction; the internal/* packages
// implement each layer (KV facade, schema catalog, record codec, data and
// graph relation stores, secondary indexes, condition model, query
// evaluator, traversal engine) and are not part of the public surface.
package graphdb

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nogdb/graphdb/internal/config_graphdb"
	"github.com/nogdb/graphdb/internal/filter"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/kv"
	"github.com/nogdb/graphdb/internal/schema"
	"github.com/nogdb/graphdb/internal/txn"
)

// Re-exported value types, so callers import only this package (mirrors the
// teacher's `type Issue = types.Issue` facade pattern).
type (
	ClassType        = gtypes.ClassType
	PropertyType     = gtypes.PropertyType
	TxnMode          = gtypes.TxnMode
	Direction        = gtypes.Direction
	Comparator       = gtypes.Comparator
	RecordId         = gtypes.RecordId
	RecordDescriptor = gtypes.RecordDescriptor

	Condition      = filter.Condition
	MultiCondition = filter.MultiCondition
	GraphFilter    = filter.GraphFilter

	ClassInfo    = schema.ClassInfo
	PropertyInfo = schema.PropertyInfo
	IndexInfo    = schema.IndexInfo
	DbInfo       = schema.DbInfo

	Transaction     = txn.Transaction
	Record          = txn.Record
	Finder          = txn.Finder
	EdgeFinder      = txn.EdgeFinder
	Traverser       = txn.Traverser
	PathFinder      = txn.PathFinder
	Cursor          = txn.Cursor
	DropClassResult = txn.DropClassResult
)

// Class types.
const (
	ClassTypeVertex = gtypes.ClassTypeVertex
	ClassTypeEdge   = gtypes.ClassTypeEdge
)

// Property types.
const (
	PropertyTypeTinyint          = gtypes.PropertyTypeTinyint
	PropertyTypeUnsignedTinyint  = gtypes.PropertyTypeUnsignedTinyint
	PropertyTypeSmallint         = gtypes.PropertyTypeSmallint
	PropertyTypeUnsignedSmallint = gtypes.PropertyTypeUnsignedSmallint
	PropertyTypeInteger          = gtypes.PropertyTypeInteger
	PropertyTypeUnsignedInteger  = gtypes.PropertyTypeUnsignedInteger
	PropertyTypeBigint           = gtypes.PropertyTypeBigint
	PropertyTypeUnsignedBigint   = gtypes.PropertyTypeUnsignedBigint
	PropertyTypeReal             = gtypes.PropertyTypeReal
	PropertyTypeText             = gtypes.PropertyTypeText
	PropertyTypeBlob             = gtypes.PropertyTypeBlob
)

// Transaction modes.
const (
	ReadOnly  = gtypes.TxnModeReadOnly
	ReadWrite = gtypes.TxnModeReadWrite
)

// Traversal directions.
const (
	DirectionIn  = gtypes.DirectionIn
	DirectionOut = gtypes.DirectionOut
	DirectionAll = gtypes.DirectionAll
)

// Options configures an Environment at open time (§6's "Context /
// environment": these values are fixed at open and require reopening the
// database to change).
type Options struct {
	MaxMapSize        int64
	ReadOnly          bool
	OpenTimeout       time.Duration
	VersioningEnabled bool

	// Tracer and Meter instrument the KV facade's transaction spans and
	// commit-latency/rollback-count metrics (§10). Both are optional; a nil
	// value disables the corresponding instrumentation and never affects
	// control flow (the teacher's own optional-otel style in
	// internal/storage/dolt/store.go).
	Tracer trace.Tracer
	Meter  metric.Meter
}

// Environment owns the mapped database file and is shared across every
// Transaction opened against it (§5).
type Environment struct {
	engine         *kv.Engine
	versionEnabled bool
}

// Open opens (creating if necessary) the graph database at path.
func Open(ctx context.Context, path string, opts Options) (*Environment, error) {
	engine, err := kv.Open(ctx, path, kv.Options{
		MaxMapSize:  opts.MaxMapSize,
		ReadOnly:    opts.ReadOnly,
		OpenTimeout: opts.OpenTimeout,
		Tracer:      opts.Tracer,
		Meter:       opts.Meter,
	})
	if err != nil {
		return nil, err
	}
	return &Environment{engine: engine, versionEnabled: opts.VersioningEnabled}, nil
}

// Close releases the mapped database file. Any Transaction still open
// against this Environment becomes invalid.
func (e *Environment) Close() error { return e.engine.Close() }

// Path returns the database file path this Environment was opened with.
func (e *Environment) Path() string { return e.engine.Path() }

// Begin opens a new Transaction in the given mode.
func (e *Environment) Begin(ctx context.Context, mode TxnMode) (*Transaction, error) {
	return txn.Begin(ctx, e.engine, mode, e.versionEnabled)
}

// OpenFromConfig resolves Options from an optional TOML config file and
// GRAPHDB_-prefixed environment variables (internal/config_graphdb), then
// opens the database at path the same as Open.
func OpenFromConfig(ctx context.Context, path, configPath string) (*Environment, error) {
	resolved, err := config_graphdb.Load(configPath)
	if err != nil {
		return nil, err
	}
	return Open(ctx, path, Options{
		MaxMapSize:        resolved.MaxMapSize,
		ReadOnly:          resolved.ReadOnly,
		OpenTimeout:       resolved.OpenTimeout,
		VersioningEnabled: resolved.VersioningEnabled,
	})
}
