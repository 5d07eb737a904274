// Package kv is the thin facade over the embedded ordered key-value engine
// described in §4.1: named sub-databases, integer or byte-string keys, unique
// or duplicate values, and range cursors. It is backed by go.etcd.io/bbolt,
// which supplies the single-writer/many-reader copy-on-write MVCC transactions
// the spec assumes but does not itself define (§1, §5).
//
// bbolt buckets are natively unique-key, byte-string-ordered stores. Two
// conventions layer the spec's remaining requirements on top:
//   - Numeric-keyed sub-dbs encode keys as fixed-width big-endian integers, so
//     byte-lexicographic bucket order equals numeric order.
//   - Dup-value sub-dbs are a bucket-of-buckets: the primary key opens a nested
//     bucket whose keys are the distinct values (each mapped to an empty
//     placeholder), giving per-key iteration in sorted value order.
package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nogdb/graphdb/internal/errs"
)

// Flags configure a sub-database at open time (§4.1).
type Flags struct {
	Numeric bool // keys are fixed-width big-endian integers
	DupSort bool // multiple values per key, stored sorted
}

// Engine owns the mapped file and reader table shared across Transactions (§5).
type Engine struct {
	db     *bolt.DB
	path   string
	tracer trace.Tracer

	commitLatency metric.Float64Histogram
	rollbackCount metric.Int64Counter
}

// Options configure environment-open behavior (§6's Context/environment).
type Options struct {
	MaxMapSize  int64
	ReadOnly    bool
	OpenTimeout time.Duration

	// Tracer instruments Begin/Commit/Rollback spans (§10). A nil Tracer
	// disables instrumentation entirely; it is never required.
	Tracer trace.Tracer
	// Meter records commit-latency and rollback-count instruments (§10). A
	// nil Meter disables instrumentation entirely; it is never required.
	Meter metric.Meter
}

// instruments builds the commit-latency histogram and rollback counter from
// opts.Meter, tolerating a nil Meter (both fields stay nil, and every call
// site below already guards on nil before recording).
func instruments(m metric.Meter) (metric.Float64Histogram, metric.Int64Counter) {
	if m == nil {
		return nil, nil
	}
	hist, err := m.Float64Histogram("graphdb.kv.commit_latency_ms",
		metric.WithDescription("KV transaction commit latency in milliseconds"))
	if err != nil {
		return nil, nil
	}
	cnt, err := m.Int64Counter("graphdb.kv.rollback_count",
		metric.WithDescription("Count of KV transactions that ended in rollback"))
	if err != nil {
		return nil, nil
	}
	return hist, cnt
}

// Open opens (creating if necessary) the database file at path, retrying on a
// transient lock-held error the way internal/storage/dolt retries serialization
// conflicts, since the Environment's reader table may briefly be held by another
// process attaching to the same path (§5).
func Open(ctx context.Context, path string, opts Options) (*Engine, error) {
	boltOpts := &bolt.Options{
		Timeout:  200 * time.Millisecond,
		ReadOnly: opts.ReadOnly,
	}

	var db *bolt.DB
	op := func() error {
		d, err := bolt.Open(path, 0o600, boltOpts)
		if err != nil {
			return err
		}
		db = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	if opts.OpenTimeout > 0 {
		b.MaxElapsedTime = opts.OpenTimeout
	} else {
		b.MaxElapsedTime = 2 * time.Second
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, errs.Wrap("kv.Open", errs.CategoryStorage, "STORAGE_OPEN", err)
	}
	hist, cnt := instruments(opts.Meter)
	return &Engine{db: db, path: path, tracer: opts.Tracer, commitLatency: hist, rollbackCount: cnt}, nil
}

// Tracer returns the Engine's configured tracer, or nil if none was set (the
// same tracer Begin uses for its "kv.tx" spans).
func (e *Engine) Tracer() trace.Tracer { return e.tracer }

// Close releases the mapped file.
func (e *Engine) Close() error { return e.db.Close() }

// Path returns the underlying file path.
func (e *Engine) Path() string { return e.path }

// Tx wraps one KV transaction (read-only or read-write).
type Tx struct {
	tx       *bolt.Tx
	writable bool
	tracer   trace.Tracer
	span     trace.Span
	started  time.Time

	commitLatency metric.Float64Histogram
	rollbackCount metric.Int64Counter
}

// Begin opens a new transaction in the given mode, starting a "kv.tx" span
// over its lifetime when the Engine was opened with a Tracer (§10).
func (e *Engine) Begin(writable bool) (*Tx, error) {
	var span trace.Span
	if e.tracer != nil {
		_, span = e.tracer.Start(context.Background(), "kv.tx",
			trace.WithAttributes(attribute.Bool("writable", writable)))
	}
	btx, err := e.db.Begin(writable)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.End()
		}
		return nil, errs.Wrap("kv.Begin", errs.CategoryStorage, "STORAGE_BEGIN", err)
	}
	return &Tx{
		tx: btx, writable: writable,
		tracer: e.tracer, span: span, started: time.Now(),
		commitLatency: e.commitLatency, rollbackCount: e.rollbackCount,
	}, nil
}

// Writable reports whether this transaction may mutate data.
func (t *Tx) Writable() bool { return t.writable }

// Commit commits the transaction.
func (t *Tx) Commit() error {
	err := t.tx.Commit()
	if t.commitLatency != nil && err == nil {
		t.commitLatency.Record(context.Background(), float64(time.Since(t.started).Microseconds())/1000)
	}
	if t.span != nil {
		t.span.SetAttributes(attribute.String("outcome", "commit"))
		if err != nil {
			t.span.RecordError(err)
		}
		t.span.End()
		t.span = nil
	}
	if err != nil {
		return errs.Wrap("kv.Commit", errs.CategoryStorage, "STORAGE_COMMIT", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call multiple times (matching
// bbolt's own idempotent Rollback, which §4.12 requires of the Transaction
// Manager built on top of this facade).
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	alreadyClosed := errors.Is(err, bolt.ErrTxClosed)
	// Read-only transactions always end via Rollback (bbolt has no "commit" for
	// a read view); only a writable rollback is an aborted write worth counting.
	if t.rollbackCount != nil && !alreadyClosed && t.writable {
		t.rollbackCount.Add(context.Background(), 1)
	}
	if t.span != nil {
		t.span.SetAttributes(attribute.String("outcome", "rollback"))
		if err != nil && !alreadyClosed {
			t.span.RecordError(err)
		}
		t.span.End()
		t.span = nil
	}
	if err != nil && !alreadyClosed {
		return errs.Wrap("kv.Rollback", errs.CategoryStorage, "STORAGE_ROLLBACK", err)
	}
	return nil
}

// Bucket is a handle to one sub-database within a transaction.
type Bucket struct {
	b     *bolt.Bucket
	tx    *Tx
	flags Flags
	name  string
}

// OpenBucket opens (or, if the transaction is writable, creates) a named
// sub-database with the given flags.
func (t *Tx) OpenBucket(name string, flags Flags, create bool) (*Bucket, error) {
	var b *bolt.Bucket
	var err error
	if create && t.writable {
		b, err = t.tx.CreateBucketIfNotExists([]byte(name))
	} else {
		b = t.tx.Bucket([]byte(name))
		if b == nil {
			return nil, errs.Wrap("kv.OpenBucket", errs.CategoryStorage, "STORAGE_NOTFOUND", errs.ErrNotFound)
		}
	}
	if err != nil {
		return nil, errs.Wrap("kv.OpenBucket", errs.CategoryStorage, "STORAGE_OPEN", err)
	}
	return &Bucket{b: b, tx: t, flags: flags, name: name}, nil
}

// DropBucket removes an entire sub-database and its contents.
func (t *Tx) DropBucket(name string) error {
	err := t.tx.DeleteBucket([]byte(name))
	if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return errs.Wrap("kv.DropBucket", errs.CategoryStorage, "STORAGE_DROP", err)
	}
	return nil
}

// EncodeUint16 big-endian encodes a numeric key so bucket order matches integer order.
func EncodeUint16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}

// EncodeUint32 big-endian encodes a numeric key so bucket order matches integer order.
func EncodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// DecodeUint32 is the inverse of EncodeUint32.
func DecodeUint32(buf []byte) uint32 { return binary.BigEndian.Uint32(buf) }

// DecodeUint16 is the inverse of EncodeUint16.
func DecodeUint16(buf []byte) uint16 { return binary.BigEndian.Uint16(buf) }

// PutUint16At writes v little-endian at buf[off:off+2] (stored values, unlike
// keys, are little-endian).
func PutUint16At(buf []byte, off int, v uint16) { binary.LittleEndian.PutUint16(buf[off:], v) }

// PutUint32At writes v little-endian at buf[off:off+4].
func PutUint32At(buf []byte, off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }

// Uint16At reads a little-endian uint16 at buf[off:off+2].
func Uint16At(buf []byte, off int) uint16 { return binary.LittleEndian.Uint16(buf[off:]) }

// Uint32At reads a little-endian uint32 at buf[off:off+4].
func Uint32At(buf []byte, off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }

// Get returns the value for key, or (nil, false) if absent — matching §4.1's
// "NOT_FOUND is not an error" rule.
func (b *Bucket) Get(key []byte) ([]byte, bool) {
	if b.flags.DupSort {
		nested := b.b.Bucket(key)
		if nested == nil {
			return nil, false
		}
		k, _ := nested.Cursor().First()
		if k == nil {
			return nil, false
		}
		return append([]byte(nil), k...), true
	}
	v := b.b.Get(key)
	if v == nil {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Put writes key->value, overwriting any existing value for key in a
// unique-values sub-db. KEY_EXIST is returned for insert-unique violations
// by the caller (DataRecord/Index layers), not by Put itself, since bbolt has
// no insert-only primitive; callers that need uniqueness call Get first.
func (b *Bucket) Put(key, value []byte) error {
	if err := b.b.Put(key, value); err != nil {
		return errs.Wrap(fmt.Sprintf("kv.Put(%s)", b.name), errs.CategoryStorage, "STORAGE_PUT", err)
	}
	return nil
}

// PutUnique writes key->value only if key is absent, returning ErrKeyExist otherwise.
func (b *Bucket) PutUnique(key, value []byte) error {
	if b.flags.DupSort {
		return errs.Wrap("kv.PutUnique", errs.CategoryInternal, "INTERNAL", errs.ErrUnknown)
	}
	if b.b.Get(key) != nil {
		return errs.Wrap(fmt.Sprintf("kv.PutUnique(%s)", b.name), errs.CategoryStorage, "STORAGE_KEYEXIST", errs.ErrKeyExist)
	}
	return b.Put(key, value)
}

// PutDup adds value to the sorted set of values stored under key, in a
// dup-values sub-db (§4.1's "dup-value sub-trees store multiple values per
// key in sorted order").
func (b *Bucket) PutDup(key, value []byte) error {
	nested, err := b.b.CreateBucketIfNotExists(key)
	if err != nil {
		return errs.Wrap(fmt.Sprintf("kv.PutDup(%s)", b.name), errs.CategoryStorage, "STORAGE_PUT", err)
	}
	if err := nested.Put(value, []byte{1}); err != nil {
		return errs.Wrap(fmt.Sprintf("kv.PutDup(%s)", b.name), errs.CategoryStorage, "STORAGE_PUT", err)
	}
	return nil
}

// DeleteDup removes one value from the dup-values set stored under key.
func (b *Bucket) DeleteDup(key, value []byte) error {
	nested := b.b.Bucket(key)
	if nested == nil {
		return nil
	}
	if err := nested.Delete(value); err != nil {
		return errs.Wrap(fmt.Sprintf("kv.DeleteDup(%s)", b.name), errs.CategoryStorage, "STORAGE_DEL", err)
	}
	if k, _ := nested.Cursor().First(); k == nil {
		_ = b.b.DeleteBucket(key)
	}
	return nil
}

// DupValues returns every value currently stored under key in a dup-values sub-db.
func (b *Bucket) DupValues(key []byte) [][]byte {
	nested := b.b.Bucket(key)
	if nested == nil {
		return nil
	}
	var out [][]byte
	c := nested.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		out = append(out, append([]byte(nil), k...))
	}
	return out
}

// Delete removes key (and, for a unique sub-db, its value).
func (b *Bucket) Delete(key []byte) error {
	if b.flags.DupSort {
		if err := b.b.DeleteBucket(key); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return errs.Wrap(fmt.Sprintf("kv.Delete(%s)", b.name), errs.CategoryStorage, "STORAGE_DEL", err)
		}
		return nil
	}
	if err := b.b.Delete(key); err != nil {
		return errs.Wrap(fmt.Sprintf("kv.Delete(%s)", b.name), errs.CategoryStorage, "STORAGE_DEL", err)
	}
	return nil
}

// Cursor returns a new ordered cursor over this sub-db's primary keys.
func (b *Bucket) Cursor() *Cursor {
	return &Cursor{c: b.b.Cursor(), dup: b.flags.DupSort}
}

// Cursor implements the {first, last, next, prev, find-exact, find-range,
// delete-at-cursor} operation set from §4.1.
type Cursor struct {
	c   *bolt.Cursor
	dup bool
	key []byte
}

// First positions the cursor at the lowest key.
func (c *Cursor) First() ([]byte, []byte, bool) { return c.ret(c.c.First()) }

// Last positions the cursor at the highest key.
func (c *Cursor) Last() ([]byte, []byte, bool) { return c.ret(c.c.Last()) }

// Next advances the cursor.
func (c *Cursor) Next() ([]byte, []byte, bool) { return c.ret(c.c.Next()) }

// Prev moves the cursor backward.
func (c *Cursor) Prev() ([]byte, []byte, bool) { return c.ret(c.c.Prev()) }

// Seek positions the cursor at key if present, else the next key ≥ key
// (find-range semantics); callers wanting find-exact compare the returned key.
func (c *Cursor) Seek(key []byte) ([]byte, []byte, bool) { return c.ret(c.c.Seek(key)) }

// DeleteAtCursor removes the entry the cursor currently addresses.
func (c *Cursor) DeleteAtCursor() error {
	if err := c.c.Delete(); err != nil {
		return errs.Wrap("kv.DeleteAtCursor", errs.CategoryStorage, "STORAGE_DEL", err)
	}
	return nil
}

func (c *Cursor) ret(k, v []byte) ([]byte, []byte, bool) {
	c.key = k
	if k == nil {
		return nil, nil, false
	}
	return k, v, true
}
