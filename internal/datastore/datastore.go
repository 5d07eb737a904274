// Package datastore implements the Data Record Store described in §4.5: one
// sub-database per class, integer-keyed by PositionId, with a reserved
// allocator key and stable, never-reused position ids.
//
// Grounded in original_source/src/datarecord_adapter.hpp's DataRecord class
// (init/insert/update/remove/destroy/getResult/resultSetIter).
package datastore

import (
	"fmt"

	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/kv"
)

// maxRecordNumKey is the reserved allocator key (position id 0 is never a
// real record, matching the original's MAX_RECORD_NUM_EM sentinel).
var maxRecordNumKey = kv.EncodeUint32(0)

const firstPositionId = gtypes.PositionId(1)

func bucketName(classId gtypes.ClassId) string {
	return fmt.Sprintf("class_%d", classId)
}

// Store is the Data Record Store bound to one class within one transaction.
type Store struct {
	tx      *kv.Tx
	classId gtypes.ClassId
}

// Open binds a Store to classId within tx. It does not create the
// underlying bucket; call Init for a brand-new class.
func Open(tx *kv.Tx, classId gtypes.ClassId) *Store {
	return &Store{tx: tx, classId: classId}
}

func (s *Store) bucket(create bool) (*kv.Bucket, error) {
	return s.tx.OpenBucket(bucketName(s.classId), kv.Flags{Numeric: true}, create)
}

// Init creates the class's data-record table and seeds the allocator, the
// way DataRecord::init() does: put(MAX_RECORD_NUM_EM, PositionId{1}).
func (s *Store) Init() error {
	b, err := s.bucket(true)
	if err != nil {
		return err
	}
	return b.Put(maxRecordNumKey, kv.EncodeUint32(uint32(firstPositionId)))
}

// Insert allocates the next PositionId (read-increment) and stores blob
// under it, returning the new PositionId.
func (s *Store) Insert(value []byte) (gtypes.PositionId, error) {
	b, err := s.bucket(true)
	if err != nil {
		return 0, err
	}
	raw, ok := b.Get(maxRecordNumKey)
	next := firstPositionId
	if ok {
		next = gtypes.PositionId(kv.DecodeUint32(raw))
	}
	if err := b.Put(maxRecordNumKey, kv.EncodeUint32(uint32(next+1))); err != nil {
		return 0, err
	}
	if err := b.Put(kv.EncodeUint32(uint32(next)), value); err != nil {
		return 0, err
	}
	return next, nil
}

// Update overwrites the record at posid.
func (s *Store) Update(posid gtypes.PositionId, value []byte) error {
	b, err := s.bucket(true)
	if err != nil {
		return err
	}
	return b.Put(kv.EncodeUint32(uint32(posid)), value)
}

// Remove deletes the record at posid, leaving position ids sparse.
func (s *Store) Remove(posid gtypes.PositionId) error {
	b, err := s.bucket(true)
	if err != nil {
		return err
	}
	return b.Delete(kv.EncodeUint32(uint32(posid)))
}

// Destroy drops the entire class data table, matching DataRecord::destroy()
// (drop(true)).
func (s *Store) Destroy() error {
	return s.tx.DropBucket(bucketName(s.classId))
}

// GetResult returns the raw bytes stored at posid.
func (s *Store) GetResult(posid gtypes.PositionId) ([]byte, error) {
	b, err := s.bucket(false)
	if err != nil {
		return nil, err
	}
	v, ok := b.Get(kv.EncodeUint32(uint32(posid)))
	if !ok {
		return nil, errs.Wrap("datastore.GetResult", errs.CategorySchema, "NOEXST_RECORD", errs.ErrNoexstRecord)
	}
	return v, nil
}

// ResultSetIter walks every record in PositionId order, skipping the
// allocator key, invoking fn(posid, value) for each.
func (s *Store) ResultSetIter(fn func(gtypes.PositionId, []byte) error) error {
	b, err := s.bucket(false)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}
	cur := b.Cursor()
	for k, v, ok := cur.First(); ok; k, v, ok = cur.Next() {
		if string(k) == string(maxRecordNumKey) {
			continue
		}
		posid := gtypes.PositionId(kv.DecodeUint32(k))
		if err := fn(posid, v); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records (excluding the allocator key).
func (s *Store) Count() (int, error) {
	n := 0
	err := s.ResultSetIter(func(gtypes.PositionId, []byte) error {
		n++
		return nil
	})
	return n, err
}
