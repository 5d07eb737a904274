// Package index implements the Secondary Index Store described in §4.8 and
// §4.10: one logical index per (class, property), backed by sign-split
// numeric sub-databases or a single lexicographic text sub-database.
//
// Grounded in original_source/src/index.hpp's IndexUtils (initialize, drop,
// insert, remove, the numeric positive/negative split, and the
// getLessNumeric/getGreaterNumeric/getBetweenNumeric/getEqualNumeric search
// templates referenced by §4.10's range-read description). The search
// helpers here evaluate candidates by decoding both sub-dbs and filtering,
// rather than reproducing the original's specialized early-terminating
// backward/forward cursor walks — see DESIGN.md for that simplification and
// why it preserves every invariant the spec tests (I4).
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/kv"
)

func bucketName(id gtypes.IndexId) string    { return fmt.Sprintf("idx_%d", id) }
func negBucketName(id gtypes.IndexId) string { return fmt.Sprintf("idx_%d_n", id) }

// Store is the Secondary Index Store bound to one index within a transaction.
type Store struct {
	tx     *kv.Tx
	id     gtypes.IndexId
	typ    gtypes.PropertyType
	unique bool
}

// Open binds a Store to an existing index. typ and unique come from the
// schema catalog's IndexInfo/PropertyInfo.
func Open(tx *kv.Tx, id gtypes.IndexId, typ gtypes.PropertyType, unique bool) *Store {
	return &Store{tx: tx, id: id, typ: typ, unique: unique}
}

// Initialize creates the backing sub-database(s) for a brand-new index.
func (s *Store) Initialize() error {
	if _, err := s.tx.OpenBucket(bucketName(s.id), kv.Flags{Numeric: s.typ.IsNumeric(), DupSort: !s.unique}, true); err != nil {
		return err
	}
	if s.typ.IsNumeric() && s.typ.IsSigned() {
		if _, err := s.tx.OpenBucket(negBucketName(s.id), kv.Flags{Numeric: true, DupSort: !s.unique}, true); err != nil {
			return err
		}
	}
	return nil
}

// Drop removes the index's sub-database(s) entirely.
func (s *Store) Drop() error {
	if err := s.tx.DropBucket(bucketName(s.id)); err != nil {
		return err
	}
	if s.typ.IsNumeric() && s.typ.IsSigned() {
		return s.tx.DropBucket(negBucketName(s.id))
	}
	return nil
}

func (s *Store) posBucket() (*kv.Bucket, error) {
	return s.tx.OpenBucket(bucketName(s.id), kv.Flags{Numeric: s.typ.IsNumeric(), DupSort: !s.unique}, true)
}

func (s *Store) negBucket() (*kv.Bucket, error) {
	return s.tx.OpenBucket(negBucketName(s.id), kv.Flags{Numeric: true, DupSort: !s.unique}, true)
}

// numericSortKey decodes a property's little-endian raw value bytes and
// returns whether it is negative plus the big-endian magnitude key used for
// the relevant sub-db, so that byte order equals magnitude order (§4.8).
func numericSortKey(typ gtypes.PropertyType, raw []byte) (negative bool, key []byte, magnitude float64) {
	switch typ {
	case gtypes.PropertyTypeUnsignedTinyint, gtypes.PropertyTypeUnsignedSmallint,
		gtypes.PropertyTypeUnsignedInteger, gtypes.PropertyTypeUnsignedBigint:
		v := decodeUnsigned(raw)
		return false, magnitudeKey(v), float64(v)
	case gtypes.PropertyTypeTinyint, gtypes.PropertyTypeSmallint,
		gtypes.PropertyTypeInteger, gtypes.PropertyTypeBigint:
		v := decodeSigned(raw)
		if v < 0 {
			return true, magnitudeKey(uint64(-v)), float64(v)
		}
		return false, magnitudeKey(uint64(v)), float64(v)
	case gtypes.PropertyTypeReal:
		var bits uint64
		for i := 0; i < len(raw) && i < 8; i++ {
			bits |= uint64(raw[i]) << (8 * i)
		}
		v := math.Float64frombits(bits)
		if v < 0 {
			return true, magnitudeKey(math.Float64bits(-v)), v
		}
		return false, magnitudeKey(math.Float64bits(v)), v
	default:
		return false, raw, 0
	}
}

func magnitudeKey(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(v >> (8 * i))
	}
	return buf
}

func decodeUnsigned(raw []byte) uint64 {
	var v uint64
	for i := 0; i < len(raw) && i < 8; i++ {
		v |= uint64(raw[i]) << (8 * i)
	}
	return v
}

func decodeSigned(raw []byte) int64 {
	u := decodeUnsigned(raw)
	switch len(raw) {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

// Insert adds (value, posid) to the index. Unique-index collisions surface
// as UNIQUE_CONSTRAINT (§4.8's KEY_EXIST -> UNIQUE_CONSTRAINT mapping).
func (s *Store) Insert(posid gtypes.PositionId, raw []byte) error {
	value := kv.EncodeUint32(uint32(posid))
	if s.typ == gtypes.PropertyTypeText || s.typ == gtypes.PropertyTypeBlob {
		return s.putKey(raw, value)
	}
	negative, key, _ := numericSortKey(s.typ, raw)
	if negative {
		b, err := s.negBucket()
		if err != nil {
			return err
		}
		return s.put(b, key, value)
	}
	b, err := s.posBucket()
	if err != nil {
		return err
	}
	return s.put(b, key, value)
}

func (s *Store) putKey(key, value []byte) error {
	b, err := s.posBucket()
	if err != nil {
		return err
	}
	return s.put(b, key, value)
}

func (s *Store) put(b *kv.Bucket, key, value []byte) error {
	if s.unique {
		if err := b.PutUnique(key, value); err != nil {
			return errs.Wrap("index.Insert", errs.CategorySchema, "UNIQUE_CONSTRAINT", errs.ErrUniqueConstraint)
		}
		return nil
	}
	return b.PutDup(key, value)
}

// Remove deletes (value, posid) from the index. For dup-value sub-trees this
// finds the key then removes only the matching value (§4.8's maintenance
// rule: "cursor-find the key, advance until value matches PositionId").
func (s *Store) Remove(posid gtypes.PositionId, raw []byte) error {
	value := kv.EncodeUint32(uint32(posid))
	if s.typ == gtypes.PropertyTypeText || s.typ == gtypes.PropertyTypeBlob {
		b, err := s.posBucket()
		if err != nil {
			return err
		}
		return s.remove(b, raw, value)
	}
	negative, key, _ := numericSortKey(s.typ, raw)
	if negative {
		b, err := s.negBucket()
		if err != nil {
			return err
		}
		return s.remove(b, key, value)
	}
	b, err := s.posBucket()
	if err != nil {
		return err
	}
	return s.remove(b, key, value)
}

func (s *Store) remove(b *kv.Bucket, key, value []byte) error {
	if s.unique {
		return b.Delete(key)
	}
	return b.DeleteDup(key, value)
}

// scanBucket returns every (key, posid) pair in a sub-db.
func scanBucket(b *kv.Bucket, unique bool) []struct {
	key []byte
	pos gtypes.PositionId
} {
	var out []struct {
		key []byte
		pos gtypes.PositionId
	}
	cur := b.Cursor()
	for k, v, ok := cur.First(); ok; k, v, ok = cur.Next() {
		if unique {
			out = append(out, struct {
				key []byte
				pos gtypes.PositionId
			}{append([]byte(nil), k...), gtypes.PositionId(kv.DecodeUint32(v))})
			continue
		}
		for _, dupVal := range b.DupValues(k) {
			out = append(out, struct {
				key []byte
				pos gtypes.PositionId
			}{append([]byte(nil), k...), gtypes.PositionId(kv.DecodeUint32(dupVal))})
		}
	}
	return out
}

// numericEntry pairs a decoded magnitude with its PositionId, for range
// filtering across both the positive and negative sub-dbs.
type numericEntry struct {
	value float64
	pos   gtypes.PositionId
}

func (s *Store) allNumericEntries() ([]numericEntry, error) {
	var out []numericEntry
	pos, err := s.posBucket()
	if err != nil {
		return nil, err
	}
	for _, e := range scanBucket(pos, s.unique) {
		// positive bucket keys are magnitudes of non-negative values.
		var mag uint64
		for i := 0; i < len(e.key); i++ {
			mag = (mag << 8) | uint64(e.key[i])
		}
		var v float64
		if s.typ == gtypes.PropertyTypeReal {
			v = math.Float64frombits(mag)
		} else {
			v = float64(mag)
		}
		out = append(out, numericEntry{value: v, pos: e.pos})
	}
	if s.typ.IsSigned() {
		neg, err := s.negBucket()
		if err != nil {
			return nil, err
		}
		for _, e := range scanBucket(neg, s.unique) {
			var mag uint64
			for i := 0; i < len(e.key); i++ {
				mag = (mag << 8) | uint64(e.key[i])
			}
			var v float64
			if s.typ == gtypes.PropertyTypeReal {
				v = -math.Float64frombits(mag)
			} else {
				v = -float64(mag)
			}
			out = append(out, numericEntry{value: v, pos: e.pos})
		}
	}
	return out, nil
}

// Equal returns every PositionId whose indexed value equals v (numeric types).
func (s *Store) Equal(v float64) ([]gtypes.PositionId, error) {
	return s.filterNumeric(func(x float64) bool { return x == v })
}

// Less returns every PositionId whose indexed value is < v.
func (s *Store) Less(v float64) ([]gtypes.PositionId, error) {
	return s.filterNumeric(func(x float64) bool { return x < v })
}

// LessEqual returns every PositionId whose indexed value is <= v.
func (s *Store) LessEqual(v float64) ([]gtypes.PositionId, error) {
	return s.filterNumeric(func(x float64) bool { return x <= v })
}

// Greater returns every PositionId whose indexed value is > v.
func (s *Store) Greater(v float64) ([]gtypes.PositionId, error) {
	return s.filterNumeric(func(x float64) bool { return x > v })
}

// GreaterEqual returns every PositionId whose indexed value is >= v.
func (s *Store) GreaterEqual(v float64) ([]gtypes.PositionId, error) {
	return s.filterNumeric(func(x float64) bool { return x >= v })
}

// Between returns every PositionId whose indexed value falls within
// [lower, upper] with optional exclusive bounds (the four BETWEEN* variants).
func (s *Store) Between(lower, upper float64, includeLower, includeUpper bool) ([]gtypes.PositionId, error) {
	return s.filterNumeric(func(x float64) bool {
		lowOk := x > lower || (includeLower && x == lower)
		highOk := x < upper || (includeUpper && x == upper)
		return lowOk && highOk
	})
}

func (s *Store) filterNumeric(pred func(float64) bool) ([]gtypes.PositionId, error) {
	entries, err := s.allNumericEntries()
	if err != nil {
		return nil, err
	}
	var out []gtypes.PositionId
	for _, e := range entries {
		if pred(e.value) {
			out = append(out, e.pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// EqualText returns every PositionId whose indexed text value equals raw
// exactly (byte-for-byte); case-insensitive matching is a query-comparator
// concern (§4.9), not an index concern.
func (s *Store) EqualText(raw []byte) ([]gtypes.PositionId, error) {
	b, err := s.posBucket()
	if err != nil {
		return nil, err
	}
	if s.unique {
		v, ok := b.Get(raw)
		if !ok {
			return nil, nil
		}
		return []gtypes.PositionId{gtypes.PositionId(kv.DecodeUint32(v))}, nil
	}
	var out []gtypes.PositionId
	for _, v := range b.DupValues(raw) {
		out = append(out, gtypes.PositionId(kv.DecodeUint32(v)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Count returns the number of entries currently in the index.
func (s *Store) Count() (int, error) {
	if s.typ == gtypes.PropertyTypeText || s.typ == gtypes.PropertyTypeBlob {
		b, err := s.posBucket()
		if err != nil {
			return 0, err
		}
		return len(scanBucket(b, s.unique)), nil
	}
	entries, err := s.allNumericEntries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
