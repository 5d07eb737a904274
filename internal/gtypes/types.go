// Package gtypes defines the identifiers, enums, and value types shared across
// the graph store: classes, properties, indexes, records, and record descriptors.
package gtypes

import "fmt"

// ClassId identifies a class (vertex or edge kind). Zero is reserved ("no class").
type ClassId uint16

// PropertyId identifies a property within the schema catalog. Zero is reserved.
type PropertyId uint16

// IndexId identifies a secondary index. Zero is reserved ("no index").
type IndexId uint16

// PositionId identifies a record's slot within its class's data-record table.
type PositionId uint32

// VersionId is a per-record monotonically increasing counter.
type VersionId uint64

// Reserved virtual property ids, never allocated to a user-defined property.
const (
	PropertyClassName PropertyId = 0xFFFF
	PropertyRecordId  PropertyId = 0xFFFE
	PropertyDepth     PropertyId = 0xFFFD
)

// Reserved virtual property names.
const (
	VirtualClassName = "@className"
	VirtualRecordId  = "@recordId"
	VirtualDepth     = "@depth"
	VirtualVersion   = "@version"
)

// MaxPropertyNameLen bounds the fixed-width padding used by the property
// catalog's key encoding (see internal/schema).
const MaxPropertyNameLen = 255

// ClassType distinguishes vertex classes from edge classes.
type ClassType uint8

const (
	ClassTypeUndefined ClassType = 0
	ClassTypeVertex    ClassType = 1
	ClassTypeEdge      ClassType = 2
)

func (t ClassType) String() string {
	switch t {
	case ClassTypeVertex:
		return "VERTEX"
	case ClassTypeEdge:
		return "EDGE"
	default:
		return "UNDEFINED"
	}
}

// PropertyType enumerates the scalar types a property's value bytes decode as.
type PropertyType uint8

const (
	PropertyTypeUndefined PropertyType = iota
	PropertyTypeTinyint
	PropertyTypeUnsignedTinyint
	PropertyTypeSmallint
	PropertyTypeUnsignedSmallint
	PropertyTypeInteger
	PropertyTypeUnsignedInteger
	PropertyTypeBigint
	PropertyTypeUnsignedBigint
	PropertyTypeReal
	PropertyTypeText
	PropertyTypeBlob
)

func (t PropertyType) String() string {
	switch t {
	case PropertyTypeTinyint:
		return "TINYINT"
	case PropertyTypeUnsignedTinyint:
		return "UNSIGNED_TINYINT"
	case PropertyTypeSmallint:
		return "SMALLINT"
	case PropertyTypeUnsignedSmallint:
		return "UNSIGNED_SMALLINT"
	case PropertyTypeInteger:
		return "INTEGER"
	case PropertyTypeUnsignedInteger:
		return "UNSIGNED_INTEGER"
	case PropertyTypeBigint:
		return "BIGINT"
	case PropertyTypeUnsignedBigint:
		return "UNSIGNED_BIGINT"
	case PropertyTypeReal:
		return "REAL"
	case PropertyTypeText:
		return "TEXT"
	case PropertyTypeBlob:
		return "BLOB"
	default:
		return "UNDEFINED"
	}
}

// IsNumeric reports whether values of this type participate in numeric
// comparison and sign-split indexing (§4.8).
func (t PropertyType) IsNumeric() bool {
	switch t {
	case PropertyTypeTinyint, PropertyTypeUnsignedTinyint,
		PropertyTypeSmallint, PropertyTypeUnsignedSmallint,
		PropertyTypeInteger, PropertyTypeUnsignedInteger,
		PropertyTypeBigint, PropertyTypeUnsignedBigint,
		PropertyTypeReal:
		return true
	default:
		return false
	}
}

// IsSigned reports whether this numeric type can hold negative values and
// therefore needs the positive/negative sub-db split described in §4.8.
func (t PropertyType) IsSigned() bool {
	switch t {
	case PropertyTypeTinyint, PropertyTypeSmallint, PropertyTypeInteger,
		PropertyTypeBigint, PropertyTypeReal:
		return true
	default:
		return false
	}
}

// Indexable reports whether a property of this type may carry a secondary
// index. BLOB and UNDEFINED are not indexable (§4.3, Index invariants).
func (t PropertyType) Indexable() bool {
	return t != PropertyTypeBlob && t != PropertyTypeUndefined
}

// RecordId uniquely identifies a record for its lifetime: (ClassId, PositionId).
// RecordIds compare lexicographically on (class, position).
type RecordId struct {
	ClassId    ClassId
	PositionId PositionId
}

func (r RecordId) String() string {
	return fmt.Sprintf("%d:%d", r.ClassId, r.PositionId)
}

// Less implements the RecordId total order used for index result sorting (I4)
// and deterministic adjacency enumeration.
func (r RecordId) Less(o RecordId) bool {
	if r.ClassId != o.ClassId {
		return r.ClassId < o.ClassId
	}
	return r.PositionId < o.PositionId
}

// IsZero reports whether r is the zero-value RecordId (no class, no position).
func (r RecordId) IsZero() bool {
	return r.ClassId == 0 && r.PositionId == 0
}

// RecordDescriptor is a RecordId plus an ephemeral depth field set only by
// traversal operators (§4.11); depth is not part of RecordId's identity.
type RecordDescriptor struct {
	Rid   RecordId
	Depth uint16
}

// TxnMode selects whether a Transaction may mutate schema or data.
type TxnMode uint8

const (
	TxnModeReadOnly TxnMode = iota
	TxnModeReadWrite
)

// Direction selects which adjacency table(s) a traversal or edge-fetch op reads.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionAll
)

// Comparator enumerates the condition operators recognized by §4.9.
type Comparator uint8

const (
	CompareIsNull Comparator = iota
	CompareNotNull
	CompareEqual
	CompareGreater
	CompareGreaterEqual
	CompareLess
	CompareLessEqual
	CompareContain
	CompareBeginWith
	CompareEndWith
	CompareLike
	CompareRegex
	CompareIn
	CompareBetween
	CompareBetweenNoUpper
	CompareBetweenNoLower
	CompareBetweenNoBound
)

// AdjacencyEntry is one (edge, neighbor) pair stored in an IN or OUT table.
type AdjacencyEntry struct {
	Edge     RecordId
	Neighbor RecordId
}
