// Package recordcodec implements the binary record format described in §4.4:
// property triples, version-counter and edge-endpoint prefixes, and the
// partial in-place mutators that preserve untouched bytes.
//
// Grounded in spec.md §4.4 directly — original_source/src/parser.cpp (the
// concrete bit-level implementation behind parser.hpp's RecordParser
// declarations) was not part of the retrieved source set, so the layout
// below follows the spec's byte-level description exactly.
package recordcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/nogdb/graphdb/internal/blob"
	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
)

const (
	versionFieldLen = 8 // bytes
	endpointLen     = 6 // classId:u16 + positionId:u32
	shortLenMax     = 127
	longLenFlag     = 0x80000000
)

// EncodeTriples writes the property-id/length/bytes sequence for rec, writing
// only properties present in nameToId; unknown property names in rec are
// rejected with NOEXST_PROPERTY (§4.4's "Encoding writes only properties
// declared on the target class or any ancestor").
func EncodeTriples(rec map[string][]byte, nameToId map[string]gtypes.PropertyId) ([]byte, error) {
	b := blob.New()
	for name, value := range rec {
		id, ok := nameToId[name]
		if !ok {
			return nil, errs.Wrap("recordcodec.EncodeTriples", errs.CategorySchema, "NOEXST_PROPERTY", errs.ErrNoexstProperty)
		}
		b.AppendUint16(uint16(id))
		appendLength(b, len(value))
		b.Append(value)
	}
	return b.Bytes(), nil
}

func appendLength(b *blob.Blob, n int) {
	if n <= shortLenMax {
		b.AppendByte(byte(n))
		return
	}
	// Big-endian so the flag bit lands in the first byte, which readLength tests.
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(n)|longLenFlag)
	b.Append(l[:])
}

// DecodeTriples parses a property-triple sequence into propertyId->value-bytes,
// then resolves each id to a name via idToName. Decoders tolerate trailing
// bytes that do not form a complete triple (§4.4 forward-compatibility rule).
func DecodeTriples(buf []byte, idToName map[gtypes.PropertyId]string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	off := 0
	for off+2 <= len(buf) {
		id := gtypes.PropertyId(blob.Uint16At(buf, off))
		off += 2
		if off >= len(buf) {
			break
		}
		n, lenBytes, ok := readLength(buf, off)
		if !ok {
			break
		}
		off += lenBytes
		if off+n > len(buf) {
			break
		}
		value := append([]byte(nil), buf[off:off+n]...)
		off += n
		if name, ok := idToName[id]; ok {
			out[name] = value
		}
	}
	return out, nil
}

// DecodeTriplesRaw is DecodeTriples keyed by PropertyId instead of name, used
// by callers (the index maintainer) that only need id-keyed values.
func DecodeTriplesRaw(buf []byte) (map[gtypes.PropertyId][]byte, error) {
	out := make(map[gtypes.PropertyId][]byte)
	off := 0
	for off+2 <= len(buf) {
		id := gtypes.PropertyId(blob.Uint16At(buf, off))
		off += 2
		if off >= len(buf) {
			break
		}
		n, lenBytes, ok := readLength(buf, off)
		if !ok {
			break
		}
		off += lenBytes
		if off+n > len(buf) {
			break
		}
		out[id] = append([]byte(nil), buf[off:off+n]...)
		off += n
	}
	return out, nil
}

func readLength(buf []byte, off int) (n, lenBytes int, ok bool) {
	first := buf[off]
	if first&0x80 == 0 {
		return int(first), 1, true
	}
	if off+4 > len(buf) {
		return 0, 0, false
	}
	v := binary.BigEndian.Uint32(buf[off:off+4]) &^ longLenFlag
	return int(v), 4, true
}

// EncodeVertexRecord prepends a version field (if enabled) to triples.
func EncodeVertexRecord(triples []byte, versionEnabled bool, version gtypes.VersionId) []byte {
	if !versionEnabled {
		return triples
	}
	b := blob.New()
	b.AppendUint64(uint64(version))
	b.Append(triples)
	return b.Bytes()
}

// DecodeVertexRecord splits a vertex on-disk record into its version (0 if
// disabled) and its triples payload.
func DecodeVertexRecord(buf []byte, versionEnabled bool) (gtypes.VersionId, []byte) {
	if !versionEnabled {
		return 0, buf
	}
	if len(buf) < versionFieldLen {
		return 0, nil
	}
	return gtypes.VersionId(blob.Uint64At(buf, 0)), buf[versionFieldLen:]
}

// EncodeEdgeRecord prepends the optional version field and the mandatory
// src/dst endpoint prefix to triples (§4.4).
func EncodeEdgeRecord(triples []byte, versionEnabled bool, version gtypes.VersionId, src, dst gtypes.RecordId) []byte {
	b := blob.New()
	if versionEnabled {
		b.AppendUint64(uint64(version))
	}
	appendEndpoint(b, src)
	appendEndpoint(b, dst)
	b.Append(triples)
	return b.Bytes()
}

func appendEndpoint(b *blob.Blob, rid gtypes.RecordId) {
	b.AppendUint16(uint16(rid.ClassId))
	b.AppendUint32(uint32(rid.PositionId))
}

func readEndpoint(buf []byte, off int) gtypes.RecordId {
	return gtypes.RecordId{
		ClassId:    gtypes.ClassId(blob.Uint16At(buf, off)),
		PositionId: gtypes.PositionId(blob.Uint32At(buf, off+2)),
	}
}

// edgePrefixLen returns the byte length of the version+endpoints prefix.
func edgePrefixLen(versionEnabled bool) int {
	n := 2 * endpointLen
	if versionEnabled {
		n += versionFieldLen
	}
	return n
}

// DecodeEdgeRecord splits an edge on-disk record into version, src, dst, and
// the triples payload.
func DecodeEdgeRecord(buf []byte, versionEnabled bool) (gtypes.VersionId, gtypes.RecordId, gtypes.RecordId, []byte, error) {
	off := 0
	var version gtypes.VersionId
	if versionEnabled {
		if len(buf) < versionFieldLen {
			return 0, gtypes.RecordId{}, gtypes.RecordId{}, nil, fmt.Errorf("recordcodec: short edge record")
		}
		version = gtypes.VersionId(blob.Uint64At(buf, 0))
		off += versionFieldLen
	}
	if len(buf) < off+2*endpointLen {
		return 0, gtypes.RecordId{}, gtypes.RecordId{}, nil, fmt.Errorf("recordcodec: short edge record")
	}
	src := readEndpoint(buf, off)
	dst := readEndpoint(buf, off+endpointLen)
	return version, src, dst, buf[off+2*endpointLen:], nil
}

// ParseRawDataVersionId reads only the version field, assuming it is present
// at offset 0 (valid for both vertex and edge records when versioning is
// enabled).
func ParseRawDataVersionId(buf []byte) gtypes.VersionId {
	if len(buf) < versionFieldLen {
		return 0
	}
	return gtypes.VersionId(blob.Uint64At(buf, 0))
}

// ParseOnlyUpdateVersion replaces the 8-byte version field in place, leaving
// every other byte untouched (§4.4's partial-mutator requirement).
func ParseOnlyUpdateVersion(buf []byte, newVersion gtypes.VersionId) []byte {
	out := append([]byte(nil), buf...)
	if len(out) < versionFieldLen {
		return out
	}
	blob.PutUint64At(out, 0, uint64(newVersion))
	return out
}

// ParseOnlyUpdateSrcVertex replaces the 6-byte src endpoint field in place.
// versionEnabled tells the mutator where the endpoint prefix begins.
func ParseOnlyUpdateSrcVertex(buf []byte, newSrc gtypes.RecordId, versionEnabled bool) []byte {
	out := append([]byte(nil), buf...)
	off := 0
	if versionEnabled {
		off = versionFieldLen
	}
	if len(out) < off+endpointLen {
		return out
	}
	blob.PutUint16At(out, off, uint16(newSrc.ClassId))
	blob.PutUint32At(out, off+2, uint32(newSrc.PositionId))
	return out
}

// ParseOnlyUpdateDstVertex replaces the 6-byte dst endpoint field in place.
func ParseOnlyUpdateDstVertex(buf []byte, newDst gtypes.RecordId, versionEnabled bool) []byte {
	out := append([]byte(nil), buf...)
	off := endpointLen
	if versionEnabled {
		off += versionFieldLen
	}
	if len(out) < off+endpointLen {
		return out
	}
	blob.PutUint16At(out, off, uint16(newDst.ClassId))
	blob.PutUint32At(out, off+2, uint32(newDst.PositionId))
	return out
}

// ParseOnlyUpdateRecord replaces the user-payload triples while preserving
// the version and (for edges) endpoint prefix bytes untouched.
func ParseOnlyUpdateRecord(buf []byte, newTriples []byte, versionEnabled, isEdge bool) []byte {
	prefixLen := 0
	if versionEnabled {
		prefixLen += versionFieldLen
	}
	if isEdge {
		prefixLen += 2 * endpointLen
	}
	if len(buf) < prefixLen {
		prefixLen = len(buf)
	}
	out := make([]byte, 0, prefixLen+len(newTriples))
	out = append(out, buf[:prefixLen]...)
	out = append(out, newTriples...)
	return out
}

// ParseEdgeVertexSrcDst reads only the src/dst endpoints from an edge
// on-disk record without decoding the triples payload.
func ParseEdgeVertexSrcDst(buf []byte, versionEnabled bool) (src, dst gtypes.RecordId) {
	off := 0
	if versionEnabled {
		off = versionFieldLen
	}
	if len(buf) < off+2*endpointLen {
		return gtypes.RecordId{}, gtypes.RecordId{}
	}
	return readEndpoint(buf, off), readEndpoint(buf, off+endpointLen)
}
