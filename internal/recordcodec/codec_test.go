package recordcodec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nogdb/graphdb/internal/gtypes"
)

func TestEncodeDecodeTriplesRoundTrip(t *testing.T) {
	nameToId := map[string]gtypes.PropertyId{"name": 1, "age": 2}
	idToName := map[gtypes.PropertyId]string{1: "name", 2: "age"}
	rec := map[string][]byte{"name": []byte("Alice"), "age": []byte{30}}

	encoded, err := EncodeTriples(rec, nameToId)
	if err != nil {
		t.Fatalf("EncodeTriples: %v", err)
	}
	decoded, err := DecodeTriples(encoded, idToName)
	if err != nil {
		t.Fatalf("DecodeTriples: %v", err)
	}
	if len(decoded) != 2 || !bytes.Equal(decoded["name"], rec["name"]) || !bytes.Equal(decoded["age"], rec["age"]) {
		t.Errorf("DecodeTriples = %v, want %v", decoded, rec)
	}
}

func TestEncodeTriplesRejectsUnknownProperty(t *testing.T) {
	_, err := EncodeTriples(map[string][]byte{"ghost": []byte("x")}, map[string]gtypes.PropertyId{})
	if err == nil {
		t.Fatal("EncodeTriples with an undeclared property should error")
	}
}

func TestEncodeTriplesLongValueUsesFourByteLength(t *testing.T) {
	longValue := bytes.Repeat([]byte("x"), 200)
	nameToId := map[string]gtypes.PropertyId{"blob": 9}
	idToName := map[gtypes.PropertyId]string{9: "blob"}

	encoded, err := EncodeTriples(map[string][]byte{"blob": longValue}, nameToId)
	if err != nil {
		t.Fatalf("EncodeTriples: %v", err)
	}
	if len(encoded) != 2+4+len(longValue) {
		t.Errorf("len(encoded) = %d, want %d (2-byte id, 4-byte length, value)", len(encoded), 2+4+len(longValue))
	}
	decoded, err := DecodeTriples(encoded, idToName)
	if err != nil {
		t.Fatalf("DecodeTriples: %v", err)
	}
	if !bytes.Equal(decoded["blob"], longValue) {
		t.Error("round trip of a >127-byte value should be exact")
	}
}

func TestDecodeTriplesIgnoresUnknownIdsAndTrailingBytes(t *testing.T) {
	nameToId := map[string]gtypes.PropertyId{"a": 1}
	encoded, err := EncodeTriples(map[string][]byte{"a": []byte("v")}, nameToId)
	if err != nil {
		t.Fatalf("EncodeTriples: %v", err)
	}
	// Append a trailing partial triple (just an id, no length byte).
	encoded = append(encoded, 0xAA, 0xBB)

	decoded, err := DecodeTriples(encoded, map[gtypes.PropertyId]string{2: "unrelated"})
	if err != nil {
		t.Fatalf("DecodeTriples: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded = %v, want empty (id 1 unresolved, trailing bytes incomplete)", decoded)
	}
}

func TestVertexRecordVersionRoundTrip(t *testing.T) {
	triples := []byte("triples-payload")

	withVersion := EncodeVertexRecord(triples, true, 7)
	version, payload := DecodeVertexRecord(withVersion, true)
	if version != 7 || !bytes.Equal(payload, triples) {
		t.Errorf("DecodeVertexRecord = (%d, %q), want (7, %q)", version, payload, triples)
	}

	withoutVersion := EncodeVertexRecord(triples, false, 7)
	version, payload = DecodeVertexRecord(withoutVersion, false)
	if version != 0 || !bytes.Equal(payload, triples) {
		t.Errorf("DecodeVertexRecord(disabled) = (%d, %q), want (0, %q)", version, payload, triples)
	}
}

func TestEdgeRecordRoundTrip(t *testing.T) {
	triples := []byte("edge-triples")
	src := gtypes.RecordId{ClassId: 1, PositionId: 10}
	dst := gtypes.RecordId{ClassId: 2, PositionId: 20}

	encoded := EncodeEdgeRecord(triples, true, 5, src, dst)
	version, gotSrc, gotDst, payload, err := DecodeEdgeRecord(encoded, true)
	if err != nil {
		t.Fatalf("DecodeEdgeRecord: %v", err)
	}
	if version != 5 || gotSrc != src || gotDst != dst || !bytes.Equal(payload, triples) {
		t.Errorf("DecodeEdgeRecord = (%d, %v, %v, %q), want (5, %v, %v, %q)", version, gotSrc, gotDst, payload, src, dst, triples)
	}

	gotSrc2, gotDst2 := ParseEdgeVertexSrcDst(encoded, true)
	if gotSrc2 != src || gotDst2 != dst {
		t.Errorf("ParseEdgeVertexSrcDst = (%v, %v), want (%v, %v)", gotSrc2, gotDst2, src, dst)
	}
}

func TestDecodeEdgeRecordTooShortErrors(t *testing.T) {
	_, _, _, _, err := DecodeEdgeRecord([]byte{1, 2, 3}, true)
	if err == nil {
		t.Fatal("DecodeEdgeRecord on a truncated buffer should error")
	}
	if !strings.Contains(err.Error(), "short edge record") {
		t.Errorf("error = %v, want a short-edge-record message", err)
	}
}

func TestParseOnlyUpdateVersionPreservesRest(t *testing.T) {
	src := gtypes.RecordId{ClassId: 1, PositionId: 1}
	dst := gtypes.RecordId{ClassId: 1, PositionId: 2}
	original := EncodeEdgeRecord([]byte("payload"), true, 1, src, dst)

	updated := ParseOnlyUpdateVersion(original, 99)
	if ParseRawDataVersionId(updated) != 99 {
		t.Error("version field was not updated")
	}
	version, gotSrc, gotDst, payload, err := DecodeEdgeRecord(updated, true)
	if err != nil {
		t.Fatalf("DecodeEdgeRecord: %v", err)
	}
	if version != 99 || gotSrc != src || gotDst != dst || string(payload) != "payload" {
		t.Errorf("ParseOnlyUpdateVersion corrupted other fields: %d %v %v %q", version, gotSrc, gotDst, payload)
	}
}

func TestParseOnlyUpdateSrcAndDstVertex(t *testing.T) {
	src := gtypes.RecordId{ClassId: 1, PositionId: 1}
	dst := gtypes.RecordId{ClassId: 1, PositionId: 2}
	original := EncodeEdgeRecord([]byte("payload"), false, 0, src, dst)

	newSrc := gtypes.RecordId{ClassId: 9, PositionId: 99}
	updated := ParseOnlyUpdateSrcVertex(original, newSrc, false)
	gotSrc, gotDst := ParseEdgeVertexSrcDst(updated, false)
	if gotSrc != newSrc || gotDst != dst {
		t.Errorf("after ParseOnlyUpdateSrcVertex: src=%v dst=%v, want src=%v dst=%v", gotSrc, gotDst, newSrc, dst)
	}

	newDst := gtypes.RecordId{ClassId: 8, PositionId: 88}
	updated = ParseOnlyUpdateDstVertex(updated, newDst, false)
	gotSrc, gotDst = ParseEdgeVertexSrcDst(updated, false)
	if gotSrc != newSrc || gotDst != newDst {
		t.Errorf("after ParseOnlyUpdateDstVertex: src=%v dst=%v, want src=%v dst=%v", gotSrc, gotDst, newSrc, newDst)
	}
}

func TestParseOnlyUpdateRecordPreservesPrefix(t *testing.T) {
	src := gtypes.RecordId{ClassId: 1, PositionId: 1}
	dst := gtypes.RecordId{ClassId: 1, PositionId: 2}
	original := EncodeEdgeRecord([]byte("old-triples"), true, 3, src, dst)

	updated := ParseOnlyUpdateRecord(original, []byte("new-triples"), true, true)
	version, gotSrc, gotDst, payload, err := DecodeEdgeRecord(updated, true)
	if err != nil {
		t.Fatalf("DecodeEdgeRecord: %v", err)
	}
	if version != 3 || gotSrc != src || gotDst != dst || string(payload) != "new-triples" {
		t.Errorf("ParseOnlyUpdateRecord = (%d, %v, %v, %q), want (3, %v, %v, \"new-triples\")", version, gotSrc, gotDst, payload, src, dst)
	}
}
