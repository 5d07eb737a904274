// Package graphstore implements the IN/OUT adjacency tables described in
// §4.6: two dup-value sub-databases keyed by packed vertex-rid, kept
// coherent with edge records.
//
// Grounded in original_source/src/relation.cpp's GraphUtils (addRel,
// updateSrcRel, updateDstRel, removeRelFromEdge, removeRelFromVertex,
// getInEdges/getOutEdges/getSrcDstVertices).
package graphstore

import (
	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/kv"
)

const (
	bucketIn  = "relations_in"
	bucketOut = "relations_out"
)

// Store is the Graph Relation Store bound to one transaction.
type Store struct {
	tx *kv.Tx
}

// Open binds a Store to tx, creating the IN/OUT sub-databases if writable.
func Open(tx *kv.Tx) (*Store, error) {
	for _, name := range []string{bucketIn, bucketOut} {
		if _, err := tx.OpenBucket(name, kv.Flags{DupSort: true}, true); err != nil {
			return nil, err
		}
	}
	return &Store{tx: tx}, nil
}

func (s *Store) bucket(name string) (*kv.Bucket, error) {
	return s.tx.OpenBucket(name, kv.Flags{DupSort: true}, true)
}

// packVertex encodes a vertex-rid as classId:u16|positionId:u32, the
// "packed vertex-rid" described in §6's on-disk layout.
func packVertex(v gtypes.RecordId) []byte {
	buf := make([]byte, 6)
	kv.PutUint16At(buf, 0, uint16(v.ClassId))
	kv.PutUint32At(buf, 2, uint32(v.PositionId))
	return buf
}

// packAdjacencyValue encodes (edge-rid, neighbor-rid) so dup-value
// enumeration is deterministic by edge-rid (§4.6).
func packAdjacencyValue(edge, neighbor gtypes.RecordId) []byte {
	buf := make([]byte, 12)
	kv.PutUint16At(buf, 0, uint16(edge.ClassId))
	kv.PutUint32At(buf, 2, uint32(edge.PositionId))
	kv.PutUint16At(buf, 6, uint16(neighbor.ClassId))
	kv.PutUint32At(buf, 8, uint32(neighbor.PositionId))
	return buf
}

func unpackAdjacencyValue(buf []byte) gtypes.AdjacencyEntry {
	return gtypes.AdjacencyEntry{
		Edge: gtypes.RecordId{
			ClassId:    gtypes.ClassId(kv.Uint16At(buf, 0)),
			PositionId: gtypes.PositionId(kv.Uint32At(buf, 2)),
		},
		Neighbor: gtypes.RecordId{
			ClassId:    gtypes.ClassId(kv.Uint16At(buf, 6)),
			PositionId: gtypes.PositionId(kv.Uint32At(buf, 8)),
		},
	}
}

// AddRel writes (src -> edge, dst) into OUT and (dst -> edge, src) into IN.
func (s *Store) AddRel(edge, src, dst gtypes.RecordId) error {
	out, err := s.bucket(bucketOut)
	if err != nil {
		return err
	}
	if err := out.PutDup(packVertex(src), packAdjacencyValue(edge, dst)); err != nil {
		return err
	}
	in, err := s.bucket(bucketIn)
	if err != nil {
		return err
	}
	return in.PutDup(packVertex(dst), packAdjacencyValue(edge, src))
}

// UpdateSrcRel moves edge's src endpoint from oldSrc to newSrc.
func (s *Store) UpdateSrcRel(edge, oldSrc, newSrc, dst gtypes.RecordId) error {
	out, err := s.bucket(bucketOut)
	if err != nil {
		return err
	}
	if err := out.DeleteDup(packVertex(oldSrc), packAdjacencyValue(edge, dst)); err != nil {
		return err
	}
	if err := out.PutDup(packVertex(newSrc), packAdjacencyValue(edge, dst)); err != nil {
		return err
	}
	in, err := s.bucket(bucketIn)
	if err != nil {
		return err
	}
	if err := in.DeleteDup(packVertex(dst), packAdjacencyValue(edge, oldSrc)); err != nil {
		return err
	}
	return in.PutDup(packVertex(dst), packAdjacencyValue(edge, newSrc))
}

// UpdateDstRel moves edge's dst endpoint from oldDst to newDst.
func (s *Store) UpdateDstRel(edge, src, oldDst, newDst gtypes.RecordId) error {
	in, err := s.bucket(bucketIn)
	if err != nil {
		return err
	}
	if err := in.DeleteDup(packVertex(oldDst), packAdjacencyValue(edge, src)); err != nil {
		return err
	}
	if err := in.PutDup(packVertex(newDst), packAdjacencyValue(edge, src)); err != nil {
		return err
	}
	out, err := s.bucket(bucketOut)
	if err != nil {
		return err
	}
	if err := out.DeleteDup(packVertex(src), packAdjacencyValue(edge, oldDst)); err != nil {
		return err
	}
	return out.PutDup(packVertex(src), packAdjacencyValue(edge, newDst))
}

// RemoveRelFromEdge deletes both adjacency entries for edge (src, dst).
func (s *Store) RemoveRelFromEdge(edge, src, dst gtypes.RecordId) error {
	out, err := s.bucket(bucketOut)
	if err != nil {
		return err
	}
	if err := out.DeleteDup(packVertex(src), packAdjacencyValue(edge, dst)); err != nil {
		return err
	}
	in, err := s.bucket(bucketIn)
	if err != nil {
		return err
	}
	return in.DeleteDup(packVertex(dst), packAdjacencyValue(edge, src))
}

// classLookup resolves which class/type an edge's data record lives under,
// supplied by the caller (the txn package knows the schema).
type ClassLookup func(gtypes.ClassId) (isEdge bool, ok bool)

// RemoveRelFromVertex deletes v's every incident edge record (from its
// class's data store, via destroy) and the mirror adjacency entry at each
// neighbor, returning the set of neighbor vertex-rids so the caller can bump
// their versions (§4.6). A missing edge record (already removed earlier in
// a cascading operation such as dropClass) is swallowed, matching
// relation.cpp's removeRelFromVertex; any other storage error propagates.
func (s *Store) RemoveRelFromVertex(v gtypes.RecordId, destroyEdge func(gtypes.RecordId) error) ([]gtypes.RecordId, error) {
	neighbors := make(map[gtypes.RecordId]bool)

	out, err := s.bucket(bucketOut)
	if err != nil {
		return nil, err
	}
	for _, raw := range out.DupValues(packVertex(v)) {
		entry := unpackAdjacencyValue(raw)
		if err := destroyEdge(entry.Edge); err != nil && !errs.Is(err, errs.ErrNoexstRecord) {
			return nil, err
		}
		in, err := s.bucket(bucketIn)
		if err != nil {
			return nil, err
		}
		if err := in.DeleteDup(packVertex(entry.Neighbor), packAdjacencyValue(entry.Edge, v)); err != nil {
			return nil, err
		}
		neighbors[entry.Neighbor] = true
	}
	if err := out.Delete(packVertex(v)); err != nil {
		return nil, err
	}

	in, err := s.bucket(bucketIn)
	if err != nil {
		return nil, err
	}
	for _, raw := range in.DupValues(packVertex(v)) {
		entry := unpackAdjacencyValue(raw)
		if err := destroyEdge(entry.Edge); err != nil && !errs.Is(err, errs.ErrNoexstRecord) {
			return nil, err
		}
		o, err := s.bucket(bucketOut)
		if err != nil {
			return nil, err
		}
		if err := o.DeleteDup(packVertex(entry.Neighbor), packAdjacencyValue(entry.Edge, v)); err != nil {
			return nil, err
		}
		neighbors[entry.Neighbor] = true
	}
	if err := in.Delete(packVertex(v)); err != nil {
		return nil, err
	}

	out_ := make([]gtypes.RecordId, 0, len(neighbors))
	for n := range neighbors {
		out_ = append(out_, n)
	}
	return out_, nil
}

// GetInEdges returns the adjacency entries stored in IN[v].
func (s *Store) GetInEdges(v gtypes.RecordId) ([]gtypes.AdjacencyEntry, error) {
	return s.getEdges(bucketIn, v)
}

// GetOutEdges returns the adjacency entries stored in OUT[v].
func (s *Store) GetOutEdges(v gtypes.RecordId) ([]gtypes.AdjacencyEntry, error) {
	return s.getEdges(bucketOut, v)
}

func (s *Store) getEdges(bucket string, v gtypes.RecordId) ([]gtypes.AdjacencyEntry, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}
	raws := b.DupValues(packVertex(v))
	out := make([]gtypes.AdjacencyEntry, 0, len(raws))
	for _, raw := range raws {
		out = append(out, unpackAdjacencyValue(raw))
	}
	return out, nil
}

// GetSrcDstVertices resolves the (src, dst) endpoints of edge by scanning
// OUT for an entry whose edge-rid matches; this is a convenience read used
// where the edge record itself is unavailable (normally callers decode
// src/dst directly off the edge record via recordcodec).
func (s *Store) GetSrcDstVertices(edge gtypes.RecordId, candidateSrc gtypes.RecordId) (src, dst gtypes.RecordId, err error) {
	entries, err := s.GetOutEdges(candidateSrc)
	if err != nil {
		return gtypes.RecordId{}, gtypes.RecordId{}, err
	}
	for _, e := range entries {
		if e.Edge == edge {
			return candidateSrc, e.Neighbor, nil
		}
	}
	return gtypes.RecordId{}, gtypes.RecordId{}, errs.Wrap("graphstore.GetSrcDstVertices", errs.CategoryGraph, "NOEXST_EDGE", errs.ErrNoexstEdge)
}
