package txn

import (
	"github.com/nogdb/graphdb/internal/datastore"
	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/index"
	"github.com/nogdb/graphdb/internal/recordcodec"
)

// encodeAndValidate resolves className to a class of the expected type and
// encodes record against its (native + inherited) property map.
func (t *Transaction) encodeAndValidate(className string, expect gtypes.ClassType, record map[string][]byte) (ci gtypes.ClassId, triples []byte, err error) {
	info, ok, err := t.catalog.GetClassByName(className)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, errs.Wrap(op("encodeAndValidate"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	if info.Type != expect {
		return 0, nil, errs.Wrap(op("encodeAndValidate"), errs.CategorySchema, "MISMATCH_CLASSTYPE", errs.ErrMismatchClassType)
	}
	nameToId, _, _, err := t.propertyMaps(info.Id)
	if err != nil {
		return 0, nil, err
	}
	triples, err = recordcodec.EncodeTriples(record, nameToId)
	if err != nil {
		return 0, nil, err
	}
	return info.Id, triples, nil
}

// maintainIndexesOnInsert feeds every indexed, present property of record
// through its index's Insert path (§4.8).
func (t *Transaction) maintainIndexesOnInsert(classId gtypes.ClassId, pos gtypes.PositionId, record map[string][]byte) error {
	indexes, err := t.catalog.GetIndexes(classId)
	if err != nil {
		return err
	}
	if len(indexes) == 0 {
		return nil
	}
	nameToId, _, types, err := t.propertyMaps(classId)
	if err != nil {
		return err
	}
	idToProp := make(map[gtypes.PropertyId]string, len(nameToId))
	for name, id := range nameToId {
		idToProp[id] = name
	}
	for _, idx := range indexes {
		name, ok := idToProp[idx.PropertyId]
		if !ok {
			continue
		}
		v, ok := record[name]
		if !ok || len(v) == 0 {
			continue
		}
		if err := index.Open(t.kvtx, idx.Id, types[name], idx.Unique).Insert(pos, v); err != nil {
			return err
		}
	}
	return nil
}

// maintainIndexesOnUpdate removes each changed property's old index entry and
// inserts its new one, only for properties whose value actually changed
// (§4.8's "updates = delete old + insert new, and only for properties whose
// value actually changed").
func (t *Transaction) maintainIndexesOnUpdate(classId gtypes.ClassId, pos gtypes.PositionId, oldValues, newValues map[string][]byte) error {
	indexes, err := t.catalog.GetIndexes(classId)
	if err != nil {
		return err
	}
	if len(indexes) == 0 {
		return nil
	}
	nameToId, _, types, err := t.propertyMaps(classId)
	if err != nil {
		return err
	}
	idToProp := make(map[gtypes.PropertyId]string, len(nameToId))
	for name, id := range nameToId {
		idToProp[id] = name
	}
	for _, idx := range indexes {
		name, ok := idToProp[idx.PropertyId]
		if !ok {
			continue
		}
		oldV, hadOld := oldValues[name]
		newV, hasNew := newValues[name]
		if hadOld && hasNew && string(oldV) == string(newV) {
			continue
		}
		store := index.Open(t.kvtx, idx.Id, types[name], idx.Unique)
		if hadOld && len(oldV) > 0 {
			if err := store.Remove(pos, oldV); err != nil {
				return err
			}
		}
		if hasNew && len(newV) > 0 {
			if err := store.Insert(pos, newV); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transaction) maintainIndexesOnRemove(classId gtypes.ClassId, pos gtypes.PositionId, values map[string][]byte) error {
	indexes, err := t.catalog.GetIndexes(classId)
	if err != nil {
		return err
	}
	if len(indexes) == 0 {
		return nil
	}
	nameToId, _, types, err := t.propertyMaps(classId)
	if err != nil {
		return err
	}
	idToProp := make(map[gtypes.PropertyId]string, len(nameToId))
	for name, id := range nameToId {
		idToProp[id] = name
	}
	for _, idx := range indexes {
		name, ok := idToProp[idx.PropertyId]
		if !ok {
			continue
		}
		v, ok := values[name]
		if !ok || len(v) == 0 {
			continue
		}
		if err := index.Open(t.kvtx, idx.Id, types[name], idx.Unique).Remove(pos, v); err != nil {
			return err
		}
	}
	return nil
}

// AddVertex inserts a new vertex record of className, maintains its indexes,
// and (if versioning is enabled) sets its initial version to 1 (§4.7).
func (t *Transaction) AddVertex(className string, record map[string][]byte) (gtypes.RecordId, error) {
	if err := t.requireWritable("AddVertex"); err != nil {
		return gtypes.RecordId{}, err
	}
	classId, triples, err := t.encodeAndValidate(className, gtypes.ClassTypeVertex, record)
	if err != nil {
		return gtypes.RecordId{}, err
	}
	raw := recordcodec.EncodeVertexRecord(triples, t.versionEnabled, 1)
	store := datastore.Open(t.kvtx, classId)
	pos, err := store.Insert(raw)
	if err != nil {
		return gtypes.RecordId{}, t.fail(op("AddVertex"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	rid := gtypes.RecordId{ClassId: classId, PositionId: pos}
	if err := t.maintainIndexesOnInsert(classId, pos, record); err != nil {
		return gtypes.RecordId{}, t.fail(op("AddVertex"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	t.updated[rid] = true
	return rid, nil
}

// AddEdge inserts a new edge record from src to dst, writes both adjacency
// entries, maintains indexes, and bumps the edge (to 1) plus both endpoints
// once each (§4.7).
func (t *Transaction) AddEdge(className string, src, dst gtypes.RecordId, record map[string][]byte) (gtypes.RecordId, error) {
	if err := t.requireWritable("AddEdge"); err != nil {
		return gtypes.RecordId{}, err
	}
	if _, err := t.vertexClassOf(src); err != nil {
		return gtypes.RecordId{}, errs.Wrap(op("AddEdge"), errs.CategoryGraph, "NOEXST_SRC", errs.ErrNoexstSrc)
	}
	if _, err := t.vertexClassOf(dst); err != nil {
		return gtypes.RecordId{}, errs.Wrap(op("AddEdge"), errs.CategoryGraph, "NOEXST_DST", errs.ErrNoexstDst)
	}
	classId, triples, err := t.encodeAndValidate(className, gtypes.ClassTypeEdge, record)
	if err != nil {
		return gtypes.RecordId{}, err
	}
	raw := recordcodec.EncodeEdgeRecord(triples, t.versionEnabled, 1, src, dst)
	store := datastore.Open(t.kvtx, classId)
	pos, err := store.Insert(raw)
	if err != nil {
		return gtypes.RecordId{}, t.fail(op("AddEdge"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	rid := gtypes.RecordId{ClassId: classId, PositionId: pos}
	if err := t.graph.AddRel(rid, src, dst); err != nil {
		return gtypes.RecordId{}, t.fail(op("AddEdge"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.maintainIndexesOnInsert(classId, pos, record); err != nil {
		return gtypes.RecordId{}, t.fail(op("AddEdge"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	t.updated[rid] = true
	if err := t.bumpVersion(src); err != nil {
		return gtypes.RecordId{}, t.fail(op("AddEdge"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.bumpVersion(dst); err != nil {
		return gtypes.RecordId{}, t.fail(op("AddEdge"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	return rid, nil
}

// vertexClassOf confirms rid names an existing vertex record and returns its class.
func (t *Transaction) vertexClassOf(rid gtypes.RecordId) (gtypes.ClassId, error) {
	ci, ok, err := t.catalog.GetClassById(rid.ClassId)
	if err != nil {
		return 0, err
	}
	if !ok || ci.Type != gtypes.ClassTypeVertex {
		return 0, errs.ErrNoexstVertex
	}
	if _, err := datastore.Open(t.kvtx, rid.ClassId).GetResult(rid.PositionId); err != nil {
		return 0, err
	}
	return rid.ClassId, nil
}

// Update overwrites the properties named in record on an existing vertex or
// edge record, keeping its other properties and its version/endpoint prefix,
// and bumps its version once.
func (t *Transaction) Update(rid gtypes.RecordId, record map[string][]byte) error {
	if err := t.requireWritable("Update"); err != nil {
		return err
	}
	ci, ok, err := t.catalog.GetClassById(rid.ClassId)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap(op("Update"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	store := datastore.Open(t.kvtx, rid.ClassId)
	raw, err := store.GetResult(rid.PositionId)
	if err != nil {
		return err
	}
	nameToId, idToName, _, err := t.propertyMaps(rid.ClassId)
	if err != nil {
		return err
	}
	oldTriples, err := t.triplesOf(ci, raw)
	if err != nil {
		return err
	}
	oldValues, err := recordcodec.DecodeTriples(oldTriples, idToName)
	if err != nil {
		return err
	}
	merged := make(map[string][]byte, len(oldValues)+len(record))
	for k, v := range oldValues {
		merged[k] = v
	}
	for k, v := range record {
		merged[k] = v
	}
	newTriples, err := recordcodec.EncodeTriples(merged, nameToId)
	if err != nil {
		return err
	}
	newRaw := recordcodec.ParseOnlyUpdateRecord(raw, newTriples, t.versionEnabled, ci.Type == gtypes.ClassTypeEdge)
	if err := store.Update(rid.PositionId, newRaw); err != nil {
		return t.fail(op("Update"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.maintainIndexesOnUpdate(rid.ClassId, rid.PositionId, oldValues, merged); err != nil {
		return t.fail(op("Update"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	return t.bumpVersion(rid)
}

// UpdateSrc retargets edge's src endpoint from its current value to newSrc,
// bumping edge, the old src, and the new src once each.
func (t *Transaction) UpdateSrc(edge gtypes.RecordId, newSrc gtypes.RecordId) error {
	if err := t.requireWritable("UpdateSrc"); err != nil {
		return err
	}
	if _, err := t.vertexClassOf(newSrc); err != nil {
		return errs.Wrap(op("UpdateSrc"), errs.CategoryGraph, "NOEXST_SRC", errs.ErrNoexstSrc)
	}
	store := datastore.Open(t.kvtx, edge.ClassId)
	raw, err := store.GetResult(edge.PositionId)
	if err != nil {
		return err
	}
	_, oldSrc, dst, _, err := recordcodec.DecodeEdgeRecord(raw, t.versionEnabled)
	if err != nil {
		return errs.Wrap(op("UpdateSrc"), errs.CategoryGraph, "GRAPH_UNKNOWN_ERR", errs.ErrGraphUnknown)
	}
	newRaw := recordcodec.ParseOnlyUpdateSrcVertex(raw, newSrc, t.versionEnabled)
	if err := store.Update(edge.PositionId, newRaw); err != nil {
		return t.fail(op("UpdateSrc"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.graph.UpdateSrcRel(edge, oldSrc, newSrc, dst); err != nil {
		return t.fail(op("UpdateSrc"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.bumpVersion(edge); err != nil {
		return t.fail(op("UpdateSrc"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.bumpVersion(oldSrc); err != nil {
		return t.fail(op("UpdateSrc"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	return t.bumpVersion(newSrc)
}

// UpdateDst retargets edge's dst endpoint, bumping edge, the old dst, and
// the new dst once each.
func (t *Transaction) UpdateDst(edge gtypes.RecordId, newDst gtypes.RecordId) error {
	if err := t.requireWritable("UpdateDst"); err != nil {
		return err
	}
	if _, err := t.vertexClassOf(newDst); err != nil {
		return errs.Wrap(op("UpdateDst"), errs.CategoryGraph, "NOEXST_DST", errs.ErrNoexstDst)
	}
	store := datastore.Open(t.kvtx, edge.ClassId)
	raw, err := store.GetResult(edge.PositionId)
	if err != nil {
		return err
	}
	_, src, oldDst, _, err := recordcodec.DecodeEdgeRecord(raw, t.versionEnabled)
	if err != nil {
		return errs.Wrap(op("UpdateDst"), errs.CategoryGraph, "GRAPH_UNKNOWN_ERR", errs.ErrGraphUnknown)
	}
	newRaw := recordcodec.ParseOnlyUpdateDstVertex(raw, newDst, t.versionEnabled)
	if err := store.Update(edge.PositionId, newRaw); err != nil {
		return t.fail(op("UpdateDst"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.graph.UpdateDstRel(edge, src, oldDst, newDst); err != nil {
		return t.fail(op("UpdateDst"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.bumpVersion(edge); err != nil {
		return t.fail(op("UpdateDst"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.bumpVersion(oldDst); err != nil {
		return t.fail(op("UpdateDst"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	return t.bumpVersion(newDst)
}

// Remove deletes a single vertex or edge record. Removing a vertex cascades
// to every incident edge (graphstore.RemoveRelFromVertex) and bumps each
// neighbor once; removing an edge deletes its adjacency pair and bumps both
// endpoints once (§4.6, §4.7).
func (t *Transaction) Remove(rid gtypes.RecordId) error {
	if err := t.requireWritable("Remove"); err != nil {
		return err
	}
	ci, ok, err := t.catalog.GetClassById(rid.ClassId)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap(op("Remove"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	store := datastore.Open(t.kvtx, rid.ClassId)
	raw, err := store.GetResult(rid.PositionId)
	if err != nil {
		return err
	}
	_, idToName, _, err := t.propertyMaps(rid.ClassId)
	if err != nil {
		return err
	}
	triples, err := t.triplesOf(ci, raw)
	if err != nil {
		return err
	}
	values, err := recordcodec.DecodeTriples(triples, idToName)
	if err != nil {
		return err
	}

	if ci.Type == gtypes.ClassTypeVertex {
		neighbors, err := t.graph.RemoveRelFromVertex(rid, func(edge gtypes.RecordId) error {
			eci, ok, err := t.catalog.GetClassById(edge.ClassId)
			if err != nil {
				return err
			}
			if !ok {
				return errs.ErrNoexstRecord
			}
			eStore := datastore.Open(t.kvtx, edge.ClassId)
			eraw, err := eStore.GetResult(edge.PositionId)
			if err != nil {
				return err
			}
			_, eIdToName, _, err := t.propertyMaps(edge.ClassId)
			if err != nil {
				return err
			}
			etriples, err := t.triplesOf(eci, eraw)
			if err != nil {
				return err
			}
			evalues, err := recordcodec.DecodeTriples(etriples, eIdToName)
			if err != nil {
				return err
			}
			if err := t.maintainIndexesOnRemove(edge.ClassId, edge.PositionId, evalues); err != nil {
				return err
			}
			return eStore.Remove(edge.PositionId)
		})
		if err != nil {
			return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
		}
		if err := t.maintainIndexesOnRemove(rid.ClassId, rid.PositionId, values); err != nil {
			return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
		}
		if err := store.Remove(rid.PositionId); err != nil {
			return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
		}
		for _, n := range neighbors {
			if err := t.bumpVersion(n); err != nil {
				return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
			}
		}
		return nil
	}

	_, src, dst, _, err := recordcodec.DecodeEdgeRecord(raw, t.versionEnabled)
	if err != nil {
		return t.fail(op("Remove"), errs.CategoryGraph, "GRAPH_UNKNOWN_ERR", errs.ErrGraphUnknown)
	}
	if err := t.graph.RemoveRelFromEdge(rid, src, dst); err != nil {
		return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.maintainIndexesOnRemove(rid.ClassId, rid.PositionId, values); err != nil {
		return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := store.Remove(rid.PositionId); err != nil {
		return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	if err := t.bumpVersion(src); err != nil {
		return t.fail(op("Remove"), errs.CategoryStorage, "STORAGE_ERR", err)
	}
	return t.bumpVersion(dst)
}

// RemoveAll removes every record of className, cascading exactly as Remove
// does for each one.
func (t *Transaction) RemoveAll(className string) error {
	if err := t.requireWritable("RemoveAll"); err != nil {
		return err
	}
	ci, ok, err := t.catalog.GetClassByName(className)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap(op("RemoveAll"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	store := datastore.Open(t.kvtx, ci.Id)
	var positions []gtypes.PositionId
	if err := store.ResultSetIter(func(pos gtypes.PositionId, _ []byte) error {
		positions = append(positions, pos)
		return nil
	}); err != nil {
		return err
	}
	for _, pos := range positions {
		if err := t.Remove(gtypes.RecordId{ClassId: ci.Id, PositionId: pos}); err != nil {
			if errs.Is(err, errs.ErrNoexstRecord) {
				continue
			}
			return err
		}
	}
	return nil
}
