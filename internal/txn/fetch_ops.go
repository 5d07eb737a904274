package txn

import (
	"github.com/nogdb/graphdb/internal/datastore"
	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/recordcodec"
	"github.com/nogdb/graphdb/internal/schema"
)

// Record is a fetched vertex or edge, decoded into its declared properties
// plus the reserved virtual properties (§3, §4.4): @className, @recordId,
// @version, and — only on records produced by a traversal builder — @depth.
type Record struct {
	Rid        gtypes.RecordId
	ClassName  string
	Version    gtypes.VersionId
	Properties map[string][]byte
	Depth      *uint16
}

// decodeRecord turns raw on-disk bytes into a Record, given the owning
// class's info.
func (t *Transaction) decodeRecord(ci schema.ClassInfo, rid gtypes.RecordId, raw []byte) (Record, error) {
	_, idToName, _, err := t.propertyMaps(ci.Id)
	if err != nil {
		return Record{}, err
	}
	var version gtypes.VersionId
	var triples []byte
	if ci.Type == gtypes.ClassTypeEdge {
		version, _, _, triples, err = recordcodec.DecodeEdgeRecord(raw, t.versionEnabled)
		if err != nil {
			return Record{}, errs.Wrap(op("decodeRecord"), errs.CategoryGraph, "GRAPH_UNKNOWN_ERR", errs.ErrGraphUnknown)
		}
	} else {
		version, triples = recordcodec.DecodeVertexRecord(raw, t.versionEnabled)
	}
	props, err := recordcodec.DecodeTriples(triples, idToName)
	if err != nil {
		return Record{}, err
	}
	return Record{Rid: rid, ClassName: ci.Name, Version: version, Properties: props}, nil
}

// FetchRecord loads and decodes the vertex or edge at rid.
func (t *Transaction) FetchRecord(rid gtypes.RecordId) (Record, error) {
	if err := t.requireActive("FetchRecord"); err != nil {
		return Record{}, err
	}
	ci, ok, err := t.catalog.GetClassById(rid.ClassId)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, errs.Wrap(op("FetchRecord"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	raw, err := datastore.Open(t.kvtx, rid.ClassId).GetResult(rid.PositionId)
	if err != nil {
		return Record{}, err
	}
	return t.decodeRecord(ci, rid, raw)
}

func (t *Transaction) edgeEndpoints(edge gtypes.RecordId) (src, dst gtypes.RecordId, err error) {
	raw, err := datastore.Open(t.kvtx, edge.ClassId).GetResult(edge.PositionId)
	if err != nil {
		return gtypes.RecordId{}, gtypes.RecordId{}, err
	}
	src, dst = recordcodec.ParseEdgeVertexSrcDst(raw, t.versionEnabled)
	return src, dst, nil
}

// FetchSrc resolves and decodes edge's source vertex.
func (t *Transaction) FetchSrc(edge gtypes.RecordId) (Record, error) {
	src, _, err := t.edgeEndpoints(edge)
	if err != nil {
		return Record{}, err
	}
	return t.FetchRecord(src)
}

// FetchDst resolves and decodes edge's destination vertex.
func (t *Transaction) FetchDst(edge gtypes.RecordId) (Record, error) {
	_, dst, err := t.edgeEndpoints(edge)
	if err != nil {
		return Record{}, err
	}
	return t.FetchRecord(dst)
}

// FetchSrcDst resolves and decodes both of edge's endpoints.
func (t *Transaction) FetchSrcDst(edge gtypes.RecordId) (src, dst Record, err error) {
	srcRid, dstRid, err := t.edgeEndpoints(edge)
	if err != nil {
		return Record{}, Record{}, err
	}
	src, err = t.FetchRecord(srcRid)
	if err != nil {
		return Record{}, Record{}, err
	}
	dst, err = t.FetchRecord(dstRid)
	if err != nil {
		return Record{}, Record{}, err
	}
	return src, dst, nil
}

// GetClass looks up one class by name.
func (t *Transaction) GetClass(name string) (schema.ClassInfo, error) {
	ci, ok, err := t.catalog.GetClassByName(name)
	if err != nil {
		return schema.ClassInfo{}, err
	}
	if !ok {
		return schema.ClassInfo{}, errs.Wrap(op("GetClass"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	return ci, nil
}

// GetClasses lists every class in the schema.
func (t *Transaction) GetClasses() ([]schema.ClassInfo, error) {
	return t.catalog.GetAllClasses()
}

// GetProperty looks up a property (native or inherited) on className.
func (t *Transaction) GetProperty(className, name string) (schema.PropertyInfo, error) {
	ci, ok, err := t.catalog.GetClassByName(className)
	if err != nil {
		return schema.PropertyInfo{}, err
	}
	if !ok {
		return schema.PropertyInfo{}, errs.Wrap(op("GetProperty"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	pi, ok, err := t.catalog.GetExistingPropertyExtend(ci.Id, name)
	if err != nil {
		return schema.PropertyInfo{}, err
	}
	if !ok {
		return schema.PropertyInfo{}, errs.Wrap(op("GetProperty"), errs.CategorySchema, "NOEXST_PROPERTY", errs.ErrNoexstProperty)
	}
	return pi, nil
}

// GetProperties lists every property (native + inherited) on className.
func (t *Transaction) GetProperties(className string) ([]schema.PropertyInfo, error) {
	ci, ok, err := t.catalog.GetClassByName(className)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Wrap(op("GetProperties"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	nameMap, err := t.catalog.GetPropertyNameMapInfo(ci.Id)
	if err != nil {
		return nil, err
	}
	out := make([]schema.PropertyInfo, 0, len(nameMap))
	for _, pi := range nameMap {
		out = append(out, pi)
	}
	return out, nil
}

// GetIndex looks up the index on (className, propertyName), if any.
func (t *Transaction) GetIndex(className, propertyName string) (schema.IndexInfo, error) {
	ci, ok, err := t.catalog.GetClassByName(className)
	if err != nil {
		return schema.IndexInfo{}, err
	}
	if !ok {
		return schema.IndexInfo{}, errs.Wrap(op("GetIndex"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	pi, ok, err := t.catalog.GetNativeProperty(ci.Id, propertyName)
	if err != nil {
		return schema.IndexInfo{}, err
	}
	if !ok {
		return schema.IndexInfo{}, errs.Wrap(op("GetIndex"), errs.CategorySchema, "NOEXST_PROPERTY", errs.ErrNoexstProperty)
	}
	idx, ok, err := t.catalog.GetIndex(ci.Id, pi.Id)
	if err != nil {
		return schema.IndexInfo{}, err
	}
	if !ok {
		return schema.IndexInfo{}, errs.Wrap(op("GetIndex"), errs.CategorySchema, "NOEXST_INDEX", errs.ErrNoexstIndex)
	}
	return idx, nil
}

// GetIndexes lists every index defined on className.
func (t *Transaction) GetIndexes(className string) ([]schema.IndexInfo, error) {
	ci, ok, err := t.catalog.GetClassByName(className)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Wrap(op("GetIndexes"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	return t.catalog.GetIndexes(ci.Id)
}

// GetDBInfo returns the schema catalog's id/count counters.
func (t *Transaction) GetDBInfo() (schema.DbInfo, error) {
	return t.catalog.GetDbInfo()
}
