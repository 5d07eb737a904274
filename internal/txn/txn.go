// Package txn implements the Transaction Manager described in §4.12 and the
// public API surface of §6: schema operations, vertex/edge mutations,
// fetches, and query/traversal builders, all scoped to one KV transaction.
//
// Grounded in original_source/src/transaction.cpp's Txn class and in the
// teacher's retry/wrap conventions (internal/errs mirrors wrapDBError).
package txn

import (
	"context"
	"fmt"

	"github.com/nogdb/graphdb/internal/datastore"
	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/graphstore"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/index"
	"github.com/nogdb/graphdb/internal/kv"
	"github.com/nogdb/graphdb/internal/recordcodec"
	"github.com/nogdb/graphdb/internal/schema"
)

// Transaction is the unit of work over one KV transaction. It owns the
// schema catalog, graph relation store, and the per-transaction
// already-bumped-version set required by §4.7.
type Transaction struct {
	kvtx           *kv.Tx
	catalog        *schema.Catalog
	graph          *graphstore.Store
	mode           gtypes.TxnMode
	versionEnabled bool
	completed      bool
	updated        map[gtypes.RecordId]bool
}

// Begin opens a KV transaction in the requested mode and wires up the
// schema catalog and graph relation store over it.
func Begin(ctx context.Context, engine *kv.Engine, mode gtypes.TxnMode, versionEnabled bool) (*Transaction, error) {
	kvtx, err := engine.Begin(mode == gtypes.TxnModeReadWrite)
	if err != nil {
		return nil, errs.Wrap("txn.Begin", errs.CategoryStorage, "STORAGE_ERR", err)
	}
	cat, err := schema.Open(kvtx)
	if err != nil {
		kvtx.Rollback()
		return nil, err
	}
	graph, err := graphstore.Open(kvtx)
	if err != nil {
		kvtx.Rollback()
		return nil, err
	}
	return &Transaction{
		kvtx:           kvtx,
		catalog:        cat,
		graph:          graph,
		mode:           mode,
		versionEnabled: versionEnabled,
		updated:        make(map[gtypes.RecordId]bool),
	}, nil
}

// Mode reports the transaction's read-only/read-write mode.
func (t *Transaction) Mode() gtypes.TxnMode { return t.mode }

// Catalog exposes the schema catalog for read-only callers (the CLI's
// inspection commands).
func (t *Transaction) Catalog() *schema.Catalog { return t.catalog }

func (t *Transaction) requireActive(op string) error {
	if t.completed {
		return errs.Wrap(op, errs.CategoryTransaction, "TXN_COMPLETED", errs.ErrCompleted)
	}
	return nil
}

func (t *Transaction) requireWritable(op string) error {
	if err := t.requireActive(op); err != nil {
		return err
	}
	if t.mode != gtypes.TxnModeReadWrite {
		return errs.Wrap(op, errs.CategoryTransaction, "TXN_INVALID_MODE", errs.ErrInvalidMode)
	}
	return nil
}

// Commit flushes the KV transaction. On failure the KV layer has already
// rolled back; either way the Transaction is marked completed so further
// calls raise TXN_COMPLETED (§4.12).
func (t *Transaction) Commit() error {
	if err := t.requireActive("txn.Commit"); err != nil {
		return err
	}
	err := t.kvtx.Commit()
	t.completed = true
	if err != nil {
		return errs.Wrap("txn.Commit", errs.CategoryStorage, "STORAGE_ERR", err)
	}
	return nil
}

// Rollback discards the KV transaction. Always safe and idempotent.
func (t *Transaction) Rollback() error {
	if t.completed {
		return nil
	}
	err := t.kvtx.Rollback()
	t.completed = true
	if err != nil {
		return errs.Wrap("txn.Rollback", errs.CategoryStorage, "STORAGE_ERR", err)
	}
	return nil
}

// fail rolls back the transaction (fatal-error policy, §4.12) and wraps err
// with op. It is only used on the mutation paths, after validation errors
// (which are checked before storage is touched and do not need a rollback).
func (t *Transaction) fail(op string, category errs.Category, code string, err error) error {
	t.Rollback()
	return errs.Wrap(op, category, code, err)
}

// bumpVersion increments rid's version by one, unless versioning is
// disabled or rid was already bumped earlier in this transaction (§4.7).
func (t *Transaction) bumpVersion(rid gtypes.RecordId) error {
	if !t.versionEnabled || t.updated[rid] {
		return nil
	}
	ci, ok, err := t.catalog.GetClassById(rid.ClassId)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	store := datastore.Open(t.kvtx, rid.ClassId)
	raw, err := store.GetResult(rid.PositionId)
	if err != nil {
		return err
	}
	isEdge := ci.Type == gtypes.ClassTypeEdge
	var cur gtypes.VersionId
	if isEdge {
		cur, _, _, _, err = recordcodec.DecodeEdgeRecord(raw, true)
		if err != nil {
			return err
		}
	} else {
		cur, _ = recordcodec.DecodeVertexRecord(raw, true)
	}
	newRaw := recordcodec.ParseOnlyUpdateVersion(raw, cur+1)
	if err := store.Update(rid.PositionId, newRaw); err != nil {
		return err
	}
	t.updated[rid] = true
	return nil
}

// propertyMaps builds the name<->id maps (native + inherited) and the
// name->type map used by the record codec and the condition evaluator.
func (t *Transaction) propertyMaps(classId gtypes.ClassId) (nameToId map[string]gtypes.PropertyId, idToName map[gtypes.PropertyId]string, types map[string]gtypes.PropertyType, err error) {
	info, err := t.catalog.GetPropertyNameMapInfo(classId)
	if err != nil {
		return nil, nil, nil, err
	}
	nameToId = make(map[string]gtypes.PropertyId, len(info))
	idToName = make(map[gtypes.PropertyId]string, len(info))
	types = make(map[string]gtypes.PropertyType, len(info))
	for name, pi := range info {
		nameToId[name] = pi.Id
		idToName[pi.Id] = name
		types[name] = pi.Type
	}
	return nameToId, idToName, types, nil
}

// triplesOf strips the version (and, for edges, the endpoint) prefix off a
// raw on-disk record, returning just the property-triples payload.
func (t *Transaction) triplesOf(ci schema.ClassInfo, raw []byte) ([]byte, error) {
	if ci.Type == gtypes.ClassTypeEdge {
		_, _, _, triples, err := recordcodec.DecodeEdgeRecord(raw, t.versionEnabled)
		if err != nil {
			return nil, errs.Wrap("txn.triplesOf", errs.CategoryGraph, "GRAPH_UNKNOWN_ERR", errs.ErrGraphUnknown)
		}
		return triples, nil
	}
	_, triples := recordcodec.DecodeVertexRecord(raw, t.versionEnabled)
	return triples, nil
}

// classTypeOf returns the ClassType of the class with id classId.
func (t *Transaction) classTypeOf(classId gtypes.ClassId) (gtypes.ClassType, error) {
	ci, ok, err := t.catalog.GetClassById(classId)
	if err != nil {
		return gtypes.ClassTypeUndefined, err
	}
	if !ok {
		return gtypes.ClassTypeUndefined, errs.Wrap("txn.classTypeOf", errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	return ci.Type, nil
}

// indexMaintainer opens the secondary index store for (classId, property),
// if one exists.
func (t *Transaction) indexMaintainer(classId gtypes.ClassId, propertyId gtypes.PropertyId, typ gtypes.PropertyType) (*index.Store, bool, error) {
	idx, ok, err := t.catalog.GetIndex(classId, propertyId)
	if err != nil || !ok {
		return nil, ok, err
	}
	return index.Open(t.kvtx, idx.Id, typ, idx.Unique), true, nil
}

// op formats a stable operation tag for error wrapping, mirroring the
// teacher's fmt.Errorf("%s: %w", op, err) convention.
func op(name string) string { return fmt.Sprintf("txn.%s", name) }
