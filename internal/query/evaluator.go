// Package query implements the Query Evaluator described in §4.10: it
// decides, per condition or multi-condition, whether a class's records can
// be served from a secondary index or require a full scan, and merges
// per-class results for findSubClassOf-style queries.
//
// Grounded in original_source/src/index.hpp's isValidComparator /
// getEqualNumeric / getLessNumeric / getGreaterNumeric / getBetweenNumeric
// family and original_source/src/compare.cpp's filterRecord/filterResult.
// The package keeps the teacher's own index-vs-scan planner shape
// (QueryResult-style "can this be served structurally, or do we need a
// predicate fallback" decision) generalized from issue filters to graph
// records and conditions.
package query

import (
	"errors"
	"math"
	"sort"

	"github.com/nogdb/graphdb/internal/datastore"
	"github.com/nogdb/graphdb/internal/filter"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/index"
	"github.com/nogdb/graphdb/internal/kv"
	"github.com/nogdb/graphdb/internal/recordcodec"
	"github.com/nogdb/graphdb/internal/schema"
)

// errLeafNotServable is an internal control-flow signal: a Node leaf passed
// the coarse allIndexable precheck (index exists, comparator is in the
// generally-indexable set) but tryIndexServe still can't serve it from the
// index alone (e.g. a TEXT property with a range comparator, or EQUAL with
// IgnoreCase). Returning it from evalIndexNode forces findByMultiCondition's
// caller to fall back to a full scan instead of silently treating the leaf
// as an empty set in the AND/OR merge.
var errLeafNotServable = errors.New("query: leaf not servable by index")

// indexableComparators is the planner's supported comparator set. SPEC_FULL
// §9's Open Question (a) is resolved here by extending the table to the
// range comparators alongside EQUAL, per the spec's natural reading of
// §4.10 — see DESIGN.md.
var indexableComparators = map[gtypes.Comparator]bool{
	gtypes.CompareEqual:          true,
	gtypes.CompareLess:           true,
	gtypes.CompareLessEqual:      true,
	gtypes.CompareGreater:        true,
	gtypes.CompareGreaterEqual:   true,
	gtypes.CompareBetween:        true,
	gtypes.CompareBetweenNoUpper: true,
	gtypes.CompareBetweenNoLower: true,
	gtypes.CompareBetweenNoBound: true,
}

// Evaluator runs find/findSubClassOf-style reads against one open transaction.
type Evaluator struct {
	tx             *kv.Tx
	catalog        *schema.Catalog
	versionEnabled bool
}

// New binds an Evaluator to tx and its schema catalog. versionEnabled must
// match the environment's enable-version-flag (§6), since it changes the
// on-disk record layout decoders must assume (§4.4).
func New(tx *kv.Tx, catalog *schema.Catalog, versionEnabled bool) *Evaluator {
	return &Evaluator{tx: tx, catalog: catalog, versionEnabled: versionEnabled}
}

// Options configures one Find call.
type Options struct {
	IncludeSubClassOf bool
	IndexedOnly       bool // if set and no index can serve the query, return empty instead of scanning
}

// Find evaluates an optional Condition/MultiCondition against classId (and,
// if requested, its transitive subclasses), returning matching RecordIds
// sorted by RecordId (I4).
func (e *Evaluator) Find(classId gtypes.ClassId, cond *filter.Condition, multi *filter.MultiCondition, opts Options) ([]gtypes.RecordId, error) {
	classes := []gtypes.ClassId{classId}
	if opts.IncludeSubClassOf {
		subs, err := e.catalog.GetSubClassInfosRecursive(classId)
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			classes = append(classes, s.Id)
		}
	}

	var all []gtypes.RecordId
	for _, cid := range classes {
		ids, err := e.findOneClass(cid, cond, multi, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Less(all[j]) })
	return all, nil
}

func (e *Evaluator) findOneClass(classId gtypes.ClassId, cond *filter.Condition, multi *filter.MultiCondition, opts Options) ([]gtypes.RecordId, error) {
	switch {
	case cond != nil:
		return e.findByCondition(classId, *cond, opts)
	case multi != nil:
		return e.findByMultiCondition(classId, *multi, opts)
	default:
		return e.fullScan(classId, nil, nil)
	}
}

func (e *Evaluator) findByCondition(classId gtypes.ClassId, cond filter.Condition, opts Options) ([]gtypes.RecordId, error) {
	prop, ok, err := e.catalog.GetExistingPropertyExtend(classId, cond.Property)
	if err != nil {
		return nil, err
	}
	if ok {
		if idx, hasIdx, ierr := e.catalog.GetIndex(prop.ClassId, prop.Id); ierr == nil && hasIdx && indexableComparators[cond.Comparator] {
			ids, served, serr := e.tryIndexServe(idx, prop.Type, cond)
			if serr != nil {
				return nil, serr
			}
			if served {
				return e.toRecordIds(classId, ids), nil
			}
		}
	}
	if opts.IndexedOnly {
		return nil, nil
	}
	return e.fullScan(classId, &cond, nil)
}

// tryIndexServe evaluates cond entirely from the index, handling the
// negated-EQUAL special case by splitting into LESS ∪ GREATER (§4.10).
func (e *Evaluator) tryIndexServe(idx schema.IndexInfo, typ gtypes.PropertyType, cond filter.Condition) ([]gtypes.PositionId, bool, error) {
	store := index.Open(e.tx, idx.Id, typ, idx.Unique)

	if typ == gtypes.PropertyTypeText {
		if cond.Comparator != gtypes.CompareEqual || cond.IgnoreCase || cond.Negative {
			return nil, false, nil
		}
		ids, err := store.EqualText(cond.Value)
		if err != nil {
			return nil, false, err
		}
		return ids, true, nil
	}

	if !typ.IsNumeric() {
		return nil, false, nil
	}

	v := decodeNumeric(typ, cond.Value)

	if cond.Comparator == gtypes.CompareEqual && cond.Negative {
		less, err := store.Less(v)
		if err != nil {
			return nil, false, err
		}
		greater, err := store.Greater(v)
		if err != nil {
			return nil, false, err
		}
		return append(less, greater...), true, nil
	}
	if cond.Negative {
		return nil, false, nil
	}

	switch cond.Comparator {
	case gtypes.CompareEqual:
		ids, err := store.Equal(v)
		return ids, err == nil, err
	case gtypes.CompareLess:
		ids, err := store.Less(v)
		return ids, err == nil, err
	case gtypes.CompareLessEqual:
		ids, err := store.LessEqual(v)
		return ids, err == nil, err
	case gtypes.CompareGreater:
		ids, err := store.Greater(v)
		return ids, err == nil, err
	case gtypes.CompareGreaterEqual:
		ids, err := store.GreaterEqual(v)
		return ids, err == nil, err
	case gtypes.CompareBetween, gtypes.CompareBetweenNoUpper, gtypes.CompareBetweenNoLower, gtypes.CompareBetweenNoBound:
		if len(cond.ValueSet) != 2 {
			return nil, false, nil
		}
		lower := decodeNumeric(typ, cond.ValueSet[0])
		upper := decodeNumeric(typ, cond.ValueSet[1])
		includeLower := cond.Comparator == gtypes.CompareBetween || cond.Comparator == gtypes.CompareBetweenNoUpper
		includeUpper := cond.Comparator == gtypes.CompareBetween || cond.Comparator == gtypes.CompareBetweenNoLower
		ids, err := store.Between(lower, upper, includeLower, includeUpper)
		return ids, err == nil, err
	default:
		return nil, false, nil
	}
}

func decodeNumeric(typ gtypes.PropertyType, raw []byte) float64 {
	var u uint64
	for i := 0; i < len(raw) && i < 8; i++ {
		u |= uint64(raw[i]) << (8 * i)
	}
	switch typ {
	case gtypes.PropertyTypeReal:
		return math.Float64frombits(u)
	case gtypes.PropertyTypeTinyint:
		return float64(int8(u))
	case gtypes.PropertyTypeSmallint:
		return float64(int16(u))
	case gtypes.PropertyTypeInteger:
		return float64(int32(u))
	case gtypes.PropertyTypeBigint:
		return float64(int64(u))
	default:
		return float64(u)
	}
}

func (e *Evaluator) toRecordIds(classId gtypes.ClassId, positions []gtypes.PositionId) []gtypes.RecordId {
	out := make([]gtypes.RecordId, 0, len(positions))
	for _, p := range positions {
		out = append(out, gtypes.RecordId{ClassId: classId, PositionId: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// findByMultiCondition: indexable only if every leaf is a Condition with an
// index supporting its comparator (§4.10); otherwise falls back to scan.
func (e *Evaluator) findByMultiCondition(classId gtypes.ClassId, mc filter.MultiCondition, opts Options) ([]gtypes.RecordId, error) {
	allIndexable := true
	hasLeafVisited := mc.ForEachCondition(func(c filter.Condition) {
		prop, ok, err := e.catalog.GetExistingPropertyExtend(classId, c.Property)
		if err != nil || !ok {
			allIndexable = false
			return
		}
		_, hasIdx, err := e.catalog.GetIndex(prop.ClassId, prop.Id)
		if err != nil || !hasIdx || !indexableComparators[c.Comparator] {
			allIndexable = false
		}
	})
	if !hasLeafVisited {
		allIndexable = false
	}

	if allIndexable {
		ids, err := e.evalIndexNode(classId, mc.Root)
		if err == nil {
			return e.toRecordIds(classId, ids), nil
		}
	}
	if opts.IndexedOnly {
		return nil, nil
	}
	return e.fullScan(classId, nil, &mc)
}

func (e *Evaluator) evalIndexNode(classId gtypes.ClassId, n filter.Node) ([]gtypes.PositionId, error) {
	if n.Condition != nil {
		prop, _, err := e.catalog.GetExistingPropertyExtend(classId, n.Condition.Property)
		if err != nil {
			return nil, err
		}
		idx, _, err := e.catalog.GetIndex(prop.ClassId, prop.Id)
		if err != nil {
			return nil, err
		}
		ids, served, err := e.tryIndexServe(idx, prop.Type, *n.Condition)
		if err != nil {
			return nil, err
		}
		if !served {
			return nil, errLeafNotServable
		}
		return ids, nil
	}
	if n.Composite != nil {
		left, err := e.evalIndexNode(classId, n.Composite.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.evalIndexNode(classId, n.Composite.Right)
		if err != nil {
			return nil, err
		}
		isAnd := n.Composite.Op == filter.OpAnd
		if n.Composite.Negative {
			isAnd = !isAnd // negation flips AND<->OR at this node (§4.9)
		}
		if isAnd {
			return intersect(left, right), nil
		}
		return union(left, right), nil
	}
	return nil, nil
}

func intersect(a, b []gtypes.PositionId) []gtypes.PositionId {
	set := make(map[gtypes.PositionId]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	var out []gtypes.PositionId
	for _, x := range b {
		if set[x] {
			out = append(out, x)
		}
	}
	return out
}

func union(a, b []gtypes.PositionId) []gtypes.PositionId {
	set := make(map[gtypes.PositionId]bool, len(a)+len(b))
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		set[x] = true
	}
	out := make([]gtypes.PositionId, 0, len(set))
	for x := range set {
		out = append(out, x)
	}
	return out
}

// fullScan walks every record in classId's data table, decoding and applying
// cond/multi if present.
func (e *Evaluator) fullScan(classId gtypes.ClassId, cond *filter.Condition, multi *filter.MultiCondition) ([]gtypes.RecordId, error) {
	ci, ok, err := e.catalog.GetClassById(classId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	nameMap, err := e.catalog.GetPropertyNameMapInfo(classId)
	if err != nil {
		return nil, err
	}
	idToName := make(map[gtypes.PropertyId]string, len(nameMap))
	for _, p := range nameMap {
		idToName[p.Id] = p.Name
	}
	resolve := func(name string) (gtypes.PropertyType, bool) {
		p, ok := nameMap[name]
		return p.Type, ok
	}

	store := datastore.Open(e.tx, classId)
	var out []gtypes.RecordId
	err = store.ResultSetIter(func(posid gtypes.PositionId, raw []byte) error {
		var triples []byte
		if ci.Type == gtypes.ClassTypeEdge {
			_, _, _, t, derr := recordcodec.DecodeEdgeRecord(raw, e.versionEnabled)
			if derr != nil {
				return derr
			}
			triples = t
		} else {
			_, triples = recordcodec.DecodeVertexRecord(raw, e.versionEnabled)
		}
		rec, derr := recordcodec.DecodeTriples(triples, idToName)
		if derr != nil {
			return derr
		}
		match := true
		if cond != nil {
			match, derr = filter.CheckCondition(*cond, rec, resolveType(resolve, cond.Property))
			if derr != nil {
				return derr
			}
		} else if multi != nil {
			match, derr = multi.Check(rec, resolve)
			if derr != nil {
				return derr
			}
		}
		if match {
			out = append(out, gtypes.RecordId{ClassId: classId, PositionId: posid})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func resolveType(resolve filter.TypeResolver, property string) (gtypes.PropertyType, bool) {
	return resolve(property)
}
