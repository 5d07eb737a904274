package txn

import (
	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/filter"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/query"
	"github.com/nogdb/graphdb/internal/schema"
	"github.com/nogdb/graphdb/internal/traversal"
)

// resolverFor adapts a decoded property-name map into the filter package's
// TypeResolver callback shape.
func resolverFor(record map[string][]byte, nameMap map[string]schema.PropertyInfo) filter.TypeResolver {
	return func(name string) (gtypes.PropertyType, bool) {
		p, ok := nameMap[name]
		return p.Type, ok
	}
}

// Cursor is the result-set iterator described in §6/§12's
// getCursor()/Next() surface, backed by an already-materialized slice (the
// evaluator and traversal engine build the full ordered result before
// handing it back; nothing here re-touches storage).
type Cursor struct {
	records []Record
	pos     int
}

// Next advances the cursor, returning (record, true) or (Record{}, false) at
// end of results.
func (c *Cursor) Next() (Record, bool) {
	if c.pos >= len(c.records) {
		return Record{}, false
	}
	r := c.records[c.pos]
	c.pos++
	return r, true
}

func (t *Transaction) recordFetcher() traversal.RecordFetcher {
	return func(rid gtypes.RecordId) (map[string][]byte, gtypes.ClassId, bool, error) {
		rec, err := t.FetchRecord(rid)
		if err != nil {
			if errs.Is(err, errs.ErrNoexstRecord) || errs.Is(err, errs.ErrNoexstClass) {
				return nil, 0, false, nil
			}
			return nil, 0, false, err
		}
		return rec.Properties, rid.ClassId, true, nil
	}
}

func (t *Transaction) traversalEngine() *traversal.Engine {
	return traversal.New(t.graph, t.catalog, t.recordFetcher())
}

// Finder is the builder returned by Find/FindSubClassOf (§6).
type Finder struct {
	t           *Transaction
	classId     gtypes.ClassId
	includeSub  bool
	cond        *filter.Condition
	multi       *filter.MultiCondition
	indexedOnly bool
	err         error
}

// Find starts a query over className's own records.
func (t *Transaction) Find(className string) *Finder {
	ci, ok, err := t.catalog.GetClassByName(className)
	if err != nil {
		return &Finder{t: t, err: err}
	}
	if !ok {
		return &Finder{t: t, err: errs.Wrap(op("Find"), errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)}
	}
	return &Finder{t: t, classId: ci.Id}
}

// FindSubClassOf starts a query over className's records and every
// descendant class's records (§4.10's includeSubClassOf).
func (t *Transaction) FindSubClassOf(className string) *Finder {
	f := t.Find(className)
	f.includeSub = true
	return f
}

// Where narrows the query to records matching cond.
func (f *Finder) Where(cond filter.Condition) *Finder {
	f.cond = &cond
	return f
}

// WhereMulti narrows the query to records matching a boolean condition AST.
func (f *Finder) WhereMulti(mc filter.MultiCondition) *Finder {
	f.multi = &mc
	return f
}

// Indexed restricts the query to serve entirely from an index, returning no
// results rather than falling back to a scan (§4.10).
func (f *Finder) Indexed() *Finder {
	f.indexedOnly = true
	return f
}

func (f *Finder) resolve() ([]Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	ev := query.New(f.t.kvtx, f.t.catalog, f.t.versionEnabled)
	ids, err := ev.Find(f.classId, f.cond, f.multi, query.Options{IncludeSubClassOf: f.includeSub, IndexedOnly: f.indexedOnly})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := f.t.FetchRecord(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get materializes the query's matching records.
func (f *Finder) Get() ([]Record, error) { return f.resolve() }

// GetCursor materializes the query and wraps it in a Cursor.
func (f *Finder) GetCursor() (*Cursor, error) {
	recs, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return &Cursor{records: recs}, nil
}

// Count returns the number of matching records.
func (f *Finder) Count() (int, error) {
	recs, err := f.resolve()
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// EdgeFinder is the builder returned by FindInEdge/FindOutEdge/FindEdge.
type EdgeFinder struct {
	t      *Transaction
	vertex gtypes.RecordId
	dir    gtypes.Direction
	filter *filter.GraphFilter
}

// FindInEdge enumerates vertex's incoming edges.
func (t *Transaction) FindInEdge(vertex gtypes.RecordId) *EdgeFinder {
	return &EdgeFinder{t: t, vertex: vertex, dir: gtypes.DirectionIn}
}

// FindOutEdge enumerates vertex's outgoing edges.
func (t *Transaction) FindOutEdge(vertex gtypes.RecordId) *EdgeFinder {
	return &EdgeFinder{t: t, vertex: vertex, dir: gtypes.DirectionOut}
}

// FindEdge enumerates both of vertex's incoming and outgoing edges.
func (t *Transaction) FindEdge(vertex gtypes.RecordId) *EdgeFinder {
	return &EdgeFinder{t: t, vertex: vertex, dir: gtypes.DirectionAll}
}

// Where applies a GraphFilter (condition + class set) to each candidate edge.
func (f *EdgeFinder) Where(gf filter.GraphFilter) *EdgeFinder {
	f.filter = &gf
	return f
}

func (f *EdgeFinder) resolve() ([]Record, error) {
	var entries []gtypes.AdjacencyEntry
	var err error
	switch f.dir {
	case gtypes.DirectionIn:
		entries, err = f.t.graph.GetInEdges(f.vertex)
	case gtypes.DirectionOut:
		entries, err = f.t.graph.GetOutEdges(f.vertex)
	default:
		var in, out []gtypes.AdjacencyEntry
		in, err = f.t.graph.GetInEdges(f.vertex)
		if err == nil {
			out, err = f.t.graph.GetOutEdges(f.vertex)
		}
		entries = append(in, out...)
	}
	if err != nil {
		return nil, err
	}

	var resolved map[gtypes.ClassId]bool
	if f.filter != nil {
		resolved, err = f.t.catalog.ResolveClassFilter(f.filter.OnlyClasses, f.filter.OnlySubClassOf, f.filter.IgnoreClasses, f.filter.IgnoreSubClassOf)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[gtypes.RecordId]bool, len(entries))
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		if seen[e.Edge] {
			continue
		}
		seen[e.Edge] = true
		rec, err := f.t.FetchRecord(e.Edge)
		if err != nil {
			return nil, err
		}
		if f.filter != nil {
			if !f.filter.ClassAllowed(e.Edge.ClassId, resolved) {
				continue
			}
			nameMap, err := f.t.catalog.GetPropertyNameMapInfo(e.Edge.ClassId)
			if err != nil {
				return nil, err
			}
			ok, err := f.filter.CheckRecord(rec.Properties, resolverFor(rec.Properties, nameMap))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get materializes the matching edges.
func (f *EdgeFinder) Get() ([]Record, error) { return f.resolve() }

// GetCursor materializes the matching edges into a Cursor.
func (f *EdgeFinder) GetCursor() (*Cursor, error) {
	recs, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return &Cursor{records: recs}, nil
}

// Count returns the number of matching edges.
func (f *EdgeFinder) Count() (int, error) {
	recs, err := f.resolve()
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Traverser is the BFS builder returned by TraverseIn/TraverseOut/Traverse (§4.11).
type Traverser struct {
	t                        *Transaction
	sources                  []gtypes.RecordId
	dir                      gtypes.Direction
	minDepth, maxDepth       uint16
	edgeFilter, vertexFilter *filter.GraphFilter
}

func newTraverser(t *Transaction, dir gtypes.Direction, sources ...gtypes.RecordId) *Traverser {
	return &Traverser{t: t, dir: dir, sources: sources, maxDepth: ^uint16(0)}
}

// TraverseIn starts a BFS walking only the IN adjacency table.
func (t *Transaction) TraverseIn(source gtypes.RecordId) *Traverser {
	return newTraverser(t, gtypes.DirectionIn, source)
}

// TraverseOut starts a BFS walking only the OUT adjacency table.
func (t *Transaction) TraverseOut(source gtypes.RecordId) *Traverser {
	return newTraverser(t, gtypes.DirectionOut, source)
}

// Traverse starts a BFS walking both adjacency tables.
func (t *Transaction) Traverse(source gtypes.RecordId) *Traverser {
	return newTraverser(t, gtypes.DirectionAll, source)
}

// Depth bounds the traversal to [min, max] inclusive.
func (tr *Traverser) Depth(min, max uint16) *Traverser {
	tr.minDepth, tr.maxDepth = min, max
	return tr
}

// EdgeFilter applies gf to every candidate edge during the walk.
func (tr *Traverser) EdgeFilter(gf filter.GraphFilter) *Traverser {
	tr.edgeFilter = &gf
	return tr
}

// VertexFilter applies gf to every candidate neighbor during the walk.
func (tr *Traverser) VertexFilter(gf filter.GraphFilter) *Traverser {
	tr.vertexFilter = &gf
	return tr
}

func (tr *Traverser) resolve() ([]Record, error) {
	descs, err := tr.t.traversalEngine().BFS(tr.sources, tr.dir, tr.minDepth, tr.maxDepth, tr.edgeFilter, tr.vertexFilter)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(descs))
	for _, d := range descs {
		rec, err := tr.t.FetchRecord(d.Rid)
		if err != nil {
			return nil, err
		}
		depth := d.Depth
		rec.Depth = &depth
		out = append(out, rec)
	}
	return out, nil
}

// Get materializes the traversal's discovered records, tagged with depth.
func (tr *Traverser) Get() ([]Record, error) { return tr.resolve() }

// GetCursor materializes the traversal into a Cursor.
func (tr *Traverser) GetCursor() (*Cursor, error) {
	recs, err := tr.resolve()
	if err != nil {
		return nil, err
	}
	return &Cursor{records: recs}, nil
}

// Count returns the number of records the traversal discovers.
func (tr *Traverser) Count() (int, error) {
	recs, err := tr.resolve()
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// PathFinder is the builder returned by ShortestPath (§4.11).
type PathFinder struct {
	t                        *Transaction
	src, dst                 gtypes.RecordId
	edgeFilter, vertexFilter *filter.GraphFilter
}

// ShortestPath starts a shortest-path search from src to dst over the OUT
// adjacency table.
func (t *Transaction) ShortestPath(src, dst gtypes.RecordId) *PathFinder {
	return &PathFinder{t: t, src: src, dst: dst}
}

// EdgeFilter applies gf to every candidate edge along the search.
func (pf *PathFinder) EdgeFilter(gf filter.GraphFilter) *PathFinder {
	pf.edgeFilter = &gf
	return pf
}

// VertexFilter applies gf to every candidate vertex along the search.
func (pf *PathFinder) VertexFilter(gf filter.GraphFilter) *PathFinder {
	pf.vertexFilter = &gf
	return pf
}

func (pf *PathFinder) resolve() ([]Record, error) {
	descs, err := pf.t.traversalEngine().ShortestPath(pf.src, pf.dst, pf.edgeFilter, pf.vertexFilter)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(descs))
	for _, d := range descs {
		rec, err := pf.t.FetchRecord(d.Rid)
		if err != nil {
			return nil, err
		}
		depth := d.Depth
		rec.Depth = &depth
		out = append(out, rec)
	}
	return out, nil
}

// Get materializes the path src...dst, tagged with each hop's depth.
func (pf *PathFinder) Get() ([]Record, error) { return pf.resolve() }

// GetCursor materializes the path into a Cursor.
func (pf *PathFinder) GetCursor() (*Cursor, error) {
	recs, err := pf.resolve()
	if err != nil {
		return nil, err
	}
	return &Cursor{records: recs}, nil
}

// Count returns the path length (number of records, including src and dst).
func (pf *PathFinder) Count() (int, error) {
	recs, err := pf.resolve()
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
