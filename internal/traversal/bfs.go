// Package traversal implements the Traversal Engine described in §4.11: BFS
// over the Graph Relation Store with direction, depth bounds, edge and
// vertex GraphFilters, and shortest-path reconstruction.
//
// Grounded in original_source/src/algorithm.cpp's GraphTraversal::
// breadthFirstSearch / bfsShortestPath, including the "degrade gracefully"
// NOEXST_VERTEX -> GRAPH_UNKNOWN_ERR rethrow on stale adjacency entries.
package traversal

import (
	"golang.org/x/sync/errgroup"

	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/filter"
	"github.com/nogdb/graphdb/internal/graphstore"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/schema"
)

// RecordFetcher resolves one vertex/edge record's properties and class id,
// for use by the vertex/edge GraphFilter predicates. Returns ok=false if the
// record is missing (a stale adjacency entry).
type RecordFetcher func(rid gtypes.RecordId) (record map[string][]byte, classId gtypes.ClassId, ok bool, err error)

// Engine runs BFS traversals and shortest-path queries against one
// transaction's Graph Relation Store.
type Engine struct {
	graph   *graphstore.Store
	catalog *schema.Catalog
	fetch   RecordFetcher
}

// New binds an Engine to the graph store, schema catalog, and a record
// fetcher supplied by the caller (the txn package, which owns record
// decoding).
func New(graph *graphstore.Store, catalog *schema.Catalog, fetch RecordFetcher) *Engine {
	return &Engine{graph: graph, catalog: catalog, fetch: fetch}
}

type queueItem struct {
	rid   gtypes.RecordId
	depth uint16
}

func resolverFor(record map[string][]byte, nameMap map[string]schema.PropertyInfo) filter.TypeResolver {
	return func(name string) (gtypes.PropertyType, bool) {
		p, ok := nameMap[name]
		return p.Type, ok
	}
}

// passesGraphFilter applies gf's class set and condition/predicate to the
// record at rid; absent gf, every existing record passes. A record that does
// not exist is a GRAPH_UNKNOWN_ERR. Edges are only checked when an edge
// filter is set.
func (e *Engine) passesGraphFilter(rid gtypes.RecordId, gf *filter.GraphFilter, resolved map[gtypes.ClassId]bool) (bool, error) {
	record, classId, ok, err := e.fetch(rid)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errs.Wrap("traversal.passesGraphFilter", errs.CategoryGraph, "GRAPH_UNKNOWN_ERR", errs.ErrGraphUnknown)
	}
	if gf == nil {
		return true, nil
	}
	if !gf.ClassAllowed(classId, resolved) {
		return false, nil
	}
	nameMap, err := e.catalog.GetPropertyNameMapInfo(classId)
	if err != nil {
		return false, err
	}
	return gf.CheckRecord(record, resolverFor(record, nameMap))
}

func (e *Engine) resolveFilterClasses(gf *filter.GraphFilter) (map[gtypes.ClassId]bool, error) {
	if gf == nil {
		return nil, nil
	}
	if len(gf.OnlyClasses) == 0 && len(gf.OnlySubClassOf) == 0 && len(gf.IgnoreClasses) == 0 && len(gf.IgnoreSubClassOf) == 0 {
		return nil, nil
	}
	return e.catalog.ResolveClassFilter(gf.OnlyClasses, gf.OnlySubClassOf, gf.IgnoreClasses, gf.IgnoreSubClassOf)
}

// incidentEdges returns the adjacency entries incident to v in the given
// direction (IN, OUT, or both for ALL). The ALL case fans the two adjacency
// reads out across an errgroup since both read the same already-open
// snapshot transaction and share nothing mutable.
func (e *Engine) incidentEdges(v gtypes.RecordId, dir gtypes.Direction) ([]gtypes.AdjacencyEntry, error) {
	switch dir {
	case gtypes.DirectionIn:
		return e.graph.GetInEdges(v)
	case gtypes.DirectionOut:
		return e.graph.GetOutEdges(v)
	default:
		var in, out []gtypes.AdjacencyEntry
		var g errgroup.Group
		g.Go(func() error {
			edges, err := e.graph.GetInEdges(v)
			in = edges
			return err
		})
		g.Go(func() error {
			edges, err := e.graph.GetOutEdges(v)
			out = edges
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return append(in, out...), nil
	}
}

// BFS implements §4.11's algorithm: breadth-first traversal from sources,
// bounded by [minDepth, maxDepth], filtered per edge and vertex, tagging
// each emitted record with its discovered depth.
func (e *Engine) BFS(sources []gtypes.RecordId, dir gtypes.Direction, minDepth, maxDepth uint16, edgeFilter, vertexFilter *filter.GraphFilter) ([]gtypes.RecordDescriptor, error) {
	edgeClasses, err := e.resolveFilterClasses(edgeFilter)
	if err != nil {
		return nil, err
	}
	vertexClasses, err := e.resolveFilterClasses(vertexFilter)
	if err != nil {
		return nil, err
	}

	visited := make(map[gtypes.RecordId]bool, len(sources))
	var queue []queueItem
	var results []gtypes.RecordDescriptor

	for _, s := range sources {
		visited[s] = true
		queue = append(queue, queueItem{rid: s, depth: 0})
		if minDepth == 0 {
			results = append(results, gtypes.RecordDescriptor{Rid: s, Depth: 0})
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		edges, err := e.incidentEdges(cur.rid, dir)
		if err != nil {
			return nil, err
		}
		for _, adj := range edges {
			if edgeFilter != nil {
				edgeOk, err := e.passesGraphFilter(adj.Edge, edgeFilter, edgeClasses)
				if err != nil {
					return nil, err
				}
				if !edgeOk {
					continue
				}
			}
			n := adj.Neighbor
			if visited[n] {
				continue
			}
			vertexOk, err := e.passesGraphFilter(n, vertexFilter, vertexClasses)
			if err != nil {
				return nil, err
			}
			visited[n] = true
			if !vertexOk {
				continue
			}
			nd := cur.depth + 1
			if nd >= minDepth && nd <= maxDepth {
				results = append(results, gtypes.RecordDescriptor{Rid: n, Depth: nd})
			}
			if nd < maxDepth {
				queue = append(queue, queueItem{rid: n, depth: nd})
			}
		}
	}
	return results, nil
}

// ShortestPath implements §4.11's shortest-path operator: BFS restricted to
// OUT direction, stopping as soon as dst is discovered, then backtracking
// through the visited-parent map and reversing. src==dst returns a
// single-node path at depth 0; an unreachable dst returns an empty sequence.
func (e *Engine) ShortestPath(src, dst gtypes.RecordId, edgeFilter, vertexFilter *filter.GraphFilter) ([]gtypes.RecordDescriptor, error) {
	if src == dst {
		return []gtypes.RecordDescriptor{{Rid: src, Depth: 0}}, nil
	}

	edgeClasses, err := e.resolveFilterClasses(edgeFilter)
	if err != nil {
		return nil, err
	}
	vertexClasses, err := e.resolveFilterClasses(vertexFilter)
	if err != nil {
		return nil, err
	}

	parent := map[gtypes.RecordId]gtypes.RecordId{src: {}}
	queue := []gtypes.RecordId{src}
	found := false

	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]

		edges, err := e.incidentEdges(cur, gtypes.DirectionOut)
		if err != nil {
			return nil, err
		}
		for _, adj := range edges {
			if edgeFilter != nil {
				edgeOk, err := e.passesGraphFilter(adj.Edge, edgeFilter, edgeClasses)
				if err != nil {
					return nil, err
				}
				if !edgeOk {
					continue
				}
			}
			n := adj.Neighbor
			if _, seen := parent[n]; seen {
				continue
			}
			vertexOk, err := e.passesGraphFilter(n, vertexFilter, vertexClasses)
			if err != nil {
				return nil, err
			}
			parent[n] = cur
			if !vertexOk {
				continue
			}
			if n == dst {
				found = true
				break
			}
			queue = append(queue, n)
		}
	}

	if !found {
		return nil, nil
	}

	var reversed []gtypes.RecordId
	for cur := dst; ; {
		reversed = append(reversed, cur)
		if cur == src {
			break
		}
		cur = parent[cur]
	}

	out := make([]gtypes.RecordDescriptor, len(reversed))
	for i, rid := range reversed {
		idx := len(reversed) - 1 - i
		out[idx] = gtypes.RecordDescriptor{Rid: rid, Depth: uint16(idx)}
	}
	return out, nil
}
