package txn

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/filter"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/kv"
)

func openTestEngine(t *testing.T) *kv.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := kv.Open(context.Background(), path, kv.Options{})
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func beginRW(t *testing.T, e *kv.Engine) *Transaction {
	t.Helper()
	tx, err := Begin(context.Background(), e, gtypes.TxnModeReadWrite, true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

// nextRW commits tx (the version-bump-once-per-transaction bookkeeping in
// §4.7 only dedups within a single Transaction's lifetime) and opens a fresh
// read-write transaction over the same engine, so a later bump on a record
// touched by a previous transaction is observable.
func nextRW(t *testing.T, e *kv.Engine, tx *Transaction) *Transaction {
	t.Helper()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return beginRW(t, e)
}

func int32Bytes(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestAddClassAndAddVertex(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	ci, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if _, err := tx.AddProperty("Person", "name", gtypes.PropertyTypeText); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}

	rid, err := tx.AddVertex("Person", map[string][]byte{"name": []byte("Alice")})
	if err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if rid.ClassId != ci.Id {
		t.Errorf("rid.ClassId = %d, want %d", rid.ClassId, ci.Id)
	}

	rec, err := tx.FetchRecord(rid)
	if err != nil {
		t.Fatalf("FetchRecord: %v", err)
	}
	if string(rec.Properties["name"]) != "Alice" {
		t.Errorf("Properties[name] = %q, want Alice", rec.Properties["name"])
	}
	if rec.Version != 1 {
		t.Errorf("initial Version = %d, want 1", rec.Version)
	}
}

func TestAddClassRejectsInvalidNameAndDuplicate(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("@bad", "", gtypes.ClassTypeVertex); !errs.Is(err, errs.ErrInvalidClassName) {
		t.Errorf("AddClass(@bad) err = %v, want ErrInvalidClassName", err)
	}
	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); !errs.Is(err, errs.ErrDuplicateClass) {
		t.Errorf("AddClass(duplicate) err = %v, want ErrDuplicateClass", err)
	}
}

func TestAddEdgeBumpsVersionsOnce(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddClass("Knows", "", gtypes.ClassTypeEdge); err != nil {
		t.Fatalf("AddClass(Knows): %v", err)
	}
	alice, err := tx.AddVertex("Person", map[string][]byte{})
	if err != nil {
		t.Fatalf("AddVertex(alice): %v", err)
	}
	bob, err := tx.AddVertex("Person", map[string][]byte{})
	if err != nil {
		t.Fatalf("AddVertex(bob): %v", err)
	}

	// Commit the creations first: the version-bump-once bookkeeping dedups
	// within a single Transaction's lifetime, so AddEdge's endpoint bumps
	// below are only observable against a fresh transaction.
	tx = nextRW(t, e, tx)

	edge, err := tx.AddEdge("Knows", alice, bob, map[string][]byte{})
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	edgeRec, err := tx.FetchRecord(edge)
	if err != nil {
		t.Fatalf("FetchRecord(edge): %v", err)
	}
	if edgeRec.Version != 1 {
		t.Errorf("edge Version = %d, want 1", edgeRec.Version)
	}

	aliceRec, err := tx.FetchRecord(alice)
	if err != nil {
		t.Fatalf("FetchRecord(alice): %v", err)
	}
	if aliceRec.Version != 2 {
		t.Errorf("src Version after AddEdge = %d, want 2 (1 initial + 1 bump)", aliceRec.Version)
	}
	bobRec, err := tx.FetchRecord(bob)
	if err != nil {
		t.Fatalf("FetchRecord(bob): %v", err)
	}
	if bobRec.Version != 2 {
		t.Errorf("dst Version after AddEdge = %d, want 2", bobRec.Version)
	}
}

func TestAddEdgeRejectsUnknownEndpoints(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddClass("Knows", "", gtypes.ClassTypeEdge); err != nil {
		t.Fatalf("AddClass(Knows): %v", err)
	}
	alice, err := tx.AddVertex("Person", map[string][]byte{})
	if err != nil {
		t.Fatalf("AddVertex(alice): %v", err)
	}
	ghost := gtypes.RecordId{ClassId: alice.ClassId, PositionId: 999}

	if _, err := tx.AddEdge("Knows", alice, ghost, map[string][]byte{}); !errs.Is(err, errs.ErrNoexstDst) {
		t.Errorf("AddEdge(unknown dst) err = %v, want ErrNoexstDst", err)
	}
	if _, err := tx.AddEdge("Knows", ghost, alice, map[string][]byte{}); !errs.Is(err, errs.ErrNoexstSrc) {
		t.Errorf("AddEdge(unknown src) err = %v, want ErrNoexstSrc", err)
	}
}

func TestUpdateBumpsVersionAndPreservesUntouchedProperties(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if _, err := tx.AddProperty("Person", "name", gtypes.PropertyTypeText); err != nil {
		t.Fatalf("AddProperty(name): %v", err)
	}
	if _, err := tx.AddProperty("Person", "age", gtypes.PropertyTypeInteger); err != nil {
		t.Fatalf("AddProperty(age): %v", err)
	}
	rid, err := tx.AddVertex("Person", map[string][]byte{
		"name": []byte("Alice"),
		"age":  int32Bytes(30),
	})
	if err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	tx = nextRW(t, e, tx)

	if err := tx.Update(rid, map[string][]byte{"age": int32Bytes(31)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, err := tx.FetchRecord(rid)
	if err != nil {
		t.Fatalf("FetchRecord: %v", err)
	}
	if string(rec.Properties["name"]) != "Alice" {
		t.Errorf("name after partial Update = %q, want Alice (untouched)", rec.Properties["name"])
	}
	if got := int32(rec.Properties["age"][0]) | int32(rec.Properties["age"][1])<<8 | int32(rec.Properties["age"][2])<<16 | int32(rec.Properties["age"][3])<<24; got != 31 {
		t.Errorf("age after Update = %d, want 31", got)
	}
	if rec.Version != 2 {
		t.Errorf("Version after Update = %d, want 2", rec.Version)
	}
}

func TestUpdateSrcMovesAdjacencyAndBumpsThreeVersions(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddClass("Knows", "", gtypes.ClassTypeEdge); err != nil {
		t.Fatalf("AddClass(Knows): %v", err)
	}
	alice, _ := tx.AddVertex("Person", map[string][]byte{})
	bob, _ := tx.AddVertex("Person", map[string][]byte{})
	carol, _ := tx.AddVertex("Person", map[string][]byte{})
	tx = nextRW(t, e, tx)
	edge, err := tx.AddEdge("Knows", alice, bob, map[string][]byte{})
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	tx = nextRW(t, e, tx)

	if err := tx.UpdateSrc(edge, carol); err != nil {
		t.Fatalf("UpdateSrc: %v", err)
	}

	src, dst, err := tx.FetchSrcDst(edge)
	if err != nil {
		t.Fatalf("FetchSrcDst: %v", err)
	}
	if src.Rid != carol || dst.Rid != bob {
		t.Errorf("FetchSrcDst after UpdateSrc = (%v, %v), want (%v, %v)", src.Rid, dst.Rid, carol, bob)
	}

	aliceRec, _ := tx.FetchRecord(alice)
	if aliceRec.Version != 3 {
		t.Errorf("old src Version after UpdateSrc = %d, want 3 (1 initial + AddEdge bump + UpdateSrc bump)", aliceRec.Version)
	}
	carolRec, _ := tx.FetchRecord(carol)
	if carolRec.Version != 2 {
		t.Errorf("new src Version after UpdateSrc = %d, want 2", carolRec.Version)
	}
}

func TestRemoveVertexCascadesToIncidentEdges(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddClass("Knows", "", gtypes.ClassTypeEdge); err != nil {
		t.Fatalf("AddClass(Knows): %v", err)
	}
	alice, _ := tx.AddVertex("Person", map[string][]byte{})
	bob, _ := tx.AddVertex("Person", map[string][]byte{})
	tx = nextRW(t, e, tx)
	edge, err := tx.AddEdge("Knows", alice, bob, map[string][]byte{})
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	tx = nextRW(t, e, tx)

	if err := tx.Remove(alice); err != nil {
		t.Fatalf("Remove(alice): %v", err)
	}

	if _, err := tx.FetchRecord(edge); !errs.Is(err, errs.ErrNoexstRecord) {
		t.Errorf("FetchRecord(edge) after src removal = %v, want ErrNoexstRecord (cascaded away)", err)
	}
	bobRec, err := tx.FetchRecord(bob)
	if err != nil {
		t.Fatalf("FetchRecord(bob): %v", err)
	}
	if bobRec.Version != 3 {
		t.Errorf("bob Version after alice+incident-edge removal = %d, want 3 (1 initial + AddEdge bump + Remove-cascade bump)", bobRec.Version)
	}
}

func TestRemoveAllRemovesEveryRecordOfClass(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	var rids []gtypes.RecordId
	for i := 0; i < 3; i++ {
		rid, err := tx.AddVertex("Person", map[string][]byte{})
		if err != nil {
			t.Fatalf("AddVertex: %v", err)
		}
		rids = append(rids, rid)
	}

	if err := tx.RemoveAll("Person"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	for _, rid := range rids {
		if _, err := tx.FetchRecord(rid); !errs.Is(err, errs.ErrNoexstRecord) {
			t.Errorf("FetchRecord(%v) after RemoveAll = %v, want ErrNoexstRecord", rid, err)
		}
	}
}

func TestDropClassReparentsSubclasses(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Entity", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Entity): %v", err)
	}
	if _, err := tx.AddClass("Person", "Entity", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddClass("Employee", "Person", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Employee): %v", err)
	}
	if _, err := tx.AddProperty("Person", "age", gtypes.PropertyTypeInteger); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	if _, err := tx.AddVertex("Person", map[string][]byte{"age": int32Bytes(40)}); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}

	result, err := tx.DropClass("Person")
	if err != nil {
		t.Fatalf("DropClass: %v", err)
	}
	if result.RemovedRecords != 1 {
		t.Errorf("DropClass.RemovedRecords = %d, want 1", result.RemovedRecords)
	}

	employee, err := tx.GetClass("Employee")
	if err != nil {
		t.Fatalf("GetClass(Employee): %v", err)
	}
	if employee.SuperClassId == 0 {
		t.Errorf("Employee.SuperClassId = 0 after Person dropped, want re-parented to Entity")
	}
	entity, err := tx.GetClass("Entity")
	if err != nil {
		t.Fatalf("GetClass(Entity): %v", err)
	}
	if employee.SuperClassId != entity.Id {
		t.Errorf("Employee.SuperClassId = %d, want Entity.Id = %d", employee.SuperClassId, entity.Id)
	}

	if _, err := tx.GetClass("Person"); !errs.Is(err, errs.ErrNoexstClass) {
		t.Errorf("GetClass(Person) after DropClass = %v, want ErrNoexstClass", err)
	}
}

func TestDropClassRefusesWhileIndexExists(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddProperty("Person", "age", gtypes.PropertyTypeInteger); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	if _, err := tx.AddIndex("Person", "age", false); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}

	if _, err := tx.DropClass("Person"); !errs.Is(err, errs.ErrInUsedProperty) {
		t.Errorf("DropClass(indexed) err = %v, want ErrInUsedProperty", err)
	}

	if err := tx.DropIndex("Person", "age"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if _, err := tx.DropClass("Person"); err != nil {
		t.Errorf("DropClass after DropIndex: %v", err)
	}
}

func TestAddIndexBacksExistingRecordsAndDropIndexRemovesIt(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if _, err := tx.AddProperty("Person", "age", gtypes.PropertyTypeInteger); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	if _, err := tx.AddVertex("Person", map[string][]byte{"age": int32Bytes(25)}); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if _, err := tx.AddVertex("Person", map[string][]byte{"age": int32Bytes(30)}); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}

	if _, err := tx.AddIndex("Person", "age", false); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	idx, err := tx.GetIndex("Person", "age")
	if err != nil {
		t.Fatalf("GetIndex: %v", err)
	}
	if idx.Unique {
		t.Errorf("GetIndex.Unique = true, want false")
	}

	if err := tx.DropIndex("Person", "age"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if _, err := tx.GetIndex("Person", "age"); !errs.Is(err, errs.ErrNoexstIndex) {
		t.Errorf("GetIndex after DropIndex = %v, want ErrNoexstIndex", err)
	}
}

func TestDropPropertyRejectsWhenBackingAnIndex(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if _, err := tx.AddProperty("Person", "age", gtypes.PropertyTypeInteger); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	if _, err := tx.AddIndex("Person", "age", false); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	if err := tx.DropProperty("Person", "age"); !errs.Is(err, errs.ErrInUsedProperty) {
		t.Errorf("DropProperty(indexed) err = %v, want ErrInUsedProperty", err)
	}
}

func TestAddPropertyRejectsAncestorCollision(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Entity", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Entity): %v", err)
	}
	if _, err := tx.AddProperty("Entity", "name", gtypes.PropertyTypeText); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	if _, err := tx.AddClass("Person", "Entity", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddProperty("Person", "name", gtypes.PropertyTypeText); !errs.Is(err, errs.ErrOverrideProperty) {
		t.Errorf("AddProperty(name) on subclass of Entity err = %v, want ErrOverrideProperty", err)
	}
}

func TestCompletedTransactionRejectsFurtherMutation(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := tx.AddClass("Company", "", gtypes.ClassTypeVertex); !errs.Is(err, errs.ErrCompleted) {
		t.Errorf("AddClass after Commit = %v, want ErrCompleted", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback on an already-completed transaction should be a no-op, got %v", err)
	}
}

func TestReadOnlyTransactionRejectsMutation(t *testing.T) {
	e := openTestEngine(t)
	setup := beginRW(t, e)
	if _, err := setup.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := setup.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ro, err := Begin(context.Background(), e, gtypes.TxnModeReadOnly, true)
	if err != nil {
		t.Fatalf("Begin(readonly): %v", err)
	}
	t.Cleanup(func() { ro.Rollback() })

	if _, err := ro.AddVertex("Person", map[string][]byte{}); !errs.Is(err, errs.ErrInvalidMode) {
		t.Errorf("AddVertex on a read-only transaction = %v, want ErrInvalidMode", err)
	}
	if _, err := ro.GetClass("Person"); err != nil {
		t.Errorf("GetClass on a read-only transaction should still work, got %v", err)
	}
}

func TestFindBuilderFiltersByCondition(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if _, err := tx.AddProperty("Person", "age", gtypes.PropertyTypeInteger); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	if _, err := tx.AddVertex("Person", map[string][]byte{"age": int32Bytes(20)}); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if _, err := tx.AddVertex("Person", map[string][]byte{"age": int32Bytes(40)}); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}

	recs, err := tx.Find("Person").Where(filter.Gt("age", int32Bytes(30))).Get()
	if err != nil {
		t.Fatalf("Find.Get: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("Find(age>30).Get() = %v, want exactly 1 match", recs)
	}
}

func TestTraverseOutFindsNeighborsWithDepthTag(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddClass("Knows", "", gtypes.ClassTypeEdge); err != nil {
		t.Fatalf("AddClass(Knows): %v", err)
	}
	alice, _ := tx.AddVertex("Person", map[string][]byte{})
	bob, _ := tx.AddVertex("Person", map[string][]byte{})
	if _, err := tx.AddEdge("Knows", alice, bob, map[string][]byte{}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	recs, err := tx.TraverseOut(alice).Depth(1, 1).Get()
	if err != nil {
		t.Fatalf("TraverseOut.Get: %v", err)
	}
	if len(recs) != 1 || recs[0].Rid != bob {
		t.Fatalf("TraverseOut(alice) depth 1 = %v, want [bob]", recs)
	}
	if recs[0].Depth == nil || *recs[0].Depth != 1 {
		t.Errorf("result Depth = %v, want pointer to 1", recs[0].Depth)
	}
}

func TestShortestPathBuilderFindsPath(t *testing.T) {
	e := openTestEngine(t)
	tx := beginRW(t, e)

	if _, err := tx.AddClass("Person", "", gtypes.ClassTypeVertex); err != nil {
		t.Fatalf("AddClass(Person): %v", err)
	}
	if _, err := tx.AddClass("Knows", "", gtypes.ClassTypeEdge); err != nil {
		t.Fatalf("AddClass(Knows): %v", err)
	}
	alice, _ := tx.AddVertex("Person", map[string][]byte{})
	bob, _ := tx.AddVertex("Person", map[string][]byte{})
	carol, _ := tx.AddVertex("Person", map[string][]byte{})
	if _, err := tx.AddEdge("Knows", alice, bob, map[string][]byte{}); err != nil {
		t.Fatalf("AddEdge(alice,bob): %v", err)
	}
	if _, err := tx.AddEdge("Knows", bob, carol, map[string][]byte{}); err != nil {
		t.Fatalf("AddEdge(bob,carol): %v", err)
	}

	path, err := tx.ShortestPath(alice, carol).Get()
	if err != nil {
		t.Fatalf("ShortestPath.Get: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("ShortestPath(alice,carol) = %v, want 3 records (2 hops)", path)
	}
	if path[0].Rid != alice || path[2].Rid != carol {
		t.Errorf("path endpoints = (%v, %v), want (%v, %v)", path[0].Rid, path[2].Rid, alice, carol)
	}
}
