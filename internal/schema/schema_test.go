package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/kv"
)

func openTestCatalog(t *testing.T) (*Catalog, *kv.Tx) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := kv.Open(context.Background(), path, kv.Options{})
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	tx, err := e.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })

	cat, err := Open(tx)
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	return cat, tx
}

func TestValidClassName(t *testing.T) {
	valid := []string{"Person", "_hidden", "a1", "Knows"}
	for _, n := range valid {
		if !ValidClassName(n) {
			t.Errorf("ValidClassName(%q) = false, want true", n)
		}
	}
	invalid := []string{"", "1Person", "has space", "bad-name"}
	for _, n := range invalid {
		if ValidClassName(n) {
			t.Errorf("ValidClassName(%q) = true, want false", n)
		}
	}
}

func TestValidPropertyNameRejectsVirtualPrefix(t *testing.T) {
	if ValidPropertyName("@className") {
		t.Error("ValidPropertyName should reject the '@' virtual-property prefix")
	}
	if !ValidPropertyName("name") {
		t.Error("ValidPropertyName should accept an ordinary identifier")
	}
}

func TestAddClassAllocatesIdsAndUpdatesDbInfo(t *testing.T) {
	cat, _ := openTestCatalog(t)

	person, err := cat.AddClass("Person", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if person.Id != 1 {
		t.Errorf("first class id = %d, want 1", person.Id)
	}

	knows, err := cat.AddClass("Knows", 0, gtypes.ClassTypeEdge)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if knows.Id != 2 {
		t.Errorf("second class id = %d, want 2", knows.Id)
	}

	info, err := cat.GetDbInfo()
	if err != nil {
		t.Fatalf("GetDbInfo: %v", err)
	}
	if info.NumClassId != 2 || info.MaxClassId != 2 {
		t.Errorf("DbInfo = %+v, want NumClassId=2 MaxClassId=2", info)
	}
}

func TestGetClassByNameAndById(t *testing.T) {
	cat, _ := openTestCatalog(t)
	created, err := cat.AddClass("Person", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	byName, ok, err := cat.GetClassByName("Person")
	if err != nil || !ok {
		t.Fatalf("GetClassByName = (%v, %v, %v)", byName, ok, err)
	}
	if byName != created {
		t.Errorf("GetClassByName = %+v, want %+v", byName, created)
	}

	byId, ok, err := cat.GetClassById(created.Id)
	if err != nil || !ok {
		t.Fatalf("GetClassById = (%v, %v, %v)", byId, ok, err)
	}
	if byId != created {
		t.Errorf("GetClassById = %+v, want %+v", byId, created)
	}

	_, ok, err = cat.GetClassByName("Nope")
	if err != nil || ok {
		t.Errorf("GetClassByName(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestSubClassHierarchy(t *testing.T) {
	cat, _ := openTestCatalog(t)
	base, err := cat.AddClass("Animal", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	dog, err := cat.AddClass("Dog", base.Id, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	puppy, err := cat.AddClass("Puppy", dog.Id, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	direct, err := cat.GetSubClassIds(base.Id)
	if err != nil {
		t.Fatalf("GetSubClassIds: %v", err)
	}
	if len(direct) != 1 || direct[0] != dog.Id {
		t.Errorf("direct subclasses of Animal = %v, want [%d]", direct, dog.Id)
	}

	all, err := cat.GetSubClassInfosRecursive(base.Id)
	if err != nil {
		t.Fatalf("GetSubClassInfosRecursive: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("recursive subclasses of Animal = %d, want 2", len(all))
	}
	ids := map[gtypes.ClassId]bool{all[0].Id: true, all[1].Id: true}
	if !ids[dog.Id] || !ids[puppy.Id] {
		t.Errorf("recursive subclasses = %v, want to include Dog and Puppy", all)
	}
}

func TestAddPropertyAndInheritanceLookup(t *testing.T) {
	cat, _ := openTestCatalog(t)
	base, err := cat.AddClass("Animal", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	dog, err := cat.AddClass("Dog", base.Id, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	if _, err := cat.AddProperty(base.Id, "name", gtypes.PropertyTypeText); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	if _, err := cat.AddProperty(dog.Id, "breed", gtypes.PropertyTypeText); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}

	pi, ok, err := cat.GetExistingPropertyExtend(dog.Id, "name")
	if err != nil || !ok {
		t.Fatalf("GetExistingPropertyExtend(name) = (%v, %v, %v)", pi, ok, err)
	}
	if !pi.Inherited {
		t.Error("property resolved from an ancestor class should be marked Inherited")
	}

	pi, ok, err = cat.GetExistingPropertyExtend(dog.Id, "breed")
	if err != nil || !ok {
		t.Fatalf("GetExistingPropertyExtend(breed) = (%v, %v, %v)", pi, ok, err)
	}
	if pi.Inherited {
		t.Error("a natively declared property should not be marked Inherited")
	}

	merged, err := cat.GetPropertyNameMapInfo(dog.Id)
	if err != nil {
		t.Fatalf("GetPropertyNameMapInfo: %v", err)
	}
	if _, ok := merged["name"]; !ok {
		t.Error("merged property map should include the inherited 'name' property")
	}
	if _, ok := merged["breed"]; !ok {
		t.Error("merged property map should include the native 'breed' property")
	}
}

func TestHasAncestorOrDescendantPropertyDetectsCollision(t *testing.T) {
	cat, _ := openTestCatalog(t)
	base, err := cat.AddClass("Animal", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	dog, err := cat.AddClass("Dog", base.Id, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if _, err := cat.AddProperty(base.Id, "name", gtypes.PropertyTypeText); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}

	collides, err := cat.HasAncestorOrDescendantProperty(dog.Id, "name")
	if err != nil {
		t.Fatalf("HasAncestorOrDescendantProperty: %v", err)
	}
	if !collides {
		t.Error("declaring 'name' on Dog should collide with Animal's ancestor property")
	}

	collides, err = cat.HasAncestorOrDescendantProperty(dog.Id, "unused")
	if err != nil {
		t.Fatalf("HasAncestorOrDescendantProperty: %v", err)
	}
	if collides {
		t.Error("an unrelated property name should not collide")
	}
}

func TestAddIndexAndResolveClassFilter(t *testing.T) {
	cat, _ := openTestCatalog(t)
	person, err := cat.AddClass("Person", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	company, err := cat.AddClass("Company", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	nameProp, err := cat.AddProperty(person.Id, "name", gtypes.PropertyTypeText)
	if err != nil {
		t.Fatalf("AddProperty: %v", err)
	}

	idx, err := cat.AddIndex(person.Id, nameProp.Id, true)
	if err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	if !idx.Unique {
		t.Error("AddIndex(unique=true) should produce a unique index")
	}

	got, ok, err := cat.GetIndex(person.Id, nameProp.Id)
	if err != nil || !ok || got != idx {
		t.Errorf("GetIndex = (%+v, %v, %v), want (%+v, true, nil)", got, ok, err, idx)
	}

	filtered, err := cat.ResolveClassFilter([]string{"Person"}, nil, nil, nil)
	if err != nil {
		t.Fatalf("ResolveClassFilter: %v", err)
	}
	if !filtered[person.Id] || filtered[company.Id] {
		t.Errorf("ResolveClassFilter(only=[Person]) = %v, want only Person included", filtered)
	}

	filtered, err = cat.ResolveClassFilter(nil, nil, []string{"Company"}, nil)
	if err != nil {
		t.Fatalf("ResolveClassFilter: %v", err)
	}
	if !filtered[person.Id] || filtered[company.Id] {
		t.Errorf("ResolveClassFilter(ignore=[Company]) = %v, want Person included, Company excluded", filtered)
	}
}

func TestRenameClassPreservesIdentity(t *testing.T) {
	cat, _ := openTestCatalog(t)
	person, err := cat.AddClass("Person", 0, gtypes.ClassTypeVertex)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := cat.RenameClass("Person", "Human"); err != nil {
		t.Fatalf("RenameClass: %v", err)
	}
	renamed, ok, err := cat.GetClassByName("Human")
	if err != nil || !ok {
		t.Fatalf("GetClassByName(Human) = (%v, %v, %v)", renamed, ok, err)
	}
	if renamed.Id != person.Id || renamed.Type != person.Type {
		t.Errorf("RenameClass changed id/type: got %+v, want id=%d type=%v", renamed, person.Id, person.Type)
	}
	if _, ok, _ := cat.GetClassByName("Person"); ok {
		t.Error("old class name should no longer resolve after rename")
	}
}
