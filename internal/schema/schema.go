// Package schema implements the persistent schema catalog described in §4.3:
// classes, their inheritance links, per-class properties, and per-(class,
// property) index descriptors, plus the DbInfo allocator table.
//
// Grounded in original_source/src/schema_adapter.hpp's ClassAccess/
// PropertyAccess/IndexAccess and original_source/src/schema.cpp's
// SchemaUtils inheritance-aware lookups.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
	"github.com/nogdb/graphdb/internal/kv"
)

const (
	bucketClasses    = "classes"
	bucketProperties = "properties"
	bucketIndexes    = "indexes"
	bucketDbInfo     = "dbinfo"
)

const maxPropertyNameLen = gtypes.MaxPropertyNameLen

var classNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidClassName matches the implementation-fixed identifier pattern required
// by §3's Class invariants.
func ValidClassName(name string) bool {
	return name != "" && classNamePattern.MatchString(name)
}

// ValidPropertyName matches the same identifier rules and additionally
// rejects the '@' virtual-property prefix (§3's "writers must reject...").
func ValidPropertyName(name string) bool {
	if strings.HasPrefix(name, "@") {
		return false
	}
	return ValidClassName(name)
}

// ClassInfo is one row of the Classes sub-database.
type ClassInfo struct {
	Id           gtypes.ClassId
	Name         string
	SuperClassId gtypes.ClassId
	Type         gtypes.ClassType
}

// PropertyInfo is one row of the Properties sub-database.
type PropertyInfo struct {
	ClassId gtypes.ClassId
	Name    string
	Id      gtypes.PropertyId
	Type    gtypes.PropertyType
	// Inherited is true when this property was resolved from a strict
	// ancestor class rather than declared natively (I2).
	Inherited bool
}

// IndexInfo is one row of the Indexes sub-database.
type IndexInfo struct {
	Id         gtypes.IndexId
	ClassId    gtypes.ClassId
	PropertyId gtypes.PropertyId
	Unique     bool
}

// DbInfo is the small fixed-key allocator/summary table (§4.3, §6).
type DbInfo struct {
	MaxClassId    gtypes.ClassId
	NumClassId    gtypes.ClassId
	MaxPropertyId gtypes.PropertyId
	NumPropertyId gtypes.PropertyId
	MaxIndexId    gtypes.IndexId
	NumIndexId    gtypes.IndexId
}

// Catalog is the schema catalog bound to one open KV transaction.
type Catalog struct {
	tx *kv.Tx
}

// Open binds a Catalog to tx, creating the backing sub-databases if tx is writable.
func Open(tx *kv.Tx) (*Catalog, error) {
	for _, name := range []string{bucketClasses, bucketProperties, bucketIndexes, bucketDbInfo} {
		if _, err := tx.OpenBucket(name, kv.Flags{}, true); err != nil {
			return nil, err
		}
	}
	return &Catalog{tx: tx}, nil
}

func (c *Catalog) classesBucket() (*kv.Bucket, error) {
	return c.tx.OpenBucket(bucketClasses, kv.Flags{}, true)
}

func (c *Catalog) propertiesBucket() (*kv.Bucket, error) {
	return c.tx.OpenBucket(bucketProperties, kv.Flags{}, true)
}

func (c *Catalog) indexesBucket() (*kv.Bucket, error) {
	return c.tx.OpenBucket(bucketIndexes, kv.Flags{}, true)
}

func (c *Catalog) dbInfoBucket() (*kv.Bucket, error) {
	return c.tx.OpenBucket(bucketDbInfo, kv.Flags{}, true)
}

// --- class row encoding: {id:u16, superClassId:u16, type:u8} ---

func encodeClassRow(id, super gtypes.ClassId, typ gtypes.ClassType) []byte {
	buf := make([]byte, 5)
	kv.PutUint16At(buf, 0, uint16(id))
	kv.PutUint16At(buf, 2, uint16(super))
	buf[4] = byte(typ)
	return buf
}

func decodeClassRow(name string, buf []byte) ClassInfo {
	return ClassInfo{
		Id:           gtypes.ClassId(kv.Uint16At(buf, 0)),
		Name:         name,
		SuperClassId: gtypes.ClassId(kv.Uint16At(buf, 2)),
		Type:         gtypes.ClassType(buf[4]),
	}
}

// --- property key encoding: "{classId}:{name padded to fixed width}" ---

func propertyKey(classId gtypes.ClassId, name string) []byte {
	padded := name
	if len(padded) < maxPropertyNameLen {
		padded = padded + strings.Repeat(" ", maxPropertyNameLen-len(padded))
	}
	return []byte(fmt.Sprintf("%05d:%s", classId, padded))
}

func propertyPrefix(classId gtypes.ClassId) []byte {
	return []byte(fmt.Sprintf("%05d:", classId))
}

func encodePropertyRow(id gtypes.PropertyId, typ gtypes.PropertyType) []byte {
	buf := make([]byte, 3)
	kv.PutUint16At(buf, 0, uint16(id))
	buf[2] = byte(typ)
	return buf
}

func decodePropertyKey(key []byte) (gtypes.ClassId, string) {
	parts := strings.SplitN(string(key), ":", 2)
	var classId uint16
	fmt.Sscanf(parts[0], "%05d", &classId)
	return gtypes.ClassId(classId), strings.TrimRight(parts[1], " ")
}

func decodePropertyRow(classId gtypes.ClassId, name string, buf []byte) PropertyInfo {
	return PropertyInfo{
		ClassId: classId,
		Name:    name,
		Id:      gtypes.PropertyId(kv.Uint16At(buf, 0)),
		Type:    gtypes.PropertyType(buf[2]),
	}
}

// --- index key encoding: (classId<<16)|propertyId ---

func indexKey(classId gtypes.ClassId, propertyId gtypes.PropertyId) []byte {
	return kv.EncodeUint32((uint32(classId) << 16) | uint32(propertyId))
}

func encodeIndexRow(id gtypes.IndexId, unique bool) []byte {
	buf := make([]byte, 3)
	kv.PutUint16At(buf, 0, uint16(id))
	if unique {
		buf[2] = 1
	}
	return buf
}

func decodeIndexRow(classId gtypes.ClassId, propertyId gtypes.PropertyId, buf []byte) IndexInfo {
	return IndexInfo{
		Id:         gtypes.IndexId(kv.Uint16At(buf, 0)),
		ClassId:    classId,
		PropertyId: propertyId,
		Unique:     buf[2] != 0,
	}
}

// --- DbInfo ---

var dbInfoKeys = []string{"max_class_id", "num_class", "max_property_id", "num_property", "max_index_id", "num_index"}

// GetDbInfo returns the current allocator/summary values.
func (c *Catalog) GetDbInfo() (DbInfo, error) {
	b, err := c.dbInfoBucket()
	if err != nil {
		return DbInfo{}, err
	}
	get16 := func(key string) uint16 {
		v, ok := b.Get([]byte(key))
		if !ok {
			return 0
		}
		return kv.Uint16At(v, 0)
	}
	return DbInfo{
		MaxClassId:    gtypes.ClassId(get16("max_class_id")),
		NumClassId:    gtypes.ClassId(get16("num_class")),
		MaxPropertyId: gtypes.PropertyId(get16("max_property_id")),
		NumPropertyId: gtypes.PropertyId(get16("num_property")),
		MaxIndexId:    gtypes.IndexId(get16("max_index_id")),
		NumIndexId:    gtypes.IndexId(get16("num_index")),
	}, nil
}

func (c *Catalog) putDbInfo(info DbInfo) error {
	b, err := c.dbInfoBucket()
	if err != nil {
		return err
	}
	put16 := func(key string, v uint16) error {
		buf := make([]byte, 2)
		kv.PutUint16At(buf, 0, v)
		return b.Put([]byte(key), buf)
	}
	if err := put16("max_class_id", uint16(info.MaxClassId)); err != nil {
		return err
	}
	if err := put16("num_class", uint16(info.NumClassId)); err != nil {
		return err
	}
	if err := put16("max_property_id", uint16(info.MaxPropertyId)); err != nil {
		return err
	}
	if err := put16("num_property", uint16(info.NumPropertyId)); err != nil {
		return err
	}
	if err := put16("max_index_id", uint16(info.MaxIndexId)); err != nil {
		return err
	}
	return put16("num_index", uint16(info.NumIndexId))
}

const maxId = 0xFFFF

// AddClass allocates a new class id and creates the class row. superClassId
// is 0 for a root class. Validation (name uniqueness, name pattern, type)
// is the caller's responsibility, matching §4.12's "check before touching
// storage" policy.
func (c *Catalog) AddClass(name string, superClassId gtypes.ClassId, typ gtypes.ClassType) (ClassInfo, error) {
	info, err := c.GetDbInfo()
	if err != nil {
		return ClassInfo{}, err
	}
	if uint32(info.MaxClassId)+1 > maxId {
		return ClassInfo{}, errs.Wrap("schema.AddClass", errs.CategorySchema, "MAXCLASS_REACH", errs.ErrMaxClassReach)
	}
	newId := info.MaxClassId + 1

	b, err := c.classesBucket()
	if err != nil {
		return ClassInfo{}, err
	}
	if err := b.Put([]byte(name), encodeClassRow(newId, superClassId, typ)); err != nil {
		return ClassInfo{}, err
	}

	info.MaxClassId = newId
	info.NumClassId++
	if err := c.putDbInfo(info); err != nil {
		return ClassInfo{}, err
	}
	return ClassInfo{Id: newId, Name: name, SuperClassId: superClassId, Type: typ}, nil
}

// GetClassByName looks up a class row by name.
func (c *Catalog) GetClassByName(name string) (ClassInfo, bool, error) {
	b, err := c.classesBucket()
	if err != nil {
		return ClassInfo{}, false, err
	}
	v, ok := b.Get([]byte(name))
	if !ok {
		return ClassInfo{}, false, nil
	}
	return decodeClassRow(name, v), true, nil
}

// GetClassById scans for a class row by id. Classes are relatively few per
// database, so a linear scan (as the original's getExistingClass(id) does
// over ClassAccess::getAllInfos) is acceptable; the evaluator never calls
// this in a per-record hot path.
func (c *Catalog) GetClassById(id gtypes.ClassId) (ClassInfo, bool, error) {
	all, err := c.GetAllClasses()
	if err != nil {
		return ClassInfo{}, false, err
	}
	for _, ci := range all {
		if ci.Id == id {
			return ci, true, nil
		}
	}
	return ClassInfo{}, false, nil
}

// GetAllClasses returns every class row.
func (c *Catalog) GetAllClasses() ([]ClassInfo, error) {
	b, err := c.classesBucket()
	if err != nil {
		return nil, err
	}
	var out []ClassInfo
	cur := b.Cursor()
	for k, v, ok := cur.First(); ok; k, v, ok = cur.Next() {
		out = append(out, decodeClassRow(string(k), v))
	}
	return out, nil
}

// GetSubClassIds returns the ids of classes whose SuperClassId is id (direct
// subclasses only — matching getSubClassIds in schema_adapter.hpp).
func (c *Catalog) GetSubClassIds(id gtypes.ClassId) ([]gtypes.ClassId, error) {
	all, err := c.GetAllClasses()
	if err != nil {
		return nil, err
	}
	var out []gtypes.ClassId
	for _, ci := range all {
		if ci.SuperClassId == id {
			out = append(out, ci.Id)
		}
	}
	return out, nil
}

// GetSubClassInfosRecursive returns every transitive descendant of id, the
// way SchemaUtils::getSubClassInfos recurses in original_source/src/schema.cpp.
func (c *Catalog) GetSubClassInfosRecursive(id gtypes.ClassId) ([]ClassInfo, error) {
	direct, err := c.GetSubClassIds(id)
	if err != nil {
		return nil, err
	}
	var out []ClassInfo
	for _, sub := range direct {
		ci, ok, err := c.GetClassById(sub)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, ci)
		nested, err := c.GetSubClassInfosRecursive(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// RemoveClass deletes the class row. Cascade (properties, data table,
// adjacency, re-parenting subclasses) is orchestrated by the caller (txn
// package), matching §4.3's class-drop description.
func (c *Catalog) RemoveClass(name string) error {
	b, err := c.classesBucket()
	if err != nil {
		return err
	}
	return b.Delete([]byte(name))
}

// RenameClass moves a class row to a new name, preserving its id/super/type.
func (c *Catalog) RenameClass(oldName, newName string) error {
	ci, ok, err := c.GetClassByName(oldName)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap("schema.RenameClass", errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	b, err := c.classesBucket()
	if err != nil {
		return err
	}
	if err := b.Delete([]byte(oldName)); err != nil {
		return err
	}
	return b.Put([]byte(newName), encodeClassRow(ci.Id, ci.SuperClassId, ci.Type))
}

// UpdateClassSuperClass re-parents a class row (used when dropping a class:
// its direct subclasses are re-parented to its own superclass, §4.3).
func (c *Catalog) UpdateClassSuperClass(name string, newSuper gtypes.ClassId) error {
	ci, ok, err := c.GetClassByName(name)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap("schema.UpdateClassSuperClass", errs.CategorySchema, "NOEXST_CLASS", errs.ErrNoexstClass)
	}
	b, err := c.classesBucket()
	if err != nil {
		return err
	}
	return b.Put([]byte(name), encodeClassRow(ci.Id, newSuper, ci.Type))
}

// AddProperty allocates a new property id scoped to classId.
func (c *Catalog) AddProperty(classId gtypes.ClassId, name string, typ gtypes.PropertyType) (PropertyInfo, error) {
	info, err := c.GetDbInfo()
	if err != nil {
		return PropertyInfo{}, err
	}
	if uint32(info.MaxPropertyId)+1 > maxId {
		return PropertyInfo{}, errs.Wrap("schema.AddProperty", errs.CategorySchema, "MAXPROPERTY_REACH", errs.ErrMaxPropertyReach)
	}
	newId := info.MaxPropertyId + 1

	b, err := c.propertiesBucket()
	if err != nil {
		return PropertyInfo{}, err
	}
	if err := b.Put(propertyKey(classId, name), encodePropertyRow(newId, typ)); err != nil {
		return PropertyInfo{}, err
	}

	info.MaxPropertyId = newId
	info.NumPropertyId++
	if err := c.putDbInfo(info); err != nil {
		return PropertyInfo{}, err
	}
	return PropertyInfo{ClassId: classId, Name: name, Id: newId, Type: typ}, nil
}

// GetNativeProperty looks up a property declared directly on classId (no
// inheritance walk).
func (c *Catalog) GetNativeProperty(classId gtypes.ClassId, name string) (PropertyInfo, bool, error) {
	b, err := c.propertiesBucket()
	if err != nil {
		return PropertyInfo{}, false, err
	}
	v, ok := b.Get(propertyKey(classId, name))
	if !ok {
		return PropertyInfo{}, false, nil
	}
	return decodePropertyRow(classId, name, v), true, nil
}

// GetNativeProperties returns every property declared directly on classId,
// via a prefix scan over the "{classId}:" key range.
func (c *Catalog) GetNativeProperties(classId gtypes.ClassId) ([]PropertyInfo, error) {
	b, err := c.propertiesBucket()
	if err != nil {
		return nil, err
	}
	prefix := propertyPrefix(classId)
	var out []PropertyInfo
	cur := b.Cursor()
	for k, v, ok := cur.Seek(prefix); ok && strings.HasPrefix(string(k), string(prefix)); k, v, ok = cur.Next() {
		_, name := decodePropertyKey(k)
		out = append(out, decodePropertyRow(classId, name, v))
	}
	return out, nil
}

// RemoveProperty deletes a native property row.
func (c *Catalog) RemoveProperty(classId gtypes.ClassId, name string) error {
	b, err := c.propertiesBucket()
	if err != nil {
		return err
	}
	return b.Delete(propertyKey(classId, name))
}

// RenameProperty moves a property row to a new name, preserving id/type.
func (c *Catalog) RenameProperty(classId gtypes.ClassId, oldName, newName string) error {
	pi, ok, err := c.GetNativeProperty(classId, oldName)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap("schema.RenameProperty", errs.CategorySchema, "NOEXST_PROPERTY", errs.ErrNoexstProperty)
	}
	b, err := c.propertiesBucket()
	if err != nil {
		return err
	}
	if err := b.Delete(propertyKey(classId, oldName)); err != nil {
		return err
	}
	return b.Put(propertyKey(classId, newName), encodePropertyRow(pi.Id, pi.Type))
}

// GetExistingPropertyExtend walks up the superclass chain starting at
// classId and returns the first property named `name`, the way
// SchemaUtils::getExistingPropertyExtend does in original_source/src/schema.cpp.
func (c *Catalog) GetExistingPropertyExtend(classId gtypes.ClassId, name string) (PropertyInfo, bool, error) {
	cur := classId
	for cur != 0 {
		if pi, ok, err := c.GetNativeProperty(cur, name); err != nil {
			return PropertyInfo{}, false, err
		} else if ok {
			pi.Inherited = cur != classId
			return pi, true, nil
		}
		ci, ok, err := c.GetClassById(cur)
		if err != nil {
			return PropertyInfo{}, false, err
		}
		if !ok {
			break
		}
		cur = ci.SuperClassId
	}
	return PropertyInfo{}, false, nil
}

// GetPropertyNameMapInfo returns the union of native and inherited properties
// for classId, native declarations taking precedence over same-named
// ancestor declarations (there should be none, per the OVERRIDE_PROPERTY
// invariant, but native-first insertion order matches the original's map
// behavior) (I2).
func (c *Catalog) GetPropertyNameMapInfo(classId gtypes.ClassId) (map[string]PropertyInfo, error) {
	out := make(map[string]PropertyInfo)
	native, err := c.GetNativeProperties(classId)
	if err != nil {
		return nil, err
	}
	for _, p := range native {
		out[p.Name] = p
	}
	ci, ok, err := c.GetClassById(classId)
	if err != nil {
		return nil, err
	}
	if !ok || ci.SuperClassId == 0 {
		return out, nil
	}
	ancestors, err := c.GetPropertyNameMapInfo(ci.SuperClassId)
	if err != nil {
		return nil, err
	}
	for name, p := range ancestors {
		if _, exists := out[name]; !exists {
			p.Inherited = true
			out[name] = p
		}
	}
	return out, nil
}

// HasAncestorOrDescendantProperty reports whether `name` collides with a
// property defined anywhere else in classId's inheritance chain (both
// ancestors and descendants), enforcing §3's OVERRIDE_PROPERTY invariant.
func (c *Catalog) HasAncestorOrDescendantProperty(classId gtypes.ClassId, name string) (bool, error) {
	ci, ok, err := c.GetClassById(classId)
	if err != nil {
		return false, err
	}
	if ok {
		for sup := ci.SuperClassId; sup != 0; {
			if _, found, err := c.GetNativeProperty(sup, name); err != nil {
				return false, err
			} else if found {
				return true, nil
			}
			supInfo, found, err := c.GetClassById(sup)
			if err != nil {
				return false, err
			}
			if !found {
				break
			}
			sup = supInfo.SuperClassId
		}
	}
	descendants, err := c.GetSubClassInfosRecursive(classId)
	if err != nil {
		return false, err
	}
	for _, d := range descendants {
		if _, found, err := c.GetNativeProperty(d.Id, name); err != nil {
			return false, err
		} else if found {
			return true, nil
		}
	}
	return false, nil
}

// AddIndex allocates a new index id for (classId, propertyId).
func (c *Catalog) AddIndex(classId gtypes.ClassId, propertyId gtypes.PropertyId, unique bool) (IndexInfo, error) {
	info, err := c.GetDbInfo()
	if err != nil {
		return IndexInfo{}, err
	}
	if uint32(info.MaxIndexId)+1 > maxId {
		return IndexInfo{}, errs.Wrap("schema.AddIndex", errs.CategorySchema, "MAXINDEX_REACH", errs.ErrMaxIndexReach)
	}
	newId := info.MaxIndexId + 1

	b, err := c.indexesBucket()
	if err != nil {
		return IndexInfo{}, err
	}
	if err := b.Put(indexKey(classId, propertyId), encodeIndexRow(newId, unique)); err != nil {
		return IndexInfo{}, err
	}

	info.MaxIndexId = newId
	info.NumIndexId++
	if err := c.putDbInfo(info); err != nil {
		return IndexInfo{}, err
	}
	return IndexInfo{Id: newId, ClassId: classId, PropertyId: propertyId, Unique: unique}, nil
}

// GetIndex looks up the index on (classId, propertyId), if any.
func (c *Catalog) GetIndex(classId gtypes.ClassId, propertyId gtypes.PropertyId) (IndexInfo, bool, error) {
	b, err := c.indexesBucket()
	if err != nil {
		return IndexInfo{}, false, err
	}
	v, ok := b.Get(indexKey(classId, propertyId))
	if !ok {
		return IndexInfo{}, false, nil
	}
	return decodeIndexRow(classId, propertyId, v), true, nil
}

// GetIndexes returns every index defined on classId.
func (c *Catalog) GetIndexes(classId gtypes.ClassId) ([]IndexInfo, error) {
	props, err := c.GetNativeProperties(classId)
	if err != nil {
		return nil, err
	}
	var out []IndexInfo
	for _, p := range props {
		if idx, ok, err := c.GetIndex(classId, p.Id); err != nil {
			return nil, err
		} else if ok {
			out = append(out, idx)
		}
	}
	return out, nil
}

// RemoveIndex deletes the index row on (classId, propertyId).
func (c *Catalog) RemoveIndex(classId gtypes.ClassId, propertyId gtypes.PropertyId) error {
	b, err := c.indexesBucket()
	if err != nil {
		return err
	}
	info, err := c.GetDbInfo()
	if err != nil {
		return err
	}
	if err := b.Delete(indexKey(classId, propertyId)); err != nil {
		return err
	}
	if info.NumIndexId > 0 {
		info.NumIndexId--
	}
	return c.putDbInfo(info)
}

// ResolveClassFilter expands an only/ignore class-name filter (plus their
// *SubOfClasses transitive-closure variants) into one flat set of class ids,
// grounded in compare.cpp's getFilterClasses. Exposed as a first-class
// schema operation per SPEC_FULL §12.
func (c *Catalog) ResolveClassFilter(onlyClasses, onlySubOf, ignoreClasses, ignoreSubOf []string) (map[gtypes.ClassId]bool, error) {
	include := make(map[gtypes.ClassId]bool)
	exclude := make(map[gtypes.ClassId]bool)

	addWithSubclasses := func(name string, dst map[gtypes.ClassId]bool, withSub bool) error {
		ci, ok, err := c.GetClassByName(name)
		if err != nil || !ok {
			return err
		}
		dst[ci.Id] = true
		if withSub {
			subs, err := c.GetSubClassInfosRecursive(ci.Id)
			if err != nil {
				return err
			}
			for _, s := range subs {
				dst[s.Id] = true
			}
		}
		return nil
	}

	for _, n := range onlyClasses {
		if err := addWithSubclasses(n, include, false); err != nil {
			return nil, err
		}
	}
	for _, n := range onlySubOf {
		if err := addWithSubclasses(n, include, true); err != nil {
			return nil, err
		}
	}
	for _, n := range ignoreClasses {
		if err := addWithSubclasses(n, exclude, false); err != nil {
			return nil, err
		}
	}
	for _, n := range ignoreSubOf {
		if err := addWithSubclasses(n, exclude, true); err != nil {
			return nil, err
		}
	}

	if len(include) == 0 {
		all, err := c.GetAllClasses()
		if err != nil {
			return nil, err
		}
		for _, ci := range all {
			include[ci.Id] = true
		}
	}
	for id := range exclude {
		delete(include, id)
	}
	return include, nil
}
