package gtypes

import "testing"

func TestClassTypeString(t *testing.T) {
	cases := map[ClassType]string{
		ClassTypeVertex:    "VERTEX",
		ClassTypeEdge:      "EDGE",
		ClassTypeUndefined: "UNDEFINED",
	}
	for ct, want := range cases {
		if got := ct.String(); got != want {
			t.Errorf("ClassType(%d).String() = %q, want %q", ct, got, want)
		}
	}
}

func TestPropertyTypeString(t *testing.T) {
	cases := map[PropertyType]string{
		PropertyTypeInteger: "INTEGER",
		PropertyTypeText:    "TEXT",
		PropertyTypeBlob:    "BLOB",
		PropertyType(200):   "UNDEFINED",
	}
	for pt, want := range cases {
		if got := pt.String(); got != want {
			t.Errorf("PropertyType(%d).String() = %q, want %q", pt, got, want)
		}
	}
}

func TestPropertyTypeIsNumeric(t *testing.T) {
	numeric := []PropertyType{
		PropertyTypeTinyint, PropertyTypeUnsignedTinyint,
		PropertyTypeSmallint, PropertyTypeUnsignedSmallint,
		PropertyTypeInteger, PropertyTypeUnsignedInteger,
		PropertyTypeBigint, PropertyTypeUnsignedBigint,
		PropertyTypeReal,
	}
	for _, pt := range numeric {
		if !pt.IsNumeric() {
			t.Errorf("%v.IsNumeric() = false, want true", pt)
		}
	}
	nonNumeric := []PropertyType{PropertyTypeText, PropertyTypeBlob, PropertyTypeUndefined}
	for _, pt := range nonNumeric {
		if pt.IsNumeric() {
			t.Errorf("%v.IsNumeric() = true, want false", pt)
		}
	}
}

func TestPropertyTypeIsSigned(t *testing.T) {
	signed := []PropertyType{PropertyTypeTinyint, PropertyTypeSmallint, PropertyTypeInteger, PropertyTypeBigint, PropertyTypeReal}
	for _, pt := range signed {
		if !pt.IsSigned() {
			t.Errorf("%v.IsSigned() = false, want true", pt)
		}
	}
	unsigned := []PropertyType{PropertyTypeUnsignedTinyint, PropertyTypeUnsignedSmallint, PropertyTypeUnsignedInteger, PropertyTypeUnsignedBigint, PropertyTypeText}
	for _, pt := range unsigned {
		if pt.IsSigned() {
			t.Errorf("%v.IsSigned() = true, want false", pt)
		}
	}
}

func TestPropertyTypeIndexable(t *testing.T) {
	if PropertyTypeBlob.Indexable() {
		t.Error("BLOB should not be indexable")
	}
	if PropertyTypeUndefined.Indexable() {
		t.Error("UNDEFINED should not be indexable")
	}
	if !PropertyTypeInteger.Indexable() {
		t.Error("INTEGER should be indexable")
	}
	if !PropertyTypeText.Indexable() {
		t.Error("TEXT should be indexable")
	}
}

func TestRecordIdLessAndZero(t *testing.T) {
	a := RecordId{ClassId: 1, PositionId: 5}
	b := RecordId{ClassId: 1, PositionId: 6}
	c := RecordId{ClassId: 2, PositionId: 0}

	if !a.Less(b) {
		t.Error("a should be less than b (same class, lower position)")
	}
	if b.Less(a) {
		t.Error("b should not be less than a")
	}
	if !b.Less(c) {
		t.Error("b should be less than c (lower class id)")
	}

	if a.IsZero() {
		t.Error("a is non-zero")
	}
	if !(RecordId{}).IsZero() {
		t.Error("zero-value RecordId should report IsZero() == true")
	}
}

func TestRecordIdString(t *testing.T) {
	r := RecordId{ClassId: 3, PositionId: 42}
	if got, want := r.String(), "3:42"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
