// Package filter implements the Condition model described in §4.9: a single
// Condition predicate, the MultiCondition boolean AST, and GraphFilter
// (condition + class include/exclude + subclass expansion).
//
// Grounded in original_source/src/compare.cpp/.hpp's genericCompareFunc and
// RecordCompare, and original_source/src/multi_condition.cpp's CompositeNode
// short-circuit evaluation.
package filter

import (
	"bytes"
	"math"
	"regexp"
	"strings"

	"github.com/nogdb/graphdb/internal/errs"
	"github.com/nogdb/graphdb/internal/gtypes"
)

// Condition is a single predicate against one named property.
type Condition struct {
	Property   string
	Comparator gtypes.Comparator
	Value      []byte   // single-value comparators
	ValueSet   [][]byte // BETWEEN (2 values) / IN (n values)
	IgnoreCase bool
	Negative   bool
}

// Not returns a negated copy of c (operator! in the original).
func (c Condition) Not() Condition {
	c.Negative = !c.Negative
	return c
}

// Eq builds an EQUAL condition.
func Eq(property string, value []byte) Condition {
	return Condition{Property: property, Comparator: gtypes.CompareEqual, Value: value}
}

// Gt builds a GREATER condition.
func Gt(property string, value []byte) Condition {
	return Condition{Property: property, Comparator: gtypes.CompareGreater, Value: value}
}

// valueAsFloat decodes raw little-endian bytes according to typ into a
// float64 for ordered numeric comparison.
func valueAsFloat(typ gtypes.PropertyType, raw []byte) float64 {
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

// genericCompare implements the per-PropertyType comparator switch described
// in compare.hpp's genericCompareFunc: numeric types compare by decoded
// value; TEXT supports substring/LIKE/REGEX/lexicographic comparators with
// optional case-folding; BLOB supports only EQUAL via raw byte comparison.
func genericCompare(typ gtypes.PropertyType, recordValue []byte, cmp gtypes.Comparator, value []byte, valueSet [][]byte, ignoreCase bool) (bool, error) {
	if typ.IsNumeric() {
		return numericCompare(typ, recordValue, cmp, value, valueSet)
	}
	if typ == gtypes.PropertyTypeText {
		return textCompare(recordValue, cmp, value, valueSet, ignoreCase)
	}
	if typ == gtypes.PropertyTypeBlob {
		if cmp == gtypes.CompareEqual {
			return bytes.Equal(recordValue, value), nil
		}
		return false, errs.Wrap("filter.genericCompare", errs.CategorySchema, "INVALID_COMPARATOR", errs.ErrInvalidComparator)
	}
	return false, errs.Wrap("filter.genericCompare", errs.CategorySchema, "INVALID_PROPTYPE", errs.ErrInvalidPropType)
}

func numericCompare(typ gtypes.PropertyType, recordValue []byte, cmp gtypes.Comparator, value []byte, valueSet [][]byte) (bool, error) {
	rv := valueAsFloat(typ, recordValue)
	switch cmp {
	case gtypes.CompareEqual:
		return rv == valueAsFloat(typ, value), nil
	case gtypes.CompareGreater:
		return rv > valueAsFloat(typ, value), nil
	case gtypes.CompareGreaterEqual:
		return rv >= valueAsFloat(typ, value), nil
	case gtypes.CompareLess:
		return rv < valueAsFloat(typ, value), nil
	case gtypes.CompareLessEqual:
		return rv <= valueAsFloat(typ, value), nil
	case gtypes.CompareIn:
		for _, v := range valueSet {
			if rv == valueAsFloat(typ, v) {
				return true, nil
			}
		}
		return false, nil
	case gtypes.CompareBetween, gtypes.CompareBetweenNoUpper, gtypes.CompareBetweenNoLower, gtypes.CompareBetweenNoBound:
		if len(valueSet) != 2 {
			return false, errs.Wrap("filter.numericCompare", errs.CategorySchema, "INVALID_COMPARATOR", errs.ErrInvalidComparator)
		}
		lower, upper := valueAsFloat(typ, valueSet[0]), valueAsFloat(typ, valueSet[1])
		lowOk := rv > lower
		highOk := rv < upper
		if cmp == gtypes.CompareBetween || cmp == gtypes.CompareBetweenNoUpper {
			lowOk = lowOk || rv == lower
		}
		if cmp == gtypes.CompareBetween || cmp == gtypes.CompareBetweenNoLower {
			highOk = highOk || rv == upper
		}
		return lowOk && highOk, nil
	default:
		return false, errs.Wrap("filter.numericCompare", errs.CategorySchema, "INVALID_COMPARATOR", errs.ErrInvalidComparator)
	}
}

func fold(s string, ignoreCase bool) string {
	if ignoreCase {
		return strings.ToLower(s)
	}
	return s
}

func textCompare(recordValue []byte, cmp gtypes.Comparator, value []byte, valueSet [][]byte, ignoreCase bool) (bool, error) {
	rv := fold(string(recordValue), ignoreCase)
	v := fold(string(value), ignoreCase)
	switch cmp {
	case gtypes.CompareEqual:
		return rv == v, nil
	case gtypes.CompareGreater:
		return rv > v, nil
	case gtypes.CompareGreaterEqual:
		return rv >= v, nil
	case gtypes.CompareLess:
		return rv < v, nil
	case gtypes.CompareLessEqual:
		return rv <= v, nil
	case gtypes.CompareContain:
		return strings.Contains(rv, v), nil
	case gtypes.CompareBeginWith:
		return strings.HasPrefix(rv, v), nil
	case gtypes.CompareEndWith:
		return strings.HasSuffix(rv, v), nil
	case gtypes.CompareLike:
		pattern := likeToRegex(v)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, errs.Wrap("filter.textCompare", errs.CategorySchema, "INVALID_COMPARATOR", errs.ErrInvalidComparator)
		}
		return re.MatchString(rv), nil
	case gtypes.CompareRegex:
		re, err := regexp.Compile(v)
		if err != nil {
			return false, errs.Wrap("filter.textCompare", errs.CategorySchema, "INVALID_COMPARATOR", errs.ErrInvalidComparator)
		}
		return re.MatchString(rv), nil
	case gtypes.CompareIn:
		for _, item := range valueSet {
			if rv == fold(string(item), ignoreCase) {
				return true, nil
			}
		}
		return false, nil
	case gtypes.CompareBetween, gtypes.CompareBetweenNoUpper, gtypes.CompareBetweenNoLower, gtypes.CompareBetweenNoBound:
		if len(valueSet) != 2 {
			return false, errs.Wrap("filter.textCompare", errs.CategorySchema, "INVALID_COMPARATOR", errs.ErrInvalidComparator)
		}
		lower, upper := fold(string(valueSet[0]), ignoreCase), fold(string(valueSet[1]), ignoreCase)
		lowOk := rv > lower
		highOk := rv < upper
		if cmp == gtypes.CompareBetween || cmp == gtypes.CompareBetweenNoUpper {
			lowOk = lowOk || rv == lower
		}
		if cmp == gtypes.CompareBetween || cmp == gtypes.CompareBetweenNoLower {
			highOk = highOk || rv == upper
		}
		return lowOk && highOk, nil
	default:
		return false, errs.Wrap("filter.textCompare", errs.CategorySchema, "INVALID_COMPARATOR", errs.ErrInvalidComparator)
	}
}

// likeToRegex translates a SQL-style LIKE pattern ('%' -> '.*', '_' -> '.')
// into an anchored regex, matching compare.cpp's substitution before
// regex_match.
func likeToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// CheckCondition evaluates c against a decoded record (property name ->
// raw value bytes) given the property's declared type. IS_NULL/NOT_NULL
// test presence directly; absence of the property for other comparators
// returns false (not an error) — matching compare.cpp's heterogeneous-edge
// tolerance.
func CheckCondition(c Condition, record map[string][]byte, typ gtypes.PropertyType, typeKnown bool) (bool, error) {
	raw, present := record[c.Property]

	if c.Comparator == gtypes.CompareIsNull {
		return (!present || len(raw) == 0) != c.Negative, nil
	}
	if c.Comparator == gtypes.CompareNotNull {
		return (present && len(raw) > 0) != c.Negative, nil
	}
	if !present || len(raw) == 0 {
		return false, nil
	}
	if !typeKnown {
		return false, nil
	}
	result, err := genericCompare(typ, raw, c.Comparator, c.Value, c.ValueSet, c.IgnoreCase)
	if err != nil {
		return false, err
	}
	return result != c.Negative, nil
}

// CmpFunction is a plain record-predicate callback leaf, as MultiCondition
// allows alongside Condition leaves.
type CmpFunction func(record map[string][]byte) bool

// Node is a tagged variant over the expression tree: a Condition leaf, a
// CmpFunction leaf, or a Composite — per DESIGN NOTES §9's "polymorphic
// condition AST... implement as a tagged variant, not a class hierarchy".
type Node struct {
	Condition *Condition
	CmpFunc   CmpFunction
	Composite *Composite
}

// Composite is an AND/OR node with a per-node negation bit.
type Composite struct {
	Op       BoolOp
	Left     Node
	Right    Node
	Negative bool
}

// BoolOp is AND or OR.
type BoolOp uint8

const (
	OpAnd BoolOp = iota
	OpOr
)

// MultiCondition is the root of a boolean AST over Condition/CmpFunction leaves.
type MultiCondition struct {
	Root Node
}

// And combines two nodes under AND.
func And(left, right Node) MultiCondition {
	return MultiCondition{Root: Node{Composite: &Composite{Op: OpAnd, Left: left, Right: right}}}
}

// Or combines two nodes under OR.
func Or(left, right Node) MultiCondition {
	return MultiCondition{Root: Node{Composite: &Composite{Op: OpOr, Left: left, Right: right}}}
}

// ConditionNode wraps a Condition as a leaf Node.
func ConditionNode(c Condition) Node { return Node{Condition: &c} }

// CmpFunctionNode wraps a predicate callback as a leaf Node.
func CmpFunctionNode(fn CmpFunction) Node { return Node{CmpFunc: fn} }

// Not negates the root of mc (negation flips only at the root, matching
// multi_condition.cpp's operator!).
func (mc MultiCondition) Not() MultiCondition {
	if mc.Root.Composite != nil {
		c := *mc.Root.Composite
		c.Negative = !c.Negative
		mc.Root.Composite = &c
	}
	return mc
}

// typeResolver looks up a property's declared type by name, used to decode
// record bytes for comparison; ok is false if the property type is unknown
// to this record's class (heterogeneous-edge tolerance, compare.cpp).
type TypeResolver func(name string) (gtypes.PropertyType, bool)

// Check evaluates mc against record, matching CompositeNode::check()'s
// short-circuit-preferring-right-child-when-leaf logic and per-node
// isNegative XOR (multi_condition.cpp).
func (mc MultiCondition) Check(record map[string][]byte, resolve TypeResolver) (bool, error) {
	return checkNode(mc.Root, record, resolve)
}

func checkNode(n Node, record map[string][]byte, resolve TypeResolver) (bool, error) {
	switch {
	case n.Condition != nil:
		typ, ok := resolve(n.Condition.Property)
		return CheckCondition(*n.Condition, record, typ, ok)
	case n.CmpFunc != nil:
		return n.CmpFunc(record), nil
	case n.Composite != nil:
		return checkComposite(*n.Composite, record, resolve)
	default:
		return false, nil
	}
}

// checkComposite evaluates right-first when the right child is a leaf
// (Condition or CmpFunction), enabling short-circuit on the cheaper check
// first — matching the original's preference order.
func checkComposite(c Composite, record map[string][]byte, resolve TypeResolver) (bool, error) {
	rightIsLeaf := c.Right.Composite == nil
	first, second := c.Left, c.Right
	if rightIsLeaf {
		first, second = c.Right, c.Left
	}

	fv, err := checkNode(first, record, resolve)
	if err != nil {
		return false, err
	}
	if c.Op == OpAnd && !fv {
		return false != c.Negative, nil
	}
	if c.Op == OpOr && fv {
		return true != c.Negative, nil
	}
	sv, err := checkNode(second, record, resolve)
	if err != nil {
		return false, err
	}
	var result bool
	if c.Op == OpAnd {
		result = fv && sv
	} else {
		result = fv || sv
	}
	return result != c.Negative, nil
}

// ForEachCondition visits every Condition leaf in mc, used by the query
// planner (§4.10) to decide indexability.
func (mc MultiCondition) ForEachCondition(visit func(Condition)) bool {
	return forEachConditionNode(mc.Root, visit)
}

// forEachConditionNode returns false if a CmpFunction leaf is encountered
// (disqualifying the tree from index-only evaluation per §4.10).
func forEachConditionNode(n Node, visit func(Condition)) bool {
	switch {
	case n.Condition != nil:
		visit(*n.Condition)
		return true
	case n.CmpFunc != nil:
		return false
	case n.Composite != nil:
		return forEachConditionNode(n.Composite.Left, visit) && forEachConditionNode(n.Composite.Right, visit)
	default:
		return true
	}
}
