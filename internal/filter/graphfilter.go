package filter

import "github.com/nogdb/graphdb/internal/gtypes"

// GraphFilter combines a Condition or MultiCondition or a raw predicate
// callback with class include/exclude sets (§4.9). Expansion of the
// *SubOfClasses variants into the transitive closure of subclasses is
// delegated to the schema catalog's ResolveClassFilter (SPEC_FULL §12).
type GraphFilter struct {
	Condition      *Condition
	MultiCondition *MultiCondition
	Predicate      CmpFunction

	OnlyClasses      []string
	OnlySubClassOf   []string
	IgnoreClasses    []string
	IgnoreSubClassOf []string
}

// ClassAllowed reports whether classId passes the filter's resolved class set.
func (gf GraphFilter) ClassAllowed(classId gtypes.ClassId, resolved map[gtypes.ClassId]bool) bool {
	if resolved == nil {
		return true
	}
	return resolved[classId]
}

// CheckRecord applies whichever predicate form gf carries to record.
func (gf GraphFilter) CheckRecord(record map[string][]byte, resolve TypeResolver) (bool, error) {
	switch {
	case gf.Condition != nil:
		typ, ok := resolve(gf.Condition.Property)
		return CheckCondition(*gf.Condition, record, typ, ok)
	case gf.MultiCondition != nil:
		return gf.MultiCondition.Check(record, resolve)
	case gf.Predicate != nil:
		return gf.Predicate(record), nil
	default:
		return true, nil
	}
}
