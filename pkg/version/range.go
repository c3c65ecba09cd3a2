package version

import "fmt"

// Range is an OSGi version range: [Low, High) by default, with each bound's
// inclusivity independently configurable. High == nil means unbounded above.
type Range struct {
	Low           Version
	LowInclusive  bool
	High          *Version
	HighInclusive bool
}

// AtLeast returns the unbounded-above range [v, +inf).
func AtLeast(v Version) Range {
	return Range{Low: v, LowInclusive: true}
}

// Exact returns the degenerate range matching only v: [v, v].
func Exact(v Version) Range {
	return Range{Low: v, LowInclusive: true, High: &v, HighInclusive: true}
}

// InRange applies the four boundary rules from the specification.
func (r Range) InRange(v Version) bool {
	switch {
	case r.LowInclusive && v.Less(r.Low):
		return false
	case !r.LowInclusive && !v.Greater(r.Low):
		return false
	}
	if r.High == nil {
		return true
	}
	switch {
	case r.HighInclusive && v.Greater(*r.High):
		return false
	case !r.HighInclusive && !v.Less(*r.High):
		return false
	}
	return true
}

// LDAPFilter renders the range as an LDAP filter string over attr, matching
// the two-clause form used by OSGi's VersionRange.toFilterString, e.g.
// "(&(service.version>=1.2.0)(service.version<2.0.0))".
func (r Range) LDAPFilter(attr string) string {
	lowOp := ">="
	if !r.LowInclusive {
		lowOp = ">"
	}
	low := fmt.Sprintf("(%s%s%s)", attr, lowOp, r.Low.String())
	if r.High == nil {
		return low
	}
	highOp := "<"
	if r.HighInclusive {
		highOp = "<="
	}
	high := fmt.Sprintf("(%s%s%s)", attr, highOp, r.High.String())
	return fmt.Sprintf("(&%s%s)", low, high)
}

// String renders the mathematical interval notation, e.g. "[1.2,2.0)".
func (r Range) String() string {
	lowBracket := "["
	if !r.LowInclusive {
		lowBracket = "("
	}
	if r.High == nil {
		return fmt.Sprintf("%s%s,)", lowBracket, r.Low)
	}
	highBracket := ")"
	if r.HighInclusive {
		highBracket = "]"
	}
	return fmt.Sprintf("%s%s,%s%s", lowBracket, r.Low, r.High, highBracket)
}
