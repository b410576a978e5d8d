package semver

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRange = errors.New("semver: invalid version range")

// VersionRange is an interval over versions. A zero bound is unbounded on that
// side; the zero VersionRange matches every version.
//
// Examples (interval notation accepted by ParseRange):
// - "1.0"        >= 1.0.0
// - "[1.0]"      == 1.0.0
// - "[1.0,2.0)"  >= 1.0.0 && < 2.0.0
// - "(,2.0]"     <= 2.0.0
type VersionRange struct {
	Min          Version
	MinInclusive bool
	Max          Version
	MaxInclusive bool
}

// AnyVersion matches every version.
func AnyVersion() VersionRange {
	return VersionRange{}
}

// AtLeast matches v and everything above it, including new majors.
func AtLeast(v Version) VersionRange {
	return VersionRange{Min: v, MinInclusive: true}
}

// Exactly matches only v.
func Exactly(v Version) VersionRange {
	return VersionRange{Min: v, MinInclusive: true, Max: v, MaxInclusive: true}
}

// SafeRangeFrom returns [v, v.major.(minor+1).0): patch-level and prerelease
// increments within v's minor line, nothing from a later minor or major.
func SafeRangeFrom(v Version) VersionRange {
	return VersionRange{
		Min:          v,
		MinInclusive: true,
		Max:          v.NextMinor(),
		MaxInclusive: false,
	}
}

// Contains reports whether v lies within the bounds. It does not apply the
// prerelease policy; see Match.
func (r VersionRange) Contains(v Version) bool {
	if v.IsZero() {
		return false
	}
	if !r.Min.IsZero() {
		c := Compare(v, r.Min)
		if c < 0 || (c == 0 && !r.MinInclusive) {
			return false
		}
	}
	if !r.Max.IsZero() {
		c := Compare(v, r.Max)
		if c > 0 || (c == 0 && !r.MaxInclusive) {
			return false
		}
	}
	return true
}

// IsAny reports whether the range has no bounds at all.
func (r VersionRange) IsAny() bool {
	return r.Min.IsZero() && r.Max.IsZero()
}

// IsEmpty reports whether no version can satisfy the range.
func (r VersionRange) IsEmpty() bool {
	if r.Min.IsZero() || r.Max.IsZero() {
		return false
	}
	c := Compare(r.Min, r.Max)
	if c > 0 {
		return true
	}
	return c == 0 && !(r.MinInclusive && r.MaxInclusive)
}

// IsExact reports whether the range pins a single version.
func (r VersionRange) IsExact() bool {
	return !r.Min.IsZero() && r.MinInclusive && r.MaxInclusive && r.Min.Equal(r.Max)
}

// Intersect returns the range admitted by both r and o.
func (r VersionRange) Intersect(o VersionRange) VersionRange {
	out := r

	switch {
	case o.Min.IsZero():
	case out.Min.IsZero():
		out.Min, out.MinInclusive = o.Min, o.MinInclusive
	default:
		c := Compare(o.Min, out.Min)
		if c > 0 {
			out.Min, out.MinInclusive = o.Min, o.MinInclusive
		} else if c == 0 {
			out.MinInclusive = out.MinInclusive && o.MinInclusive
		}
	}

	switch {
	case o.Max.IsZero():
	case out.Max.IsZero():
		out.Max, out.MaxInclusive = o.Max, o.MaxInclusive
	default:
		c := Compare(o.Max, out.Max)
		if c < 0 {
			out.Max, out.MaxInclusive = o.Max, o.MaxInclusive
		} else if c == 0 {
			out.MaxInclusive = out.MaxInclusive && o.MaxInclusive
		}
	}
	return out
}

// PrettyPrint renders the range for log messages, e.g. "(>= 1.2.0 && < 1.3.0)".
func (r VersionRange) PrettyPrint() string {
	if r.IsExact() {
		return fmt.Sprintf("(= %s)", r.Min)
	}
	var parts []string
	if !r.Min.IsZero() {
		op := ">"
		if r.MinInclusive {
			op = ">="
		}
		parts = append(parts, op+" "+r.Min.String())
	}
	if !r.Max.IsZero() {
		op := "<"
		if r.MaxInclusive {
			op = "<="
		}
		parts = append(parts, op+" "+r.Max.String())
	}
	if len(parts) == 0 {
		return "(any)"
	}
	return "(" + strings.Join(parts, " && ") + ")"
}

func (r VersionRange) String() string {
	return r.PrettyPrint()
}

// Interval renders the range in the bracket notation ParseRange reads back.
// AnyVersion renders as "".
func (r VersionRange) Interval() string {
	if r.IsAny() {
		return ""
	}
	if r.IsExact() {
		return "[" + r.Min.String() + "]"
	}
	if r.Max.IsZero() && !r.Min.IsZero() && r.MinInclusive {
		return r.Min.String()
	}
	var b strings.Builder
	if r.MinInclusive && !r.Min.IsZero() {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	b.WriteString(r.Min.String())
	b.WriteString(", ")
	b.WriteString(r.Max.String())
	if r.MaxInclusive && !r.Max.IsZero() {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}

// ParseRange parses interval notation. A bare version means "at least".
// The empty string parses to AnyVersion.
func ParseRange(raw string) (VersionRange, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return AnyVersion(), nil
	}

	first, last := s[0], s[len(s)-1]
	if first != '[' && first != '(' {
		v, err := ParseVersion(s)
		if err != nil {
			return VersionRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, raw)
		}
		return AtLeast(v), nil
	}
	if last != ']' && last != ')' {
		return VersionRange{}, fmt.Errorf("%w: %q: missing closing bracket", ErrInvalidRange, raw)
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	r := VersionRange{MinInclusive: first == '[', MaxInclusive: last == ']'}

	lo, hi, hasComma := strings.Cut(inner, ",")
	if !hasComma {
		// "[1.0]" is the only single-value form.
		if first != '[' || last != ']' || inner == "" {
			return VersionRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, raw)
		}
		v, err := ParseVersion(inner)
		if err != nil {
			return VersionRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, raw)
		}
		return Exactly(v), nil
	}
	if strings.Contains(hi, ",") {
		return VersionRange{}, fmt.Errorf("%w: %q: too many bounds", ErrInvalidRange, raw)
	}

	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
	if lo == "" && hi == "" {
		return VersionRange{}, fmt.Errorf("%w: %q: no bounds", ErrInvalidRange, raw)
	}
	if lo != "" {
		v, err := ParseVersion(lo)
		if err != nil {
			return VersionRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, raw)
		}
		r.Min = v
	} else {
		r.MinInclusive = false
	}
	if hi != "" {
		v, err := ParseVersion(hi)
		if err != nil {
			return VersionRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, raw)
		}
		r.Max = v
	} else {
		r.MaxInclusive = false
	}
	return r, nil
}

func MustParseRange(raw string) VersionRange {
	r, err := ParseRange(raw)
	if err != nil {
		panic(err)
	}
	return r
}
