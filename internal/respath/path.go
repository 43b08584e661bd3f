// Package respath parses and normalizes resource locators such as
// "sales.public.orders" into paths of up to three namespace segments, and
// compiles glob segments into backend search patterns.
package respath

import (
	"fmt"
	"strings"
)

// SegmentKind classifies one segment of a locator.
type SegmentKind int

const (
	// Absent marks a role the locator did not spell out.
	Absent SegmentKind = iota
	// Empty is an explicit empty placeholder ("db..").
	Empty
	Literal
	Glob
)

func (k SegmentKind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Empty:
		return "empty"
	case Literal:
		return "literal"
	case Glob:
		return "glob"
	}
	return "unknown"
}

// Segment is one namespace level of a path.
type Segment struct {
	Name string
	Kind SegmentKind
}

// IsSet reports whether the segment names or matches something.
func (s Segment) IsSet() bool { return s.Kind == Literal || s.Kind == Glob }

// Role is the position of a segment in the namespace.
type Role int

const (
	CatalogRole Role = iota
	SchemaRole
	ObjectRole
)

func (r Role) String() string {
	switch r {
	case CatalogRole:
		return "catalog"
	case SchemaRole:
		return "schema"
	}
	return "object"
}

// Selector is the kind of resource a path designates.
type Selector int

const (
	ObjectSelector Selector = iota
	SchemaSelector
	CatalogSelector
)

func (s Selector) String() string {
	switch s {
	case SchemaSelector:
		return "schema"
	case CatalogSelector:
		return "catalog"
	}
	return "object"
}

// Path is a parsed locator. Segments are stored by role; the last Depth
// roles are the ones the locator spelled out. Path is comparable with ==.
type Path struct {
	segs  [3]Segment
	depth int
}

// NewPath builds a path from segments given outermost first. It panics when
// given more than three segments.
func NewPath(segs ...Segment) Path {
	if len(segs) > 3 {
		panic(fmt.Sprintf("respath: %d segments", len(segs)))
	}
	var p Path
	p.depth = len(segs)
	copy(p.segs[3-len(segs):], segs)
	return p
}

// Lit is a literal segment.
func Lit(name string) Segment { return Segment{Name: name, Kind: Literal} }

// Depth is the number of segments of the locator.
func (p Path) Depth() int { return p.depth }

// Segment returns the segment at role r; roles outside the depth are Absent.
func (p Path) Segment(r Role) Segment { return p.segs[r] }

func (p Path) Catalog() Segment { return p.segs[CatalogRole] }
func (p Path) Schema() Segment  { return p.segs[SchemaRole] }
func (p Path) Object() Segment  { return p.segs[ObjectRole] }

// Segments returns the spelled-out segments, outermost first.
func (p Path) Segments() []Segment {
	out := make([]Segment, p.depth)
	copy(out, p.segs[3-p.depth:])
	return out
}

// Selector classifies the path by the emptiness of its trailing segments.
func (p Path) Selector() Selector {
	obj, schema, cat := p.Object(), p.Schema(), p.Catalog()
	if !obj.IsSet() && schema.IsSet() {
		return SchemaSelector
	}
	if cat.IsSet() && !schema.IsSet() && !obj.IsSet() {
		return CatalogSelector
	}
	return ObjectSelector
}

// HasGlob reports whether any segment is a glob.
func (p Path) HasGlob() bool {
	for _, s := range p.segs {
		if s.Kind == Glob {
			return true
		}
	}
	return false
}

// Leaf returns the innermost set segment and its role.
func (p Path) Leaf() (Segment, Role, bool) {
	for r := ObjectRole; r >= CatalogRole; r-- {
		if p.segs[r].IsSet() {
			return p.segs[r], r, true
		}
	}
	return Segment{}, ObjectRole, false
}

// Parent clears the innermost set segment, turning an object path into a
// schema selector and a schema selector into a catalog selector.
func (p Path) Parent() (Path, bool) {
	_, r, ok := p.Leaf()
	// the outermost spelled segment has no parent
	if !ok || int(r) <= 3-p.depth {
		return p, false
	}
	p.segs[r] = Segment{Kind: Empty}
	return p, true
}

// Child names the first empty segment after the innermost set one.
func (p Path) Child(name string) (Path, bool) {
	_, r, ok := p.Leaf()
	next := r + 1
	if !ok {
		next = Role(3 - p.depth)
	}
	if next > ObjectRole || int(next) < 3-p.depth {
		return p, false
	}
	p.segs[next] = Lit(name)
	return p, true
}

// Sibling replaces the innermost set segment with name.
func (p Path) Sibling(name string) (Path, bool) {
	_, r, ok := p.Leaf()
	if !ok {
		return p, false
	}
	p.segs[r] = Lit(name)
	return p, true
}

// String renders the normalized locator used as cache key. Literal segments
// holding the separator, a quote or a wildcard are double-quoted.
func (p Path) String() string {
	parts := make([]string, 0, p.depth)
	for _, s := range p.Segments() {
		switch s.Kind {
		case Literal:
			if strings.ContainsAny(s.Name, `."*? `) || s.Name == "" {
				parts = append(parts, `"`+strings.ReplaceAll(s.Name, `"`, `""`)+`"`)
			} else {
				parts = append(parts, s.Name)
			}
		case Glob:
			parts = append(parts, s.Name)
		default:
			parts = append(parts, "")
		}
	}
	return strings.Join(parts, ".")
}

// AddressingError reports a malformed or too deep locator.
type AddressingError struct {
	Locator string
	Reason  string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("invalid locator %q: %s", e.Locator, e.Reason)
}
