package respath

import (
	"fmt"
	"strings"
)

// Case is how a backend folds unquoted identifiers.
type Case int

const (
	CasePreserve Case = iota
	CaseUpper
	CaseLower
)

// ParseCase accepts "upper", "lower" or "preserve".
func ParseCase(s string) (Case, error) {
	switch strings.ToLower(s) {
	case "", "preserve":
		return CasePreserve, nil
	case "upper":
		return CaseUpper, nil
	case "lower":
		return CaseLower, nil
	}
	return CasePreserve, fmt.Errorf("invalid identifier case %q", s)
}

// Scheme carries the addressing conventions of one connection.
type Scheme struct {
	// Width is the number of namespace levels the backend supports (1-3).
	Width int
	// Separator defaults to ".".
	Separator string
	// Quote is the opening identifier quote; "[" closes with "]".
	Quote string
	Case  Case
	// Escape is the search-pattern escape, "" when the backend has none.
	Escape              string
	CatalogInStatements bool
	CurrentCatalog      string
	CurrentSchema       string
}

func (s Scheme) sep() string {
	if s.Separator == "" {
		return "."
	}
	return s.Separator
}

func (s Scheme) quotes() (string, string) {
	switch s.Quote {
	case "":
		return `"`, `"`
	case "[":
		return "[", "]"
	}
	return s.Quote, s.Quote
}

// Fold applies the unquoted identifier case rule.
func (s Scheme) Fold(name string) string {
	switch s.Case {
	case CaseUpper:
		return strings.ToUpper(name)
	case CaseLower:
		return strings.ToLower(name)
	}
	return name
}

// QuoteIdent quotes one identifier, doubling embedded closing quotes.
func (s Scheme) QuoteIdent(name string) string {
	lq, rq := s.quotes()
	return lq + strings.ReplaceAll(name, rq, rq+rq) + rq
}

// firstRole is the outermost role addressable at the scheme width.
func (s Scheme) firstRole() Role { return Role(3 - s.Width) }

// Parse splits a locator into segments. Quoted segments keep their exact
// text and are never globs; unquoted ones are folded.
func (s Scheme) Parse(locator string) (Path, error) {
	if s.Width < 1 || s.Width > 3 {
		return Path{}, &AddressingError{Locator: locator, Reason: fmt.Sprintf("namespace width %d", s.Width)}
	}
	if strings.TrimSpace(locator) == "" {
		return Path{}, &AddressingError{Locator: locator, Reason: "empty locator"}
	}
	raw, quoted, err := s.split(locator)
	if err != nil {
		return Path{}, &AddressingError{Locator: locator, Reason: err.Error()}
	}
	if len(raw) > s.Width {
		return Path{}, &AddressingError{Locator: locator,
			Reason: fmt.Sprintf("%d segments exceed namespace width %d", len(raw), s.Width)}
	}

	segs := make([]Segment, len(raw))
	for i, r := range raw {
		switch {
		case quoted[i]:
			segs[i] = Lit(r)
		case r == "":
			segs[i] = Segment{Kind: Empty}
		case strings.ContainsAny(r, "*?"):
			segs[i] = Segment{Name: s.Fold(r), Kind: Glob}
		default:
			segs[i] = Lit(s.Fold(r))
		}
	}
	return NewPath(segs...), nil
}

func (s Scheme) split(locator string) ([]string, []bool, error) {
	lq, rq := s.quotes()
	sep := s.sep()

	var (
		parts  []string
		quoted []bool
		cur    strings.Builder
		isQ    bool
	)
	i := 0
	for i < len(locator) {
		if cur.Len() == 0 && !isQ && strings.HasPrefix(locator[i:], lq) {
			i += len(lq)
			closed := false
			for i < len(locator) {
				if strings.HasPrefix(locator[i:], rq) {
					if strings.HasPrefix(locator[i+len(rq):], rq) {
						cur.WriteString(rq)
						i += 2 * len(rq)
						continue
					}
					i += len(rq)
					closed = true
					break
				}
				cur.WriteByte(locator[i])
				i++
			}
			if !closed {
				return nil, nil, fmt.Errorf("unterminated quoted identifier")
			}
			isQ = true
			if i < len(locator) && !strings.HasPrefix(locator[i:], sep) {
				return nil, nil, fmt.Errorf("unexpected text after quoted identifier")
			}
			continue
		}
		if strings.HasPrefix(locator[i:], sep) {
			parts = append(parts, s.trim(cur.String(), isQ))
			quoted = append(quoted, isQ)
			cur.Reset()
			isQ = false
			i += len(sep)
			continue
		}
		cur.WriteByte(locator[i])
		i++
	}
	parts = append(parts, s.trim(cur.String(), isQ))
	quoted = append(quoted, isQ)
	return parts, quoted, nil
}

func (s Scheme) trim(part string, quoted bool) string {
	if quoted {
		return part
	}
	return strings.TrimSpace(part)
}

func (s Scheme) current(r Role) Segment {
	var name string
	switch r {
	case CatalogRole:
		name = s.CurrentCatalog
	case SchemaRole:
		name = s.CurrentSchema
	default:
		return Segment{Kind: Empty}
	}
	if name == "" {
		return Segment{Kind: Empty}
	}
	return Lit(name)
}

// ToAbsolute fills the leading segments the path omits from the current
// catalog and schema.
func (s Scheme) ToAbsolute(p Path) (Path, error) {
	if p.depth > s.Width {
		return Path{}, &AddressingError{Locator: p.String(),
			Reason: fmt.Sprintf("%d segments exceed namespace width %d", p.depth, s.Width)}
	}
	for r := s.firstRole(); int(r) < 3-p.depth; r++ {
		p.segs[r] = s.current(r)
	}
	p.depth = s.Width
	return p, nil
}

// ToRelative drops leading segments equal to the current defaults, stopping
// at the first one that differs. The object segment is always kept, and
// selectors are returned unchanged.
func (s Scheme) ToRelative(p Path) Path {
	if !p.Object().IsSet() {
		return p
	}
	for r := Role(3 - p.depth); r < ObjectRole; r++ {
		seg := p.segs[r]
		if seg.Kind == Glob || seg != s.current(r) {
			break
		}
		p.segs[r] = Segment{}
		p.depth--
	}
	return p
}

// Resolve parses locator and returns its absolute form.
func (s Scheme) Resolve(locator string) (Path, error) {
	p, err := s.Parse(locator)
	if err != nil {
		return Path{}, err
	}
	return s.ToAbsolute(p)
}

// Format re-emits the path with the backend's quoting for literal segments.
func (s Scheme) Format(p Path) string {
	parts := make([]string, 0, p.depth)
	for _, seg := range p.Segments() {
		switch seg.Kind {
		case Literal:
			parts = append(parts, s.QuoteIdent(seg.Name))
		case Glob:
			parts = append(parts, seg.Name)
		default:
			parts = append(parts, "")
		}
	}
	return strings.Join(parts, s.sep())
}

// QualifiedName renders an absolute object path for use in statements. The
// catalog is dropped when the backend does not accept it in statements, and
// empty leading segments are omitted.
func (s Scheme) QualifiedName(p Path) string {
	parts := make([]string, 0, 3)
	for r := Role(3 - p.depth); r <= ObjectRole; r++ {
		seg := p.segs[r]
		if r == CatalogRole && !s.CatalogInStatements {
			continue
		}
		if seg.Kind != Literal {
			if len(parts) == 0 {
				continue
			}
			parts = append(parts, "")
			continue
		}
		parts = append(parts, s.QuoteIdent(seg.Name))
	}
	return strings.Join(parts, s.sep())
}

// Name returns the quoted object name alone.
func (s Scheme) Name(p Path) string {
	return s.QuoteIdent(p.Object().Name)
}
