package typemap

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Catalog is the type catalog of one connection. It is built once from the
// backend's type report and read concurrently afterwards.
type Catalog struct {
	dialect string
	entries []*Entry
	names   map[string]*Entry
	codes   map[Code]*Entry

	mu       sync.Mutex
	resolved map[string]*Entry
}

type slot struct {
	entry     *Entry
	preferred bool
}

// Build creates the catalog of dialect from the reported types. Fields the
// backend reported win over the built-in table, which fills gaps, except
// where a descriptor carries a correction for a known misreport. An empty
// report uses the built-in table alone.
func Build(dialect string, reported []ReportedType) (*Catalog, error) {
	if len(reported) == 0 {
		reported = StaticReport(dialect)
	}
	if len(reported) == 0 {
		return nil, fmt.Errorf("no types reported for dialect %q", dialect)
	}

	c := &Catalog{
		dialect:  dialect,
		names:    make(map[string]*Entry),
		codes:    make(map[Code]*Entry),
		resolved: make(map[string]*Entry),
	}
	byCanonical := make(map[string]*Entry)
	codeSlots := make(map[Code]slot)

	for _, r := range reported {
		name := normalizeName(r.Name)
		if name == "" {
			continue
		}
		d, known := lookupDescriptor(vendorTypes[dialect], name)
		if !known {
			d, known = lookupDescriptor(ansiTypes, name)
		}

		canonical := name
		if known {
			canonical = d.name
		}
		e, seen := byCanonical[canonical]
		if !seen {
			e = &Entry{Name: canonical}
			if known {
				e.Aliases = append(e.Aliases, d.aliases...)
			}
			byCanonical[canonical] = e
			c.entries = append(c.entries, e)
		}
		if name != canonical && !e.HasName(name) {
			e.Aliases = append(e.Aliases, name)
		}
		merge(e, r, d, known)

		cur, ok := codeSlots[e.Code]
		if !ok || (d.preferred && !cur.preferred) {
			codeSlots[e.Code] = slot{entry: e, preferred: known && d.preferred}
		}
	}

	for _, e := range c.entries {
		c.names[e.Name] = e
		for _, a := range e.Aliases {
			if _, taken := c.names[a]; !taken {
				c.names[a] = e
			}
		}
	}
	for code, s := range codeSlots {
		c.codes[code] = s.entry
	}
	return c, nil
}

// merge fills e from the report first, then from the descriptor.
func merge(e *Entry, r ReportedType, d descriptor, known bool) {
	pickCode := func(a, b Code) Code {
		if a != 0 {
			return a
		}
		return b
	}
	pickInt := func(a, b int) int {
		if a != 0 {
			return a
		}
		return b
	}
	pickStr := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}

	if !known {
		d = descriptor{code: CodeOther, kind: kindOfCode(r.Code)}
		if r.Code != 0 {
			d.ansi = r.Code
		}
	}
	if e.Code == 0 {
		e.Code = pickCode(r.Code, d.code)
	}
	if e.Kind == 0 {
		e.Kind = d.kind
		if !known {
			e.Kind = kindOfCode(e.Code)
		}
	}
	e.MaxPrecision = pickInt(e.MaxPrecision, pickInt(r.MaxPrecision, d.maxPrecision))
	e.DefaultPrecision = pickInt(e.DefaultPrecision, pickInt(r.DefaultPrecision, d.defaultPrecision))
	e.MinScale = pickInt(e.MinScale, r.MinScale)
	e.MaxScale = pickInt(e.MaxScale, pickInt(r.MaxScale, d.maxScale))
	e.LiteralPrefix = pickStr(e.LiteralPrefix, pickStr(r.LiteralPrefix, d.prefix))
	e.LiteralSuffix = pickStr(e.LiteralSuffix, pickStr(r.LiteralSuffix, d.suffix))
	e.Sized = e.Sized || d.sized
	e.MandatorySize = e.MandatorySize || d.mandatory
	e.Unbounded = pickStr(e.Unbounded, d.unbounded)
	e.AutoIncrement = e.AutoIncrement || r.AutoIncrement || d.autoIncrement
	if e.ANSI == 0 {
		if known {
			e.ANSI = d.ansiCode()
		} else {
			e.ANSI = e.Code
		}
	}
	if known && d.fix != nil {
		d.fix.apply(e)
	}
}

func (f *correction) apply(e *Entry) {
	if f.maxPrecision != 0 {
		e.MaxPrecision = f.maxPrecision
	}
	if f.defaultPrecision != 0 {
		e.DefaultPrecision = f.defaultPrecision
	}
	if f.maxScale != 0 {
		e.MaxScale = f.maxScale
	}
	if f.notAutoIncrement {
		e.AutoIncrement = false
	}
}

func lookupDescriptor(table []descriptor, name string) (descriptor, bool) {
	for _, d := range table {
		if d.name == name {
			return d, true
		}
	}
	for _, d := range table {
		for _, a := range d.aliases {
			if a == name {
				return d, true
			}
		}
	}
	return descriptor{}, false
}

// Dialect returns the dialect the catalog was built for.
func (c *Catalog) Dialect() string { return c.dialect }

// Entries returns the entries sorted by name.
func (c *Catalog) Entries() []*Entry {
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCode returns the preferred entry for code, walking the fallback chain
// breadth first when the backend has no type with that code.
func (c *Catalog) ByCode(code Code) (*Entry, error) {
	queue := []Code{code}
	visited := map[Code]bool{code: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if e, ok := c.codes[cur]; ok {
			return e, nil
		}
		for _, next := range fallbacks[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return nil, &UnknownTypeError{Dialect: c.dialect, Code: code}
}

// ByName resolves a declared type such as "VARCHAR(20)" or "int unsigned".
// The size is ignored. Names the backend did not report resolve through the
// ANSI table to the backend's entry for the same code.
func (c *Catalog) ByName(spec string) (*Entry, error) {
	name, _, _ := SplitSpec(spec)
	if name == "" {
		return nil, &UnknownTypeError{Dialect: c.dialect, Name: spec}
	}

	c.mu.Lock()
	e, ok := c.resolved[name]
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	e, err := c.resolve(name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.resolved[name] = e
	c.mu.Unlock()
	return e, nil
}

func (c *Catalog) resolve(name string) (*Entry, error) {
	// drop trailing modifiers one word at a time: "bigint unsigned zerofill"
	words := strings.Fields(name)
	for n := len(words); n > 0; n-- {
		candidate := strings.Join(words[:n], " ")
		if e, ok := c.names[candidate]; ok {
			return e, nil
		}
		if d, ok := lookupDescriptor(vendorTypes[c.dialect], candidate); ok {
			if e, ok := c.names[d.name]; ok {
				return e, nil
			}
		}
	}
	for n := len(words); n > 0; n-- {
		d, ok := lookupDescriptor(ansiTypes, strings.Join(words[:n], " "))
		if !ok {
			continue
		}
		if e, err := c.ByCode(d.code); err == nil {
			return e, nil
		}
		return ANSI(d.code), nil
	}
	return nil, &UnknownTypeError{Dialect: c.dialect, Name: name}
}

// ANSI returns the dialect-independent entry of code, or nil.
func ANSI(code Code) *Entry {
	for _, d := range ansiTypes {
		if d.code != code {
			continue
		}
		e := &Entry{Name: d.name}
		merge(e, ReportedType{}, d, true)
		e.Aliases = append(e.Aliases, d.aliases...)
		return e
	}
	return nil
}
