package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/johndauphine/tabxfer/internal/respath"
)

// Kind is the closed set of resource kinds.
type Kind int

const (
	KindTable Kind = iota
	KindView
	KindSchema
	KindCatalog
	KindScript
	KindResultSet
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindView:
		return "view"
	case KindSchema:
		return "schema"
	case KindCatalog:
		return "catalog"
	case KindScript:
		return "script"
	case KindResultSet:
		return "result-set"
	}
	return "unknown"
}

// IsContainer reports whether resources of kind k hold children.
func (k Kind) IsContainer() bool { return k == KindSchema || k == KindCatalog }

// Resource is an addressable table, view, schema, catalog, query or result
// set. Kind-specific fields are checked by the constructors.
type Resource struct {
	Kind Kind
	// Path is absolute; scripts and result sets have a zero path.
	Path respath.Path
	// Conn names the connection the resource belongs to.
	Conn string
	// Query is the text of a script resource.
	Query string

	mu       sync.Mutex
	relation *Relation
	children []*Resource
	loaded   bool
}

// NewTable creates a table or view resource; path must name an object.
func NewTable(conn string, path respath.Path, view bool) (*Resource, error) {
	if path.Selector() != respath.ObjectSelector || path.Object().Kind != respath.Literal {
		return nil, fmt.Errorf("%s is not an object path", path)
	}
	kind := KindTable
	if view {
		kind = KindView
	}
	return &Resource{Kind: kind, Path: path, Conn: conn}, nil
}

// NewContainer creates a schema or catalog resource from a selector path.
func NewContainer(conn string, path respath.Path) (*Resource, error) {
	switch path.Selector() {
	case respath.SchemaSelector:
		return &Resource{Kind: KindSchema, Path: path, Conn: conn}, nil
	case respath.CatalogSelector:
		return &Resource{Kind: KindCatalog, Path: path, Conn: conn}, nil
	}
	return nil, fmt.Errorf("%s is not a schema or catalog path", path)
}

// NewScript creates a resource for ad-hoc query text.
func NewScript(conn, query string) (*Resource, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimRight(q, ";")
	if q == "" {
		return nil, errors.New("script resource needs query text")
	}
	return &Resource{Kind: KindScript, Conn: conn, Query: q}, nil
}

// NewResultSet wraps a relation detected from a query's output.
func NewResultSet(conn string, rel *Relation) *Resource {
	return &Resource{Kind: KindResultSet, Conn: conn, relation: rel}
}

// Name is the innermost name of the resource.
func (r *Resource) Name() string {
	if seg, _, ok := r.Path.Leaf(); ok {
		return seg.Name
	}
	return ""
}

// Relation returns the cached relation, if loaded.
func (r *Resource) Relation() (*Relation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relation, r.relation != nil
}

// SetRelation attaches the relation of a non-container resource.
func (r *Resource) SetRelation(rel *Relation) error {
	if r.Kind.IsContainer() {
		return fmt.Errorf("%s %s cannot own a relation", r.Kind, r.Path)
	}
	r.mu.Lock()
	r.relation = rel
	r.mu.Unlock()
	return nil
}

// Children returns the loaded children of a container.
func (r *Resource) Children() ([]*Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.children, r.loaded
}

// SetChildren records the children of a container.
func (r *Resource) SetChildren(children []*Resource) error {
	if !r.Kind.IsContainer() {
		return fmt.Errorf("%s %s cannot hold children", r.Kind, r.Path)
	}
	r.mu.Lock()
	r.children = children
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// ResetChildren forgets loaded children so they are listed again.
func (r *Resource) ResetChildren() {
	r.mu.Lock()
	r.children, r.loaded = nil, false
	r.mu.Unlock()
}

func (r *Resource) String() string {
	var s string
	switch r.Kind {
	case KindScript:
		s = "(" + r.Query + ")"
	case KindResultSet:
		s = "result set"
	default:
		s = r.Path.String()
	}
	if r.Conn != "" {
		return s + "@" + r.Conn
	}
	return s
}
