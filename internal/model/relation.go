// Package model holds the vendor-neutral description of addressable
// resources and the column and key structure they own.
package model

import (
	"fmt"
	"strings"

	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/typemap"
)

// Column is one column of a relation.
type Column struct {
	Name string
	// Type is the catalog entry of the declared type.
	Type *typemap.Entry
	// DeclaredType is the type text as introspected, e.g. "varchar(20)".
	DeclaredType  string
	Precision     int
	Scale         int
	Nullable      bool
	AutoIncrement bool
	Generated     bool
}

// Key is a primary or unique key.
type Key struct {
	Name    string
	Columns []string
}

// ForeignKey references the primary key of another relation.
type ForeignKey struct {
	Name       string
	Columns    []string
	Referenced respath.Path
	RefColumns []string
}

// Relation is the column and key structure of a table, view or query.
type Relation struct {
	// Path is the absolute path of the owning resource.
	Path        respath.Path
	Columns     []Column
	PrimaryKey  *Key
	UniqueKeys  []Key
	ForeignKeys []ForeignKey
}

// Name returns the object name of the relation.
func (r *Relation) Name() string { return r.Path.Object().Name }

// Column finds a column by exact name, then case-insensitively.
func (r *Relation) Column(name string) (*Column, bool) {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i], true
		}
	}
	for i := range r.Columns {
		if strings.EqualFold(r.Columns[i].Name, name) {
			return &r.Columns[i], true
		}
	}
	return nil, false
}

// HasColumns reports whether every name is a column of r.
func (r *Relation) HasColumns(names []string) bool {
	for _, n := range names {
		if _, ok := r.Column(n); !ok {
			return false
		}
	}
	return true
}

// ColumnNames returns the column names in order.
func (r *Relation) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// IsPrimaryKeyColumn reports whether name belongs to the primary key.
func (r *Relation) IsPrimaryKeyColumn(name string) bool {
	if r.PrimaryKey == nil {
		return false
	}
	for _, c := range r.PrimaryKey.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// AddForeignKey appends fk after checking it against the referenced
// relation's primary key. RefColumns default to that key's columns.
func (r *Relation) AddForeignKey(fk ForeignKey, ref *Relation) error {
	if ref == nil || ref.PrimaryKey == nil {
		return fmt.Errorf("foreign key %s on %s: referenced relation has no primary key", fk.Name, r.Path)
	}
	if len(fk.Columns) != len(ref.PrimaryKey.Columns) {
		return fmt.Errorf("foreign key %s on %s has %d columns, referenced primary key %s has %d",
			fk.Name, r.Path, len(fk.Columns), ref.Path, len(ref.PrimaryKey.Columns))
	}
	if !r.HasColumns(fk.Columns) {
		return fmt.Errorf("foreign key %s on %s names unknown columns %v", fk.Name, r.Path, fk.Columns)
	}
	fk.Referenced = ref.Path
	if len(fk.RefColumns) == 0 {
		fk.RefColumns = append([]string(nil), ref.PrimaryKey.Columns...)
	}
	r.ForeignKeys = append(r.ForeignKeys, fk)
	return nil
}

// References reports whether r holds a foreign key to path.
func (r *Relation) References(path respath.Path) bool {
	for _, fk := range r.ForeignKeys {
		if fk.Referenced == path {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of r.
func (r *Relation) Clone() *Relation {
	out := &Relation{Path: r.Path}
	out.Columns = append([]Column(nil), r.Columns...)
	if r.PrimaryKey != nil {
		pk := cloneKey(*r.PrimaryKey)
		out.PrimaryKey = &pk
	}
	for _, uk := range r.UniqueKeys {
		out.UniqueKeys = append(out.UniqueKeys, cloneKey(uk))
	}
	for _, fk := range r.ForeignKeys {
		fk.Columns = append([]string(nil), fk.Columns...)
		fk.RefColumns = append([]string(nil), fk.RefColumns...)
		out.ForeignKeys = append(out.ForeignKeys, fk)
	}
	return out
}

func cloneKey(k Key) Key {
	return Key{Name: k.Name, Columns: append([]string(nil), k.Columns...)}
}
