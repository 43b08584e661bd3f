package driver

import (
	"context"
	"database/sql"

	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/typemap"
)

// Querier is the subset of *sql.DB the catalog queries need.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ObjectInfo names one table or view.
type ObjectInfo struct {
	Catalog string
	Schema  string
	Name    string
	View    bool
}

// ColumnInfo is one introspected column. DataType may carry a size
// specifier ("varchar(20)"), in which case the lengths may be zero.
type ColumnInfo struct {
	Name             string
	DataType         string
	CharLength       int
	NumericPrecision int
	NumericScale     int
	Nullable         bool
	AutoIncrement    bool
	Generated        bool
}

// KeyInfo is a primary or unique key.
type KeyInfo struct {
	Name    string
	Columns []string
}

// ForeignKeyInfo is a foreign key together with the table holding it.
type ForeignKeyInfo struct {
	Name       string
	Table      ObjectInfo
	Columns    []string
	Referenced ObjectInfo
	RefColumns []string
}

// Filter restricts an object listing.
type Filter struct {
	Catalog string
	Schema  respath.SearchPattern
	Object  respath.SearchPattern
}

// Introspector runs the catalog queries of one backend. Names are returned
// as stored by the backend.
type Introspector interface {
	// CurrentNamespace returns the session's catalog and schema; either may
	// be empty when the backend has no such level.
	CurrentNamespace(ctx context.Context, q Querier) (catalog, schema string, err error)
	// Types returns the backend's type report; nil means the built-in table
	// should be used alone.
	Types(ctx context.Context, q Querier) ([]typemap.ReportedType, error)
	Catalogs(ctx context.Context, q Querier, p respath.SearchPattern) ([]string, error)
	Schemas(ctx context.Context, q Querier, catalog string, p respath.SearchPattern) ([]string, error)
	Objects(ctx context.Context, q Querier, f Filter) ([]ObjectInfo, error)
	Columns(ctx context.Context, q Querier, obj ObjectInfo) ([]ColumnInfo, error)
	PrimaryKey(ctx context.Context, q Querier, obj ObjectInfo) (*KeyInfo, error)
	UniqueKeys(ctx context.Context, q Querier, obj ObjectInfo) ([]KeyInfo, error)
	ForeignKeys(ctx context.Context, q Querier, obj ObjectInfo) ([]ForeignKeyInfo, error)
	// ReferencingKeys returns the foreign keys of other tables that
	// reference obj.
	ReferencingKeys(ctx context.Context, q Querier, obj ObjectInfo) ([]ForeignKeyInfo, error)
}

// GroupKeys folds (name, column) rows ordered by name into keys.
func GroupKeys(names, cols []string) []KeyInfo {
	var keys []KeyInfo
	for i, n := range names {
		if len(keys) == 0 || keys[len(keys)-1].Name != n {
			keys = append(keys, KeyInfo{Name: n})
		}
		k := &keys[len(keys)-1]
		k.Columns = append(k.Columns, cols[i])
	}
	return keys
}
