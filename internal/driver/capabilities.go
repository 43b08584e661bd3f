package driver

import "github.com/johndauphine/tabxfer/internal/respath"

// UpsertStyle is the statement shape used for insert-or-update.
type UpsertStyle int

const (
	// UpsertOnConflict is INSERT ... ON CONFLICT (k) DO UPDATE.
	UpsertOnConflict UpsertStyle = iota
	// UpsertOnDuplicateKey is INSERT ... ON DUPLICATE KEY UPDATE.
	UpsertOnDuplicateKey
	// UpsertMerge is MERGE INTO ... USING.
	UpsertMerge
)

// CreateAsStyle is the statement shape used to create a table from a query.
type CreateAsStyle int

const (
	// CreateTableAs is CREATE TABLE t AS SELECT.
	CreateTableAs CreateAsStyle = iota
	// SelectInto is SELECT ... INTO t FROM.
	SelectInto
)

// RenameStyle is the statement shape of a table rename.
type RenameStyle int

const (
	// AlterRenameTo is ALTER TABLE a RENAME TO b.
	AlterRenameTo RenameStyle = iota
	// RenameTable is RENAME TABLE a TO b.
	RenameTable
	// SpRename is EXEC sp_rename 'a', 'b'.
	SpRename
)

// UpdateStyle is the statement shape of an update joined to a query.
type UpdateStyle int

const (
	// UpdateFrom is UPDATE t SET ... FROM (q) s WHERE ...
	UpdateFrom UpdateStyle = iota
	// UpdateJoinFrom is UPDATE t SET ... FROM tgt t JOIN (q) s ON ...
	UpdateJoinFrom
	// UpdateJoinSet is UPDATE tgt t JOIN (q) s ON ... SET ...
	UpdateJoinSet
)

// Capabilities describes what a backend supports. Statement generation and
// the transfer engine consult it instead of switching on the driver name.
type Capabilities struct {
	// NamespaceWidth is 1 (object), 2 (schema.object) or 3
	// (catalog.schema.object).
	NamespaceWidth int
	// CatalogInStatements reports whether statements accept a catalog
	// qualifier.
	CatalogInStatements bool
	IdentifierQuote     string
	IdentifierCase      respath.Case
	// SearchEscape is the LIKE escape character, "" when unusable.
	SearchEscape string
	// LikeEscapeClause requires an explicit ESCAPE clause after LIKE.
	LikeEscapeClause bool
	// MaxWriters is the number of concurrent writer handles the backend
	// tolerates.
	MaxWriters int
	// BatchedSubmission allows multi-row VALUES statements.
	BatchedSubmission bool
	// ParameterLimit is the most bind parameters one statement may carry.
	ParameterLimit int
	// MaxValuesRows caps the rows of one multi-row VALUES list; zero means
	// no limit beyond ParameterLimit.
	MaxValuesRows int

	DropIfExists     bool
	DropCascade      bool
	DropMultiple     bool
	TruncateMultiple bool
	TruncateCascade  bool
	// TruncateReferenced allows TRUNCATE on a table referenced by a foreign
	// key when the referencing table is truncated in the same statement.
	TruncateReferenced bool
	// Truncate is false when the backend has no TRUNCATE statement.
	Truncate bool
	// AlterConstraints reports whether constraints can be added and dropped
	// after creation; when false they are declared inline.
	AlterConstraints bool
	CreateSchema     bool
	// DropForeignKey is the ALTER TABLE clause that removes a foreign key,
	// "DROP CONSTRAINT" when empty.
	DropForeignKey string
	Transactions     bool
	// TransactionalDDL reports whether DDL participates in transactions.
	TransactionalDDL bool
	// IdentityColumns reports whether auto-increment columns can be declared.
	IdentityColumns bool
	// IdentityInsert reports whether explicit values for identity columns
	// require SET IDENTITY_INSERT.
	IdentityInsert bool
	// CivilTypes reports whether the driver binds civil.Date and civil.Time.
	CivilTypes bool

	Upsert   UpsertStyle
	Update   UpdateStyle
	CreateAs CreateAsStyle
	Rename   RenameStyle
}

// Scheme returns the addressing scheme for a connection whose current
// catalog and schema are given.
func (c Capabilities) Scheme(catalog, schema string) respath.Scheme {
	return respath.Scheme{
		Width:               c.NamespaceWidth,
		Quote:               c.IdentifierQuote,
		Case:                c.IdentifierCase,
		Escape:              c.SearchEscape,
		CatalogInStatements: c.CatalogInStatements,
		CurrentCatalog:      catalog,
		CurrentSchema:       schema,
	}
}
