package transfer

import (
	"fmt"

	"github.com/johndauphine/tabxfer/internal/value"
)

// NotEmptyError is returned when a copy targets a table that already holds
// rows and no truncate or drop was requested.
type NotEmptyError struct {
	Target string
}

func (e *NotEmptyError) Error() string {
	return fmt.Sprintf("target %s is not empty; request truncate or drop_if_exists to copy onto it", e.Target)
}

// SchemaMismatchError is returned when an existing target column cannot hold
// the values of the source column of the same name, or when the two share
// no column at all.
type SchemaMismatchError struct {
	Target string
	Column string
	Source value.Kind
	Have   value.Kind
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("target %s shares no column with the source", e.Target)
	}
	return fmt.Sprintf("column %s of %s holds %s values, source provides %s", e.Column, e.Target, e.Have, e.Source)
}
