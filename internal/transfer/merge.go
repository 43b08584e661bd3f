package transfer

import (
	"fmt"

	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
	"github.com/johndauphine/tabxfer/internal/typemap"
	"github.com/johndauphine/tabxfer/internal/value"
)

// MergeRelation translates src into the type catalog of the target so it can
// be created at path. Column types move through their ANSI codes; keys are
// kept and foreign keys are left out, since their referenced tables belong
// to the source connection.
func MergeRelation(src *model.Relation, path respath.Path, types *typemap.Catalog) (*model.Relation, error) {
	out := src.Clone()
	out.Path = path
	out.ForeignKeys = nil
	for i := range out.Columns {
		c := &out.Columns[i]
		e, err := translate(c, types)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		c.Type = e
		c.DeclaredType = e.Render(c.Precision, c.Scale)
		c.Generated = false
	}
	return out, nil
}

func translate(c *model.Column, types *typemap.Catalog) (*typemap.Entry, error) {
	if c.Type == nil {
		return types.ByName(c.DeclaredType)
	}
	if own, err := types.ByName(c.Type.Name); err == nil && own.Code == c.Type.Code {
		return own, nil
	}
	code := c.Type.ANSI
	if code == 0 {
		code = c.Type.Code
	}
	return types.ByCode(code)
}

// columnPair is one column carried from the source to the target.
type columnPair struct {
	src *model.Column
	tgt *model.Column
}

// matchColumns pairs the source columns with the existing target columns of
// the same name. Source columns the target lacks are skipped with a warning;
// a pair whose kinds cannot be converted is a SchemaMismatchError.
func matchColumns(src, tgt *model.Relation, target string) ([]columnPair, error) {
	var out []columnPair
	for i := range src.Columns {
		sc := &src.Columns[i]
		tc, ok := tgt.Column(sc.Name)
		if !ok {
			logging.Warn("%s has no column %s; it is not transferred", target, sc.Name)
			continue
		}
		if sk, tk := kindOf(sc), kindOf(tc); !convertible(sk, tk) {
			return nil, &SchemaMismatchError{Target: target, Column: tc.Name, Source: sk, Have: tk}
		}
		out = append(out, columnPair{src: sc, tgt: tc})
	}
	if len(out) == 0 {
		return nil, &SchemaMismatchError{Target: target}
	}
	return out, nil
}

func kindOf(c *model.Column) value.Kind {
	if c.Type == nil {
		return value.Null
	}
	return c.Type.Kind
}

// convertible reports whether values of kind from can be stored in a column
// of kind to. Temporal values reach numeric columns through the epoch
// encodings. Unknown kinds are left to the backend.
func convertible(from, to value.Kind) bool {
	if from == value.Null || to == value.Null || from == to || from == value.Text || to == value.Text {
		return true
	}
	switch to {
	case value.Integer, value.Float, value.Decimal:
		return from.IsNumeric() || from == value.Boolean || from.IsTemporal()
	case value.Boolean:
		return from == value.Integer
	case value.Date, value.Time:
		return from == value.Timestamp
	case value.Timestamp:
		return from == value.Date
	}
	return false
}
