package statement

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/value"
)

// columnKind is the value kind the column stores, or hint when the column
// type is unknown.
func columnKind(col *model.Column, hint value.Kind) value.Kind {
	if col != nil && col.Type != nil && col.Type.Kind != value.Null {
		return col.Type.Kind
	}
	return hint
}

func columnName(col *model.Column) string {
	if col == nil {
		return ""
	}
	return col.Name
}

// prepare converts v to the kind stored by col and checks the declared
// size. Temporal values headed for a non-temporal column keep their kind so
// the temporal encoding applies; text columns receive the literal text.
func prepare(v value.Value, col *model.Column) (value.Value, error) {
	k := columnKind(col, v.Kind())
	if v.Kind().IsTemporal() && !k.IsTemporal() && k != value.Text {
		k = v.Kind()
	}
	out, err := value.Convert(v, k)
	if err != nil {
		return value.Value{}, fmt.Errorf("column %s: %w", columnName(col), err)
	}
	if col != nil {
		if err := value.Fits(out, col.Precision, col.Scale); err != nil {
			var re *value.RangeError
			if errors.As(err, &re) {
				re.Column = col.Name
			}
			return value.Value{}, err
		}
	}
	return out, nil
}

// Coerce converts v into the driver argument stored in col under the
// builder's encodings. The result is a pure function of v, col and the
// encodings.
func (b *Builder) Coerce(v value.Value, col *model.Column) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	v, err := prepare(v, col)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case value.Integer:
		return v.Int(), nil
	case value.Float:
		return v.Float(), nil
	case value.Decimal, value.Text:
		return v.Text(), nil
	case value.Bytes:
		return v.Bytes(), nil
	case value.Boolean:
		if b.enc.Boolean == value.BooleanBinary {
			return v.Int(), nil
		}
		return v.Bool(), nil
	case value.Date, value.Time, value.Timestamp:
		return b.encodeTemporal(v, columnName(col))
	}
	return nil, fmt.Errorf("column %s: cannot bind %s value", columnName(col), v.Kind())
}

func (b *Builder) encodeTemporal(v value.Value, column string) (any, error) {
	enc := b.enc.For(v.Kind())
	switch enc {
	case value.TemporalNative:
		switch v.Kind() {
		case value.Date:
			if b.caps.CivilTypes {
				return v.Date(), nil
			}
			return v.Date().In(time.UTC), nil
		case value.Time:
			if b.caps.CivilTypes {
				return v.TimeOfDay(), nil
			}
			return value.TemporalText(v), nil
		}
		return v.Timestamp(), nil
	case value.TemporalSQLLiteral:
		return value.TemporalText(v), nil
	case value.TemporalEpochMS:
		return value.EpochMillis(v)
	case value.TemporalEpochSec:
		return value.EpochSeconds(v)
	case value.TemporalEpochDay:
		if v.Kind() != value.Date {
			return nil, fmt.Errorf("column %s: %s encoding cannot store a %s", column, enc, v.Kind())
		}
		return value.EpochDay(v.Date()), nil
	}
	return nil, fmt.Errorf("column %s: unknown temporal encoding %q", column, enc)
}

// Literal renders v as SQL literal text for col.
func (b *Builder) Literal(v value.Value, col *model.Column) (string, error) {
	if v.IsNull() {
		return "NULL", nil
	}
	v, err := prepare(v, col)
	if err != nil {
		return "", err
	}
	switch v.Kind() {
	case value.Integer:
		return strconv.FormatInt(v.Int(), 10), nil
	case value.Float:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("column %s: %v has no SQL literal", columnName(col), f)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case value.Decimal:
		return v.Text(), nil
	case value.Text:
		return b.quoteText(v.Text(), col), nil
	case value.Bytes:
		return b.dialect.BytesLiteral(v.Bytes()), nil
	case value.Boolean:
		if b.enc.Boolean == value.BooleanBinary {
			return strconv.FormatInt(v.Int(), 10), nil
		}
		return b.dialect.BoolLiteral(v.Bool()), nil
	case value.Date, value.Time, value.Timestamp:
		arg, err := b.encodeTemporal(v, columnName(col))
		if err != nil {
			return "", err
		}
		if n, ok := arg.(int64); ok {
			return strconv.FormatInt(n, 10), nil
		}
		return b.quoteText(value.TemporalText(v), col), nil
	}
	return "", fmt.Errorf("column %s: no literal form for %s", columnName(col), v.Kind())
}

// quoteText wraps s in the literal prefix and suffix of the column type,
// doubling embedded quotes.
func (b *Builder) quoteText(s string, col *model.Column) string {
	prefix, suffix := "'", "'"
	if col != nil && (col.Type != nil || col.DeclaredType != "") {
		if e, err := b.entryFor(col); err == nil && e.LiteralPrefix != "" {
			prefix, suffix = e.LiteralPrefix, e.LiteralSuffix
			if suffix == "" {
				suffix = "'"
			}
		}
	}
	return prefix + strings.ReplaceAll(s, "'", "''") + suffix
}

// Decode turns a raw driver value read from col back into a Value,
// reversing the epoch encodings applied by Coerce.
func (b *Builder) Decode(raw any, col *model.Column) (value.Value, error) {
	if raw == nil {
		return value.NullValue(), nil
	}
	k := columnKind(col, value.Null)
	if k.IsTemporal() {
		switch enc := b.enc.For(k); enc {
		case value.TemporalEpochMS, value.TemporalEpochSec, value.TemporalEpochDay:
			if n, err := value.Decode(raw, value.Integer); err == nil {
				return value.FromEpoch(n.Int(), k, enc)
			}
		}
	}
	return value.Decode(raw, k)
}
