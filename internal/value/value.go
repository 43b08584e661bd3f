// Package value holds the closed set of value kinds that flow between
// backends. Raw driver values are decoded into a Value once, at the driver
// boundary, and every later stage switches on Kind instead of on Go types.
package value

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	Null Kind = iota
	Integer
	Float
	Decimal
	Text
	Bytes
	Date
	Time
	Timestamp
	Boolean
)

var kindNames = [...]string{
	Null:      "null",
	Integer:   "integer",
	Float:     "float",
	Decimal:   "decimal",
	Text:      "text",
	Bytes:     "bytes",
	Date:      "date",
	Time:      "time",
	Timestamp: "timestamp",
	Boolean:   "boolean",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsTemporal reports whether k is Date, Time or Timestamp.
func (k Kind) IsTemporal() bool {
	return k == Date || k == Time || k == Timestamp
}

// IsNumeric reports whether k is Integer, Float or Decimal.
func (k Kind) IsNumeric() bool {
	return k == Integer || k == Float || k == Decimal
}

// Value is a tagged union. The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
	ts   time.Time
	d    civil.Date
	t    civil.Time
}

func NullValue() Value { return Value{} }
func IntValue(i int64) Value { return Value{kind: Integer, i: i} }
func FloatValue(f float64) Value { return Value{kind: Float, f: f} }
func TextValue(s string) Value { return Value{kind: Text, s: s} }
func BytesValue(b []byte) Value { return Value{kind: Bytes, b: b} }
func DateValue(d civil.Date) Value { return Value{kind: Date, d: d} }
func TimeValue(t civil.Time) Value { return Value{kind: Time, t: t} }

func TimestampValue(ts time.Time) Value {
	return Value{kind: Timestamp, ts: ts}
}

func BoolValue(b bool) Value {
	if b {
		return Value{kind: Boolean, i: 1}
	}
	return Value{kind: Boolean}
}

// DecimalValue parses s as an exact decimal number. The text is kept in its
// canonical form so that no precision is lost between backends.
func DecimalValue(s string) (Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Value{}, fmt.Errorf("invalid decimal %q", s)
	}
	return decimalOf(d), nil
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }

// Int returns the integer payload. Booleans report 0 or 1.
func (v Value) Int() int64 { return v.i }

func (v Value) Float() float64 { return v.f }

// Text returns the payload of a Text or Decimal value.
func (v Value) Text() string { return v.s }

func (v Value) Bytes() []byte { return v.b }
func (v Value) Date() civil.Date { return v.d }
func (v Value) TimeOfDay() civil.Time { return v.t }
func (v Value) Timestamp() time.Time { return v.ts }
func (v Value) Bool() bool { return v.i != 0 }

// Dec returns the exact decimal of a numeric value. Floats convert through
// their shortest exact representation; NaN and infinities have none.
func (v Value) Dec() (decimal.Decimal, bool) {
	switch v.kind {
	case Integer:
		return decimal.NewFromInt(v.i), true
	case Float:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v.f), true
	case Decimal:
		d, err := decimal.NewFromString(v.s)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case Null:
		return "NULL"
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Decimal, Text:
		return v.s
	case Bytes:
		return "0x" + hex.EncodeToString(v.b)
	case Date:
		return v.d.String()
	case Time:
		return v.t.String()
	case Timestamp:
		return v.ts.Format(TimestampLayout)
	case Boolean:
		return strconv.FormatBool(v.Bool())
	}
	return "?"
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Integer, Boolean:
		return v.i == o.i
	case Float:
		return v.f == o.f
	case Decimal, Text:
		return v.s == o.s
	case Bytes:
		return string(v.b) == string(o.b)
	case Date:
		return v.d == o.d
	case Time:
		return v.t == o.t
	case Timestamp:
		return v.ts.Equal(o.ts)
	}
	return false
}

// decimalOf keeps d in canonical text: no exponent, no trailing zeros.
func decimalOf(d decimal.Decimal) Value {
	return Value{kind: Decimal, s: d.String()}
}
