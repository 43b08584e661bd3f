package value

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// TemporalEncoding selects how dates, times and timestamps are handed to a
// backend.
type TemporalEncoding string

const (
	TemporalNative     TemporalEncoding = "native"
	TemporalSQLLiteral TemporalEncoding = "sql_literal"
	TemporalEpochMS    TemporalEncoding = "epoch_ms"
	TemporalEpochSec   TemporalEncoding = "epoch_sec"
	TemporalEpochDay   TemporalEncoding = "epoch_day"
)

// BooleanEncoding selects how booleans are handed to a backend.
type BooleanEncoding string

const (
	BooleanNative BooleanEncoding = "native"
	BooleanBinary BooleanEncoding = "binary"
)

// ParseTemporalEncoding accepts the configuration spelling, case-insensitive,
// with either '_' or '-' separators. Empty means native.
func ParseTemporalEncoding(s string) (TemporalEncoding, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch TemporalEncoding(norm) {
	case "":
		return TemporalNative, nil
	case TemporalNative, TemporalSQLLiteral, TemporalEpochMS, TemporalEpochSec, TemporalEpochDay:
		return TemporalEncoding(norm), nil
	}
	return "", fmt.Errorf("invalid temporal encoding %q (valid: native, sql_literal, epoch_ms, epoch_sec, epoch_day)", s)
}

// ParseBooleanEncoding accepts "native" or "binary". Empty means native.
func ParseBooleanEncoding(s string) (BooleanEncoding, error) {
	switch BooleanEncoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", BooleanNative:
		return BooleanNative, nil
	case BooleanBinary:
		return BooleanBinary, nil
	}
	return "", fmt.Errorf("invalid boolean encoding %q (valid: native, binary)", s)
}

// Encodings is the per-connection representation of temporal and boolean
// values.
type Encodings struct {
	Date      TemporalEncoding
	Time      TemporalEncoding
	Timestamp TemporalEncoding
	Boolean   BooleanEncoding
}

// DefaultEncodings hands every value to the driver natively.
func DefaultEncodings() Encodings {
	return Encodings{
		Date:      TemporalNative,
		Time:      TemporalNative,
		Timestamp: TemporalNative,
		Boolean:   BooleanNative,
	}
}

// Validate rejects epoch days for time and timestamp values.
func (e Encodings) Validate() error {
	if e.Timestamp == TemporalEpochDay {
		return fmt.Errorf("timestamp encoding %s is not valid for a timestamp (valid: native, sql_literal, epoch_ms, epoch_sec)", e.Timestamp)
	}
	if e.Time == TemporalEpochDay {
		return fmt.Errorf("time encoding %s is not valid for a time (valid: native, sql_literal, epoch_ms, epoch_sec)", e.Time)
	}
	return nil
}

// For returns the encoding applied to values of kind k.
func (e Encodings) For(k Kind) TemporalEncoding {
	var enc TemporalEncoding
	switch k {
	case Date:
		enc = e.Date
	case Time:
		enc = e.Time
	case Timestamp:
		enc = e.Timestamp
	}
	if enc == "" {
		return TemporalNative
	}
	return enc
}

const (
	msPerDay  = int64(24 * time.Hour / time.Millisecond)
	secPerDay = int64(24 * time.Hour / time.Second)
)

// EpochDay returns the number of days between 1970-01-01 and d.
func EpochDay(d civil.Date) int64 {
	return floorDiv(d.In(time.UTC).Unix(), secPerDay)
}

// EpochMillis renders a temporal value as milliseconds. Dates count from
// midnight UTC, times from midnight.
func EpochMillis(v Value) (int64, error) {
	switch v.kind {
	case Date:
		return EpochDay(v.d) * msPerDay, nil
	case Time:
		return timeNanos(v.t) / int64(time.Millisecond), nil
	case Timestamp:
		return v.ts.UnixMilli(), nil
	}
	return 0, fmt.Errorf("%s value has no epoch representation", v.kind)
}

// EpochSeconds renders a temporal value as seconds.
func EpochSeconds(v Value) (int64, error) {
	switch v.kind {
	case Date:
		return EpochDay(v.d) * secPerDay, nil
	case Time:
		return timeNanos(v.t) / int64(time.Second), nil
	case Timestamp:
		return v.ts.Unix(), nil
	}
	return 0, fmt.Errorf("%s value has no epoch representation", v.kind)
}

// FromEpoch rebuilds a temporal value of kind k from an integer stored with
// encoding enc. It is the inverse of EpochMillis, EpochSeconds and EpochDay.
func FromEpoch(n int64, k Kind, enc TemporalEncoding) (Value, error) {
	var ts time.Time
	switch enc {
	case TemporalEpochMS:
		ts = time.UnixMilli(n).UTC()
	case TemporalEpochSec:
		ts = time.Unix(n, 0).UTC()
	case TemporalEpochDay:
		if k != Date {
			return Value{}, fmt.Errorf("epoch days cannot encode a %s", k)
		}
		ts = time.Unix(n*secPerDay, 0).UTC()
	default:
		return Value{}, fmt.Errorf("encoding %s is not an epoch encoding", enc)
	}
	switch k {
	case Date:
		return DateValue(civil.DateOf(ts)), nil
	case Time:
		return TimeValue(civil.TimeOf(ts)), nil
	case Timestamp:
		return TimestampValue(ts), nil
	}
	return Value{}, fmt.Errorf("%s is not a temporal kind", k)
}

func timeNanos(t civil.Time) int64 {
	return int64(t.Hour)*int64(time.Hour) + int64(t.Minute)*int64(time.Minute) +
		int64(t.Second)*int64(time.Second) + int64(t.Nanosecond)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// TemporalText renders a temporal value as SQL literal text, without quotes.
func TemporalText(v Value) string {
	switch v.kind {
	case Date:
		return v.d.String()
	case Time:
		return v.t.String()
	case Timestamp:
		return v.ts.Format(TimestampLayout)
	}
	return v.String()
}

// Convert changes v into kind k when the conversion is lossless or
// conventional (numeric widening, text parsing, timestamp to date). Null
// converts to Null of any kind.
func Convert(v Value, k Kind) (Value, error) {
	if v.kind == Null || v.kind == k {
		return v, nil
	}
	switch k {
	case Text:
		switch v.kind {
		case Bytes:
			if utf8.Valid(v.b) {
				return TextValue(string(v.b)), nil
			}
		default:
			if v.kind.IsTemporal() {
				return TextValue(TemporalText(v)), nil
			}
			return TextValue(v.String()), nil
		}
	case Integer:
		switch v.kind {
		case Boolean:
			return IntValue(v.i), nil
		case Float, Decimal:
			d, ok := v.Dec()
			if ok && d.IsInteger() && d.BigInt().IsInt64() {
				return IntValue(d.IntPart()), nil
			}
		case Text:
			return decodeInteger(v.s)
		}
	case Float:
		switch v.kind {
		case Integer:
			return FloatValue(float64(v.i)), nil
		case Decimal:
			d, _ := v.Dec()
			f, _ := d.Float64()
			return FloatValue(f), nil
		case Text:
			return decodeFloat(v.s)
		}
	case Decimal:
		switch v.kind {
		case Integer, Float:
			if d, ok := v.Dec(); ok {
				return decimalOf(d), nil
			}
		case Text:
			return DecimalValue(v.s)
		}
	case Bytes:
		if v.kind == Text {
			return BytesValue([]byte(v.s)), nil
		}
	case Boolean:
		switch v.kind {
		case Integer:
			return BoolValue(v.i != 0), nil
		case Text:
			return decodeBool(v.s)
		}
	case Date:
		switch v.kind {
		case Timestamp:
			return DateValue(civil.DateOf(v.ts)), nil
		case Text:
			return decodeDate(v.s)
		}
	case Time:
		switch v.kind {
		case Timestamp:
			return TimeValue(civil.TimeOf(v.ts)), nil
		case Text:
			return decodeTime(v.s)
		}
	case Timestamp:
		switch v.kind {
		case Date:
			return TimestampValue(v.d.In(time.UTC)), nil
		case Text:
			return decodeTimestamp(v.s)
		}
	}
	return Value{}, fmt.Errorf("cannot convert %s value %s to %s", v.kind, v, k)
}

// RangeError reports a value that does not fit a declared precision or
// scale.
type RangeError struct {
	Column    string
	Value     string
	Precision int
	Scale     int
	Reason    string
}

func (e *RangeError) Error() string {
	col := e.Column
	if col == "" {
		col = "value"
	}
	return fmt.Sprintf("%s: %s exceeds declared size (precision=%d, scale=%d): %s",
		col, truncateForError(e.Value), e.Precision, e.Scale, e.Reason)
}

// Fits checks v against a declared precision and scale. A zero precision
// means unbounded. Text and bytes are measured in characters and bytes;
// exact numerics in digits.
func Fits(v Value, precision, scale int) error {
	if precision <= 0 {
		return nil
	}
	switch v.kind {
	case Text:
		if n := utf8.RuneCountInString(v.s); n > precision {
			return &RangeError{Value: v.s, Precision: precision, Scale: scale,
				Reason: fmt.Sprintf("length %d is greater than %d", n, precision)}
		}
	case Bytes:
		if len(v.b) > precision {
			return &RangeError{Value: v.String(), Precision: precision, Scale: scale,
				Reason: fmt.Sprintf("length %d is greater than %d", len(v.b), precision)}
		}
	case Integer, Decimal:
		d, ok := v.Dec()
		if !ok {
			return nil
		}
		return fitsDecimal(v, d, precision, scale)
	}
	return nil
}

func fitsDecimal(v Value, d decimal.Decimal, precision, scale int) error {
	if scale < 0 {
		scale = 0
	}
	if !d.Truncate(int32(scale)).Equal(d) {
		return &RangeError{Value: v.String(), Precision: precision, Scale: scale,
			Reason: fmt.Sprintf("more than %d fractional digits", scale)}
	}
	// |d| must be lower than 10^(precision-scale).
	if d.Abs().Cmp(decimal.New(1, int32(precision-scale))) >= 0 {
		return &RangeError{Value: v.String(), Precision: precision, Scale: scale,
			Reason: fmt.Sprintf("more than %d integral digits", precision-scale)}
	}
	return nil
}

func truncateForError(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
