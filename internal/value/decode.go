package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// Layouts used for the SQL literal form of temporal values.
const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05.999999999"
	TimestampLayout = "2006-01-02 15:04:05.999999999"
)

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999Z07:00",
	DateLayout,
}

// Decode converts a raw value scanned from a driver into a Value of the
// expected kind. A Null hint infers the kind from the Go type.
func Decode(raw any, hint Kind) (Value, error) {
	if raw == nil {
		return Value{}, nil
	}
	if hint == Null {
		return infer(raw)
	}

	switch hint {
	case Integer:
		return decodeInteger(raw)
	case Float:
		return decodeFloat(raw)
	case Decimal:
		return decodeDecimal(raw)
	case Text:
		return TextValue(asString(raw)), nil
	case Bytes:
		switch x := raw.(type) {
		case []byte:
			return BytesValue(append([]byte(nil), x...)), nil
		case string:
			return BytesValue([]byte(x)), nil
		}
	case Date:
		return decodeDate(raw)
	case Time:
		return decodeTime(raw)
	case Timestamp:
		return decodeTimestamp(raw)
	case Boolean:
		return decodeBool(raw)
	}
	return Value{}, fmt.Errorf("cannot decode %T as %s", raw, hint)
}

func infer(raw any) (Value, error) {
	switch x := raw.(type) {
	case int64:
		return IntValue(x), nil
	case int32:
		return IntValue(int64(x)), nil
	case int:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case float64:
		return FloatValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case bool:
		return BoolValue(x), nil
	case string:
		return TextValue(x), nil
	case []byte:
		return BytesValue(append([]byte(nil), x...)), nil
	case time.Time:
		return TimestampValue(x), nil
	case civil.Date:
		return DateValue(x), nil
	case civil.Time:
		return TimeValue(x), nil
	case civil.DateTime:
		return TimestampValue(x.In(time.UTC)), nil
	case Value:
		return x, nil
	}
	return Value{}, fmt.Errorf("unsupported driver value type %T", raw)
}

func asString(raw any) string {
	switch x := raw.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(TimestampLayout)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(raw)
}

func decodeInteger(raw any) (Value, error) {
	switch x := raw.(type) {
	case float64:
		if x != math.Trunc(x) {
			return Value{}, fmt.Errorf("value %v is not an integer", x)
		}
		return IntValue(int64(x)), nil
	case float32:
		return decodeInteger(float64(x))
	case bool:
		return IntValue(boolInt(x)), nil
	case string, []byte:
		s := strings.TrimSpace(asString(x))
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing integer %q: %w", s, err)
		}
		return IntValue(i), nil
	}
	v, err := infer(raw)
	if err != nil {
		return Value{}, err
	}
	if v.kind != Integer {
		return Value{}, fmt.Errorf("cannot decode %T as integer", raw)
	}
	return v, nil
}

func decodeFloat(raw any) (Value, error) {
	switch x := raw.(type) {
	case string, []byte:
		s := strings.TrimSpace(asString(x))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing float %q: %w", s, err)
		}
		return FloatValue(f), nil
	}
	v, err := infer(raw)
	if err != nil {
		return Value{}, err
	}
	switch v.kind {
	case Float:
		return v, nil
	case Integer:
		return FloatValue(float64(v.i)), nil
	}
	return Value{}, fmt.Errorf("cannot decode %T as float", raw)
}

func decodeDecimal(raw any) (Value, error) {
	switch x := raw.(type) {
	case string, []byte:
		return DecimalValue(asString(x))
	case float64:
		return DecimalValue(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return DecimalValue(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	v, err := infer(raw)
	if err != nil {
		return Value{}, err
	}
	if v.kind == Integer {
		return DecimalValue(strconv.FormatInt(v.i, 10))
	}
	return Value{}, fmt.Errorf("cannot decode %T as decimal", raw)
}

func decodeDate(raw any) (Value, error) {
	switch x := raw.(type) {
	case time.Time:
		return DateValue(civil.DateOf(x)), nil
	case civil.Date:
		return DateValue(x), nil
	case string, []byte:
		s := strings.TrimSpace(asString(x))
		if len(s) > len(DateLayout) {
			ts, err := parseTimestamp(s)
			if err != nil {
				return Value{}, err
			}
			return DateValue(civil.DateOf(ts)), nil
		}
		d, err := civil.ParseDate(s)
		if err != nil {
			return Value{}, fmt.Errorf("parsing date %q: %w", s, err)
		}
		return DateValue(d), nil
	}
	return Value{}, fmt.Errorf("cannot decode %T as date", raw)
}

func decodeTime(raw any) (Value, error) {
	switch x := raw.(type) {
	case time.Time:
		return TimeValue(civil.TimeOf(x)), nil
	case civil.Time:
		return TimeValue(x), nil
	case string, []byte:
		s := strings.TrimSpace(asString(x))
		if i := strings.IndexAny(s, "T "); i >= 0 && len(s) > len(DateLayout) {
			ts, err := parseTimestamp(s)
			if err != nil {
				return Value{}, err
			}
			return TimeValue(civil.TimeOf(ts)), nil
		}
		t, err := civil.ParseTime(s)
		if err != nil {
			return Value{}, fmt.Errorf("parsing time %q: %w", s, err)
		}
		return TimeValue(t), nil
	}
	return Value{}, fmt.Errorf("cannot decode %T as time", raw)
}

func decodeTimestamp(raw any) (Value, error) {
	switch x := raw.(type) {
	case time.Time:
		return TimestampValue(x), nil
	case civil.DateTime:
		return TimestampValue(x.In(time.UTC)), nil
	case civil.Date:
		return TimestampValue(x.In(time.UTC)), nil
	case string, []byte:
		ts, err := parseTimestamp(strings.TrimSpace(asString(x)))
		if err != nil {
			return Value{}, err
		}
		return TimestampValue(ts), nil
	}
	return Value{}, fmt.Errorf("cannot decode %T as timestamp", raw)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: unrecognized layout", s)
}

func decodeBool(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return BoolValue(x), nil
	case string, []byte:
		s := strings.ToLower(strings.TrimSpace(asString(x)))
		switch s {
		case "1", "t", "true", "y", "yes", "on":
			return BoolValue(true), nil
		case "0", "f", "false", "n", "no", "off":
			return BoolValue(false), nil
		}
		return Value{}, fmt.Errorf("parsing boolean %q", s)
	}
	v, err := infer(raw)
	if err != nil {
		return Value{}, err
	}
	if v.kind == Integer {
		return BoolValue(v.i != 0), nil
	}
	return Value{}, fmt.Errorf("cannot decode %T as boolean", raw)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
