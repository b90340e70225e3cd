package utils

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCount bounds quantities and day counts so they always fit an int.
const MaxCount = math.MaxInt32

// SafeParseNumber turns any boundary value into a decimal. It never fails:
// nil, empty or unparseable strings, NaN/Inf and unsupported types yield fallback.
func SafeParseNumber(value interface{}, fallback decimal.Decimal) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return fallback
	case decimal.Decimal:
		return v
	case decimal.NullDecimal:
		if !v.Valid {
			return fallback
		}
		return v.Decimal
	case Number:
		return v.Or(fallback)
	case string:
		return parseNumericString(v, fallback)
	case []byte:
		return parseNumericString(string(v), fallback)
	case json.Number:
		return parseNumericString(v.String(), fallback)
	case float64:
		return fromFloat(v, fallback)
	case float32:
		return fromFloat(float64(v), fallback)
	case int:
		return decimal.NewFromInt(int64(v))
	case int8:
		return decimal.NewFromInt(int64(v))
	case int16:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return fromUint(uint64(v))
	case uint8:
		return fromUint(uint64(v))
	case uint16:
		return fromUint(uint64(v))
	case uint32:
		return fromUint(uint64(v))
	case uint64:
		return fromUint(v)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return fallback
		}
		return SafeParseNumber(rv.Elem().Interface(), fallback)
	}
	return fallback
}

// SafeParseZero is SafeParseNumber with a zero fallback.
func SafeParseZero(value interface{}) decimal.Decimal {
	return SafeParseNumber(value, decimal.Zero)
}

func parseNumericString(s string, fallback decimal.Decimal) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}

func fromUint(u uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)
}

func fromFloat(f float64, fallback decimal.Decimal) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return decimal.NewFromFloat(f)
}

// Number is a loosely typed amount as it arrives from forms, stored rows or model output.
// It keeps the raw value and resolves it only when asked.
type Number struct {
	raw interface{}
}

func NumberOf(v interface{}) Number {
	return Number{raw: v}
}

// Or resolves the number, using fallback when the raw value is absent or unusable.
func (n Number) Or(fallback decimal.Decimal) decimal.Decimal {
	if n.raw == nil {
		return fallback
	}
	return SafeParseNumber(n.raw, fallback)
}

func (n Number) Decimal() decimal.Decimal {
	return n.Or(decimal.Zero)
}

// IsSet reports whether a parseable value was supplied.
func (n Number) IsSet() bool {
	if n.raw == nil {
		return false
	}
	sentinel := decimal.NewFromInt(-1)
	a := SafeParseNumber(n.raw, sentinel)
	b := SafeParseNumber(n.raw, decimal.NewFromInt(-2))
	return a.Equal(b)
}

// Provided reports whether the caller sent anything at all. A blank string counts as absent.
func (n Number) Provided() bool {
	if n.raw == nil {
		return false
	}
	if s, ok := n.raw.(string); ok && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		n.raw = nil
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			n.raw = nil
			return nil
		}
		n.raw = s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n.raw = json.Number(string(data))
	default:
		// booleans, objects and arrays are kept unusable rather than rejected
		n.raw = string(data)
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.IsSet() {
		return []byte("null"), nil
	}
	return []byte(n.Decimal().String()), nil
}
