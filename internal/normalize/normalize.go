// Package normalize converts raw warehouse column values into canonical scalar types.
// go-mssqldb scans DECIMAL, NUMERIC and MONEY columns into []byte holding the
// decimal literal, and DATE columns into time.Time; both are handled here.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ISODateLayout is the canonical date layout emitted by Date
const ISODateLayout = "2006-01-02"

// ErrInvalidDate is returned by Date under the strict policy for strings outside YYYY-MM-DD
var ErrInvalidDate = errors.New("invalid date")

// DatePolicy controls how Date treats strings that are not valid YYYY-MM-DD dates
type DatePolicy string

const (
	// DatePolicyLenient forwards unparseable date strings unchanged
	DatePolicyLenient DatePolicy = "lenient"
	// DatePolicyStrict rejects unparseable date strings with ErrInvalidDate
	DatePolicyStrict DatePolicy = "strict"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDatePolicy parses a configured policy name. Empty means lenient.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch DatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DatePolicyLenient:
		return DatePolicyLenient, nil
	case DatePolicyStrict:
		return DatePolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown date policy %q", s)
	}
}

// Decimal converts fixed-point decimal values to float64.
// Every other value, including nil and non-numeric input, is returned unchanged.
func Decimal(value any) any {
	switch v := value.(type) {
	case decimal.Decimal:
		return v.InexactFloat64()
	case *decimal.Decimal:
		if v == nil {
			return value
		}
		return v.InexactFloat64()
	case decimal.NullDecimal:
		if !v.Valid {
			return nil
		}
		return v.Decimal.InexactFloat64()
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return value
		}
		return d.InexactFloat64()
	default:
		return value
	}
}

// Float normalizes a value with Decimal and coerces the result to float64.
// nil and non-numeric values yield 0.
func Float(value any) float64 {
	switch v := Decimal(value).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return 0
	}
}

// Date normalizes a date-like value.
//
//   - nil, empty string and zero time yield nil
//   - time.Time yields its YYYY-MM-DD string
//   - a string in YYYY-MM-DD form that parses yields the same ISO string
//   - any other string is returned unchanged (lenient) or rejected (strict)
//   - any other type is returned unchanged
func Date(value any, policy DatePolicy) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return v.Format(ISODateLayout), nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		return v.Format(ISODateLayout), nil
	case []byte:
		return normalizeDateString(string(v), policy)
	case string:
		return normalizeDateString(v, policy)
	default:
		return value, nil
	}
}

func normalizeDateString(s string, policy DatePolicy) (any, error) {
	if s == "" {
		return nil, nil
	}
	if isoDatePattern.MatchString(s) {
		if parsed, err := time.Parse(ISODateLayout, s); err == nil {
			return parsed.Format(ISODateLayout), nil
		}
	}
	if policy == DatePolicyStrict {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return s, nil
}

// DateString normalizes a date-like value into an optional string
func DateString(value any, policy DatePolicy) (*string, error) {
	normalized, err := Date(value, policy)
	if err != nil || normalized == nil {
		return nil, err
	}
	var s string
	switch v := normalized.(type) {
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	return &s, nil
}

// String converts a raw column value to a string. nil yields "".
func String(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
