package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is how timestamps are written to stage and export files.
// Redshift COPY, DuckDB and BULK INSERT all accept it without a format hint.
const TimestampLayout = "2006-01-02 15:04:05"

// EpochToUTC converts fractional epoch seconds to a UTC time, truncated to
// whole seconds.
func EpochToUTC(sec float64) time.Time {
	return time.Unix(int64(math.Floor(sec)), 0).UTC()
}

// ConvertToBool handles the loose truthiness of API payloads: JSON booleans,
// numbers (non-zero is true, e.g. an edit timestamp) and boolean strings.
func ConvertToBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return ConvertToBool(string(v))
	default:
		return false, fmt.Errorf("cannot convert %T to bool", val)
	}
}

func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case []byte:
		return strconv.Atoi(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

// FormatValue renders a scanned database value as a CSV field. NULL becomes
// the empty string.
func FormatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(TimestampLayout)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
