package core

import (
	"fmt"
	"strconv"
)

// toCanonicalString renders a non-string, non-time raw field value as the
// stable string used for comparison. Numeric types print without
// trailing zeros so "3" and "3.0" canonicalize identically.
func toCanonicalString(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprintf("%v", n)
	}
}
