package similarity

import "time"

// parseTime accepts RFC3339 (the canonical form core.FieldValue renders
// timestamps as) so DateProximity can work on the string values a
// FieldRule sees, the same as every other similarity function.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
