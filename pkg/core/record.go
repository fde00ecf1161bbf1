// Package core defines the data model and external capability contracts
// shared by every reconciliation engine component: records, data sources,
// jobs, matching specs, results, and the ports (RecordStore, MetricSink,
// BroadcastSink, Cache, Clock) that thin adapters implement.
package core

import "time"

// FieldValue is a typed value held by a Record. The core compares values
// by their string canonicalization; FieldValue stores only the raw value
// (and a nil flag), and String derives the canonical form on demand.
type FieldValue struct {
	Raw   any
	IsNil bool
}

// String returns the canonical string form of the value used for
// comparison. A nil value canonicalizes to the empty string.
func (v FieldValue) String() string {
	if v.IsNil || v.Raw == nil {
		return ""
	}
	switch t := v.Raw.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return toCanonicalString(t)
	}
}

// Record is an immutable tuple: a stable identifier and a mapping from
// field name to typed value.
type Record struct {
	ID     string
	Fields map[string]FieldValue
}

// Get returns the canonical string form of a field, and whether the field
// was present on the record at all (as opposed to present-but-empty).
func (r Record) Get(field string) (string, bool) {
	v, ok := r.Fields[field]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// FieldType declares the type a DataSource column was uploaded as.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeNumber    FieldType = "number"
	FieldTypeTimestamp FieldType = "timestamp"
)

// Schema is the ordered list of fields a DataSource's records conform to.
type Schema struct {
	Fields []SchemaField
}

// SchemaField names one declared column of a DataSource.
type SchemaField struct {
	Name string
	Type FieldType
}

// DataSource is a named, immutable handle to a sequence of Records sharing
// a declared schema. It is read-only to the core; the core only ever
// references a DataSource by ID and streams it through RecordStore.
type DataSource struct {
	ID        string
	ProjectID string
	Name      string
	Schema    Schema
	CreatedAt time.Time
}
