package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// IDField is the wire name of the record identifier.
const IDField = "id"

// Record is a single row of a front-desk collection (registration, billing line,
// expense, patient, ticket). ID is unique within its collection; everything else
// lives in Fields as decoded from the backend.
//
// Records are treated as values: With returns a patched copy and never touches
// the receiver, so snapshots handed out by the cache can be shared freely.
type Record struct {
	ID     int64
	Fields map[string]any
}

// Patch is a set of field overwrites applied to a record.
type Patch map[string]any

// New builds a record from an id and a set of fields. The field map is copied.
func New(id int64, fields map[string]any) Record {
	f := make(map[string]any, len(fields)+1)
	maps.Copy(f, fields)
	f[IDField] = id
	return Record{ID: id, Fields: f}
}

// Get returns the raw value stored under field.
func (r Record) Get(field string) (any, bool) {
	if field == IDField {
		return r.ID, true
	}
	v, ok := r.Fields[field]
	return v, ok
}

// Text renders field as a string. Missing and null fields render as "".
func (r Record) Text(field string) string {
	v, ok := r.Get(field)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// With returns a copy of r with patch applied. The id can not be patched.
func (r Record) With(patch Patch) Record {
	f := make(map[string]any, len(r.Fields)+len(patch))
	maps.Copy(f, r.Fields)
	for k, v := range patch {
		if k == IDField {
			continue
		}
		f[k] = v
	}
	return Record{ID: r.ID, Fields: f}
}

// Clone returns a shallow copy with its own field map.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: maps.Clone(r.Fields)}
}

// UnmarshalJSON decodes a JSON object into a record. The id may be sent either
// as a number or as a numeric string.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return err
	}

	id, err := parseID(fields[IDField])
	if err != nil {
		return err
	}

	r.ID = id
	r.Fields = fields
	return nil
}

// MarshalJSON encodes the record back into a flat JSON object.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	maps.Copy(out, r.Fields)
	out[IDField] = r.ID
	return json.Marshal(out)
}

func parseID(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		if id, err := t.Int64(); err == nil {
			return id, nil
		}
		return 0, fmt.Errorf("record: id %q is not an integer", t.String())
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("record: id %q is not an integer", t)
		}
		return id, nil
	case float64:
		return int64(t), nil
	case nil:
		return 0, fmt.Errorf("record: missing %s field", IDField)
	default:
		return 0, fmt.Errorf("record: unsupported id type %T", v)
	}
}

// Index returns the position of the record with id inside records, or -1.
func Index(records []Record, id int64) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

// Pagination is the server-reported page summary returned next to a bulk list.
// The core never pages against the server; it is kept for display only.
type Pagination struct {
	Total      int `json:"total" msgpack:"total"`
	Page       int `json:"page" msgpack:"page"`
	Limit      int `json:"limit" msgpack:"limit"`
	TotalPages int `json:"total_pages" msgpack:"total_pages"`
}

// Details is the full payload of a single record as returned by the details endpoint.
type Details map[string]any
