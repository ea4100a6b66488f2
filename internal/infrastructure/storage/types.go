package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// RawJSON stores an arbitrary JSON document (graph, config overrides,
// layout) in a jsonb column without imposing a Go struct shape on it.
// Grounded on the teacher's storage/models/types.go JSONBMap Value/Scan
// pair, adapted from a map[string]any to a passthrough json.RawMessage so
// callers can marshal/unmarshal into domain types directly.
type RawJSON json.RawMessage

// Value implements driver.Valuer.
func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *RawJSON) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = RawJSON(append([]byte(nil), v...))
		return nil
	case string:
		*j = RawJSON(v)
		return nil
	default:
		return errors.New("storage: RawJSON.Scan: unsupported type")
	}
}

// StringArray maps a Go string slice to a PostgreSQL TEXT[] column.
type StringArray []string

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	s := string(encoded)
	return "{" + s[1:len(s)-1] + "}", nil
}

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	var raw string
	switch v := value.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return errors.New("storage: StringArray.Scan: unsupported type")
	}
	if len(raw) < 2 || raw == "{}" {
		*a = StringArray{}
		return nil
	}
	return json.Unmarshal([]byte("["+raw[1:len(raw)-1]+"]"), a)
}
