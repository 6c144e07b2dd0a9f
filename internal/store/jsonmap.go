package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a GORM-compatible column type for free-form JSON documents
// (discovery_jobs.summary, devices.os_info per spec §6). No library in the
// example pack ships a GORM JSON column type for a pure-Go sqlite setup
// (gorm.io/datatypes never appears in any example go.mod), so this is a
// small hand-rolled Scanner/Valuer — see DESIGN.md.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonmap: unsupported scan type %T", value)
	}

	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}

	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("jsonmap: unmarshal: %w", err)
	}
	*m = out
	return nil
}
