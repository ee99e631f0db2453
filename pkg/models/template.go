package models

import (
	"encoding/json"
	"time"
)

// Template is a reusable, named starting point for a FabricConfig. The config
// payload is kept raw; it is decoded into a FabricConfig when a job is built
// from it.
type Template struct {
	ID          int64           `db:"id"          json:"id"`
	Name        string          `db:"name"        json:"name"`
	Type        string          `db:"type"        json:"type"`
	Description string          `db:"description" json:"description,omitempty"`
	Config      json.RawMessage `db:"config"      json:"config"`
	CreatedAt   time.Time       `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"  json:"updated_at"`
}
