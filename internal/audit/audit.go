// Package audit keeps a persistent trail of notable club activity: events
// changing phase, films imported, news published and members leveling up.
package audit

import (
	"encoding/json"
	"time"
)

// Entry is a single audit trail record.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Topic     string          `json:"topic"`
	Kind      string          `json:"kind"`
	Summary   string          `json:"summary"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// QueryFilter narrows Query results. Zero values match everything.
type QueryFilter struct {
	Topic  string
	Kind   string
	Since  *time.Time
	Limit  int
	Offset int
}
