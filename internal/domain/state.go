package domain

import (
	"time"

	"github.com/google/uuid"
)

// HistoricalObjectState is the answer to "what did this object look like at
// time T". When LogFound is false no entry existed at or before T and every
// other field holds its zero value. When LogFound is true, Timestamp and
// LogEntryID always identify the selected entry; SerializedFields may still
// be nil when the entry carried no usable fields mapping.
type HistoricalObjectState struct {
	LogFound         bool           `json:"log_found"`
	SerializedFields map[string]any `json:"serialized_fields,omitempty"`
	Timestamp        time.Time      `json:"timestamp,omitzero"`
	LogEntryID       uuid.UUID      `json:"log_entry_id,omitzero"`
}

// HistoricalFieldState is the answer to "what was field F at time T".
// FieldFound can only be true when LogFound is true. FieldName is always
// set, even on a total miss.
type HistoricalFieldState struct {
	LogFound   bool      `json:"log_found"`
	FieldFound bool      `json:"field_found"`
	FieldName  string    `json:"field_name"`
	Value      any       `json:"value,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	LogEntryID uuid.UUID `json:"log_entry_id,omitzero"`
}
