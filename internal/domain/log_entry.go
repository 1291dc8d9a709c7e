package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit log.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// ObjectRef identifies one tracked object instance.
type ObjectRef struct {
	ObjectType string `json:"object_type"`
	ObjectID   string `json:"object_id"`
}

// LogEntry is an immutable audit log record capturing a tracked object's
// state at the moment of a mutation. Entries are created once by the write
// path and never updated or deleted.
type LogEntry struct {
	ID             uuid.UUID       `json:"id"`
	ObjectType     string          `json:"object_type"`
	ObjectID       string          `json:"object_id"`
	Action         string          `json:"action"`
	Actor          string          `json:"actor,omitempty"`
	Changes        json.RawMessage `json:"changes,omitempty"`
	SerializedData json.RawMessage `json:"serialized_data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Ref returns the object reference this entry belongs to.
func (e LogEntry) Ref() ObjectRef {
	return ObjectRef{ObjectType: e.ObjectType, ObjectID: e.ObjectID}
}

// serializedPayload is the well-formed shape of LogEntry.SerializedData.
type serializedPayload struct {
	Fields map[string]any `json:"fields"`
}

// DecodeSerializedFields extracts the fields mapping from a serialized
// payload. A missing payload, a payload that is not a JSON object, a payload
// without a fields mapping, and a payload with an empty fields mapping all
// normalize to nil: an empty mapping is deliberately reported as absent
// rather than as an empty container. The returned map is freshly decoded so
// callers can never mutate stored data through it.
func DecodeSerializedFields(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var payload serializedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	if len(payload.Fields) == 0 {
		return nil
	}
	return payload.Fields
}

// EncodeSerializedFields wraps a fields mapping in the serialized payload
// envelope stored on a LogEntry. A nil mapping encodes an empty envelope so
// deletes still carry a well-formed payload.
func EncodeSerializedFields(fields map[string]any) (json.RawMessage, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	return json.Marshal(serializedPayload{Fields: fields})
}
