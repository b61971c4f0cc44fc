package sqlutil

import (
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

// ToNullRawMessage wraps encoded JSON for a nullable jsonb column. Empty input is NULL.
func ToNullRawMessage(val []byte) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: json.RawMessage(val), Valid: len(val) > 0}
}

// FromNullRawMessage returns the JSON held by a nullable jsonb column, or nil.
func FromNullRawMessage(val pqtype.NullRawMessage) []byte {
	if !val.Valid {
		return nil
	}
	return val.RawMessage
}
