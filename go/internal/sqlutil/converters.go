package sqlutil

import (
	"github.com/google/uuid"
)

// Helper functions for converting between Go types and nullable columns

// NonNilUUID maps the zero UUID to a NULL column value
func NonNilUUID(id uuid.UUID) uuid.NullUUID {
	if id == uuid.Nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

// FromNullUUID converts a nullable UUID column back to a pointer
func FromNullUUID(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	out := id.UUID
	return &out
}
