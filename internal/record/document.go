package record

import (
	"time"

	"github.com/shiftline/attend/internal/model"
	"github.com/shiftline/attend/internal/resolve"
)

// ToDocument converts a record into the conflict-resolution document
// shape. Every field carries the modification timestamp so the resolver
// can field-merge against a remote canonical version.
func ToDocument(rec model.AttendanceRecord, at time.Time) resolve.Document {
	fields := map[string]resolve.Field{
		"employee_id": {Value: rec.EmployeeID, UpdatedAt: rec.CapturedAt},
		"location_id": {Value: rec.LocationID, UpdatedAt: rec.CapturedAt},
		"captured_at": {Value: rec.CapturedAt.UTC().Format(time.RFC3339Nano), UpdatedAt: rec.CapturedAt},
		"status":      {Value: string(rec.Status), UpdatedAt: at},
		"token_id":    {Value: rec.TokenID, UpdatedAt: rec.CapturedAt},
	}
	if !rec.CheckedOutAt.IsZero() {
		fields["checked_out_at"] = resolve.Field{
			Value:     rec.CheckedOutAt.UTC().Format(time.RFC3339Nano),
			UpdatedAt: rec.CheckedOutAt,
		}
	}
	if rec.Note != "" {
		fields["note"] = resolve.Field{Value: rec.Note, UpdatedAt: at}
	}
	return resolve.Document{
		EntityID:  rec.ID,
		UpdatedAt: at,
		Fields:    fields,
	}
}

// MarshalRecordDocument renders the record's document as the canonical
// JSON payload carried by its sync operation.
func MarshalRecordDocument(rec model.AttendanceRecord, at time.Time) ([]byte, error) {
	return resolve.MarshalDocument(ToDocument(rec, at))
}
