package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftline/attend/internal/model"
	"github.com/shiftline/attend/internal/resolve"
)

func TestToDocument(t *testing.T) {
	captured := time.Date(2026, 3, 14, 9, 3, 0, 0, time.UTC)
	checkedOut := captured.Add(8 * time.Hour)

	rec := model.AttendanceRecord{
		ID:           "rec-1",
		EmployeeID:   "emp-1",
		LocationID:   "loc-hq",
		CapturedAt:   captured,
		CheckedOutAt: checkedOut,
		Status:       model.StatusOnTime,
		SyncStatus:   model.SyncPending,
		TokenID:      "tok-1",
		Note:         "forgot badge",
	}

	doc := ToDocument(rec, checkedOut)

	assert.Equal(t, "rec-1", doc.EntityID)
	assert.True(t, doc.UpdatedAt.Equal(checkedOut))
	assert.Equal(t, "emp-1", doc.Fields["employee_id"].Value)
	assert.Equal(t, "OnTime", doc.Fields["status"].Value)
	assert.Equal(t, "forgot badge", doc.Fields["note"].Value)
	assert.True(t, doc.Fields["checked_out_at"].UpdatedAt.Equal(checkedOut))

	// Identity fields carry the capture timestamp; the status carries
	// the moment it was last derived.
	assert.True(t, doc.Fields["employee_id"].UpdatedAt.Equal(captured))
	assert.True(t, doc.Fields["status"].UpdatedAt.Equal(checkedOut))
}

func TestToDocument_OmitsAbsentFields(t *testing.T) {
	rec := model.AttendanceRecord{
		ID:         "rec-1",
		EmployeeID: "emp-1",
		LocationID: "loc-hq",
		CapturedAt: time.Date(2026, 3, 14, 9, 3, 0, 0, time.UTC),
		Status:     model.StatusLate,
		TokenID:    "tok-1",
	}

	doc := ToDocument(rec, rec.CapturedAt)
	assert.NotContains(t, doc.Fields, "checked_out_at")
	assert.NotContains(t, doc.Fields, "note")
}

func TestMarshalRecordDocument_RoundtripsThroughResolver(t *testing.T) {
	rec := model.AttendanceRecord{
		ID:         "rec-1",
		EmployeeID: "emp-1",
		LocationID: "loc-hq",
		CapturedAt: time.Date(2026, 3, 14, 9, 3, 0, 0, time.UTC),
		Status:     model.StatusOnTime,
		TokenID:    "tok-1",
	}

	payload, err := MarshalRecordDocument(rec, rec.CapturedAt)
	require.NoError(t, err)

	doc, err := resolve.DecodeDocument(payload)
	require.NoError(t, err)
	assert.True(t, resolve.Equal(ToDocument(rec, rec.CapturedAt), doc))
}
