package model

import "time"

// Status classifies an attendance record relative to the location's
// expected-time policy. It is computed once at creation (or at checkout
// for HalfDay) and never changed by synchronization.
type Status string

const (
	StatusOnTime        Status = "OnTime"
	StatusLate          Status = "Late"
	StatusAbsent        Status = "Absent"
	StatusHalfDay       Status = "HalfDay"
	StatusApprovedLeave Status = "ApprovedLeave"
)

// SyncStatus tracks a record's position in the sync lifecycle.
// Failed is not terminal: a failed record stays queued for resolution
// and may return to Pending when re-queued.
type SyncStatus string

const (
	SyncPending SyncStatus = "Pending"
	SyncSynced  SyncStatus = "Synced"
	SyncFailed  SyncStatus = "Failed"
)

// AttendanceRecord is a locally-captured attendance event awaiting
// synchronization. TokenID references the consumed attendance token; a
// record can only be created from a token that passed validation, and
// each token backs at most one record (enforced by a unique constraint).
type AttendanceRecord struct {
	ID           string
	EmployeeID   string
	LocationID   string
	CapturedAt   time.Time
	CheckedOutAt time.Time // zero until checkout is recorded
	Status       Status
	SyncStatus   SyncStatus
	TokenID      string
	Note         string
}
