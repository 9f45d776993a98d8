package model

import (
	"encoding/json"
	"time"
)

// EntityType identifies the kind of entity a sync operation mutates.
// The engine does not interpret entity payloads beyond conflict
// resolution; entity semantics belong to the remote system.
type EntityType string

const (
	EntityAttendance   EntityType = "Attendance"
	EntityLeaveRequest EntityType = "LeaveRequest"
	EntityEmployee     EntityType = "Employee"
	EntityNotification EntityType = "Notification"
)

// OperationType is the mutation kind carried by a sync operation.
type OperationType string

const (
	OpCreate OperationType = "Create"
	OpUpdate OperationType = "Update"
	OpDelete OperationType = "Delete"
)

// Priority orders queue draining. Lower values drain first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "Critical"
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	}
	return "Unknown"
}

// OperationStatus is the lifecycle state of a queued sync operation.
type OperationStatus string

const (
	OpPending    OperationStatus = "Pending"
	OpInProgress OperationStatus = "InProgress"
	OpCompleted  OperationStatus = "Completed"
	OpFailed     OperationStatus = "Failed"
)

// DerivedSyncStatus maps an operation's lifecycle state onto the sync
// status reported for entities that carry no record of their own.
func (s OperationStatus) DerivedSyncStatus() SyncStatus {
	switch s {
	case OpCompleted:
		return SyncSynced
	case OpFailed:
		return SyncFailed
	}
	return SyncPending
}

// SyncOperation is a durable intent to propagate a local mutation to the
// remote system. At most one active (Pending or InProgress) operation
// exists per (EntityID, EntityType) pair; superseding operations collapse
// the prior pending one.
//
// Seq is a monotonic sequence number assigned at enqueue time. FIFO
// ordering within a priority uses Seq rather than CreatedAt so that
// equal wall-clock timestamps cannot produce ambiguous order.
type SyncOperation struct {
	ID              string
	EntityID        string
	EntityType      EntityType
	OperationType   OperationType
	Priority        Priority
	Payload         json.RawMessage
	Seq             int64
	CreatedAt       time.Time
	LastAttemptedAt time.Time // zero until first attempt
	AttemptCount    int
	Status          OperationStatus
	ErrorMessage    string
}
