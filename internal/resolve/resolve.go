package resolve

import (
	"time"

	"github.com/shiftline/attend/internal/model"
)

// Strategy selects how a (local, remote) divergence is merged.
type Strategy int

const (
	// LastWriteWins compares entity-level UpdatedAt; the later side wins
	// wholesale. Used for low-risk entities.
	LastWriteWins Strategy = iota + 1

	// FieldMerge takes each field from whichever side modified it more
	// recently. Requires per-field timestamps in the documents.
	FieldMerge

	// BusinessRule is FieldMerge plus domain precedence: a remote
	// terminal decision (approved/rejected) always wins on decision
	// fields, while non-decision fields follow the more recently edited
	// side. Default for entities carrying an authoritative approval state.
	BusinessRule
)

func (s Strategy) String() string {
	switch s {
	case LastWriteWins:
		return "LastWriteWins"
	case FieldMerge:
		return "FieldMerge"
	case BusinessRule:
		return "BusinessRule"
	}
	return "Unknown"
}

// Table maps entity types to their resolution strategy. Entity types
// without an explicit entry use BusinessRule, the safe default for
// anything that may carry an authoritative approval state.
type Table map[model.EntityType]Strategy

// DefaultTable returns the engine's standard strategy selection.
func DefaultTable() Table {
	return Table{
		model.EntityAttendance:   FieldMerge,
		model.EntityLeaveRequest: BusinessRule,
		model.EntityEmployee:     FieldMerge,
		model.EntityNotification: LastWriteWins,
	}
}

// For returns the strategy for an entity type.
func (t Table) For(entityType model.EntityType) Strategy {
	if s, ok := t[entityType]; ok {
		return s
	}
	return BusinessRule
}

// decisionFields carry authoritative approval state under BusinessRule.
var decisionFields = map[string]bool{
	"status":     true,
	"decision":   true,
	"decided_by": true,
	"decided_at": true,
}

// terminalDecisions are remote decision values that always win.
var terminalDecisions = map[string]bool{
	"approved": true,
	"rejected": true,
}

// Resolve merges local and remote versions of an entity.
//
// Ties are broken toward remote: when both sides carry the same
// timestamp the remote value wins, which makes resolution deterministic
// and idempotent (Resolve(Resolve(l, r), r) == Resolve(l, r)).
func Resolve(local, remote Document, strategy Strategy) Document {
	switch strategy {
	case LastWriteWins:
		return resolveLastWriteWins(local, remote)
	case FieldMerge:
		return resolveFieldMerge(local, remote)
	default:
		return resolveBusinessRule(local, remote)
	}
}

func resolveLastWriteWins(local, remote Document) Document {
	if local.UpdatedAt.After(remote.UpdatedAt) {
		return local
	}
	return remote
}

func resolveFieldMerge(local, remote Document) Document {
	merged := Document{
		EntityID:  remote.EntityID,
		UpdatedAt: laterOf(local.UpdatedAt, remote.UpdatedAt),
		Fields:    make(map[string]Field, len(remote.Fields)),
	}

	for name, rf := range remote.Fields {
		merged.Fields[name] = rf
	}
	for name, lf := range local.Fields {
		rf, ok := merged.Fields[name]
		if !ok {
			merged.Fields[name] = lf
			continue
		}
		if newerThan(lf, local.UpdatedAt, rf, remote.UpdatedAt) {
			merged.Fields[name] = lf
		}
	}
	return merged
}

func resolveBusinessRule(local, remote Document) Document {
	merged := resolveFieldMerge(local, remote)
	if !hasTerminalDecision(remote) {
		return merged
	}
	for name, rf := range remote.Fields {
		if decisionFields[name] {
			merged.Fields[name] = rf
		}
	}
	return merged
}

// newerThan reports whether the local field strictly beats the remote
// one. Fields without their own timestamp inherit the entity-level one.
func newerThan(lf Field, localAt time.Time, rf Field, remoteAt time.Time) bool {
	lt := lf.UpdatedAt
	if lt.IsZero() {
		lt = localAt
	}
	rt := rf.UpdatedAt
	if rt.IsZero() {
		rt = remoteAt
	}
	return lt.After(rt)
}

func hasTerminalDecision(d Document) bool {
	f, ok := d.Fields["status"]
	if !ok {
		return false
	}
	s, ok := f.Value.(string)
	return ok && terminalDecisions[s]
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
