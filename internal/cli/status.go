package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiftline/attend/internal/guard"
	"github.com/shiftline/attend/internal/model"
	"github.com/shiftline/attend/internal/store"
)

// EntityStatus reports the sync state of one entity.
type EntityStatus struct {
	EntityID   string `json:"entity_id"`
	SyncStatus string `json:"sync_status"`
}

// QueueSummary reports the overall state of the local database.
type QueueSummary struct {
	PendingOps           int64      `json:"pending_ops"`
	InProgressOps        int64      `json:"in_progress_ops"`
	FailedOps            int64      `json:"failed_ops"`
	UnsyncedRecords      int        `json:"unsynced_records"`
	LastFullSyncAt       *time.Time `json:"last_full_sync_at,omitempty"`
	OfflineLimitExceeded bool       `json:"offline_limit_exceeded"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [entity-id]",
		Short: "Show sync status for an entity or the whole queue",
		Long: `Show sync status for an entity or the whole queue.

With an entity id, reports that entity's sync lifecycle state. Without
arguments, summarizes queued operations, unsynced records, and the
offline-limit state.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runEntityStatus(rootOpts, args[0], cmd)
			}
			return runQueueSummary(rootOpts, cmd)
		},
	}
	return cmd
}

func runEntityStatus(opts *RootOptions, entityID string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := entitySyncStatus(cmd, s, entityID)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("status of %s", entityID), err)
	}

	return formatter.Emit(
		EntityStatus{EntityID: entityID, SyncStatus: string(status)},
		fmt.Sprintf("%s: %s", entityID, status),
	)
}

// entitySyncStatus resolves an entity's sync state: the record's own
// status when it is an attendance record, otherwise derived from its
// latest queued operation.
func entitySyncStatus(cmd *cobra.Command, s *store.Store, entityID string) (model.SyncStatus, error) {
	ctx := cmd.Context()
	if status, err := s.GetRecordSyncStatus(ctx, entityID); err == nil {
		return status, nil
	}

	op, err := s.LatestOperationForEntity(ctx, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no record or queued operation")
	}
	if err != nil {
		return "", err
	}
	return op.Status.DerivedSyncStatus(), nil
}

func runQueueSummary(opts *RootOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)
	ctx := cmd.Context()

	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	summary := QueueSummary{}
	if summary.PendingOps, err = s.CountOperationsByStatus(ctx, model.OpPending); err != nil {
		return WrapExitError(ExitCommandError, "count pending operations", err)
	}
	if summary.InProgressOps, err = s.CountOperationsByStatus(ctx, model.OpInProgress); err != nil {
		return WrapExitError(ExitCommandError, "count in-progress operations", err)
	}
	if summary.FailedOps, err = s.CountOperationsByStatus(ctx, model.OpFailed); err != nil {
		return WrapExitError(ExitCommandError, "count failed operations", err)
	}

	unsynced, err := s.ListUnsyncedRecords(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list unsynced records", err)
	}
	summary.UnsyncedRecords = len(unsynced)

	lastSync, err := s.LastFullSyncAt(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "read sync checkpoint", err)
	}
	if !lastSync.IsZero() {
		summary.LastFullSyncAt = &lastSync
	}

	g := guard.New(s, cfg.OfflineLimit.Duration)
	if summary.OfflineLimitExceeded, err = g.IsOfflineLimitExceeded(ctx, time.Now()); err != nil {
		return WrapExitError(ExitCommandError, "check offline limit", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "pending ops:       %d\n", summary.PendingOps)
	fmt.Fprintf(&b, "in-progress ops:   %d\n", summary.InProgressOps)
	fmt.Fprintf(&b, "failed ops:        %d\n", summary.FailedOps)
	fmt.Fprintf(&b, "unsynced records:  %d\n", summary.UnsyncedRecords)
	if summary.LastFullSyncAt != nil {
		fmt.Fprintf(&b, "last full sync:    %s\n", summary.LastFullSyncAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(&b, "last full sync:    never\n")
	}
	fmt.Fprintf(&b, "offline limit:     exceeded=%v (limit %s)", summary.OfflineLimitExceeded, g.Limit())

	return formatter.Emit(summary, b.String())
}
