package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiftline/attend/internal/engine"
	"github.com/shiftline/attend/internal/token"
)

// SubmitResult holds the outcome of an attendance submission.
type SubmitResult struct {
	RecordID    string `json:"record_id,omitempty"`
	Status      string `json:"status,omitempty"`
	StaleWindow bool   `json:"stale_window"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		pubPath  string
		employee string
	)

	cmd := &cobra.Command{
		Use:   "submit <token>",
		Short: "Submit a token as an attendance check-in",
		Long: `Submit a token as an attendance check-in.

Validates the token, classifies the check-in against the location's
attendance policy, and atomically persists the record together with its
queued sync operation. The record syncs on the next drain.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(rootOpts, pubPath, employee, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&pubPath, "pubkey", "issuer.pub", "path to the issuer public key")
	cmd.Flags().StringVar(&employee, "employee", "", "employee identifier")
	cmd.MarkFlagRequired("employee")
	return cmd
}

func runSubmit(opts *RootOptions, pubPath, employee, raw string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)
	ctx := cmd.Context()

	pub, err := readPublicKey(pubPath)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	// Submission never pushes, so no transport is wired.
	eng, err := engine.New(ctx, s, pub, nil, cfg, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "init engine", err)
	}

	result, err := eng.SubmitToken(ctx, raw, employee, time.Now())
	if err != nil {
		var ve *token.ValidationError
		if errors.As(err, &ve) {
			out := SubmitResult{Code: string(ve.Code), Message: ve.Message}
			if emitErr := formatter.Emit(out, fmt.Sprintf("rejected: %s", ve)); emitErr != nil {
				return emitErr
			}
			return NewExitError(ExitFailure, string(ve.Code))
		}
		return WrapExitError(ExitCommandError, "submit attendance", err)
	}

	rec := result.Record
	text := fmt.Sprintf("recorded %s as %s (record %s)", employee, rec.Status, rec.ID)
	if result.StaleWindow {
		text += "\nwarning: offline limit exceeded, sync required"
	}
	return formatter.Emit(SubmitResult{
		RecordID:    rec.ID,
		Status:      string(rec.Status),
		StaleWindow: result.StaleWindow,
	}, text)
}
