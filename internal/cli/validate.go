package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiftline/attend/internal/token"
)

// ValidationResult holds token validation results.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	TokenID string `json:"token_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var pubPath string

	cmd := &cobra.Command{
		Use:   "validate <token>",
		Short: "Validate a wire-form attendance token",
		Long: `Validate a wire-form attendance token.

Checks structure, signature, validity window, and replay status against
the local nonce ledger. A successful validation consumes the token's
nonce: validating the same token twice reports a replay.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, pubPath, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&pubPath, "pubkey", "issuer.pub", "path to the issuer public key")
	return cmd
}

func runValidate(opts *RootOptions, pubPath, raw string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

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

	validator := token.NewValidator(pub, s,
		token.WithValidityWindow(cfg.ValidityWindow.Duration),
		token.WithSkewTolerance(cfg.ClockSkewTolerance.Duration),
		token.WithNonceSafetyMargin(cfg.NonceSafetyMargin.Duration),
	)

	validated, err := validator.Validate(cmd.Context(), raw, time.Now())
	if err != nil {
		var ve *token.ValidationError
		if errors.As(err, &ve) {
			result := ValidationResult{Valid: false, TokenID: ve.TokenID, Code: string(ve.Code), Message: ve.Message}
			if emitErr := formatter.Emit(result, fmt.Sprintf("invalid: %s", ve)); emitErr != nil {
				return emitErr
			}
			return NewExitError(ExitFailure, string(ve.Code))
		}
		return WrapExitError(ExitCommandError, "validate token", err)
	}

	tok := validated.Token()
	return formatter.Emit(
		ValidationResult{Valid: true, TokenID: tok.ID},
		fmt.Sprintf("valid: token %s (location %s, issued %s)", tok.ID, tok.LocationID, tok.IssuedAt.Format(time.RFC3339)),
	)
}
