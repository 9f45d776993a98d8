package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired nonces from the replay ledger",
		Long: `Remove expired nonces from the replay ledger.

Only entries past their retention expiry are removed; every token that
could still validate under any tolerated clock keeps its nonce.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(rootOpts, cmd)
		},
	}
	return cmd
}

func runPrune(opts *RootOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)
	ctx := cmd.Context()

	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	pruned, err := s.PruneNonces(ctx, time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "prune nonces", err)
	}

	remaining, err := s.NonceCount(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "count nonces", err)
	}

	return formatter.Emit(
		map[string]int64{"pruned": pruned, "remaining": remaining},
		fmt.Sprintf("pruned %d nonces, %d remaining", pruned, remaining),
	)
}
