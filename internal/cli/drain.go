package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiftline/attend/internal/engine"
)

// DrainReport holds the outcome of one drain run.
type DrainReport struct {
	Outcome   string `json:"outcome"`
	Completed int    `json:"completed"`
	Transient int    `json:"transient"`
	Rejected  int    `json:"rejected"`
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		remote  string
		pubPath string
	)

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Push queued operations to the remote",
		Long: `Push queued operations to the remote.

Runs one synchronous drain: operations are pushed in priority order
until the queue has no eligible work. Transient failures stay queued
with backoff; rejections are terminal. A drain that empties the queue
records a full-sync checkpoint.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(rootOpts, remote, pubPath, cmd)
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "remote sync base URL")
	cmd.Flags().StringVar(&pubPath, "pubkey", "issuer.pub", "path to the issuer public key")
	cmd.MarkFlagRequired("remote")
	return cmd
}

func runDrain(opts *RootOptions, remote, pubPath string, cmd *cobra.Command) error {
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

	transport := engine.NewHTTPTransport(remote, nil)
	eng, err := engine.New(ctx, s, pub, transport, cfg, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "init engine", err)
	}

	formatter.VerboseLog("draining against %s", remote)
	result, err := eng.Drain(ctx, time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "drain", err)
	}

	report := DrainReport{
		Outcome:   result.Outcome.String(),
		Completed: result.Completed,
		Transient: result.Transient,
		Rejected:  result.Rejected,
	}
	text := fmt.Sprintf("%s: %d completed, %d transient, %d rejected",
		report.Outcome, report.Completed, report.Transient, report.Rejected)
	if emitErr := formatter.Emit(report, text); emitErr != nil {
		return emitErr
	}

	if result.Outcome != engine.DrainIdle {
		return NewExitError(ExitFailure, fmt.Sprintf("drain finished %s", report.Outcome))
	}
	return nil
}
