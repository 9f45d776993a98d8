package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shiftline/attend/internal/token"
)

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		keyPath  string
		location string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed attendance token",
		Long: `Issue a signed attendance token for a location.

Prints the wire-form token, exactly what a kiosk would display for an
employee to scan. Tokens are single-use and expire after the validity
window.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(rootOpts, keyPath, location, cmd)
		},
	}

	cmd.Flags().StringVar(&keyPath, "key", "issuer.key", "path to the issuer private key")
	cmd.Flags().StringVar(&location, "location", "", "location identifier")
	cmd.MarkFlagRequired("location")
	return cmd
}

func runIssue(opts *RootOptions, keyPath, location string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	priv, err := readPrivateKey(keyPath)
	if err != nil {
		return err
	}

	tok, err := token.NewIssuer(priv).Issue(location, time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "issue token", err)
	}
	wire := token.Encode(tok)

	formatter.VerboseLog("issued token %s for location %s", tok.ID, location)
	return formatter.Emit(
		map[string]string{"token": wire, "token_id": tok.ID},
		wire,
	)
}
