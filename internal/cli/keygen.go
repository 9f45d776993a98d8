package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 issuer keypair",
		Long: `Generate an ed25519 issuer keypair.

Writes the private seed to <out>.key (mode 0600) and the public key to
<out>.pub. The engine only ever needs the public key; the private seed
belongs on the issuing kiosk.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(rootOpts, out, cmd)
		},
	}

	cmd.Flags().StringVar(&out, "out", "issuer", "output file prefix")
	return cmd
}

func runKeygen(opts *RootOptions, out string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return WrapExitError(ExitCommandError, "generate keypair", err)
	}

	keyPath := out + ".key"
	pubPath := out + ".pub"

	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(priv.Seed())), 0o600); err != nil {
		return WrapExitError(ExitCommandError, "write private key", err)
	}
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0o644); err != nil {
		return WrapExitError(ExitCommandError, "write public key", err)
	}

	return formatter.Emit(
		map[string]string{"private_key": keyPath, "public_key": pubPath},
		fmt.Sprintf("wrote %s and %s", keyPath, pubPath),
	)
}

// readPrivateKey loads a hex-encoded ed25519 seed written by keygen.
func readPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read private key", err)
	}
	seed, err := hex.DecodeString(string(data))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid private key file %s", path))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// readPublicKey loads a hex-encoded ed25519 public key written by keygen.
func readPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read public key", err)
	}
	pub, err := hex.DecodeString(string(data))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid public key file %s", path))
	}
	return ed25519.PublicKey(pub), nil
}
