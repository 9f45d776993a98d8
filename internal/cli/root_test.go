package cli

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "attend", cmd.Use)
	assert.Contains(t, cmd.Long, "attendance")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"keygen", "issue", "validate", "submit", "status", "drain", "prune"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "attend.db", dbFlag.DefValue)
}

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"status", "--format", "xml", "--db", filepath.Join(t.TempDir(), "x.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
}

func TestKeygen_WritesKeypair(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "issuer")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"keygen", "--out", prefix})
	require.NoError(t, cmd.Execute())

	priv, err := readPrivateKey(prefix + ".key")
	require.NoError(t, err)
	pub, err := readPublicKey(prefix + ".pub")
	require.NoError(t, err)
	assert.Equal(t, priv.Public(), pub)

	info, err := os.Stat(prefix + ".key")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestIssueValidateSubmit_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "issuer")
	dbPath := filepath.Join(dir, "attend.db")

	run := func(args ...string) (string, error) {
		cmd := NewRootCommand()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--db", dbPath}, args...))
		err := cmd.Execute()
		return strings.TrimSpace(out.String()), err
	}

	_, err := run("keygen", "--out", prefix)
	require.NoError(t, err)

	wire, err := run("issue", "--key", prefix+".key", "--location", "loc-hq")
	require.NoError(t, err)
	assert.Equal(t, 5, len(strings.Split(wire, "|")))

	out, err := run("submit", wire, "--pubkey", prefix+".pub", "--employee", "emp-1")
	require.NoError(t, err)
	assert.Contains(t, out, "recorded emp-1")

	// The token was consumed by the submission: validating it now
	// reports a replay.
	out, err = run("validate", wire, "--pubkey", prefix+".pub")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "REPLAY_DETECTED")
}

func TestReadPrivateKey_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := readPrivateKey(filepath.Join(dir, "missing.key"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("not hex"), 0o600))
	_, err = readPrivateKey(bad)
	require.Error(t, err)

	short := filepath.Join(dir, "short.key")
	require.NoError(t, os.WriteFile(short, []byte(hex.EncodeToString([]byte("abc"))), 0o600))
	_, err = readPrivateKey(short)
	require.Error(t, err)
}
