package keys

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFileCustodian asserts that a missing key pair is only generated when
// allowed, and that the generated pair loads and round trips.
func TestFileCustodian(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := NewFileCustodian(dir, false).GetEncryptionKeys(ctx)
	require.ErrorIs(t, err, ErrKeysNotFound)

	custodian := NewFileCustodian(dir, true)
	custodian.bits = 1024

	files, err := custodian.GetEncryptionKeys(ctx)
	require.NoError(t, err)
	require.FileExists(t, files.PrivKeyFile)
	require.FileExists(t, files.PubKeyFile)

	// A second call returns the same files without regenerating.
	before, err := os.ReadFile(files.PrivKeyFile)
	require.NoError(t, err)

	again, err := NewFileCustodian(dir, false).GetEncryptionKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, files, again)

	after, err := os.ReadFile(files.PrivKeyFile)
	require.NoError(t, err)
	require.Equal(t, before, after)

	priv, pub, err := LoadPair(files)
	require.NoError(t, err)

	cipher, err := pub.Encrypt([]byte("escrow"))
	require.NoError(t, err)

	plain, err := priv.Decrypt(cipher)
	require.NoError(t, err)
	require.Equal(t, "escrow", string(plain))
}

// TestLoadPairCorrupt asserts that unreadable key files are reported.
func TestLoadPairCorrupt(t *testing.T) {
	dir := t.TempDir()
	files, err := Generate(dir, 1024)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(files.PubKeyFile, []byte("junk"), 0600))

	_, _, err = LoadPair(files)
	require.Error(t, err)

	_, _, err = LoadPair(&KeyFiles{
		PrivKeyFile: dir + "/missing",
		PubKeyFile:  dir + "/missing",
	})
	require.Error(t, err)
}
