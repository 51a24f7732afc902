package test

import (
	"context"
	"testing"

	"github.com/lightninglabs/subrelay/encryption"
	"github.com/lightninglabs/subrelay/keys"
)

// KeyBits is the modulus size used for test keys. It is smaller than the
// production default to keep key generation fast.
const KeyBits = 1024

// CiphertextLen is the base64 ciphertext length of a KeyBits key.
const CiphertextLen = 172

// CreateKeyFiles writes a fresh key pair into a temporary directory.
func CreateKeyFiles(t *testing.T) *keys.KeyFiles {
	t.Helper()

	files, err := keys.Generate(t.TempDir(), KeyBits)
	if err != nil {
		t.Fatalf("unable to generate keys: %v", err)
	}

	return files
}

// CreateKey returns a fresh in-memory key pair.
func CreateKey(t *testing.T) (*encryption.PrivateKey, *encryption.PublicKey) {
	t.Helper()

	priv, err := encryption.GeneratePrivateKey(KeyBits)
	if err != nil {
		t.Fatalf("unable to generate key: %v", err)
	}

	return priv, priv.Public()
}

// StaticCustodian returns fixed key files or a fixed error.
type StaticCustodian struct {
	Files *keys.KeyFiles
	Err   error
}

// A compile time check to ensure StaticCustodian implements keys.Custodian.
var _ keys.Custodian = (*StaticCustodian)(nil)

// GetEncryptionKeys returns the configured files or error.
func (s *StaticCustodian) GetEncryptionKeys(context.Context) (*keys.KeyFiles,
	error) {

	return s.Files, s.Err
}
