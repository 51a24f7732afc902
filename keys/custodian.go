package keys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightninglabs/subrelay/encryption"
)

const (
	// PrivateKeyFilename is the file name of the local private key inside
	// the key directory.
	PrivateKeyFilename = "private.pem"

	// PublicKeyFilename is the file name of the local public key inside
	// the key directory.
	PublicKeyFilename = "public.pem"
)

var (
	// ErrKeysNotFound is returned when the key directory does not hold a
	// complete key pair.
	ErrKeysNotFound = errors.New("encryption key pair not found")
)

// KeyFiles points at the two halves of the process's own key pair.
type KeyFiles struct {
	// PrivKeyFile is the path of the PEM encoded private key.
	PrivKeyFile string

	// PubKeyFile is the path of the PEM encoded public key.
	PubKeyFile string
}

// Custodian supplies the process's own key pair on demand.
type Custodian interface {
	// GetEncryptionKeys returns the paths of the current key pair.
	GetEncryptionKeys(ctx context.Context) (*KeyFiles, error)
}

// FileCustodian serves a key pair stored in a directory.
type FileCustodian struct {
	dir      string
	generate bool
	bits     int
}

// A compile time check to ensure FileCustodian implements Custodian.
var _ Custodian = (*FileCustodian)(nil)

// NewFileCustodian returns a custodian for the key pair in dir. If generate
// is set, a missing key pair is created on first use.
func NewFileCustodian(dir string, generate bool) *FileCustodian {
	return &FileCustodian{
		dir:      dir,
		generate: generate,
		bits:     encryption.DefaultKeyBits,
	}
}

// GetEncryptionKeys returns the key pair paths, generating the pair if
// allowed and missing.
func (f *FileCustodian) GetEncryptionKeys(_ context.Context) (*KeyFiles,
	error) {

	files := filesIn(f.dir)
	if fileExists(files.PrivKeyFile) && fileExists(files.PubKeyFile) {
		return files, nil
	}

	if !f.generate {
		return nil, fmt.Errorf("%w in %v", ErrKeysNotFound, f.dir)
	}

	log.Infof("Generating new %d bit key pair in %v", f.bits, f.dir)

	return Generate(f.dir, f.bits)
}

// Generate writes a fresh key pair into dir and returns its paths. Existing
// files are overwritten.
func Generate(dir string, bits int) (*KeyFiles, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	priv, err := encryption.GeneratePrivateKey(bits)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	pubPEM, err := priv.Public().MarshalPEM()
	if err != nil {
		return nil, err
	}

	files := filesIn(dir)
	err = os.WriteFile(files.PrivKeyFile, priv.MarshalPEM(), 0600)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(files.PubKeyFile, pubPEM, 0644); err != nil {
		return nil, err
	}

	return files, nil
}

// LoadPair reads and parses both halves of the key pair.
func LoadPair(files *KeyFiles) (*encryption.PrivateKey,
	*encryption.PublicKey, error) {

	pubPEM, err := os.ReadFile(files.PubKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read public key: %w", err)
	}

	pub, err := encryption.ParsePublicKey(pubPEM)
	if err != nil {
		return nil, nil, err
	}

	privPEM, err := os.ReadFile(files.PrivKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key: %w", err)
	}

	priv, err := encryption.ParsePrivateKey(privPEM)
	if err != nil {
		return nil, nil, err
	}

	return priv, pub, nil
}

func filesIn(dir string) *KeyFiles {
	return &KeyFiles{
		PrivKeyFile: filepath.Join(dir, PrivateKeyFilename),
		PubKeyFile:  filepath.Join(dir, PublicKeyFilename),
	}
}

// fileExists returns true if the file exists, and false otherwise.
func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}
