package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultKeyBits is the modulus size used for generated key pairs.
	DefaultKeyBits = 2048

	pemTypePKCS1Public  = "RSA PUBLIC KEY"
	pemTypePKIXPublic   = "PUBLIC KEY"
	pemTypePKCS1Private = "RSA PRIVATE KEY"
	pemTypePKCS8Private = "PRIVATE KEY"
)

var (
	// ErrNoPEMBlock is returned when key material does not contain a PEM
	// block.
	ErrNoPEMBlock = errors.New("no PEM block found in key material")

	// ErrNotRSAKey is returned when a parsed key is not an RSA key.
	ErrNotRSAKey = errors.New("key is not an RSA key")
)

// Encrypter encrypts a plaintext and returns the base64 encoded ciphertext.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

// Decrypter decrypts a base64 encoded ciphertext.
type Decrypter interface {
	Decrypt(ciphertext string) ([]byte, error)
}

// PublicKey is an RSA public key that encrypts with PKCS #1 v1.5 padding. The
// length of the produced ciphertext only depends on the modulus size.
type PublicKey struct {
	key  *rsa.PublicKey
	rand io.Reader
}

// A compile time check to ensure PublicKey implements Encrypter.
var _ Encrypter = (*PublicKey)(nil)

// NewPublicKey wraps an existing RSA public key.
func NewPublicKey(key *rsa.PublicKey) *PublicKey {
	return &PublicKey{key: key, rand: rand.Reader}
}

// ParsePublicKey parses a PEM encoded PKIX or PKCS #1 RSA public key.
func ParsePublicKey(material []byte) (*PublicKey, error) {
	block, _ := pem.Decode(material)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	switch block.Type {
	case pemTypePKCS1Public:
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs1 public key: %w", err)
		}

		return NewPublicKey(key), nil

	case pemTypePKIXPublic:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkix public key: %w", err)
		}

		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSAKey
		}

		return NewPublicKey(rsaKey), nil

	default:
		return nil, fmt.Errorf("unsupported public key block %q",
			block.Type)
	}
}

// Encrypt encrypts the plaintext and returns it base64 encoded.
func (p *PublicKey) Encrypt(plaintext []byte) (string, error) {
	cipher, err := rsa.EncryptPKCS1v15(p.rand, p.key, plaintext)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(cipher), nil
}

// CiphertextLen returns the length of the base64 ciphertext this key
// produces.
func (p *PublicKey) CiphertextLen() int {
	return base64.StdEncoding.EncodedLen(p.key.Size())
}

// MarshalPEM encodes the key as a PKIX PEM block.
func (p *PublicKey) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(p.key)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypePKIXPublic,
		Bytes: der,
	}), nil
}

// PrivateKey is an RSA private key decrypting PKCS #1 v1.5 ciphertexts.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// A compile time check to ensure PrivateKey implements Decrypter.
var _ Decrypter = (*PrivateKey)(nil)

// GeneratePrivateKey creates a fresh key pair with the given modulus size.
func GeneratePrivateKey(bits int) (*PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}

	return &PrivateKey{key: key}, nil
}

// ParsePrivateKey parses a PEM encoded PKCS #1 or PKCS #8 RSA private key.
func ParsePrivateKey(material []byte) (*PrivateKey, error) {
	block, _ := pem.Decode(material)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	switch block.Type {
	case pemTypePKCS1Private:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs1 private key: %w",
				err)
		}

		return &PrivateKey{key: key}, nil

	case pemTypePKCS8Private:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 private key: %w",
				err)
		}

		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrNotRSAKey
		}

		return &PrivateKey{key: rsaKey}, nil

	default:
		return nil, fmt.Errorf("unsupported private key block %q",
			block.Type)
	}
}

// Decrypt decodes the base64 ciphertext and decrypts it.
func (p *PrivateKey) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	return rsa.DecryptPKCS1v15(nil, p.key, raw)
}

// Public returns the public half of the key pair.
func (p *PrivateKey) Public() *PublicKey {
	return NewPublicKey(&p.key.PublicKey)
}

// MarshalPEM encodes the key as a PKCS #1 PEM block.
func (p *PrivateKey) MarshalPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypePKCS1Private,
		Bytes: x509.MarshalPKCS1PrivateKey(p.key),
	})
}
