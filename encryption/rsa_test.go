package encryption

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRoundTrip asserts that a ciphertext produced by a public key decrypts
// back to the plaintext with its private key, for both PEM encodings.
func TestRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey(1024)
	require.NoError(t, err)

	pubPEM, err := priv.Public().MarshalPEM()
	require.NoError(t, err)

	pub, err := ParsePublicKey(pubPEM)
	require.NoError(t, err)

	parsedPriv, err := ParsePrivateKey(priv.MarshalPEM())
	require.NoError(t, err)

	plaintext := []byte(`["addr1","addr2"]`)
	cipher, err := pub.Encrypt(plaintext)
	require.NoError(t, err)
	require.Len(t, cipher, pub.CiphertextLen())

	decrypted, err := parsedPriv.Decrypt(cipher)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

// TestCiphertextLen asserts that the ciphertext length is fixed for a key
// size regardless of the plaintext.
func TestCiphertextLen(t *testing.T) {
	priv, err := GeneratePrivateKey(DefaultKeyBits)
	require.NoError(t, err)

	pub := priv.Public()
	require.Equal(t, 344, pub.CiphertextLen())

	for _, plaintext := range []string{"a", `{"n":"9999.99999999"}`} {
		cipher, err := pub.Encrypt([]byte(plaintext))
		require.NoError(t, err)
		require.Len(t, cipher, 344)
	}
}

// TestParseErrors covers malformed key material.
func TestParseErrors(t *testing.T) {
	_, err := ParsePublicKey([]byte("not a key"))
	require.ErrorIs(t, err, ErrNoPEMBlock)

	_, err = ParsePrivateKey(nil)
	require.ErrorIs(t, err, ErrNoPEMBlock)

	priv, err := GeneratePrivateKey(1024)
	require.NoError(t, err)

	// A private key block is not accepted as a public key.
	_, err = ParsePublicKey(priv.MarshalPEM())
	require.Error(t, err)

	_, err = priv.Decrypt("%%%")
	require.Error(t, err)
}
