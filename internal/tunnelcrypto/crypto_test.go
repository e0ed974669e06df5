package tunnelcrypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedSecretAgreement(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	aliceSecret, err := alice.ComputeSecret(bob.PublicKey())
	require.NoError(t, err)
	bobSecret, err := bob.ComputeSecret(alice.PublicKey())
	require.NoError(t, err)

	assert.Equal(t, aliceSecret, bobSecret)
	assert.Len(t, aliceSecret, 32)
}

func TestComputeSecretRejectsBadKeys(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = kp.ComputeSecret("not base64!!!")
	assert.Error(t, err)

	// Zero is outside the valid range.
	zero := base64.StdEncoding.EncodeToString([]byte{0})
	_, err = kp.ComputeSecret(zero)
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	key, err := alice.ComputeSecret(bob.PublicKey())
	require.NoError(t, err)

	plaintext := []byte(`{"type":"auth:request","identityHash":"a1b2c3d4e5f60718"}`)
	sealed, err := Encrypt(key, plaintext)
	require.NoError(t, err)

	opened, err := Decrypt(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDecryptFailsClosedOnTampering(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	key, err := alice.ComputeSecret(bob.PublicKey())
	require.NoError(t, err)

	sealed, err := Encrypt(key, []byte("sensitive"))
	require.NoError(t, err)

	packed, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)

	// Flip one ciphertext bit.
	packed[len(packed)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(packed)

	_, err = Decrypt(key, tampered)
	assert.Error(t, err)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	a, err := GenerateKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyPair()
	require.NoError(t, err)
	c, err := GenerateKeyPair()
	require.NoError(t, err)

	keyAB, err := a.ComputeSecret(b.PublicKey())
	require.NoError(t, err)
	keyAC, err := a.ComputeSecret(c.PublicKey())
	require.NoError(t, err)

	sealed, err := Encrypt(keyAB, []byte("hello"))
	require.NoError(t, err)

	_, err = Decrypt(keyAC, sealed)
	assert.Error(t, err)
}

func TestDecryptRejectsTruncatedPayload(t *testing.T) {
	key := make([]byte, 32)
	short := base64.StdEncoding.EncodeToString([]byte("tooshort"))
	_, err := Decrypt(key, short)
	assert.Error(t, err)
}
