package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "01234567890123456789012345678901"

func TestNewEncryptor_KeyLength(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)
	assert.NotNil(t, enc)

	_, err = NewEncryptor("too-short")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewEncryptor("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	token := "eyJhbGciOiJIUzI1NiJ9.bank-token"
	sealed, err := enc.Encrypt(token)
	require.NoError(t, err)
	assert.NotEqual(t, token, sealed)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, token, opened)
}

func TestEncrypt_EmptyString(t *testing.T) {
	enc, _ := NewEncryptor(testKey)

	sealed, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestEncrypt_NonceDiffers(t *testing.T) {
	enc, _ := NewEncryptor(testKey)

	c1, _ := enc.Encrypt("consent-123")
	c2, _ := enc.Encrypt("consent-123")
	assert.NotEqual(t, c1, c2)
}

func TestDecrypt_Rejects(t *testing.T) {
	enc, _ := NewEncryptor(testKey)
	sealed, _ := enc.Encrypt("secret data")

	_, err := enc.Decrypt(sealed[:len(sealed)-2] + "XX")
	assert.Error(t, err, "tampered ciphertext")

	_, err = enc.Decrypt("not-valid-base64!!!")
	assert.Error(t, err, "invalid base64")

	_, err = enc.Decrypt("YQ==")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	other, _ := NewEncryptor("98765432109876543210987654321098")
	_, err = other.Decrypt(sealed)
	assert.Error(t, err, "wrong key")
}

func TestNewEncryptorFromSecret_Deterministic(t *testing.T) {
	a, err := NewEncryptorFromSecret("correct horse battery staple")
	require.NoError(t, err)
	b, err := NewEncryptorFromSecret("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := a.Encrypt("token")
	require.NoError(t, err)
	opened, err := b.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", opened, "same secret must derive the same key")

	_, err = NewEncryptorFromSecret("")
	assert.Error(t, err)
}
