package embedcore_test

import (
	"testing"

	"github.com/AndrewDonelson/embedcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterSecret() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAES256GCM_RoundTrip(t *testing.T) {
	cipher, err := embedcore.NewAES256GCM(testMasterSecret())
	require.NoError(t, err)

	plain := []byte("per-user key material")
	ct, err := cipher.Encrypt(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, ct)

	decrypted, err := cipher.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)
}

func TestAES256GCM_InvalidKeyLength(t *testing.T) {
	_, err := embedcore.NewAES256GCM([]byte("short"))
	assert.ErrorIs(t, err, embedcore.ErrInvalidConfig)
}

func TestAES256GCM_TamperDetection(t *testing.T) {
	cipher, err := embedcore.NewAES256GCM(testMasterSecret())
	require.NoError(t, err)

	ct, err := cipher.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xFF

	_, err = cipher.Decrypt(ct)
	assert.ErrorIs(t, err, embedcore.ErrKeyCipher)
}

func TestAES256GCM_WrongMasterSecret(t *testing.T) {
	c1, err := embedcore.NewAES256GCM(testMasterSecret())
	require.NoError(t, err)
	other := testMasterSecret()
	other[0] ^= 0xFF
	c2, err := embedcore.NewAES256GCM(other)
	require.NoError(t, err)

	ct, err := c1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.Decrypt(ct)
	assert.ErrorIs(t, err, embedcore.ErrKeyCipher)
}

func TestAES256GCM_TruncatedCiphertext(t *testing.T) {
	cipher, err := embedcore.NewAES256GCM(testMasterSecret())
	require.NoError(t, err)

	_, err = cipher.Decrypt([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, embedcore.ErrKeyCipher)
}
