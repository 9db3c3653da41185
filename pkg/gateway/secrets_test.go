package gateway

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptSecretRoundTrip(t *testing.T) {
	env, err := encryptSecret("bearer-token", "sk-super-secret")
	require.NoError(t, err)

	assert.Equal(t, "aes-256-gcm", env.Alg)

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	require.NoError(t, err)
	assert.Len(t, iv, 12)

	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	require.NoError(t, err)
	assert.Len(t, tag, 16)

	plaintext, err := decryptSecret("bearer-token", env)
	require.NoError(t, err)
	assert.Equal(t, "sk-super-secret", plaintext)
}

func TestDecryptSecretWrongToken(t *testing.T) {
	env, err := encryptSecret("bearer-token", "sk-super-secret")
	require.NoError(t, err)

	_, err = decryptSecret("another-token", env)
	assert.Error(t, err)
}

func TestDecryptSecretTamperedCiphertext(t *testing.T) {
	env, err := encryptSecret("bearer-token", "sk-super-secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xff
	env.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	_, err = decryptSecret("bearer-token", env)
	assert.Error(t, err)
}

func TestEncryptSecretFreshIVPerCall(t *testing.T) {
	a, err := encryptSecret("bearer-token", "same-plaintext")
	require.NoError(t, err)
	b, err := encryptSecret("bearer-token", "same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestEncryptAPIKeys(t *testing.T) {
	out := encryptAPIKeys("bearer-token", map[string]string{
		"openai":    "sk-aaa",
		"anthropic": "sk-bbb",
	})
	require.Len(t, out, 2)

	for provider, want := range map[string]string{"openai": "sk-aaa", "anthropic": "sk-bbb"} {
		plaintext, err := decryptSecret("bearer-token", out[provider])
		require.NoError(t, err)
		assert.Equal(t, want, plaintext)
	}
}

func TestEncryptAPIKeysEmpty(t *testing.T) {
	assert.Nil(t, encryptAPIKeys("bearer-token", nil))
	assert.Nil(t, encryptAPIKeys("bearer-token", map[string]string{}))
}

func TestDeriveInitKeyIsTokenBound(t *testing.T) {
	a := deriveInitKey("token-a")
	b := deriveInitKey("token-b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, deriveInitKey("token-a"))
}
