package gateway

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// initKeysAAD domain-separates the init-frame key derivation and
// authenticates the GCM envelope. The execution plane holds the same bearer
// token and derives the same key; the gateway never sends provider keys in
// clear over the socket.
const initKeysAAD = "semibot:init:api_keys"

const gcmTagSize = 16

// SecretEnvelope is one AES-256-GCM encrypted secret as delivered in the
// init frame. All fields are base64.
type SecretEnvelope struct {
	Alg        string `json:"alg"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
}

// deriveInitKey derives the per-connection AES key from the bearer token.
func deriveInitKey(token string) [32]byte {
	return sha256.Sum256([]byte(initKeysAAD + ":" + token))
}

// encryptSecret seals one plaintext under the token-derived key with a fresh
// random IV.
func encryptSecret(token, plaintext string) (SecretEnvelope, error) {
	key := deriveInitKey(token)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return SecretEnvelope{}, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return SecretEnvelope{}, fmt.Errorf("create gcm: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return SecretEnvelope{}, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), []byte(initKeysAAD))
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return SecretEnvelope{
		Alg:        "aes-256-gcm",
		IV:         base64.StdEncoding.EncodeToString(iv),
		Tag:        base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// encryptAPIKeys seals every provider key under the connection's token.
// Providers whose key fails to seal are omitted rather than failing the
// handshake.
func encryptAPIKeys(token string, keys map[string]string) map[string]SecretEnvelope {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]SecretEnvelope, len(keys))
	for provider, key := range keys {
		env, err := encryptSecret(token, key)
		if err != nil {
			continue
		}
		out[provider] = env
	}
	return out
}

// decryptSecret reverses encryptSecret. Used by tests and by tooling that
// mimics the execution plane.
func decryptSecret(token string, env SecretEnvelope) (string, error) {
	key := deriveInitKey(token)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil {
		return "", fmt.Errorf("decode tag: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), []byte(initKeysAAD))
	if err != nil {
		return "", fmt.Errorf("open envelope: %w", err)
	}
	return string(plaintext), nil
}
