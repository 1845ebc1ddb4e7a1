// internal/utils/crypto.go
package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a credential written by SealCredential.
const sealedPrefix = "sealed:v1:"

// credentialAAD binds sealed values to the config file they live in.
var credentialAAD = []byte("dreamstruct/config/llm_config.api_key")

var ErrMalformedCredential = errors.New("malformed sealed credential")

func credentialCipher(secret string) (cipher.AEAD, error) {
	if secret == "" {
		return nil, errors.New("config secret is empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// IsSealed reports whether value was produced by SealCredential.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// SealCredential encrypts a credential with AES-GCM under a key derived from
// secret. The output is prefixed, base64 encoded and safe to store in JSON.
func SealCredential(plaintext, secret string) (string, error) {
	gcm, err := credentialCipher(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), credentialAAD)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenCredential reverses SealCredential.
func OpenCredential(value, secret string) (string, error) {
	if !IsSealed(value) {
		return "", ErrMalformedCredential
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	gcm, err := credentialCipher(secret)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrMalformedCredential
	}

	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, credentialAAD)
	if err != nil {
		return "", fmt.Errorf("open credential: %w", err)
	}
	return string(plain), nil
}
