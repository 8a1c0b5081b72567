// Package crypto encrypts secrets stored in gateway settings files.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the required size for AES-256 keys (32 bytes)
	KeySize = 32
	// NonceSize is the size of GCM nonce (12 bytes)
	NonceSize = 12

	prefixStart = "ENC[v"
	prefixEnd   = "]:"
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor seals values with AES-256-GCM under one key version. Output has
// the form ENC[vN]:base64(nonce|ciphertext|tag).
type Encryptor struct {
	aead    cipher.AEAD
	version int
}

// NewEncryptor creates an Encryptor for a 32 byte key.
func NewEncryptor(key []byte, version int) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Encryptor{aead: aead, version: version}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("%s%d%s", prefixStart, e.version, prefixEnd) + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. The version in the prefix is not
// checked here; KeyManager uses it to pick the key.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	_, payload, ok := split(ciphertext)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < NonceSize {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := e.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether s carries the ENC[vN]: prefix.
func IsEncrypted(s string) bool {
	_, _, ok := split(s)
	return ok
}

// ParseVersion extracts the key version from an encrypted value, or 0 when
// the value is not in the expected format.
func ParseVersion(ciphertext string) int {
	v, _, ok := split(ciphertext)
	if !ok {
		return 0
	}
	return v
}

func split(s string) (version int, payload string, ok bool) {
	if !strings.HasPrefix(s, prefixStart) {
		return 0, "", false
	}
	end := strings.Index(s, prefixEnd)
	if end == -1 {
		return 0, "", false
	}
	if _, err := fmt.Sscanf(s[len(prefixStart):end], "%d", &version); err != nil || version <= 0 {
		return 0, "", false
	}
	return version, s[end+len(prefixEnd):], true
}
