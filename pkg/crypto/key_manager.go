package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	ErrKeyNotFound  = errors.New("encryption key not found")
	ErrKeyNotLoaded = errors.New("key manager has no keys")
)

// maxVersions bounds the MASTER_KEY_V<n> lookup.
const maxVersions = 10

// KeyManager holds one Encryptor per key version. New values are encrypted
// with the highest version; old values stay readable after a rotation.
type KeyManager struct {
	current    int
	encryptors map[int]*Encryptor
}

// NewKeyManager builds a manager from base64 encoded keys indexed by version.
func NewKeyManager(keys map[int]string) (*KeyManager, error) {
	if len(keys) == 0 {
		return nil, ErrKeyNotLoaded
	}
	km := &KeyManager{encryptors: make(map[int]*Encryptor, len(keys))}
	for version, encoded := range keys {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode key v%d: %w", version, err)
		}
		enc, err := NewEncryptor(key, version)
		if err != nil {
			return nil, fmt.Errorf("create encryptor v%d: %w", version, err)
		}
		km.encryptors[version] = enc
		if version > km.current {
			km.current = version
		}
	}
	return km, nil
}

// KeyManagerFromEnv loads prefix as version 1 and prefix_V2..prefix_V10 as
// later versions. It returns ErrKeyNotFound when the primary key is unset.
func KeyManagerFromEnv(prefix string) (*KeyManager, error) {
	primary := os.Getenv(prefix)
	if primary == "" {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, prefix)
	}
	keys := map[int]string{1: primary}
	for v := 2; v <= maxVersions; v++ {
		if k := os.Getenv(fmt.Sprintf("%s_V%d", prefix, v)); k != "" {
			keys[v] = k
		}
	}
	return NewKeyManager(keys)
}

// Encrypt encrypts plaintext with the current key version.
func (km *KeyManager) Encrypt(plaintext string) (string, error) {
	enc, ok := km.encryptors[km.current]
	if !ok {
		return "", ErrKeyNotLoaded
	}
	return enc.Encrypt(plaintext)
}

// Decrypt selects the key from the version prefix of ciphertext.
func (km *KeyManager) Decrypt(ciphertext string) (string, error) {
	version := ParseVersion(ciphertext)
	if version == 0 {
		return "", ErrInvalidCiphertext
	}
	enc, ok := km.encryptors[version]
	if !ok {
		return "", fmt.Errorf("%w: version %d", ErrKeyNotFound, version)
	}
	return enc.Decrypt(ciphertext)
}

// DecryptSettings returns a copy of settings with every encrypted value
// replaced by its plaintext. Keys are processed in sorted order so the first
// failing key is deterministic.
func (km *KeyManager) DecryptSettings(settings map[string]string) (map[string]string, error) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(settings))
	for _, k := range keys {
		v := settings[k]
		if IsEncrypted(v) {
			plain, err := km.Decrypt(v)
			if err != nil {
				return nil, fmt.Errorf("decrypt %q: %w", k, err)
			}
			v = plain
		}
		out[k] = v
	}
	return out, nil
}

// CurrentVersion returns the version new values are encrypted with.
func (km *KeyManager) CurrentVersion() int {
	return km.current
}

// GenerateKey returns a random AES-256 key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
