package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "go-auth-broker"
	keyringAccount = "encryption-key"

	// EncryptionKeyEnvVar supplies a base64 key when the OS vault is not
	// available, e.g. in containers and CI.
	EncryptionKeyEnvVar = "AUTH_BROKER_ENCRYPTION_KEY"

	keyFileName = "broker.key"
	keyByteSize = 32
)

// KeySource resolves the broker encryption key once per process. Resolution
// order: explicit config key, OS keychain, environment variable, key file.
// A freshly generated key is written back to the first writable backend so
// later runs can decrypt what this run stored.
type KeySource struct {
	explicitKey string
	filePath    string

	mu       sync.Mutex
	resolved []byte
	err      error
}

type KeySourceOption func(*KeySource)

func WithExplicitKey(key string) KeySourceOption {
	return func(source *KeySource) {
		source.explicitKey = strings.TrimSpace(key)
	}
}

func WithKeyFilePath(path string) KeySourceOption {
	return func(source *KeySource) {
		trimmed := strings.TrimSpace(path)
		if trimmed != "" {
			source.filePath = trimmed
		}
	}
}

func NewKeySource(opts ...KeySourceOption) *KeySource {
	source := &KeySource{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(source)
	}
	return source
}

// Resolve returns the 32-byte encryption key, caching the result so every
// caller in the process sees the same key.
func (s *KeySource) Resolve() ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: key source is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved != nil || s.err != nil {
		return s.resolved, s.err
	}

	key, err := s.resolve()
	if err != nil {
		s.err = err
		return nil, err
	}
	s.resolved = key
	return key, nil
}

func (s *KeySource) resolve() ([]byte, error) {
	if s.explicitKey != "" {
		key, err := decodeKey(s.explicitKey)
		if err != nil {
			return nil, fmt.Errorf("security: decode configured key: %w", err)
		}
		return key, nil
	}

	if stored, err := keyring.Get(keyringService, keyringAccount); err == nil {
		key, decodeErr := decodeKey(stored)
		if decodeErr == nil {
			return key, nil
		}
	}

	if fromEnv := strings.TrimSpace(os.Getenv(EncryptionKeyEnvVar)); fromEnv != "" {
		key, err := decodeKey(fromEnv)
		if err != nil {
			return nil, fmt.Errorf("security: decode %s: %w", EncryptionKeyEnvVar, err)
		}
		return key, nil
	}

	path, err := s.keyFilePath()
	if err != nil {
		return nil, err
	}
	if data, readErr := os.ReadFile(path); readErr == nil {
		key, decodeErr := decodeKey(strings.TrimSpace(string(data)))
		if decodeErr == nil {
			return key, nil
		}
	}

	key := make([]byte, keyByteSize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("security: generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)

	if err := keyring.Set(keyringService, keyringAccount, encoded); err == nil {
		return key, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("security: create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("security: persist key file: %w", err)
	}
	return key, nil
}

func (s *KeySource) keyFilePath() (string, error) {
	if s.filePath != "" {
		return s.filePath, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("security: resolve config directory: %w", err)
	}
	return filepath.Join(base, keyringService, keyFileName), nil
}

func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("empty key")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Accept raw key material as a fallback so operators can paste
		// passphrases; normalizeKey stretches it to 32 bytes.
		return normalizeKey([]byte(encoded)), nil
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("empty key")
	}
	return normalizeKey(decoded), nil
}
