package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-auth-broker/core"
)

const envelopePrefix = "authbroker.secret.v1:"

var (
	// ErrEncrypt marks any failure while sealing a secret.
	ErrEncrypt = errors.New("security: encrypt failed")
	// ErrDecrypt marks a malformed envelope or failed authentication; the
	// token manager treats it as corrupted state.
	ErrDecrypt = errors.New("security: decrypt failed")
)

type Option func(*BrokerSecretProvider)

// BrokerSecretProvider seals token material with AES-256-GCM under a
// process-wide key. The fresh nonce rides inside a JSON envelope so each
// ciphertext decrypts on its own.
type BrokerSecretProvider struct {
	key     []byte
	keyID   string
	version int
}

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func WithKeyID(id string) Option {
	return func(provider *BrokerSecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *BrokerSecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

func NewBrokerSecretProvider(keyMaterial []byte, opts ...Option) (*BrokerSecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &BrokerSecretProvider{
		key:     normalizeKey(key),
		keyID:   "broker-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func (p *BrokerSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: secret provider is nil", ErrEncrypt)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: plaintext is required", ErrEncrypt)
	}
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrEncrypt, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create gcm: %v", ErrEncrypt, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %v", ErrEncrypt, err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	data, err := json.Marshal(envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  "aes-256-gcm",
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode envelope: %v", ErrEncrypt, err)
	}

	return append([]byte(envelopePrefix), data...), nil
}

func (p *BrokerSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: secret provider is nil", ErrDecrypt)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext is required", ErrDecrypt)
	}

	payload := string(ciphertext)
	if !strings.HasPrefix(payload, envelopePrefix) {
		return nil, fmt.Errorf("%w: invalid envelope prefix", ErrDecrypt)
	}
	payload = strings.TrimPrefix(payload, envelopePrefix)

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrDecrypt, err)
	}

	if parsed.KeyID != "" && parsed.KeyID != p.keyID {
		return nil, fmt.Errorf("%w: key id mismatch: got %q want %q", ErrDecrypt, parsed.KeyID, p.keyID)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", ErrDecrypt, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext payload: %v", ErrDecrypt, err)
	}

	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrDecrypt, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create gcm: %v", ErrDecrypt, err)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open payload: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func (p *BrokerSecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*BrokerSecretProvider)(nil)
