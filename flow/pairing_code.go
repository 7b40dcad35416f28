package flow

import (
	"crypto/rand"
	"fmt"
	"io"
)

// pairingCodeAlphabet drops 0/O/1/I/L so codes survive being read aloud or
// typed from a phone screen.
const (
	pairingCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	// PairingCodeLength is fixed; callers may pre-validate typed input.
	PairingCodeLength = 8
)

// GeneratePairingCode builds the 8 character human-typeable code that links
// a hosted login back to the waiting client.
func GeneratePairingCode() (string, error) {
	raw := make([]byte, PairingCodeLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("flow: generate pairing code: %w", err)
	}
	code := make([]byte, PairingCodeLength)
	for i, b := range raw {
		code[i] = pairingCodeAlphabet[int(b)%len(pairingCodeAlphabet)]
	}
	return string(code), nil
}
