// Package credential seals per-strategy signing keys at rest and opens them
// for the duration of a single dispatch.
package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// ErrMissing is returned when a strategy has no usable signing key.
var ErrMissing = errors.New("signing credential missing")

// Store encrypts keys with AES-256-GCM. The strategy ID is bound as
// additional data so a sealed key only opens for the strategy it was made for.
type Store struct {
	aead cipher.AEAD
}

// NewStore creates a store from a 32-byte key-encryption key.
func NewStore(kek []byte) (*Store, error) {
	if len(kek) != 32 {
		return nil, fmt.Errorf("key-encryption key must be 32 bytes, got %d", len(kek))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Store{aead: aead}, nil
}

// Seal encrypts key for strategyID and returns hex(nonce || ciphertext).
func (s *Store) Seal(strategyID string, key []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, key, []byte(strategyID))
	return hex.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal for the same strategyID.
func (s *Store) Open(strategyID, sealed string) ([]byte, error) {
	raw, err := hex.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decoding sealed key: %w", err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, errors.New("sealed key too short")
	}
	key, err := s.aead.Open(nil, raw[:ns], raw[ns:], []byte(strategyID))
	if err != nil {
		return nil, errors.New("sealed key failed authentication")
	}
	return key, nil
}

// Generate creates a fresh signing key for strategyID and returns it sealed,
// together with the address it controls. The plaintext key never leaves
// this function.
func (s *Store) Generate(strategyID string) (sealed string, owner common.Address, err error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", common.Address{}, fmt.Errorf("generating key: %w", err)
	}
	raw := crypto.FromECDSA(key)
	defer zero(raw)
	sealed, err = s.Seal(strategyID, raw)
	if err != nil {
		return "", common.Address{}, err
	}
	return sealed, crypto.PubkeyToAddress(key.PublicKey), nil
}

// Resolve opens the strategy's sealed key.
func (s *Store) Resolve(_ context.Context, st types.Strategy) (types.Credential, error) {
	if st.EncryptedKey == "" {
		return types.Credential{}, fmt.Errorf("%w: strategy %s has no key", ErrMissing, st.ID)
	}
	key, err := s.Open(st.ID, st.EncryptedKey)
	if err != nil {
		return types.Credential{}, fmt.Errorf("%w: strategy %s: %v", ErrMissing, st.ID, err)
	}
	return types.NewCredential(key), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
