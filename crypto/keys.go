package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// AlgEd25519 is the only signature algorithm the engine produces or accepts.
const AlgEd25519 = "ed25519"

// Signature is the detached signature record attached to signed payloads
// (events, receipts, delegation tokens, consent proofs).
type Signature struct {
	KeyID string `json:"key_id"`
	Alg   string `json:"alg"`
	Sig   string `json:"sig"`
}

// SigningKey pairs a key identifier with an ed25519 private key.
type SigningKey struct {
	KeyID   string
	Private ed25519.PrivateKey
}

// Public returns the ed25519 public key half.
func (k SigningKey) Public() ed25519.PublicKey {
	return k.Private.Public().(ed25519.PublicKey)
}

// GenerateKey creates a fresh random signing key under the given id.
func GenerateKey(keyID string) (SigningKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SigningKey{}, fmt.Errorf("crypto: generate key: %w", err)
	}
	return SigningKey{KeyID: keyID, Private: priv}, nil
}

// DeriveKey deterministically derives a signing key from a seed label. Used
// for tests and local development keystores; production keys come from the
// key ring files.
func DeriveKey(keyID, seedLabel string) SigningKey {
	seed := sha256.Sum256([]byte(seedLabel))
	return SigningKey{KeyID: keyID, Private: ed25519.NewKeyFromSeed(seed[:])}
}

func encodeSig(sig []byte) string { return base64.StdEncoding.EncodeToString(sig) }

func decodeSig(sig string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("crypto: signature is not valid base64: %w", err)
	}
	return raw, nil
}
