package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ringFile is the on-disk layout of one signature domain's key material.
// Seeds are base64 ed25519 seeds; verify_only carries base64 public keys of
// rotated-out signers that must remain verifiable.
type ringFile struct {
	Active     string            `yaml:"active"`
	Seeds      map[string]string `yaml:"seeds"`
	VerifyOnly map[string]string `yaml:"verify_only"`
}

// LoadRing reads a key ring file and materialises the ring. The active key
// id must resolve to one of the declared seeds.
func LoadRing(path string) (*Ring, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key ring %s: %w", path, err)
	}
	var file ringFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: parse key ring %s: %w", path, err)
	}
	seed, ok := file.Seeds[file.Active]
	if !ok {
		return nil, fmt.Errorf("crypto: key ring %s: active key %q has no seed", path, file.Active)
	}
	active, err := keyFromSeed(file.Active, seed)
	if err != nil {
		return nil, fmt.Errorf("crypto: key ring %s: %w", path, err)
	}
	ring := NewRing(active)
	for id, s := range file.Seeds {
		if id == file.Active {
			continue
		}
		key, err := keyFromSeed(id, s)
		if err != nil {
			return nil, fmt.Errorf("crypto: key ring %s: %w", path, err)
		}
		ring.AddVerifier(id, key.Public())
	}
	for id, pub := range file.VerifyOnly {
		decoded, err := base64.StdEncoding.DecodeString(pub)
		if err != nil || len(decoded) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("crypto: key ring %s: verify-only key %q is invalid", path, id)
		}
		ring.AddVerifier(id, ed25519.PublicKey(decoded))
	}
	return ring, nil
}

func keyFromSeed(keyID, seed string) (SigningKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(seed)
	if err != nil {
		return SigningKey{}, fmt.Errorf("seed for %q is not valid base64: %w", keyID, err)
	}
	if len(decoded) != ed25519.SeedSize {
		return SigningKey{}, fmt.Errorf("seed for %q must be %d bytes, got %d", keyID, ed25519.SeedSize, len(decoded))
	}
	return SigningKey{KeyID: keyID, Private: ed25519.NewKeyFromSeed(decoded)}, nil
}

// LoadMaterial loads the four domain rings from their respective files.
func LoadMaterial(eventsPath, receiptsPath, delegationPath, consentPath string) (*Material, error) {
	events, err := LoadRing(eventsPath)
	if err != nil {
		return nil, err
	}
	receipts, err := LoadRing(receiptsPath)
	if err != nil {
		return nil, err
	}
	delegation, err := LoadRing(delegationPath)
	if err != nil {
		return nil, err
	}
	consent, err := LoadRing(consentPath)
	if err != nil {
		return nil, err
	}
	return &Material{Events: events, Receipts: receipts, Delegation: delegation, Consent: consent}, nil
}
