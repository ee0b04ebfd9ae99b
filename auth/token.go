// Package auth parses and verifies delegation tokens and gates operations
// through the per-operation manifest.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"swapring/core/canonical"
	"swapring/core/types"
	"swapring/crypto"
)

// DelegationTokenPrefix is the wire prefix of a signed delegation token.
const DelegationTokenPrefix = "sgdt1."

type delegationToken struct {
	Delegation types.Delegation `json:"delegation"`
	Signature  crypto.Signature `json:"signature"`
}

// MintDelegationToken signs a delegation and renders the transport token.
func MintDelegationToken(ring *crypto.Ring, delegation *types.Delegation) (string, error) {
	payload, err := canonical.Marshal(delegation)
	if err != nil {
		return "", fmt.Errorf("auth: encode delegation: %w", err)
	}
	sig, err := ring.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("auth: sign delegation: %w", err)
	}
	token := delegationToken{Delegation: *delegation.Clone(), Signature: sig}
	enc, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("auth: encode token: %w", err)
	}
	return DelegationTokenPrefix + base64.RawURLEncoding.EncodeToString(enc), nil
}

// ParseDelegationToken decodes a token without verifying its signature.
func ParseDelegationToken(token string) (*types.Delegation, crypto.Signature, error) {
	if !strings.HasPrefix(token, DelegationTokenPrefix) {
		return nil, crypto.Signature{}, fmt.Errorf("auth: token missing %q prefix", DelegationTokenPrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, DelegationTokenPrefix))
	if err != nil {
		return nil, crypto.Signature{}, fmt.Errorf("auth: token is not valid base64url: %w", err)
	}
	decoded := delegationToken{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, crypto.Signature{}, fmt.Errorf("auth: token is not valid JSON: %w", err)
	}
	delegation := decoded.Delegation
	return &delegation, decoded.Signature, nil
}

// VerifyDelegationSignature checks a parsed token signature against the
// delegation ring.
func VerifyDelegationSignature(ring *crypto.Ring, delegation *types.Delegation, sig crypto.Signature) error {
	payload, err := canonical.Marshal(delegation)
	if err != nil {
		return fmt.Errorf("auth: encode delegation: %w", err)
	}
	return ring.Verify(sig, payload)
}
