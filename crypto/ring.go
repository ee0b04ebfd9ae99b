package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
)

// Verification failure reasons surfaced in UNAUTHORIZED error details.
const (
	ReasonUnknownKeyID   = "unknown_key_id"
	ReasonBadSignature   = "bad_signature"
	ReasonUnsupportedAlg = "unsupported_alg"
)

var (
	ErrUnknownKeyID   = errors.New("crypto: " + ReasonUnknownKeyID)
	ErrBadSignature   = errors.New("crypto: " + ReasonBadSignature)
	ErrUnsupportedAlg = errors.New("crypto: " + ReasonUnsupportedAlg)
	ErrNoActiveKey    = errors.New("crypto: ring has no active signing key")
)

// VerifyReason maps a ring verification error onto its wire reason string.
func VerifyReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownKeyID):
		return ReasonUnknownKeyID
	case errors.Is(err, ErrUnsupportedAlg):
		return ReasonUnsupportedAlg
	default:
		return ReasonBadSignature
	}
}

// Ring holds the signing key material for one signature domain: a single
// active signer plus any number of verify-only public keys left over from
// rotation.
type Ring struct {
	active    SigningKey
	hasActive bool
	verifiers map[string]ed25519.PublicKey
}

// NewRing builds a ring around the supplied active key.
func NewRing(active SigningKey) *Ring {
	r := &Ring{verifiers: make(map[string]ed25519.PublicKey)}
	r.SetActive(active)
	return r
}

// VerifyOnlyRing builds a ring with no signer, only the supplied public keys.
func VerifyOnlyRing(keys map[string]ed25519.PublicKey) *Ring {
	r := &Ring{verifiers: make(map[string]ed25519.PublicKey, len(keys))}
	for id, pub := range keys {
		r.verifiers[id] = pub
	}
	return r
}

// SetActive installs the signer and registers its public half for verify.
func (r *Ring) SetActive(key SigningKey) {
	r.active = key
	r.hasActive = len(key.Private) == ed25519.PrivateKeySize
	if r.hasActive {
		r.verifiers[key.KeyID] = key.Public()
	}
}

// AddVerifier registers an additional verify-only public key.
func (r *Ring) AddVerifier(keyID string, pub ed25519.PublicKey) {
	r.verifiers[keyID] = pub
}

// ActiveKeyID reports the id of the signing key, empty when verify-only.
func (r *Ring) ActiveKeyID() string {
	if r == nil || !r.hasActive {
		return ""
	}
	return r.active.KeyID
}

// KeyIDs lists every key id the ring can verify, sorted.
func (r *Ring) KeyIDs() []string {
	ids := make([]string, 0, len(r.verifiers))
	for id := range r.verifiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sign produces a detached signature over payload with the active key.
func (r *Ring) Sign(payload []byte) (Signature, error) {
	if r == nil || !r.hasActive {
		return Signature{}, ErrNoActiveKey
	}
	sig := ed25519.Sign(r.active.Private, payload)
	return Signature{KeyID: r.active.KeyID, Alg: AlgEd25519, Sig: encodeSig(sig)}, nil
}

// Verify checks a detached signature against the ring's known public keys.
func (r *Ring) Verify(sig Signature, payload []byte) error {
	if sig.Alg != "" && sig.Alg != AlgEd25519 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlg, sig.Alg)
	}
	if r == nil {
		return ErrUnknownKeyID
	}
	pub, ok := r.verifiers[sig.KeyID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKeyID, sig.KeyID)
	}
	raw, err := decodeSig(sig.Sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ed25519.Verify(pub, payload, raw) {
		return ErrBadSignature
	}
	return nil
}

// Material bundles the four signature domains the engine maintains.
// Key material is loaded once at startup and read-only afterwards.
type Material struct {
	Events     *Ring
	Receipts   *Ring
	Delegation *Ring
	Consent    *Ring
}

// DevMaterial derives a deterministic full set of rings from a namespace
// label. Tests and local daemons use it in place of key ring files.
func DevMaterial(namespace string) *Material {
	return &Material{
		Events:     NewRing(DeriveKey("evt-1", namespace+"/events")),
		Receipts:   NewRing(DeriveKey("rcp-1", namespace+"/receipts")),
		Delegation: NewRing(DeriveKey("dlg-1", namespace+"/delegation")),
		Consent:    NewRing(DeriveKey("cns-1", namespace+"/consent")),
	}
}
