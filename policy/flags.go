// Package policy evaluates delegated trading policy: per-swap and per-day
// value limits, cycle-length bounds, quiet hours, and high-value consent
// proofs with replay protection.
package policy

import "fmt"

// Enforcement stages the consent checks behind orthogonal flags. The
// strongest combination enables everything; weaker stagings are accepted
// only when internally consistent.
type Enforcement struct {
	ConsentTier      bool `toml:"consent_tier"`
	ConsentBinding   bool `toml:"consent_binding"`
	ConsentSignature bool `toml:"consent_signature"`
	ConsentReplay    bool `toml:"consent_replay"`
	ConsentChallenge bool `toml:"consent_challenge"`
}

// FullEnforcement enables every consent check.
func FullEnforcement() Enforcement {
	return Enforcement{
		ConsentTier:      true,
		ConsentBinding:   true,
		ConsentSignature: true,
		ConsentReplay:    true,
		ConsentChallenge: true,
	}
}

// Validate rejects nonsensical flag combinations at startup: replay
// protection is meaningless on unverified proofs, and challenge binding
// presupposes both signature verification and field binding.
func (e Enforcement) Validate() error {
	if e.ConsentReplay && !e.ConsentSignature {
		return fmt.Errorf("policy: consent_replay requires consent_signature")
	}
	if e.ConsentChallenge && !e.ConsentSignature {
		return fmt.Errorf("policy: consent_challenge requires consent_signature")
	}
	if e.ConsentChallenge && !e.ConsentBinding {
		return fmt.Errorf("policy: consent_challenge requires consent_binding")
	}
	return nil
}
