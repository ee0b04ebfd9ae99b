package policy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"swapring/core/canonical"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/crypto"
	"swapring/state"
)

// ConsentProofPrefix is the wire prefix of a signed consent proof token.
const ConsentProofPrefix = "sgcp2."

// ConsentProofPayload is the signed binding inside an sgcp2 token. The
// challenge variant additionally binds the operation id and challenge id.
type ConsentProofPayload struct {
	ConsentID    string `json:"consent_id"`
	Subject      string `json:"subject"`
	DelegationID string `json:"delegation_id"`
	IntentID     string `json:"intent_id"`
	AmountCents  int64  `json:"amount_cents"`
	Nonce        string `json:"nonce"`
	OperationID  string `json:"operation_id,omitempty"`
	ChallengeID  string `json:"challenge_id,omitempty"`
}

type consentProofToken struct {
	Consent   ConsentProofPayload `json:"consent"`
	Signature crypto.Signature    `json:"signature"`
}

// AmountCents converts a USD value into the proof's integer binding form.
func AmountCents(usd float64) int64 { return int64(math.Round(usd * 100)) }

// MintConsentProof signs a consent binding and renders the transport token.
func MintConsentProof(ring *crypto.Ring, payload ConsentProofPayload) (string, error) {
	enc, err := canonical.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("policy: encode consent payload: %w", err)
	}
	sig, err := ring.Sign(enc)
	if err != nil {
		return "", fmt.Errorf("policy: sign consent payload: %w", err)
	}
	token, err := json.Marshal(consentProofToken{Consent: payload, Signature: sig})
	if err != nil {
		return "", fmt.Errorf("policy: encode consent token: %w", err)
	}
	return ConsentProofPrefix + base64.RawURLEncoding.EncodeToString(token), nil
}

// ParseConsentProof decodes a token without verifying its signature.
func ParseConsentProof(token string) (ConsentProofPayload, crypto.Signature, error) {
	if !strings.HasPrefix(token, ConsentProofPrefix) {
		return ConsentProofPayload{}, crypto.Signature{}, fmt.Errorf("policy: proof missing %q prefix", ConsentProofPrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, ConsentProofPrefix))
	if err != nil {
		return ConsentProofPayload{}, crypto.Signature{}, fmt.Errorf("policy: proof is not valid base64url: %w", err)
	}
	decoded := consentProofToken{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ConsentProofPayload{}, crypto.Signature{}, fmt.Errorf("policy: proof is not valid JSON: %w", err)
	}
	return decoded.Consent, decoded.Signature, nil
}

// requiredTier picks the consent tier for a value against the threshold:
// passkey above 1.5x the threshold, step_up otherwise.
func requiredTier(maxUSD, threshold float64) string {
	if maxUSD > threshold*1.5 {
		return types.ConsentTierPasskey
	}
	return types.ConsentTierStepUp
}

func tierSatisfies(presented, required string) bool {
	if presented == required {
		return true
	}
	return presented == types.ConsentTierPasskey && required == types.ConsentTierStepUp
}

// CheckConsent enforces the high-value consent requirement for one intent
// mutation. It is a no-op below the delegation's threshold. When replay
// enforcement is active the (consent_id, subject, delegation_id, nonce)
// tuple is recorded so a second presentation is refused.
func (e *Evaluator) CheckConsent(snap *state.Snapshot, delegation *types.Delegation, intentID string, maxUSD float64, consent *types.UserConsent, operationID string, now time.Time) *errs.Error {
	if delegation == nil {
		return nil
	}
	threshold := delegation.Policy.HighValueConsentThresholdUSD
	if threshold <= 0 || maxUSD <= threshold {
		return nil
	}
	if consent == nil || consent.ConsentProof == "" {
		return errs.Forbidden("mutation above %0.2f USD requires user consent", threshold).
			Reason("consent_required")
	}
	if e.flags.ConsentTier {
		required := requiredTier(maxUSD, threshold)
		if !tierSatisfies(consent.ConsentTier, required) {
			return errs.Forbidden("consent tier %q is insufficient", consent.ConsentTier).
				Reason("consent_tier_insufficient").
				WithDetail("required_tier", required)
		}
	}
	payload, sig, err := ParseConsentProof(consent.ConsentProof)
	if err != nil {
		return errs.Unauthorized("consent proof is malformed").Reason(crypto.ReasonBadSignature)
	}
	if e.flags.ConsentSignature {
		enc, merr := canonical.Marshal(payload)
		if merr != nil {
			return errs.Unauthorized("consent proof is malformed").Reason(crypto.ReasonBadSignature)
		}
		if verr := e.consentRing.Verify(sig, enc); verr != nil {
			return errs.Unauthorized("consent proof signature rejected").Reason(crypto.VerifyReason(verr))
		}
	}
	if e.flags.ConsentBinding {
		if payload.ConsentID != consent.ConsentID ||
			payload.Subject != delegation.SubjectActor.Key() ||
			payload.DelegationID != delegation.DelegationID ||
			payload.IntentID != intentID ||
			payload.AmountCents != AmountCents(maxUSD) {
			return errs.Forbidden("consent proof does not bind this mutation").
				Reason("consent_binding_mismatch")
		}
	}
	if e.flags.ConsentChallenge {
		if payload.OperationID != operationID || payload.ChallengeID == "" || payload.ChallengeID != consent.ChallengeID {
			return errs.Forbidden("consent proof does not bind the challenge").
				Reason("consent_challenge_mismatch")
		}
	}
	if consent.ApprovedMaxUSD != nil && *consent.ApprovedMaxUSD < maxUSD {
		return errs.Forbidden("consent approves at most %0.2f USD", *consent.ApprovedMaxUSD).
			Reason("consent_limit_exceeded")
	}
	if consent.ExpiresAt != "" {
		expiry, perr := types.ParseTime(consent.ExpiresAt)
		if perr == nil && now.After(expiry) {
			return errs.Forbidden("consent expired at %s", consent.ExpiresAt).
				Reason("consent_expired")
		}
	}
	if e.flags.ConsentReplay {
		replayKey := fmt.Sprintf("%s|%s|%s|%s", payload.ConsentID, payload.Subject, payload.DelegationID, payload.Nonce)
		if _, seen := snap.PolicyConsentReplay[replayKey]; seen {
			return errs.Forbidden("consent proof nonce was already used").
				Reason("consent_proof_replayed")
		}
		snap.PolicyConsentReplay[replayKey] = types.FormatTime(now)
	}
	return nil
}
