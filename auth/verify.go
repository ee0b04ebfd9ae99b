package auth

import (
	"time"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/crypto"
	"swapring/state"
)

// ResolveDelegation verifies a presented token and reconciles it with any
// persisted grant. The persisted record wins over token fields; a
// subject/principal mismatch between the two is FORBIDDEN. Revoked grants
// and, given an explicit now, expired grants are UNAUTHORIZED.
func ResolveDelegation(ring *crypto.Ring, snap *state.Snapshot, token string, now time.Time) (*types.Delegation, *errs.Error) {
	presented, sig, err := ParseDelegationToken(token)
	if err != nil {
		return nil, errs.Unauthorized("delegation token is malformed").Reason(crypto.ReasonBadSignature)
	}
	if err := VerifyDelegationSignature(ring, presented, sig); err != nil {
		return nil, errs.Unauthorized("delegation token signature rejected").Reason(crypto.VerifyReason(err))
	}
	effective := presented
	if persisted, ok := snap.Delegations[presented.DelegationID]; ok {
		if !persisted.SubjectActor.Equal(presented.SubjectActor) || !persisted.PrincipalAgent.Equal(presented.PrincipalAgent) {
			return nil, errs.Forbidden("delegation token does not match the persisted grant").
				WithDetail("delegation_id", presented.DelegationID)
		}
		effective = persisted.Clone()
	}
	if effective.RevokedAt != "" {
		return nil, errs.Unauthorized("delegation %s is revoked", effective.DelegationID).Reason("delegation_revoked")
	}
	if effective.ExpiresAt != "" {
		expiry, perr := types.ParseTime(effective.ExpiresAt)
		if perr == nil && now.After(expiry) {
			return nil, errs.Unauthorized("delegation %s is expired", effective.DelegationID).Reason("delegation_expired")
		}
	}
	if effective.SubjectActor.Type != types.ActorUser {
		return nil, errs.Forbidden("delegation subject must be a user")
	}
	return effective, nil
}
