package engine

import (
	"sort"

	"github.com/google/uuid"

	"swapring/auth"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
)

// MintDelegationPayload is the operation payload for delegations.mint. The
// subject is always the calling user.
type MintDelegationPayload struct {
	PrincipalAgent types.Actor            `json:"principal_agent"`
	Scopes         []string               `json:"scopes"`
	Policy         types.DelegationPolicy `json:"policy"`
	ExpiresAt      string                 `json:"expires_at,omitempty"`
}

// MintDelegation implements delegations.mint: the grant is persisted and the
// signed transport token returned to hand to the agent.
func (e *Engine) MintDelegation(req Request, payload MintDelegationPayload) (*Response, *errs.Error) {
	return e.mutate("delegations.mint", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if cc.actor.Type != types.ActorUser {
			return nil, errs.Forbidden("only users mint delegations")
		}
		if payload.PrincipalAgent.Type != types.ActorAgent || payload.PrincipalAgent.ID == "" {
			return nil, errs.SchemaInvalid("principal_agent must be an agent actor")
		}
		if payload.ExpiresAt != "" {
			if _, err := types.ParseTime(payload.ExpiresAt); err != nil {
				return nil, errs.SchemaInvalid("expires_at: %v", err)
			}
		}
		delegation := &types.Delegation{
			DelegationID:   "dlg_" + uuid.NewString(),
			PrincipalAgent: payload.PrincipalAgent,
			SubjectActor:   cc.actor,
			Scopes:         append([]string(nil), payload.Scopes...),
			Policy:         payload.Policy,
			IssuedAt:       cc.nowISO(),
			ExpiresAt:      payload.ExpiresAt,
		}
		token, err := auth.MintDelegationToken(e.keys.Delegation, delegation)
		if err != nil {
			e.log.Error("delegation signing failed", "err", err)
			return nil, errs.ConstraintViolation("delegation signing failed")
		}
		snap.Delegations[delegation.DelegationID] = delegation
		return map[string]interface{}{
			"delegation": delegation,
			"token":      token,
		}, nil
	})
}

// RevokeDelegationPayload names one grant.
type RevokeDelegationPayload struct {
	DelegationID string `json:"delegation_id"`
}

// RevokeDelegation implements delegations.revoke. Revocation is permanent
// and takes effect on the next token presentation.
func (e *Engine) RevokeDelegation(req Request, payload RevokeDelegationPayload) (*Response, *errs.Error) {
	return e.mutate("delegations.revoke", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		delegation, ok := snap.Delegations[payload.DelegationID]
		if !ok {
			return nil, errs.NotFound("delegation %s not found", payload.DelegationID)
		}
		if !delegation.SubjectActor.Equal(cc.actor) {
			return nil, errs.Forbidden("only the subject may revoke delegation %s", payload.DelegationID)
		}
		if delegation.RevokedAt != "" {
			return map[string]interface{}{"delegation": delegation}, nil
		}
		next := delegation.Clone()
		next.RevokedAt = cc.nowISO()
		snap.Delegations[payload.DelegationID] = next
		return map[string]interface{}{"delegation": next}, nil
	})
}

// ListDelegations implements delegations.list: grants where the caller is
// subject, or principal for agent callers.
func (e *Engine) ListDelegations(req Request) (*Response, *errs.Error) {
	return e.query("delegations.list", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		var out []*types.Delegation
		for _, delegation := range snap.Delegations {
			if delegation.SubjectActor.Equal(cc.actor) || delegation.PrincipalAgent.Equal(cc.actor) {
				out = append(out, delegation)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].DelegationID < out[j].DelegationID })
		return map[string]interface{}{"delegations": out}, nil
	})
}
