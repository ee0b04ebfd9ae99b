package auth

import (
	"sort"

	"swapring/core/errs"
	"swapring/core/types"
)

// Scope identifiers granted through delegations or presented by callers.
const (
	ScopeIntentsRead      = "swap_intents:read"
	ScopeIntentsWrite     = "swap_intents:write"
	ScopeMatchingRun      = "matching:run"
	ScopeProposalsRead    = "cycle_proposals:read"
	ScopeProposalsRespond = "cycle_proposals:respond"
	ScopeSettlementRead   = "settlement:read"
	ScopeSettlementWrite  = "settlement:write"
	ScopeReceiptsRead     = "receipts:read"
	ScopeVaultRead        = "vault:read"
	ScopeVaultWrite       = "vault:write"
	ScopeDelegationsRead  = "delegations:read"
	ScopeDelegationsWrite = "delegations:manage"
	ScopeWebhooksIngest   = "webhooks:ingest"
)

// OperationSpec declares who may invoke one operation and with which scopes.
type OperationSpec struct {
	Required          bool
	AllowedActorTypes []types.ActorType
	RequiredScopes    []string
}

// Manifest maps operation ids onto their authorization requirements.
type Manifest map[string]OperationSpec

func users(scopes ...string) OperationSpec {
	return OperationSpec{
		Required:          true,
		AllowedActorTypes: []types.ActorType{types.ActorUser, types.ActorAgent},
		RequiredScopes:    scopes,
	}
}

func usersAndPartners(scopes ...string) OperationSpec {
	return OperationSpec{
		Required:          true,
		AllowedActorTypes: []types.ActorType{types.ActorUser, types.ActorAgent, types.ActorPartner},
		RequiredScopes:    scopes,
	}
}

func partners(scopes ...string) OperationSpec {
	return OperationSpec{
		Required:          true,
		AllowedActorTypes: []types.ActorType{types.ActorPartner},
		RequiredScopes:    scopes,
	}
}

// DefaultManifest returns the engine's operation manifest.
func DefaultManifest() Manifest {
	return Manifest{
		"intents.create": users(ScopeIntentsWrite),
		"intents.update": users(ScopeIntentsWrite),
		"intents.cancel": users(ScopeIntentsWrite),
		"intents.list":   users(ScopeIntentsRead),
		"intents.get":    users(ScopeIntentsRead),

		"marketplace.matching.runs.create": usersAndPartners(ScopeMatchingRun),
		"marketplace.matching.runs.get":    usersAndPartners(ScopeMatchingRun),

		"cycle_proposals.list":    usersAndPartners(ScopeProposalsRead),
		"cycle_proposals.get":     usersAndPartners(ScopeProposalsRead),
		"cycle_proposals.accept":  users(ScopeProposalsRespond),
		"cycle_proposals.decline": users(ScopeProposalsRespond),

		"settlement.start":             usersAndPartners(ScopeSettlementWrite),
		"settlement.deposit_confirmed": users(ScopeSettlementWrite),
		"settlement.begin_execution":   usersAndPartners(ScopeSettlementWrite),
		"settlement.complete":          usersAndPartners(ScopeSettlementWrite),
		"settlement.status":            usersAndPartners(ScopeSettlementRead),

		"receipts.get": usersAndPartners(ScopeReceiptsRead),

		"vault.deposit":  users(ScopeVaultWrite),
		"vault.reserve":  users(ScopeVaultWrite),
		"vault.release":  users(ScopeVaultWrite),
		"vault.withdraw": users(ScopeVaultWrite),
		"vault.get":      users(ScopeVaultRead),
		"vault.list":     users(ScopeVaultRead),

		"delegations.mint": {
			Required:          true,
			AllowedActorTypes: []types.ActorType{types.ActorUser},
			RequiredScopes:    []string{ScopeDelegationsWrite},
		},
		"delegations.revoke": {
			Required:          true,
			AllowedActorTypes: []types.ActorType{types.ActorUser},
			RequiredScopes:    []string{ScopeDelegationsWrite},
		},
		"delegations.list": users(ScopeDelegationsRead),

		"webhooks.proposals.ingest": partners(ScopeWebhooksIngest),

		"control.expire_deposit_window":    partners(),
		"control.sweep_expiring_proposals": partners(),

		"health.read": {Required: false},
	}
}

// Authorize gates one invocation. Agent actors must carry a verified
// delegation whose principal is the caller; their effective scopes are the
// delegation's. User and partner actors act under their own authority and
// are scope-checked only when they present an explicit scope set.
func (m Manifest) Authorize(operationID string, actor types.Actor, delegation *types.Delegation, presentedScopes []string) *errs.Error {
	spec, ok := m[operationID]
	if !ok {
		return errs.Forbidden("unknown operation %q", operationID)
	}
	if !spec.Required {
		return nil
	}
	if !actor.Type.Valid() {
		return errs.Unauthorized("actor type %q is not recognised", actor.Type)
	}
	allowed := false
	for _, t := range spec.AllowedActorTypes {
		if t == actor.Type {
			allowed = true
			break
		}
	}
	if !allowed {
		return errs.Forbidden("actor type %q may not invoke %s", actor.Type, operationID)
	}

	var granted []string
	switch {
	case actor.Type == types.ActorAgent:
		if delegation == nil {
			return errs.Unauthorized("agent %s requires a delegation for %s", actor.ID, operationID)
		}
		if !delegation.PrincipalAgent.Equal(actor) {
			return errs.Forbidden("delegation principal does not match the caller")
		}
		granted = delegation.Scopes
	case presentedScopes != nil:
		granted = presentedScopes
	default:
		return nil
	}

	missing := missingScopes(spec.RequiredScopes, granted)
	if len(missing) > 0 {
		return errs.InsufficientScope("missing required scopes for %s", operationID).
			WithDetail("required_scopes", spec.RequiredScopes).
			WithDetail("missing_scopes", missing)
	}
	return nil
}

func missingScopes(required, granted []string) []string {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}
	missing := []string{}
	for _, s := range required {
		if !have[s] {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)
	return missing
}
