package engine

import (
	"sort"

	"github.com/google/uuid"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/policy"
	"swapring/state"
)

// IntentPayload is the operation payload for intents.create and
// intents.update. Update replaces the mutable fields wholesale.
type IntentPayload struct {
	ID                    string                      `json:"id,omitempty"`
	Offer                 []types.Asset               `json:"offer"`
	WantSpec              types.WantSpec              `json:"want_spec"`
	ValueBand             types.ValueBand             `json:"value_band"`
	TrustConstraints      types.TrustConstraints      `json:"trust_constraints"`
	TimeConstraints       types.TimeConstraints       `json:"time_constraints"`
	SettlementPreferences types.SettlementPreferences `json:"settlement_preferences"`
}

func validateIntentPayload(p IntentPayload) *errs.Error {
	if len(p.Offer) == 0 {
		return errs.SchemaInvalid("offer must contain at least one asset")
	}
	for _, asset := range p.Offer {
		if asset.Platform == "" || asset.AssetID == "" {
			return errs.SchemaInvalid("every offered asset needs platform and asset_id")
		}
	}
	switch p.WantSpec.Type {
	case types.WantSet:
		if len(p.WantSpec.AnyOf) == 0 {
			return errs.SchemaInvalid("want_spec set needs a non-empty any_of")
		}
	case types.WantSpecificAsset, types.WantCategory:
	default:
		return errs.SchemaInvalid("want_spec type %q is not recognised", p.WantSpec.Type)
	}
	if p.TrustConstraints.MaxCycleLength == 1 || p.TrustConstraints.MaxCycleLength < 0 {
		return errs.ConstraintViolation("max_cycle_length must be at least 2")
	}
	if p.TimeConstraints.ExpiresAt != "" {
		if _, err := types.ParseTime(p.TimeConstraints.ExpiresAt); err != nil {
			return errs.SchemaInvalid("time_constraints.expires_at: %v", err)
		}
	}
	if p.ValueBand.MinUSD > 0 && p.ValueBand.MaxUSD > 0 && p.ValueBand.MinUSD > p.ValueBand.MaxUSD {
		return errs.ConstraintViolation("value_band min_usd exceeds max_usd")
	}
	return nil
}

// CreateIntent implements intents.create.
func (e *Engine) CreateIntent(req Request, payload IntentPayload) (*Response, *errs.Error) {
	return e.mutate("intents.create", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if err := validateIntentPayload(payload); err != nil {
			return nil, err
		}
		intentID := payload.ID
		if intentID == "" {
			intentID = "intent_" + uuid.NewString()
		}
		if _, exists := snap.Intents[intentID]; exists {
			return nil, errs.Conflict("intent %s already exists", intentID)
		}
		intent := intentFromPayload(intentID, cc.actor, payload, cc.nowISO())
		if err := e.checkIntentPolicy(snap, cc, nil, intent); err != nil {
			return nil, err
		}
		snap.Intents[intentID] = intent
		return map[string]interface{}{"intent": intent}, nil
	})
}

// UpdateIntent implements intents.update.
func (e *Engine) UpdateIntent(req Request, payload IntentPayload) (*Response, *errs.Error) {
	return e.mutate("intents.update", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if payload.ID == "" {
			return nil, errs.SchemaInvalid("id is required")
		}
		if err := validateIntentPayload(payload); err != nil {
			return nil, err
		}
		prev, ok := snap.Intents[payload.ID]
		if !ok {
			return nil, errs.NotFound("intent %s not found", payload.ID)
		}
		if err := requireIntentOwner(prev, cc); err != nil {
			return nil, err
		}
		switch prev.Status {
		case types.IntentCancelled:
			return nil, errs.Conflict("intent %s is cancelled", payload.ID)
		case types.IntentReserved:
			return nil, errs.Conflict("intent %s is reserved by a cycle", payload.ID)
		}
		next := intentFromPayload(payload.ID, prev.Actor, payload, cc.nowISO())
		next.CreatedAt = prev.CreatedAt
		if err := e.checkIntentPolicy(snap, cc, prev, next); err != nil {
			return nil, err
		}
		snap.Intents[payload.ID] = next
		return map[string]interface{}{"intent": next}, nil
	})
}

// CancelPayload names one record for cancel/get style operations.
type CancelPayload struct {
	ID string `json:"id"`
}

// CancelIntent implements intents.cancel.
func (e *Engine) CancelIntent(req Request, payload CancelPayload) (*Response, *errs.Error) {
	return e.mutate("intents.cancel", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		prev, ok := snap.Intents[payload.ID]
		if !ok {
			return nil, errs.NotFound("intent %s not found", payload.ID)
		}
		if err := requireIntentOwner(prev, cc); err != nil {
			return nil, err
		}
		if prev.Status == types.IntentReserved {
			return nil, errs.Conflict("intent %s is reserved; decline its proposal first", payload.ID)
		}
		if prev.Status == types.IntentCancelled {
			return map[string]interface{}{"intent": prev}, nil
		}
		next := prev.Clone()
		next.Status = types.IntentCancelled
		next.UpdatedAt = cc.nowISO()
		if cc.delegation != nil {
			if err := policy.ApplyDailyCap(snap, cc.delegation, prev, next, cc.now); err != nil {
				return nil, err
			}
		}
		snap.Intents[payload.ID] = next
		return map[string]interface{}{"intent": next}, nil
	})
}

// ListIntentsPayload filters intents.list.
type ListIntentsPayload struct {
	Status types.IntentStatus `json:"status,omitempty"`
}

// ListIntents implements intents.list: the caller's own intents, or the
// delegation subject's for agents.
func (e *Engine) ListIntents(req Request, payload ListIntentsPayload) (*Response, *errs.Error) {
	return e.query("intents.list", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		var out []*types.SwapIntent
		for _, intent := range snap.Intents {
			if requireIntentOwner(intent, cc) != nil {
				continue
			}
			if payload.Status != "" && intent.Status != payload.Status {
				continue
			}
			out = append(out, intent)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return map[string]interface{}{"intents": out}, nil
	})
}

// GetIntent implements intents.get.
func (e *Engine) GetIntent(req Request, payload CancelPayload) (*Response, *errs.Error) {
	return e.query("intents.get", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		intent, ok := snap.Intents[payload.ID]
		if !ok {
			return nil, errs.NotFound("intent %s not found", payload.ID)
		}
		if err := requireIntentOwner(intent, cc); err != nil {
			return nil, err
		}
		return map[string]interface{}{"intent": intent}, nil
	})
}

func intentFromPayload(id string, actor types.Actor, p IntentPayload, nowISO string) *types.SwapIntent {
	trust := p.TrustConstraints
	if trust.MaxCycleLength == 0 {
		trust.MaxCycleLength = matchingDefaultMaxCycleLength
	}
	return &types.SwapIntent{
		ID:                    id,
		Actor:                 actor,
		Offer:                 types.CloneAssets(p.Offer),
		WantSpec:              p.WantSpec,
		ValueBand:             p.ValueBand,
		TrustConstraints:      trust,
		TimeConstraints:       p.TimeConstraints,
		SettlementPreferences: p.SettlementPreferences,
		Status:                types.IntentActive,
		CreatedAt:             nowISO,
		UpdatedAt:             nowISO,
	}
}

// checkIntentPolicy applies the delegated trading policy to one intent
// mutation: static limits, high-value consent, then the daily cap charge.
func (e *Engine) checkIntentPolicy(snap *state.Snapshot, cc *callContext, prev, next *types.SwapIntent) *errs.Error {
	if cc.delegation == nil {
		return nil
	}
	if err := e.evaluator.CheckIntentLimits(cc.delegation, next); err != nil {
		return err
	}
	if err := e.evaluator.CheckConsent(snap, cc.delegation, next.ID, next.ValueBand.MaxUSD, cc.consent, cc.operationID, cc.now); err != nil {
		return err
	}
	return policy.ApplyDailyCap(snap, cc.delegation, prev, next, cc.now)
}

func requireIntentOwner(intent *types.SwapIntent, cc *callContext) *errs.Error {
	if intent.Actor.Equal(cc.actor) {
		return nil
	}
	if cc.actor.Type == types.ActorAgent && cc.delegation != nil && cc.delegation.SubjectActor.Equal(intent.Actor) {
		return nil
	}
	if cc.delegation != nil && cc.actor.Type == types.ActorUser && intent.Actor.Type == types.ActorAgent && cc.delegation.PrincipalAgent.Equal(intent.Actor) && cc.delegation.SubjectActor.Equal(cc.actor) {
		return nil
	}
	return errs.Forbidden("caller does not own intent %s", intent.ID)
}
