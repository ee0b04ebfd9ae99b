// Package engine is the single-writer operation facade. Every documented
// operation enters here: authorization and policy run before any state
// write, mutations pass through the idempotency ledger, and the events an
// operation produces flush atomically with its state change.
package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"swapring/auth"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/crypto"
	"swapring/delivery"
	"swapring/matching"
	"swapring/observability"
	"swapring/policy"
	"swapring/settlement"
	"swapring/state"
	"swapring/tenancy"
)

// matchingDefaultMaxCycleLength is applied when an intent omits its trust
// constraint.
const matchingDefaultMaxCycleLength = 3

// Options carries the engine's tunables.
type Options struct {
	Bounds                matching.Bounds
	DepositWindow         time.Duration
	ProposalExpiryHorizon time.Duration
	AuthzEnabled          bool
}

// Engine owns every subsystem behind the writer.
type Engine struct {
	store     *state.Store
	keys      *crypto.Material
	manifest  auth.Manifest
	evaluator *policy.Evaluator
	settle    *settlement.Engine
	ingestor  *delivery.Ingestor
	rollout   *tenancy.RolloutPolicy
	metrics   *observability.EngineMetrics
	log       *slog.Logger
	opts      Options
	nowFn     func() time.Time
}

// New assembles the engine. The rollout policy and ingestor may be nil when
// partner features are unused.
func New(store *state.Store, keys *crypto.Material, evaluator *policy.Evaluator, ingestor *delivery.Ingestor, rollout *tenancy.RolloutPolicy, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DepositWindow <= 0 {
		opts.DepositWindow = 6 * time.Hour
	}
	if opts.ProposalExpiryHorizon <= 0 {
		opts.ProposalExpiryHorizon = 30 * time.Minute
	}
	return &Engine{
		store:     store,
		keys:      keys,
		manifest:  auth.DefaultManifest(),
		evaluator: evaluator,
		settle:    settlement.NewEngine(keys.Receipts),
		ingestor:  ingestor,
		rollout:   rollout,
		metrics:   observability.Engine(),
		log:       logger,
		opts:      opts,
		nowFn:     time.Now,
	}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// callContext is the resolved identity and clock for one invocation.
type callContext struct {
	operationID string
	actor       types.Actor
	delegation  *types.Delegation
	consent     *types.UserConsent
	scopes      []string
	now         time.Time
}

func (cc *callContext) nowISO() string { return types.FormatTime(cc.now) }

// begin resolves the caller's clock, delegation and authorization for one
// operation. Identity and scope failures surface here, before any
// operation-state read or idempotency-ledger access.
func (e *Engine) begin(operationID string, req Request) (*callContext, *errs.Error) {
	cc := &callContext{operationID: operationID, actor: req.Actor, now: e.nowFn()}
	if req.Auth != nil {
		cc.consent = req.Auth.UserConsent
		cc.scopes = req.Auth.Scopes
		if req.Auth.NowISO != "" {
			parsed, err := types.ParseTime(req.Auth.NowISO)
			if err != nil {
				return nil, errs.SchemaInvalid("auth.now_iso: %v", err)
			}
			cc.now = parsed
		}
		if req.Auth.Delegation != "" {
			var derr *errs.Error
			e.store.View(func(snap *state.Snapshot) {
				cc.delegation, derr = auth.ResolveDelegation(e.keys.Delegation, snap, req.Auth.Delegation, cc.now)
			})
			if derr != nil {
				return nil, derr
			}
		}
	}
	if e.opts.AuthzEnabled {
		if err := e.manifest.Authorize(operationID, req.Actor, cc.delegation, cc.scopes); err != nil {
			return nil, err
		}
	} else if req.Actor.Type == types.ActorAgent && cc.delegation == nil {
		return nil, errs.Unauthorized("agent %s requires a delegation", req.Actor.ID)
	}
	return cc, nil
}

// correlationID renders the mutation correlation id.
func correlationID(operationID, idempotencyKey string) string {
	return fmt.Sprintf("corr_%s_%s", strings.ReplaceAll(operationID, ".", "_"), idempotencyKey)
}

// emitFor builds the event sink for one operation. Vault lifecycle events
// land in the vault log; everything else appends to the main log.
func (e *Engine) emitFor(snap *state.Snapshot, cc *callContext, corr string) settlement.Emit {
	nowISO := cc.nowISO()
	return func(eventType, key string, payload map[string]interface{}) {
		evt := delivery.NewEvent(eventType, nowISO, corr, key, cc.actor, payload)
		if err := delivery.SignEvent(e.keys.Events, evt); err != nil {
			e.log.Error("event signing failed", "type", eventType, "err", err)
			return
		}
		if strings.HasPrefix(eventType, "vault.") {
			snap.AppendVaultEvent(evt)
		} else {
			snap.AppendEvent(evt)
		}
		if eventType == types.EventCycleStateChanged {
			if to, ok := payload["to_state"].(string); ok {
				e.metrics.Transitions.WithLabelValues(to).Inc()
			}
		}
	}
}

// quietHoursGuard refuses delegated writes into the commit/settlement path
// during the policy's quiet window.
func quietHoursGuard(cc *callContext) *errs.Error {
	if cc.delegation == nil {
		return nil
	}
	return policy.CheckQuietHours(cc.delegation.Policy.QuietHours, cc.now)
}
