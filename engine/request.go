package engine

import (
	"encoding/json"
	"errors"

	"swapring/core/canonical"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/idempotency"
	"swapring/observability/logging"
	"swapring/state"
)

// Auth is the optional authentication envelope on a request.
type Auth struct {
	Delegation  string             `json:"delegation,omitempty"`
	NowISO      string             `json:"now_iso,omitempty"`
	Scopes      []string           `json:"scopes,omitempty"`
	UserConsent *types.UserConsent `json:"user_consent,omitempty"`
}

// Request is the common envelope around every operation input.
type Request struct {
	Actor          types.Actor `json:"actor"`
	Auth           *Auth       `json:"auth,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

// Response is the common envelope around every operation output. Mutations
// carry a correlation id.
type Response struct {
	CorrelationID string      `json:"correlation_id,omitempty"`
	Result        interface{} `json:"result,omitempty"`
}

// errReplayed signals that the idempotency ledger satisfied the call; the
// snapshot must not be persisted again.
var errReplayed = errors.New("engine: idempotent replay")

// eventSink is the per-operation event emitter handed to mutation bodies.
type eventSink = func(eventType, key string, payload map[string]interface{})

type mutateFn func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error)

// mutate wraps a state-writing operation: authz, idempotency, execution,
// event flush and response recording, in that order.
func (e *Engine) mutate(operationID string, req Request, payload interface{}, fn mutateFn) (*Response, *errs.Error) {
	cc, err := e.begin(operationID, req)
	if err != nil {
		e.countOutcome(operationID, err)
		return nil, err
	}
	if req.IdempotencyKey == "" {
		err := errs.SchemaInvalid("idempotency_key is required for %s", operationID)
		e.countOutcome(operationID, err)
		return nil, err
	}
	corr := correlationID(operationID, req.IdempotencyKey)
	scope := idempotency.ScopeKey(req.Actor, operationID, req.IdempotencyKey)
	hash, err := idempotency.HashPayload(payload)
	if err != nil {
		e.countOutcome(operationID, err)
		return nil, err
	}

	var resp *Response
	updateErr := e.store.Update(func(snap *state.Snapshot) error {
		record, cerr := idempotency.Check(snap, scope, hash)
		if cerr != nil {
			return cerr
		}
		if record != nil {
			stored := &Response{}
			if uerr := json.Unmarshal([]byte(record.Response), stored); uerr != nil {
				return errs.ConstraintViolation("stored idempotent response is unreadable")
			}
			resp = stored
			return errReplayed
		}
		result, oerr := fn(snap, cc, e.emitFor(snap, cc, corr))
		if oerr != nil {
			return oerr
		}
		resp = &Response{CorrelationID: corr, Result: result}
		enc, merr := canonical.Marshal(resp)
		if merr != nil {
			return errs.ConstraintViolation("response is not serializable")
		}
		idempotency.Record(snap, scope, hash, string(enc), cc.nowISO())
		return nil
	})

	switch {
	case updateErr == nil:
	case errors.Is(updateErr, errReplayed):
	default:
		var coded *errs.Error
		if errors.As(updateErr, &coded) {
			e.countOutcome(operationID, coded)
			return nil, coded
		}
		logging.ForOperation(e.log, operationID, corr).Error("operation failed", "err", updateErr)
		failure := errs.ConstraintViolation("state persistence failed")
		e.countOutcome(operationID, failure)
		return nil, failure
	}
	e.countOutcome(operationID, nil)
	return resp, nil
}

type queryFn func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error)

// query wraps a read-only operation.
func (e *Engine) query(operationID string, req Request, fn queryFn) (*Response, *errs.Error) {
	cc, err := e.begin(operationID, req)
	if err != nil {
		e.countOutcome(operationID, err)
		return nil, err
	}
	var result interface{}
	var qerr *errs.Error
	e.store.View(func(snap *state.Snapshot) {
		result, qerr = fn(snap, cc)
	})
	e.countOutcome(operationID, qerr)
	if qerr != nil {
		return nil, qerr
	}
	return &Response{Result: result}, nil
}

func (e *Engine) countOutcome(operationID string, err *errs.Error) {
	outcome := "ok"
	if err != nil {
		outcome = string(err.Code)
	}
	e.metrics.Operations.WithLabelValues(operationID, outcome).Inc()
}
