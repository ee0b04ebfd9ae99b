// Package idempotency implements the at-most-once mutation ledger. Each
// mutation is scoped by (actor, operation, idempotency key); the first
// invocation records its payload hash and response, exact replays return the
// stored response without side effects, and a payload mismatch under the
// same scope is a hard error.
package idempotency

import (
	"fmt"

	"swapring/core/canonical"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
)

// ScopeKey renders the ledger key for one mutation scope.
func ScopeKey(actor types.Actor, operationID, idempotencyKey string) string {
	return fmt.Sprintf("%s|%s|%s", actor.Key(), operationID, idempotencyKey)
}

// HashPayload hashes an operation payload for collision detection.
func HashPayload(payload interface{}) (string, *errs.Error) {
	hash, err := canonical.PayloadHash(payload)
	if err != nil {
		return "", errs.SchemaInvalid("payload is not serializable: %v", err)
	}
	return hash, nil
}

// Check looks up the scope. It returns the stored record on an exact
// replay, nil when the scope is fresh, and a reuse error when the payload
// hash differs.
func Check(snap *state.Snapshot, scopeKey, payloadHash string) (*types.IdempotencyRecord, *errs.Error) {
	record, ok := snap.Idempotency[scopeKey]
	if !ok {
		return nil, nil
	}
	if record.PayloadHash != payloadHash {
		return nil, errs.IdempotencyMismatch(record.PayloadHash, payloadHash)
	}
	return record, nil
}

// Record stores the response for a completed first invocation.
func Record(snap *state.Snapshot, scopeKey, payloadHash, response, recordedAt string) {
	snap.Idempotency[scopeKey] = &types.IdempotencyRecord{
		PayloadHash: payloadHash,
		Response:    response,
		RecordedAt:  recordedAt,
	}
}
