package engine

import (
	"swapring/core/errs"
	"swapring/state"
)

// Health implements health.read: a liveness summary over the snapshot.
func (e *Engine) Health(req Request) (*Response, *errs.Error) {
	return e.query("health.read", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		return map[string]interface{}{
			"status":        "ok",
			"intents":       len(snap.Intents),
			"proposals":     len(snap.Proposals),
			"timelines":     len(snap.Timelines),
			"receipts":      len(snap.Receipts),
			"events":        len(snap.Events),
			"vault_events":  len(snap.VaultEvents),
			"matching_runs": len(snap.MatchingRuns),
		}, nil
	})
}
