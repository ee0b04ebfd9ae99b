package engine

import (
	"context"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
)

// WebhookPayload is the operation payload for webhooks.proposals.ingest.
type WebhookPayload struct {
	Envelopes []*types.Event `json:"envelopes"`
}

// IngestWebhooks implements webhooks.proposals.ingest for partner-pushed
// proposal envelopes. The context bounds the ingestion rate limiter.
func (e *Engine) IngestWebhooks(ctx context.Context, req Request, payload WebhookPayload) (*Response, *errs.Error) {
	return e.mutate("webhooks.proposals.ingest", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if e.ingestor == nil {
			return nil, errs.Conflict("webhook ingestion is not configured")
		}
		if len(payload.Envelopes) == 0 {
			return nil, errs.SchemaInvalid("envelopes must not be empty")
		}
		result, err := e.ingestor.Ingest(ctx, snap, cc.actor.ID, cc.nowISO(), payload.Envelopes)
		if err != nil {
			return nil, errs.ConstraintViolation("webhook ingestion aborted: %v", err)
		}
		e.metrics.Webhooks.WithLabelValues("applied").Add(float64(result.Applied))
		e.metrics.Webhooks.WithLabelValues("duplicate").Add(float64(result.Duplicates))
		e.metrics.Webhooks.WithLabelValues("invalid").Add(float64(result.Invalid))
		return map[string]interface{}{"ingest": result}, nil
	})
}
