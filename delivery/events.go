// Package delivery builds, signs and verifies the engine's event envelopes
// and ingests partner webhooks. Event ids are deterministic over
// `type|correlation_id|key` so byte-equal replays yield byte-equal ids.
package delivery

import (
	"fmt"

	"swapring/core/canonical"
	"swapring/core/types"
	"swapring/crypto"
)

// EventID derives the deterministic 12-hex event identifier.
func EventID(eventType, correlationID, key string) string {
	return canonical.ShortID(fmt.Sprintf("%s|%s|%s", eventType, correlationID, key))
}

// NewEvent assembles an unsigned envelope. `key` is the type-specific
// discriminator (proposal id, transition edge, intentId|depositRef, ...).
func NewEvent(eventType, occurredAt, correlationID, key string, actor types.Actor, payload map[string]interface{}) *types.Event {
	return &types.Event{
		EventID:       EventID(eventType, correlationID, key),
		Type:          eventType,
		OccurredAt:    occurredAt,
		CorrelationID: correlationID,
		Actor:         actor,
		Payload:       payload,
	}
}

// SignEvent signs the envelope in place with the event ring. The signature
// covers the canonical envelope with the signature field stripped.
func SignEvent(ring *crypto.Ring, evt *types.Event) error {
	payload, err := signablePayload(evt)
	if err != nil {
		return err
	}
	sig, err := ring.Sign(payload)
	if err != nil {
		return err
	}
	evt.Signature = &sig
	return nil
}

// VerifyEvent checks an envelope signature against the supplied ring.
func VerifyEvent(ring *crypto.Ring, evt *types.Event) error {
	if evt.Signature == nil {
		return crypto.ErrBadSignature
	}
	payload, err := signablePayload(evt)
	if err != nil {
		return err
	}
	return ring.Verify(*evt.Signature, payload)
}

func signablePayload(evt *types.Event) ([]byte, error) {
	unsigned := evt.Clone()
	unsigned.Signature = nil
	return canonical.Marshal(unsigned)
}
