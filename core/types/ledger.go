package types

// IdempotencyRecord stores the outcome of the first invocation under one
// (actor, operation, key) scope. Replays with the same payload hash return
// the stored response byte-for-byte; a different hash is a reuse error.
type IdempotencyRecord struct {
	PayloadHash string `json:"payload_hash"`
	Response    string `json:"response"`
	RecordedAt  string `json:"recorded_at"`
}

// TenancyRecord scopes a cycle or proposal to the partner that recorded it.
type TenancyRecord struct {
	PartnerID string `json:"partner_id"`
}

// Tenancy is the per-partner scoping index.
type Tenancy struct {
	Cycles    map[string]TenancyRecord `json:"cycles,omitempty"`
	Proposals map[string]TenancyRecord `json:"proposals,omitempty"`
}
