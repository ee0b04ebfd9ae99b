package types

// QuietHours is a local-time window during which delegated write operations
// on the commit/settlement path are refused. A window wraps midnight when
// start > end; start == end means always in-window.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
	TZ    string `json:"tz"`
}

// DelegationPolicy bounds what a delegated agent may do on the subject's
// behalf. Zero-valued limits are treated as unset.
type DelegationPolicy struct {
	MaxValuePerSwapUSD           float64     `json:"max_value_per_swap_usd,omitempty"`
	MaxValuePerDayUSD            float64     `json:"max_value_per_day_usd,omitempty"`
	MaxCycleLength               int         `json:"max_cycle_length,omitempty"`
	MinConfidenceScore           float64     `json:"min_confidence_score,omitempty"`
	RequireEscrow                *bool       `json:"require_escrow,omitempty"`
	QuietHours                   *QuietHours `json:"quiet_hours,omitempty"`
	HighValueConsentThresholdUSD float64     `json:"high_value_consent_threshold_usd,omitempty"`
}

// Delegation is a signed grant allowing an agent to act for a user subject
// to the embedded policy. Persisted records take precedence over presented
// token fields.
type Delegation struct {
	DelegationID   string           `json:"delegation_id"`
	PrincipalAgent Actor            `json:"principal_agent"`
	SubjectActor   Actor            `json:"subject_actor"`
	Scopes         []string         `json:"scopes,omitempty"`
	Policy         DelegationPolicy `json:"policy"`
	IssuedAt       string           `json:"issued_at"`
	ExpiresAt      string           `json:"expires_at,omitempty"`
	RevokedAt      string           `json:"revoked_at,omitempty"`
}

// Clone deep-copies the delegation.
func (d *Delegation) Clone() *Delegation {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Scopes = append([]string(nil), d.Scopes...)
	if d.Policy.RequireEscrow != nil {
		v := *d.Policy.RequireEscrow
		clone.Policy.RequireEscrow = &v
	}
	if d.Policy.QuietHours != nil {
		qh := *d.Policy.QuietHours
		clone.Policy.QuietHours = &qh
	}
	return &clone
}

// HasScope reports whether the delegation grants the named scope.
func (d *Delegation) HasScope(scope string) bool {
	for _, s := range d.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// UserConsent is the high-value consent attachment presented alongside a
// delegated mutation.
type UserConsent struct {
	ConsentID      string   `json:"consent_id"`
	ConsentTier    string   `json:"consent_tier"`
	ConsentProof   string   `json:"consent_proof"`
	ChallengeID    string   `json:"challenge_id,omitempty"`
	ExpiresAt      string   `json:"expires_at,omitempty"`
	ApprovedMaxUSD *float64 `json:"approved_max_usd,omitempty"`
}

// Consent tiers in ascending strength.
const (
	ConsentTierStepUp  = "step_up"
	ConsentTierPasskey = "passkey"
)
