package config

import (
	"fmt"
	"time"

	"swapring/policy"
)

// Validate rejects configurations the engine cannot honour. Consent flag
// combinations are checked here so a nonsensical staging fails at startup
// rather than at the first high-value mutation.
func (c *Config) Validate() error {
	if c.Engine.MinCycleLength < 2 {
		return fmt.Errorf("config: Engine.MinCycleLength must be at least 2")
	}
	if c.Engine.MaxCycleLength < c.Engine.MinCycleLength {
		return fmt.Errorf("config: Engine.MaxCycleLength must be >= MinCycleLength")
	}
	if _, err := time.ParseDuration(c.Engine.DepositWindow); err != nil {
		return fmt.Errorf("config: Engine.DepositWindow: %w", err)
	}
	if _, err := time.ParseDuration(c.Engine.ProposalExpiryHorizon); err != nil {
		return fmt.Errorf("config: Engine.ProposalExpiryHorizon: %w", err)
	}
	if err := c.Enforcement().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Storage.Backend {
	case "memory":
	case "leveldb":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: Storage.Path is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("config: Storage.Backend %q is not supported", c.Storage.Backend)
	}
	if c.Keys.DevNamespace == "" {
		if c.Keys.EventsRing == "" || c.Keys.ReceiptsRing == "" || c.Keys.DelegationRing == "" || c.Keys.ConsentRing == "" {
			return fmt.Errorf("config: all four key ring paths are required without Keys.DevNamespace")
		}
	}
	return nil
}

// Enforcement maps the policy section onto the evaluator's flag set.
func (c *Config) Enforcement() policy.Enforcement {
	return policy.Enforcement{
		ConsentTier:      c.Policy.ConsentTier,
		ConsentBinding:   c.Policy.ConsentBinding,
		ConsentSignature: c.Policy.ConsentSignature,
		ConsentReplay:    c.Policy.ConsentReplay,
		ConsentChallenge: c.Policy.ConsentChallenge,
	}
}
