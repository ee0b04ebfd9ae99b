package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration file.
type Config struct {
	Engine   EngineConfig   `toml:"Engine"`
	Policy   PolicyConfig   `toml:"Policy"`
	Keys     KeysConfig     `toml:"Keys"`
	Storage  StorageConfig  `toml:"Storage"`
	Ops      OpsConfig      `toml:"Ops"`
	Webhooks WebhooksConfig `toml:"Webhooks"`
	Rollout  RolloutConfig  `toml:"Rollout"`
}

// EngineConfig bounds matching and settlement defaults.
type EngineConfig struct {
	MinCycleLength        int    `toml:"MinCycleLength"`
	MaxCycleLength        int    `toml:"MaxCycleLength"`
	MaxEnumeratedCycles   int    `toml:"MaxEnumeratedCycles"`
	TimeoutMs             int    `toml:"TimeoutMs"`
	DepositWindow         string `toml:"DepositWindow"`
	ProposalExpiryHorizon string `toml:"ProposalExpiryHorizon"`
}

// PolicyConfig stages trading-policy enforcement.
type PolicyConfig struct {
	AuthzEnabled     bool `toml:"AuthzEnabled"`
	ConsentTier      bool `toml:"ConsentTier"`
	ConsentBinding   bool `toml:"ConsentBinding"`
	ConsentSignature bool `toml:"ConsentSignature"`
	ConsentReplay    bool `toml:"ConsentReplay"`
	ConsentChallenge bool `toml:"ConsentChallenge"`
}

// KeysConfig points at the per-domain key ring files. When DevNamespace is
// set the rings are derived deterministically instead; never use that
// outside local development.
type KeysConfig struct {
	EventsRing     string `toml:"EventsRing"`
	ReceiptsRing   string `toml:"ReceiptsRing"`
	DelegationRing string `toml:"DelegationRing"`
	ConsentRing    string `toml:"ConsentRing"`
	DevNamespace   string `toml:"DevNamespace"`
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// OpsConfig configures the operational HTTP listener and log environment.
type OpsConfig struct {
	ListenAddress string `toml:"ListenAddress"`
	Environment   string `toml:"Environment"`
}

// WebhooksConfig carries partner webhook verification keys (key id to
// base64 ed25519 public key) and the ingestion limiter.
type WebhooksConfig struct {
	RatePerSecond float64           `toml:"RatePerSecond"`
	Burst         int               `toml:"Burst"`
	PartnerKeys   map[string]string `toml:"PartnerKeys"`
}

// RolloutConfig gates sensitive exports per partner.
type RolloutConfig struct {
	Allowlist    []string          `toml:"Allowlist"`
	MinPlan      string            `toml:"MinPlan"`
	PartnerPlans map[string]string `toml:"PartnerPlans"`
}

// Load reads the configuration, applying defaults for a missing file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the development defaults: full consent enforcement, an
// in-memory store and derived dev keys.
func Default() *Config {
	cfg := &Config{
		Engine: EngineConfig{
			MinCycleLength:        2,
			MaxCycleLength:        3,
			DepositWindow:         "6h",
			ProposalExpiryHorizon: "30m",
		},
		Policy: PolicyConfig{
			AuthzEnabled:     true,
			ConsentTier:      true,
			ConsentBinding:   true,
			ConsentSignature: true,
			ConsentReplay:    true,
			ConsentChallenge: true,
		},
		Keys:    KeysConfig{DevNamespace: "swapring-dev"},
		Storage: StorageConfig{Backend: "memory"},
		Ops:     OpsConfig{ListenAddress: ":9464", Environment: "dev"},
		Webhooks: WebhooksConfig{
			RatePerSecond: 50,
			Burst:         100,
		},
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Engine.MinCycleLength == 0 {
		c.Engine.MinCycleLength = 2
	}
	if c.Engine.MaxCycleLength == 0 {
		c.Engine.MaxCycleLength = 3
	}
	if c.Engine.DepositWindow == "" {
		c.Engine.DepositWindow = "6h"
	}
	if c.Engine.ProposalExpiryHorizon == "" {
		c.Engine.ProposalExpiryHorizon = "30m"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Ops.ListenAddress == "" {
		c.Ops.ListenAddress = ":9464"
	}
	if c.Webhooks.RatePerSecond == 0 {
		c.Webhooks.RatePerSecond = 50
	}
	if c.Webhooks.Burst == 0 {
		c.Webhooks.Burst = 100
	}
}
