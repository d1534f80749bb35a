// Package config loads the YAML configuration that wires the five runtime
// components (consensus, cache, fee market, slashing, passive staking)
// together for cmd/trv1-node.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	NodeType string `yaml:"node_type"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Consensus      ConsensusConfig      `yaml:"consensus"`
	Cache          CacheConfig          `yaml:"cache"`
	FeeMarket      FeeMarketConfig      `yaml:"fee_market"`
	Slashing       SlashingConfig       `yaml:"slashing"`
	PassiveStake   PassiveStakeConfig   `yaml:"passive_stake"`
}

// ConsensusConfig tunes the BFT engine and validator set.
type ConsensusConfig struct {
	ProposeTimeout        time.Duration `yaml:"propose_timeout"`
	ProposeTimeoutDelta   time.Duration `yaml:"propose_timeout_delta"`
	PrevoteTimeout        time.Duration `yaml:"prevote_timeout"`
	PrevoteTimeoutDelta   time.Duration `yaml:"prevote_timeout_delta"`
	PrecommitTimeout      time.Duration `yaml:"precommit_timeout"`
	PrecommitTimeoutDelta time.Duration `yaml:"precommit_timeout_delta"`
	// The quorum ratio is validated but not passed to the engine, which
	// always uses the validator set's fixed 2/3 quorum.
	QuorumNumerator       int64         `yaml:"quorum_numerator"`
	QuorumDenominator     int64         `yaml:"quorum_denominator"`
}

// CacheConfig tunes the tiered account cache and archival path.
type CacheConfig struct {
	MaxSizeBytes         int64  `yaml:"max_size_bytes"`
	TargetUtilizationPct int    `yaml:"target_utilization_pct"`
	EvictionBatchSize    int    `yaml:"eviction_batch_size"`
	EvictionPolicy       string `yaml:"eviction_policy"` // "lru" or "lfu"

	// The archival fields below are not read by cmd/trv1-node; pkg/cache
	// takes its archival settings from cache.ArchiveConfig.
	ColdStoragePath      string `yaml:"cold_storage_path"`
	ArchiveAfterDays     int    `yaml:"archive_after_days"`
	LamportsPerByteYear  int64  `yaml:"lamports_per_byte_year"`
	MinArchivalDataSize  int    `yaml:"min_archival_data_size"`
	AllowRevival         bool   `yaml:"allow_revival"`
	MinRevivalRentYears  int    `yaml:"min_revival_rent_years"`
}

// FeeMarketConfig tunes the base-fee market and the burn/validator/
// treasury/developer split.
type FeeMarketConfig struct {
	MinBaseFee               string `yaml:"min_base_fee"`
	MaxBaseFee               string `yaml:"max_base_fee"`
	TargetUtilizationPct     int    `yaml:"target_utilization_pct"`
	BaseFeeChangeDenominator int64  `yaml:"base_fee_change_denominator"`
	MaxBlockComputeUnits     uint64 `yaml:"max_block_compute_units"`

	// The split and developer-fee fields below are not read by
	// cmd/trv1-node; pkg/fees uses its own package constants for them.
	FeeTransitionEpochs   uint64 `yaml:"fee_transition_epochs"`
	MinComputeUnits       uint64 `yaml:"min_compute_units_threshold"`
	DeveloperCooldownSlots uint64 `yaml:"developer_cooldown_slots"`
	MaxProgramFeeShareBps int64  `yaml:"max_program_fee_share_bps"`
}

// SlashingConfig holds offense/jail tunables. staking.Registry does not read
// it; it uses the staking package constants (SlotsPerEpochDefault,
// OfflineJailThreshold, MaxOffensesDefault).
type SlashingConfig struct {
	SlotsPerEpoch        uint64 `yaml:"slots_per_epoch"`
	OfflineJailThreshold uint64 `yaml:"offline_jail_threshold"`
	MaxOffenses          uint64 `yaml:"max_offenses"`
}

// PassiveStakeConfig tunes the non-delegated lock-tier staking program.
type PassiveStakeConfig struct {
	ValidatorRewardRateBps int64 `yaml:"validator_reward_rate_bps"`
}

// Load reads and parses a configuration file from path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration populated with the runtime's documented
// defaults, suitable as a base for YAML overlay or for demo wiring that
// never reads a file at all.
func Default() Config {
	return Config{
		NodeType: "validator",
		DataDir:  "./data",
		LogLevel: "info",
		Consensus: ConsensusConfig{
			ProposeTimeout:        3 * time.Second,
			ProposeTimeoutDelta:   500 * time.Millisecond,
			PrevoteTimeout:        1 * time.Second,
			PrevoteTimeoutDelta:   500 * time.Millisecond,
			PrecommitTimeout:      1 * time.Second,
			PrecommitTimeoutDelta: 500 * time.Millisecond,
			QuorumNumerator:       2,
			QuorumDenominator:     3,
		},
		Cache: CacheConfig{
			MaxSizeBytes:         512 * 1024 * 1024,
			TargetUtilizationPct: 90,
			EvictionBatchSize:    64,
			EvictionPolicy:       "lru",
			ColdStoragePath:      "./data/archive",
			ArchiveAfterDays:     365,
			LamportsPerByteYear:  3_480,
			MinArchivalDataSize:  128,
			AllowRevival:         true,
			MinRevivalRentYears:  2,
		},
		FeeMarket: FeeMarketConfig{
			MinBaseFee:               "1",
			MaxBaseFee:               "1000000",
			TargetUtilizationPct:     50,
			BaseFeeChangeDenominator: 8,
			MaxBlockComputeUnits:     48_000_000,
			FeeTransitionEpochs:      1_825,
			MinComputeUnits:          1_000,
			DeveloperCooldownSlots:   1_512_000,
			MaxProgramFeeShareBps:    1_000,
		},
		Slashing: SlashingConfig{
			SlotsPerEpoch:        432_000,
			OfflineJailThreshold: 216_000,
			MaxOffenses:          3,
		},
		PassiveStake: PassiveStakeConfig{
			ValidatorRewardRateBps: 1_000,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.NodeType == "" {
		return fmt.Errorf("node_type is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	validNodeTypes := map[string]bool{"validator": true, "observer": true}
	if !validNodeTypes[c.NodeType] {
		return fmt.Errorf("invalid node_type: %s", c.NodeType)
	}

	if c.Consensus.QuorumDenominator == 0 {
		return fmt.Errorf("consensus.quorum_denominator must be non-zero")
	}

	switch c.Cache.EvictionPolicy {
	case "lru", "lfu":
	default:
		return fmt.Errorf("invalid cache.eviction_policy: %s", c.Cache.EvictionPolicy)
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("cache.max_size_bytes must be positive")
	}

	if c.FeeMarket.MaxBlockComputeUnits == 0 {
		return fmt.Errorf("fee_market.max_block_compute_units must be positive")
	}

	if c.Slashing.SlotsPerEpoch == 0 {
		return fmt.Errorf("slashing.slots_per_epoch must be positive")
	}

	return nil
}
