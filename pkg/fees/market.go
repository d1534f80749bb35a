// Package fees implements the EIP-1559-style base-fee market and the
// four-way fee distribution (burn/validator/treasury/developer) that
// matures linearly across FeeTransitionEpochs.
package fees

import "math/big"

// MarketConfig tunes the per-block base-fee update. Basis-point ratios and
// gas/compute quantities follow the teacher's big.Int Mul-then-Div-by-10000
// idiom (pkg/economics/token_model.go) throughout this package.
type MarketConfig struct {
	MinBaseFee               *big.Int
	MaxBaseFee               *big.Int
	TargetUtilizationPct     int64 // e.g. 50 for 50%
	BaseFeeChangeDenominator int64
	MaxBlockComputeUnits     uint64
}

// Target returns target_utilization_pct * max_block_compute_units / 100.
func (c MarketConfig) Target() *big.Int {
	t := new(big.Int).Mul(big.NewInt(c.TargetUtilizationPct), new(big.Int).SetUint64(c.MaxBlockComputeUnits))
	return t.Div(t, big.NewInt(100))
}

// MarketState is the mutable per-chain fee-market state: just the current
// base fee, since the update rule is otherwise a pure function of config
// and the parent block's gas usage.
type MarketState struct {
	BaseFee *big.Int
}

// NewMarketState seeds state at cfg.MinBaseFee.
func NewMarketState(cfg MarketConfig) *MarketState {
	return &MarketState{BaseFee: new(big.Int).Set(cfg.MinBaseFee)}
}

// UpdateBaseFee applies the EIP-1559-style adjustment for a block that used
// gasUsed compute units, per spec §4.D, and clamps the result to
// [MinBaseFee, MaxBaseFee] (property P8).
func (s *MarketState) UpdateBaseFee(cfg MarketConfig, gasUsed uint64) {
	target := cfg.Target()
	used := new(big.Int).SetUint64(gasUsed)

	cmp := used.Cmp(target)
	if cmp == 0 || target.Sign() == 0 {
		s.clamp(cfg)
		return
	}

	diff := new(big.Int).Sub(used, target)
	diff.Abs(diff)

	delta := new(big.Int).Mul(s.BaseFee, diff)
	delta.Div(delta, target)
	delta.Div(delta, big.NewInt(cfg.BaseFeeChangeDenominator))
	if delta.Sign() == 0 {
		delta.SetInt64(1)
	}

	if cmp > 0 {
		s.BaseFee.Add(s.BaseFee, delta)
	} else {
		s.BaseFee.Sub(s.BaseFee, delta)
	}
	s.clamp(cfg)
}

func (s *MarketState) clamp(cfg MarketConfig) {
	if s.BaseFee.Cmp(cfg.MinBaseFee) < 0 {
		s.BaseFee.Set(cfg.MinBaseFee)
	}
	if s.BaseFee.Cmp(cfg.MaxBaseFee) > 0 {
		s.BaseFee.Set(cfg.MaxBaseFee)
	}
}

// TransactionFee computes the base and priority components of a
// transaction's fee and their saturating sum, per spec §4.D.
type TransactionFee struct {
	BaseFee     *big.Int
	PriorityFee *big.Int
	TotalFee    *big.Int
}

// ComputeTransactionFee returns base_fee*CU, priority_fee*CU, and their sum.
// big.Int arithmetic is unbounded, so "saturating" here means simply never
// overflowing — there is no wraparound to guard against.
func ComputeTransactionFee(baseFeePerCU, priorityFeePerCU *big.Int, computeUnits uint64) TransactionFee {
	cu := new(big.Int).SetUint64(computeUnits)
	base := new(big.Int).Mul(baseFeePerCU, cu)
	priority := new(big.Int).Mul(priorityFeePerCU, cu)
	total := new(big.Int).Add(base, priority)
	return TransactionFee{BaseFee: base, PriorityFee: priority, TotalFee: total}
}
