package fees_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightchain-l1/trv1-core/pkg/fees"
)

func testConfig() fees.MarketConfig {
	return fees.MarketConfig{
		MinBaseFee:               big.NewInt(1_000),
		MaxBaseFee:               big.NewInt(1_000_000),
		TargetUtilizationPct:     50,
		BaseFeeChangeDenominator: 8,
		MaxBlockComputeUnits:     1_000_000,
	}
}

// TestBaseFeeBounds is property P8: for any sequence of gas-used values the
// base fee remains within [min, max].
func TestBaseFeeBounds(t *testing.T) {
	r := require.New(t)
	cfg := testConfig()
	state := fees.NewMarketState(cfg)

	sequence := []uint64{0, 1_000_000, 500_000, 999_999, 1, 1_000_000, 1_000_000, 0, 0, 500_000}
	for _, used := range sequence {
		state.UpdateBaseFee(cfg, used)
		r.GreaterOrEqual(state.BaseFee.Cmp(cfg.MinBaseFee), 0)
		r.LessOrEqual(state.BaseFee.Cmp(cfg.MaxBaseFee), 0)
	}
}

func TestBaseFeeUnchangedAtTarget(t *testing.T) {
	r := require.New(t)
	cfg := testConfig()
	state := fees.NewMarketState(cfg)
	before := new(big.Int).Set(state.BaseFee)

	state.UpdateBaseFee(cfg, 500_000) // exactly target (50% of 1,000,000)
	r.Equal(0, before.Cmp(state.BaseFee))
}

func TestBaseFeeRisesAboveTargetAndFallsBelow(t *testing.T) {
	r := require.New(t)
	cfg := testConfig()
	state := fees.NewMarketState(cfg)

	state.UpdateBaseFee(cfg, 1_000_000) // full block, above target
	raised := new(big.Int).Set(state.BaseFee)
	r.Equal(1, raised.Cmp(cfg.MinBaseFee))

	state.UpdateBaseFee(cfg, 0) // empty block, below target
	r.Equal(-1, state.BaseFee.Cmp(raised))
}

// TestFeeMonotonicity is property P9.
func TestFeeMonotonicity(t *testing.T) {
	r := require.New(t)
	base := big.NewInt(10)
	cu := uint64(1_000)

	low := fees.ComputeTransactionFee(base, big.NewInt(1), cu)
	high := fees.ComputeTransactionFee(base, big.NewInt(2), cu)
	r.True(high.TotalFee.Cmp(low.TotalFee) >= 0, "increasing priority-per-CU must not decrease total fee")

	lowCU := fees.ComputeTransactionFee(base, big.NewInt(1), 500)
	highCU := fees.ComputeTransactionFee(base, big.NewInt(1), 1_000)
	r.True(highCU.TotalFee.Cmp(lowCU.TotalFee) >= 0, "increasing CU must not decrease total fee")
}
