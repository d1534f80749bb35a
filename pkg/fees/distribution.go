package fees

import "math/big"

// FeeTransitionEpochs is the number of epochs over which the four-way split
// interpolates from its launch ratios to its mature ratios (original
// runtime/src/bank/fee_distribution.rs: FEE_TRANSITION_EPOCHS).
const FeeTransitionEpochs uint64 = 1_825

// Launch and maturity split ratios, in basis points (10000 = 100%).
const (
	launchBurnBps      = 1_000
	launchValidatorBps = 0
	launchDeveloperBps = 4_500

	matureBurnBps      = 2_500
	matureValidatorBps = 2_500
	matureDeveloperBps = 2_500
)

// SplitBps is the four-way fee-distribution ratio for a given epoch.
// Treasury always absorbs the remainder so the four ratios sum to exactly
// 10000 regardless of interpolation rounding (spec §9 "treasury absorbs bps
// remainder").
type SplitBps struct {
	BurnBps      int64
	ValidatorBps int64
	TreasuryBps  int64
	DeveloperBps int64
}

// SplitForEpoch linearly interpolates the burn/validator/developer ratios
// between their launch and maturity values and assigns the remainder to
// treasury, per spec §4.D.
func SplitForEpoch(epoch uint64) SplitBps {
	progress := epoch
	if progress > FeeTransitionEpochs {
		progress = FeeTransitionEpochs
	}

	burn := interpolateBps(launchBurnBps, matureBurnBps, progress)
	validator := interpolateBps(launchValidatorBps, matureValidatorBps, progress)
	developer := interpolateBps(launchDeveloperBps, matureDeveloperBps, progress)
	treasury := 10_000 - burn - validator - developer

	return SplitBps{
		BurnBps:      burn,
		ValidatorBps: validator,
		TreasuryBps:  treasury,
		DeveloperBps: developer,
	}
}

// interpolateBps computes round(launch + progress/FeeTransitionEpochs * (mature - launch))
// using integer arithmetic: round(numerator / denominator) = (numerator*2 + denominator) / (denominator*2),
// avoiding the precision loss of a floating-point progress ratio.
func interpolateBps(launch, mature int64, progress uint64) int64 {
	delta := mature - launch
	num := new(big.Int).Mul(big.NewInt(delta), new(big.Int).SetUint64(progress))
	num.Mul(num, big.NewInt(2))
	num.Add(num, big.NewInt(int64(FeeTransitionEpochs)))

	den := new(big.Int).SetUint64(FeeTransitionEpochs * 2)
	step := new(big.Int).Div(num, den)

	return launch + step.Int64()
}

// Distribution is the lamport-exact four-way split of one block's collected
// fee total.
type Distribution struct {
	Burn      *big.Int
	Validator *big.Int
	Treasury  *big.Int
	Developer *big.Int
}

// Distribute splits total F according to split, with treasury absorbing the
// floor-rounding remainder so burn+validator+treasury+developer == F exactly
// (property P6), and the four ratios always sum to 10000 (property P7).
func Distribute(total *big.Int, split SplitBps) Distribution {
	burn := bpsShare(total, split.BurnBps)
	validator := bpsShare(total, split.ValidatorBps)
	developer := bpsShare(total, split.DeveloperBps)

	treasury := new(big.Int).Sub(total, burn)
	treasury.Sub(treasury, validator)
	treasury.Sub(treasury, developer)

	return Distribution{Burn: burn, Validator: validator, Treasury: treasury, Developer: developer}
}

func bpsShare(total *big.Int, bps int64) *big.Int {
	share := new(big.Int).Mul(total, big.NewInt(bps))
	return share.Div(share, big.NewInt(10_000))
}
