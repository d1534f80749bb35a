package staking

import (
	"errors"
	"math/big"
)

// LockTier is the closed set of passive-stake lockup durations.
type LockTier int

const (
	LockNone LockTier = iota
	Lock30Days
	Lock90Days
	Lock180Days
	Lock360Days
	LockPermanent
)

// lockDays maps each timed tier to its duration in days; LockPermanent has
// no fixed duration and is handled separately everywhere it matters.
var lockDays = map[LockTier]uint64{
	LockNone:    0,
	Lock30Days:  30,
	Lock90Days:  90,
	Lock180Days: 180,
	Lock360Days: 360,
}

// rewardRateBps is the tier's share (bps) of the validator reward rate.
var rewardRateBps = map[LockTier]int64{
	LockNone:      500,
	Lock30Days:    1_000,
	Lock90Days:    2_000,
	Lock180Days:   3_000,
	Lock360Days:   5_000,
	LockPermanent: 12_000,
}

// voteWeightBps is the tier's governance vote weight, overweighting
// permanence (1.5x) relative to a delegator's unweighted 1.0x (10000bps).
var voteWeightBps = map[LockTier]int64{
	LockNone:      0,
	Lock30Days:    1_000,
	Lock90Days:    2_000,
	Lock180Days:   3_000,
	Lock360Days:   5_000,
	LockPermanent: 15_000,
}

// earlyUnlockPenaltyBps is charged against principal when a timed lock is
// broken before its expiry; LockPermanent has no early-unlock path at all.
var earlyUnlockPenaltyBps = map[LockTier]int64{
	LockNone:    0,
	Lock30Days:  250,
	Lock90Days:  500,
	Lock180Days: 750,
	Lock360Days: 1_250,
}

var (
	ErrInvalidLockTier        = errors.New("staking: invalid lock tier")
	ErrZeroStakeAmount        = errors.New("staking: zero stake amount")
	ErrLockNotExpired         = errors.New("staking: lock not expired")
	ErrEarlyUnlockNotAllowed  = errors.New("staking: early unlock not allowed on a permanent lock")
	ErrNoRewardsToClaim       = errors.New("staking: no rewards to claim")
)

// PassiveStake is one non-delegated staking position. Amount is fixed at
// creation — deposits never grow an existing position; a new deposit opens
// a new position.
type PassiveStake struct {
	Authority       Identity
	Amount          *big.Int
	LockTier        LockTier
	LockStartEpoch  uint64
	LockEndEpoch    uint64
	UnclaimedRewards *big.Int
	LastRewardEpoch uint64
}

// RewardRateBps returns tier's bps share of the validator reward rate.
func RewardRateBps(tier LockTier) int64 { return rewardRateBps[tier] }

// VoteWeightBps returns tier's governance vote weight in bps.
func VoteWeightBps(tier LockTier) int64 { return voteWeightBps[tier] }

// lockDaysToEpochs converts a tier's lock duration to epochs, matching the
// spec's ~1-epoch-per-day assumption.
func lockDaysToEpochs(tier LockTier) uint64 {
	return lockDays[tier]
}

// OpenPosition creates a new PassiveStake. LockPermanent positions have no
// LockEndEpoch (it is left at zero and is never consulted: IsPermanent
// governs unlock behavior instead).
func OpenPosition(authority Identity, amount *big.Int, tier LockTier, startEpoch uint64) (*PassiveStake, error) {
	if _, ok := rewardRateBps[tier]; !ok {
		return nil, ErrInvalidLockTier
	}
	if amount.Sign() <= 0 {
		return nil, ErrZeroStakeAmount
	}

	pos := &PassiveStake{
		Authority:        authority,
		Amount:           new(big.Int).Set(amount),
		LockTier:         tier,
		LockStartEpoch:   startEpoch,
		UnclaimedRewards: big.NewInt(0),
		LastRewardEpoch:  startEpoch,
	}
	if tier != LockPermanent {
		pos.LockEndEpoch = startEpoch + lockDaysToEpochs(tier)
	}
	return pos, nil
}

// IsPermanent reports whether the position is permanently locked.
func (p *PassiveStake) IsPermanent() bool { return p.LockTier == LockPermanent }

// AccrueReward credits one epoch's worth of reward for the position, using
// reward = amount * validator_rate_bps * tier_rate_bps / (10000^2 * 365),
// per spec §4.E. big.Int intermediates stand in for the original's u128
// scratch space; there is no fixed-width overflow to saturate against.
func (p *PassiveStake) AccrueReward(validatorRateBps int64, epoch uint64) {
	reward := new(big.Int).Mul(p.Amount, big.NewInt(validatorRateBps))
	reward.Mul(reward, big.NewInt(rewardRateBps[p.LockTier]))
	denominator := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(10_000))
	denominator.Mul(denominator, big.NewInt(365))
	reward.Div(reward, denominator)

	p.UnclaimedRewards.Add(p.UnclaimedRewards, reward)
	p.LastRewardEpoch = epoch
}

// Claim zeroes UnclaimedRewards and returns the amount transferred to the
// authority.
func (p *PassiveStake) Claim() (*big.Int, error) {
	if p.UnclaimedRewards.Sign() == 0 {
		return nil, ErrNoRewardsToClaim
	}
	amount := p.UnclaimedRewards
	p.UnclaimedRewards = big.NewInt(0)
	return amount, nil
}

// UnlockResult is the outcome of a successful Unlock call.
type UnlockResult struct {
	Returned *big.Int
	Burned   *big.Int
}

// Unlock withdraws the position's principal. For a no-lock position it
// always succeeds in full; for a timed lock it requires lock_end_epoch to
// have passed (use UnlockEarly otherwise); a permanent lock never unlocks.
func (p *PassiveStake) Unlock(currentEpoch uint64) (*UnlockResult, error) {
	if p.IsPermanent() {
		return nil, ErrEarlyUnlockNotAllowed
	}
	if p.LockTier != LockNone && currentEpoch < p.LockEndEpoch {
		return nil, ErrLockNotExpired
	}
	returned := p.Amount
	p.Amount = big.NewInt(0)
	return &UnlockResult{Returned: returned, Burned: big.NewInt(0)}, nil
}

// UnlockEarly breaks a timed lock before its expiry, burning a tier-rate
// penalty (removed from circulation, never redistributed) and returning the
// remainder. It is never valid for a permanent lock or an already-expired
// timed lock (use Unlock for the latter).
func (p *PassiveStake) UnlockEarly(currentEpoch uint64) (*UnlockResult, error) {
	if p.IsPermanent() {
		return nil, ErrEarlyUnlockNotAllowed
	}
	if p.LockTier == LockNone || currentEpoch >= p.LockEndEpoch {
		return nil, ErrLockNotExpired
	}

	penalty := new(big.Int).Mul(p.Amount, big.NewInt(earlyUnlockPenaltyBps[p.LockTier]))
	penalty.Div(penalty, big.NewInt(10_000))
	returned := new(big.Int).Sub(p.Amount, penalty)

	p.Amount = big.NewInt(0)
	return &UnlockResult{Returned: returned, Burned: penalty}, nil
}
