package fees

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Developer-fee attribution gating constants, carried over bit-exact from
// programs/developer-rewards/src/processor.rs.
const (
	MinComputeUnitsThreshold uint64 = 1_000
	// DeveloperCooldownSlots is the original's 7-day cooldown expressed in
	// slots, matching the jail_duration_first constant used for the same
	// ~7-day window elsewhere in this module (pkg/staking).
	DeveloperCooldownSlots uint64 = 1_512_000
	// MaxProgramFeeShareBps caps a single program's cumulative per-epoch
	// developer-fee credit at 10% of that epoch's developer-fee total.
	MaxProgramFeeShareBps int64 = 1_000
)

var (
	// ErrInsufficientFee is returned when a transaction's declared fee
	// cannot cover its own computed total (spec §7 FeeValidationError).
	ErrInsufficientFee = errors.New("fees: insufficient fee")
	// ErrComputeUnitsExceedBlock is returned when a transaction alone would
	// exceed the block's compute budget.
	ErrComputeUnitsExceedBlock = errors.New("fees: compute units exceed block budget")
)

// ProgramID names an on-chain program eligible for developer-fee credit.
type ProgramID = common.Address

// ProgramRegistration is a program's developer-fee enrollment.
type ProgramRegistration struct {
	RegistrationSlot uint64
}

// EligibleAfterSlot is the slot at which a registration clears its cooldown.
func (p ProgramRegistration) EligibleAfterSlot() uint64 {
	return p.RegistrationSlot + DeveloperCooldownSlots
}

// EpochDevFeeTracker accumulates per-program and global developer-fee
// credits within one epoch, resetting on epoch rollover so the per-program
// cap in spec §4.D ("≤ 10% of the epoch's developer-fee total") can be
// enforced without retaining unbounded history.
type EpochDevFeeTracker struct {
	epoch        uint64
	perProgram   map[ProgramID]*big.Int
	epochTotal   *big.Int
}

// NewEpochDevFeeTracker builds a tracker starting at epoch.
func NewEpochDevFeeTracker(epoch uint64) *EpochDevFeeTracker {
	return &EpochDevFeeTracker{
		epoch:      epoch,
		perProgram: make(map[ProgramID]*big.Int),
		epochTotal: big.NewInt(0),
	}
}

// RollEpoch resets all trackers if epoch has advanced past the tracked one.
func (t *EpochDevFeeTracker) RollEpoch(epoch uint64) {
	if epoch == t.epoch {
		return
	}
	t.epoch = epoch
	t.perProgram = make(map[ProgramID]*big.Int)
	t.epochTotal = big.NewInt(0)
}

func (t *EpochDevFeeTracker) programTotal(program ProgramID) *big.Int {
	if v, ok := t.perProgram[program]; ok {
		return v
	}
	return big.NewInt(0)
}

// AttributeDeveloperFees splits a transaction's developer share D equally
// among its invoked programs, crediting only those that are registered and
// pass the minimum-CU, cooldown, and per-epoch-cap gates; every other share
// (unregistered programs, gated credits, and the empty-invocation case) is
// redirected to burn, per spec §4.D.
func AttributeDeveloperFees(
	developerShare *big.Int,
	invokedPrograms []ProgramID,
	registrations map[ProgramID]ProgramRegistration,
	tracker *EpochDevFeeTracker,
	currentSlot uint64,
	computeUnits uint64,
) (credits map[ProgramID]*big.Int, redirectedToBurn *big.Int) {
	credits = make(map[ProgramID]*big.Int)
	redirectedToBurn = big.NewInt(0)

	n := len(invokedPrograms)
	if n == 0 {
		redirectedToBurn.Add(redirectedToBurn, developerShare)
		return credits, redirectedToBurn
	}

	perProgramShare := new(big.Int).Div(developerShare, big.NewInt(int64(n)))
	remainder := new(big.Int).Mod(developerShare, big.NewInt(int64(n)))
	// The cap is measured against the epoch total as it stood before this
	// call, so credits made within the call do not move it.
	epochTotalBefore := new(big.Int).Set(tracker.epochTotal)

	for _, program := range invokedPrograms {
		reg, registered := registrations[program]
		if !registered {
			redirectedToBurn.Add(redirectedToBurn, perProgramShare)
			continue
		}
		if computeUnits < MinComputeUnitsThreshold {
			redirectedToBurn.Add(redirectedToBurn, perProgramShare)
			continue
		}
		if currentSlot < reg.EligibleAfterSlot() {
			redirectedToBurn.Add(redirectedToBurn, perProgramShare)
			continue
		}

		projected := new(big.Int).Add(tracker.programTotal(program), perProgramShare)
		programCap := bpsShare(epochTotalBefore, MaxProgramFeeShareBps)
		if epochTotalBefore.Sign() > 0 && projected.Cmp(programCap) > 0 {
			redirectedToBurn.Add(redirectedToBurn, perProgramShare)
			continue
		}

		tracker.perProgram[program] = projected
		tracker.epochTotal.Add(tracker.epochTotal, perProgramShare)
		if existing, ok := credits[program]; ok {
			existing.Add(existing, perProgramShare)
		} else {
			credits[program] = new(big.Int).Set(perProgramShare)
		}
	}

	// The integer-division remainder (at most n-1 lamports) is never lost:
	// fold it into burn alongside any gated shares.
	redirectedToBurn.Add(redirectedToBurn, remainder)
	return credits, redirectedToBurn
}

// ValidateFee rejects an underfunded transaction before any distribution
// happens, per spec §4.D "Failure handling".
func ValidateFee(declaredFee *big.Int, computed TransactionFee, computeUnits, maxBlockComputeUnits uint64) error {
	if computeUnits > maxBlockComputeUnits {
		return ErrComputeUnitsExceedBlock
	}
	if declaredFee.Cmp(computed.TotalFee) < 0 {
		return ErrInsufficientFee
	}
	return nil
}
