package staking_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/lightchain-l1/trv1-core/pkg/staking"
)

func validatorID(b byte) staking.Identity {
	var a common.Address
	a[len(a)-1] = b
	return a
}

func sol(n int64) *big.Int { return big.NewInt(n * 1_000_000_000) }

// TestThreeStrikeBan is end-to-end scenario 5 and property P11.
func TestThreeStrikeBan(t *testing.T) {
	r := require.New(t)
	reg := staking.NewRegistry()
	id := validatorID(1)
	ownStake := sol(100)

	first, err := reg.Slash(id, staking.OffenseDoubleSigning, ownStake, 10)
	r.NoError(err)
	r.Equal(sol(5), first.LamportsSlashed)
	r.False(first.PermanentBan)

	second, err := reg.Slash(id, staking.OffenseDoubleSigning, ownStake, 10)
	r.NoError(err)
	r.Equal(sol(5), second.LamportsSlashed)
	r.False(second.PermanentBan)

	third, err := reg.Slash(id, staking.OffenseDoubleSigning, ownStake, 10)
	r.NoError(err)
	r.Equal(sol(25), third.LamportsSlashed)
	r.True(third.PermanentBan)

	r.True(reg.Status(id).PermanentlyBanned)
	r.False(reg.Unjail(id, 1_000_000))

	_, err = reg.Slash(id, staking.OffenseDoubleSigning, ownStake, 10)
	r.ErrorIs(err, staking.ErrSlashingDeclined)
}

// TestDelegatorUntouched is property P10: Slash's signature never accepts a
// delegation argument, so the delegator aggregate (tracked entirely outside
// this package) cannot be touched by any sequence of slash calls.
func TestDelegatorUntouched(t *testing.T) {
	r := require.New(t)
	reg := staking.NewRegistry()
	id := validatorID(2)
	delegatorAggregate := sol(900)
	before := new(big.Int).Set(delegatorAggregate)

	for i := 0; i < 3; i++ {
		_, err := reg.Slash(id, staking.OffenseDoubleSigning, sol(100), 10)
		r.NoError(err)
	}

	r.Equal(0, before.Cmp(delegatorAggregate), "delegator aggregate must never be mutated by slashing")
}

func TestUnjailBeforeWindowFails(t *testing.T) {
	r := require.New(t)
	reg := staking.NewRegistry()
	id := validatorID(3)

	outcome, err := reg.Slash(id, staking.OffenseInvalidBlock, sol(50), 0)
	r.NoError(err)
	r.False(reg.Unjail(id, outcome.JailUntilEpoch-1))
	r.True(reg.Unjail(id, outcome.JailUntilEpoch))
}

func TestCheckOfflineJailsStaleValidatorsOnce(t *testing.T) {
	r := require.New(t)
	reg := staking.NewRegistry()
	stale := validatorID(4)
	fresh := validatorID(5)

	currentSlot := staking.OfflineJailThreshold + 10_000
	lastVote := map[staking.Identity]uint64{
		stale: 0,                                  // far behind: offline
		fresh: staking.OfflineJailThreshold + 9_000, // recently voted: within threshold
	}
	newlyJailed := reg.CheckOffline(lastVote, currentSlot, 0)
	r.ElementsMatch([]staking.Identity{stale}, newlyJailed)
	r.True(reg.Status(stale).IsJailed)
	r.False(reg.Status(fresh).IsJailed)

	// A second pass must not re-jail (or report) the already-jailed identity.
	again := reg.CheckOffline(lastVote, currentSlot+1, 0)
	r.Empty(again)
}
