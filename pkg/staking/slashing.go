// Package staking implements the validator slashing/jailing state machine
// and the tiered passive-staking program, both keyed off the stake-weighted
// identities the consensus package defines.
package staking

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Identity names a validator, matching consensus.Identity's underlying type
// without importing the consensus package (staking only needs the address
// shape, not the engine).
type Identity = common.Address

// Slashing constants, carried over bit-exact from the original
// runtime/src/slashing.rs.
const (
	SlotsPerEpochDefault  uint64 = 432_000
	JailDurationFirst     uint64 = 1_512_000 // ~7 days
	JailDurationSecond    uint64 = 6_480_000 // ~30 days
	OfflineJailThreshold  uint64 = 216_000   // ~24h
	MaxOffensesDefault    uint64 = 3
	DoubleSignPenaltyBps  int64  = 500   // 5%
	InvalidBlockPenalty   int64  = 1_000 // 10%
	RepeatOffensePenalty  int64  = 2_500 // 25%
)

// Offense is a closed set of slashable violation kinds.
type Offense int

const (
	OffenseDoubleSigning Offense = iota
	OffenseInvalidBlock
)

// JailStatus is one identity's slashing/jailing record.
type JailStatus struct {
	OffenseCount      uint64
	IsJailed          bool
	JailUntilEpoch    uint64
	PermanentlyBanned bool
}

// SlashOutcome describes the effect of a successful slash call.
type SlashOutcome struct {
	LamportsSlashed *big.Int
	JailUntilEpoch  uint64
	PermanentBan    bool
}

// ErrSlashingDeclined is returned (as a no-op, not a failure) when slash is
// attempted on an identity that is already permanently banned.
var ErrSlashingDeclined = errors.New("staking: slashing declined: validator permanently banned")

// Registry owns the jail-status table for every known identity. It has no
// internal locking — per spec §5, all mutations go through the owning
// runtime's own write discipline.
type Registry struct {
	status map[Identity]*JailStatus
}

// NewRegistry builds an empty slashing registry.
func NewRegistry() *Registry {
	return &Registry{status: make(map[Identity]*JailStatus)}
}

func (r *Registry) statusFor(id Identity) *JailStatus {
	s, ok := r.status[id]
	if !ok {
		s = &JailStatus{}
		r.status[id] = s
	}
	return s
}

// Status returns a copy of id's current jail status.
func (r *Registry) Status(id Identity) JailStatus {
	if s, ok := r.status[id]; ok {
		return *s
	}
	return JailStatus{}
}

// ceilEpochs converts a slot count to whole epochs, rounding up, matching
// the original's "(slots + SLOTS_PER_EPOCH_DEFAULT - 1) / SLOTS_PER_EPOCH_DEFAULT".
func ceilEpochs(slots uint64) uint64 {
	return (slots + SlotsPerEpochDefault - 1) / SlotsPerEpochDefault
}

// Slash applies a slashable offense to id. Only ownStake (the validator's
// own bonded stake, never delegated stake) is ever reduced — this is
// enforced simply by this function's signature taking no delegation
// argument at all, per spec §4.E's fundamental invariant.
//
// Returns nil (and ErrSlashingDeclined) as a no-op if id is already
// permanently banned.
func (r *Registry) Slash(id Identity, offense Offense, ownStake *big.Int, currentEpoch uint64) (*SlashOutcome, error) {
	s := r.statusFor(id)
	if s.PermanentlyBanned {
		return nil, ErrSlashingDeclined
	}

	s.OffenseCount++

	var penaltyBps int64
	permanent := false
	if s.OffenseCount >= MaxOffensesDefault {
		penaltyBps = RepeatOffensePenalty
		permanent = true
	} else {
		switch offense {
		case OffenseDoubleSigning:
			penaltyBps = DoubleSignPenaltyBps
		case OffenseInvalidBlock:
			penaltyBps = InvalidBlockPenalty
		}
	}

	slashed := new(big.Int).Mul(ownStake, big.NewInt(penaltyBps))
	slashed.Div(slashed, big.NewInt(10_000))

	var jailSlots uint64
	switch {
	case permanent:
		s.PermanentlyBanned = true
		jailSlots = 0 // permanent: jail_until_epoch is meaningless once banned
	case s.OffenseCount >= 2:
		jailSlots = JailDurationSecond
	default:
		jailSlots = JailDurationFirst
	}

	s.IsJailed = true
	if permanent {
		s.JailUntilEpoch = ^uint64(0) // unreachable: permanent ban already blocks unjail
	} else {
		s.JailUntilEpoch = currentEpoch + ceilEpochs(jailSlots)
	}

	return &SlashOutcome{
		LamportsSlashed: slashed,
		JailUntilEpoch:  s.JailUntilEpoch,
		PermanentBan:    s.PermanentlyBanned,
	}, nil
}

// Unjail releases id from jail if its jail term has elapsed. Returns false
// (no state change) if id is unknown, permanently banned, or still within
// its jail window.
func (r *Registry) Unjail(id Identity, currentEpoch uint64) bool {
	s, ok := r.status[id]
	if !ok || s.PermanentlyBanned {
		return false
	}
	if currentEpoch < s.JailUntilEpoch {
		return false
	}
	s.IsJailed = false
	return true
}

// CheckOffline jails every active (not jailed, not banned) identity whose
// last_vote_slot has fallen more than OfflineJailThreshold slots behind
// currentSlot, applying a First-duration jail. Returns the newly-jailed
// identities; already-jailed identities are skipped (no double-jail).
func (r *Registry) CheckOffline(lastVoteSlot map[Identity]uint64, currentSlot, currentEpoch uint64) []Identity {
	var newlyJailed []Identity
	for id, lastVote := range lastVoteSlot {
		s := r.statusFor(id)
		if s.IsJailed || s.PermanentlyBanned {
			continue
		}
		if currentSlot-lastVote <= OfflineJailThreshold {
			continue
		}
		s.IsJailed = true
		s.JailUntilEpoch = currentEpoch + ceilEpochs(JailDurationFirst)
		newlyJailed = append(newlyJailed, id)
	}
	return newlyJailed
}
