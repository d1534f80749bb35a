package consensus

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sort"
)

// Validator is one member of a ValidatorSet.
type Validator struct {
	Identity Identity
	Stake    *big.Int
}

// ValidatorSet is an immutable, stake-weighted identity registry. A new set
// is constructed wholesale at every epoch boundary (spec §3) rather than
// mutated in place — unlike the teacher's ValidatorSet, which adds/removes
// validators live and re-sorts under a mutex, this one is built once by
// NewValidatorSet and never changes, so no internal locking is needed.
type ValidatorSet struct {
	byIdentity map[Identity]*big.Int
	// ordered holds validators in canonical order: stake desc, identity asc.
	ordered    []Validator
	totalStake *big.Int
}

// NewValidatorSet builds an immutable validator set from the given
// validators. "No duplicate identities" is an invariant the caller must
// uphold; duplicates are neither rejected nor summed: a duplicate identity
// here overwrites the earlier entry with the later one's stake, so callers
// are expected to de-duplicate upstream (e.g. at epoch computation time).
func NewValidatorSet(validators []Validator) *ValidatorSet {
	byIdentity := make(map[Identity]*big.Int, len(validators))
	for _, v := range validators {
		stake := new(big.Int).Set(v.Stake)
		byIdentity[v.Identity] = stake
	}

	ordered := make([]Validator, 0, len(byIdentity))
	total := big.NewInt(0)
	for id, stake := range byIdentity {
		ordered = append(ordered, Validator{Identity: id, Stake: stake})
		total.Add(total, stake)
	}
	sortCanonical(ordered)

	return &ValidatorSet{
		byIdentity: byIdentity,
		ordered:    ordered,
		totalStake: total,
	}
}

func sortCanonical(vs []Validator) {
	sort.Slice(vs, func(i, j int) bool {
		cmp := vs[i].Stake.Cmp(vs[j].Stake)
		if cmp != 0 {
			return cmp > 0 // stake desc
		}
		return lessAddress(vs[i].Identity, vs[j].Identity) // identity asc
	})
}

func lessAddress(a, b Identity) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// Empty reports whether the set has no members.
func (vs *ValidatorSet) Empty() bool {
	return vs == nil || len(vs.ordered) == 0
}

// Size returns the number of validators.
func (vs *ValidatorSet) Size() int {
	if vs == nil {
		return 0
	}
	return len(vs.ordered)
}

// TotalStake returns the sum of all member stakes.
func (vs *ValidatorSet) TotalStake() *big.Int {
	if vs == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(vs.totalStake)
}

// StakeOf returns the stake of id, or zero if absent.
func (vs *ValidatorSet) StakeOf(id Identity) *big.Int {
	if vs == nil {
		return big.NewInt(0)
	}
	if s, ok := vs.byIdentity[id]; ok {
		return new(big.Int).Set(s)
	}
	return big.NewInt(0)
}

// Contains reports whether id is a member of the set.
func (vs *ValidatorSet) Contains(id Identity) bool {
	if vs == nil {
		return false
	}
	_, ok := vs.byIdentity[id]
	return ok
}

// Ordered returns the validators in canonical (stake desc, identity asc)
// order. The returned slice is a copy; callers may not mutate the set
// through it.
func (vs *ValidatorSet) Ordered() []Validator {
	if vs == nil {
		return nil
	}
	out := make([]Validator, len(vs.ordered))
	copy(out, vs.ordered)
	return out
}

// QuorumStake returns the smallest integer q such that q/total >= threshold,
// for a real-valued threshold ratio (default 2/3). Expressing the threshold
// as a ratio rather than basis points avoids off-by-one rounding right at
// the quorum edge, per spec §4.A.
func (vs *ValidatorSet) QuorumStake(thresholdNum, thresholdDen int64) *big.Int {
	total := vs.TotalStake()
	if total.Sign() == 0 {
		return big.NewInt(0)
	}
	// q = ceil(total * num / den)
	num := new(big.Int).Mul(total, big.NewInt(thresholdNum))
	den := big.NewInt(thresholdDen)
	q := new(big.Int).Div(num, den)
	rem := new(big.Int).Mod(num, den)
	if rem.Sign() != 0 {
		q.Add(q, bigOne)
	}
	return q
}

// DefaultQuorumStake returns QuorumStake at the spec default of 2/3.
func (vs *ValidatorSet) DefaultQuorumStake() *big.Int {
	return vs.QuorumStake(2, 3)
}

// HasQuorum reports whether stake meets or exceeds the set's default (2/3)
// quorum threshold.
func (vs *ValidatorSet) HasQuorum(stake *big.Int) bool {
	return stake.Cmp(vs.DefaultQuorumStake()) >= 0
}

// ProposerForRound deterministically selects the proposer for (height,
// round). The draw is a uniform pick from [0, totalStake) derived from
// SHA-256(height || round || canonical set digest), matching the reference
// construction in spec §9: the first validator whose cumulative stake
// prefix (in canonical order) exceeds the draw wins. Returns false if the
// set is empty.
func (vs *ValidatorSet) ProposerForRound(height, round uint64) (Identity, bool) {
	if vs.Empty() {
		return Identity{}, false
	}
	total := vs.TotalStake()
	pick := new(big.Int).Mod(drawSeed(height, round, vs.digest()), total)

	cum := big.NewInt(0)
	for _, v := range vs.ordered {
		cum.Add(cum, v.Stake)
		if cum.Cmp(pick) > 0 {
			return v.Identity, true
		}
	}
	// Unreachable if totalStake accounting is correct, but fall back to the
	// last validator rather than panicking on a rounding edge case.
	return vs.ordered[len(vs.ordered)-1].Identity, true
}

// digest is the canonical-bytes digest of the set, used as an input to the
// proposer draw so that two sets with the same members in the same order
// always agree.
func (vs *ValidatorSet) digest() []byte {
	h := sha256.New()
	for _, v := range vs.ordered {
		h.Write(v.Identity.Bytes())
		h.Write(v.Stake.Bytes())
	}
	return h.Sum(nil)
}

func drawSeed(height, round uint64, setDigest []byte) *big.Int {
	h := sha256.New()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], height)
	binary.LittleEndian.PutUint64(buf[8:16], round)
	h.Write(buf[:])
	h.Write(setDigest)
	sum := h.Sum(nil)
	return new(big.Int).SetBytes(sum[:8])
}
