// Package consensus implements the Tendermint-style BFT state machine and
// the stake-weighted validator set it runs over.
package consensus

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Identity names a validator by its node address. We reuse go-ethereum's
// Address type rather than inventing a pubkey wrapper, matching how the fees
// and staking packages name chain participants (the cache package keys
// accounts by 32-byte common.Hash instead).
type Identity = common.Address

// BlockHash is the hash of a ProposedBlock.
type BlockHash = common.Hash

// Step is the per-height phase of the consensus state machine. The ordering
// below is meaningful: NewRound < Propose < Prevote < Precommit < Commit.
type Step int

const (
	StepNewRound Step = iota
	StepPropose
	StepPrevote
	StepPrecommit
	StepCommit
)

func (s Step) String() string {
	switch s {
	case StepNewRound:
		return "new_round"
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrecommit:
		return "precommit"
	case StepCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// ProposedBlock is the value consensus agrees on at a given height. Hash is a
// pure function of the fields, computed once by the proposer and verified by
// every recipient.
type ProposedBlock struct {
	ParentHash   BlockHash
	Height       uint64
	Timestamp    time.Time
	Transactions [][]byte
	StateRoot    common.Hash
	Proposer     Identity
}

// Hash computes the deterministic block hash. All fields are folded in a
// fixed order so any two conformant implementations produce the same digest
// given the same block.
func (b *ProposedBlock) Hash() BlockHash {
	return hashBlock(b)
}

// CommittedBlock pairs a block with the precommit signatures that finalized
// it.
type CommittedBlock struct {
	Block            ProposedBlock
	CommitSignatures []CommitSignature
	CommitRound      uint64
}

// CommitSignature is one validator's contribution to a CommittedBlock.
type CommitSignature struct {
	Voter     Identity
	Signature []byte
}

// VoteKind distinguishes the two vote phases.
type VoteKind int

const (
	VoteKindPrevote VoteKind = iota
	VoteKindPrecommit
)

func (k VoteKind) String() string {
	if k == VoteKindPrevote {
		return "prevote"
	}
	return "precommit"
}

// Proposal is the wire-level message a proposer broadcasts.
type Proposal struct {
	Height     uint64
	Round      uint64
	Block      ProposedBlock
	Proposer   Identity
	Signature  []byte
	ValidRound *uint64 // proposer's claimed polka round, nil if none
}

// Vote is a prevote or precommit from a single validator. BlockHash is nil
// (zero value) for a nil vote.
type Vote struct {
	Height    uint64
	Round     uint64
	BlockHash *BlockHash
	Kind      VoteKind
	Voter     Identity
	Signature []byte
}

// EvidenceKind enumerates the double-sign classes the engine records.
type EvidenceKind int

const (
	EvidenceConflictingPrevote EvidenceKind = iota
	EvidenceConflictingPrecommit
)

// Evidence records a double-sign: a validator casting two different votes of
// the same kind at the same (height, round).
type Evidence struct {
	Identity Identity
	Height   uint64
	Round    uint64
	Kind     EvidenceKind
	First    Vote
	Second   Vote
}

// EngineOutput collects every effect produced by one call into the engine:
// zero or more outbound messages and, at most, one committed block. The
// engine itself performs no I/O — the caller is responsible for delivering
// Messages and persisting Committed.
type EngineOutput struct {
	Messages  []OutboundMessage
	Committed *CommittedBlock
}

// OutboundMessage is a tagged union over the three message kinds the engine
// emits. Exactly one of Proposal/Vote is non-nil.
type OutboundMessage struct {
	Proposal *Proposal
	Vote     *Vote
}

func (o EngineOutput) merge(other EngineOutput) EngineOutput {
	o.Messages = append(o.Messages, other.Messages...)
	if other.Committed != nil {
		o.Committed = other.Committed
	}
	return o
}

var bigOne = big.NewInt(1)
