package consensus

import "math/big"

// ProposeFn builds a fresh block when the engine must propose one from
// scratch (no carried-over valid value). It is the only place the engine
// reaches outside itself — everything else is pure state transition.
type ProposeFn func(height, round uint64) ProposedBlock

// noRound is the sentinel for "no locked/valid round", matching the
// free-list NIL convention used elsewhere in this module rather than
// wrapping every round in a pointer.
const noRound int64 = -1

// Engine is a single-height, single-validator instance of the round-based
// consensus state machine described in spec §4.A/4.B. It performs no I/O:
// every exported method takes an input and returns an EngineOutput of
// messages to send and, at most, one freshly committed block. Advancing to
// the next height is the caller's job, via StartHeight.
//
// The engine only acts on votes and proposals for its current round when
// deciding prevotes/precommits of its own; it still records proposals and
// prevotes from future rounds so that a later polka-round reference in a
// proposal (ValidRound) can be verified. It does not implement skipping
// ahead on f+1 messages from a future round — see DESIGN.md.
type Engine struct {
	vs          *ValidatorSet
	self        Identity
	proposeFn   ProposeFn
	timeouts    *TimeoutScheduler
	evidence    *EvidenceCollector

	height uint64
	round  uint64
	step   Step

	lockedValue *ProposedBlock
	lockedRound int64
	validValue  *ProposedBlock
	validRound  int64

	proposals  map[uint64]Proposal
	prevotes   map[uint64]map[Identity]Vote
	precommits map[uint64]map[Identity]Vote

	proposedThisRound     map[uint64]bool
	prevotedThisRound     map[uint64]bool
	precommittedThisRound map[uint64]bool
	prevoteTimeoutArmed   map[uint64]bool
	precommitTimeoutArmed map[uint64]bool

	decided bool
}

// NewEngine constructs an engine for a single validator. evidence may be
// shared across heights to accumulate a running record; pass a fresh
// EvidenceCollector if that is not desired.
func NewEngine(self Identity, proposeFn ProposeFn, timeouts *TimeoutScheduler, evidence *EvidenceCollector) *Engine {
	return &Engine{
		self:      self,
		proposeFn: proposeFn,
		timeouts:  timeouts,
		evidence:  evidence,
	}
}

// StartHeight resets the engine onto a new height with the given validator
// set and begins round 0.
func (e *Engine) StartHeight(height uint64, vs *ValidatorSet) EngineOutput {
	e.vs = vs
	e.height = height
	e.lockedValue = nil
	e.lockedRound = noRound
	e.validValue = nil
	e.validRound = noRound
	e.proposals = make(map[uint64]Proposal)
	e.prevotes = make(map[uint64]map[Identity]Vote)
	e.precommits = make(map[uint64]map[Identity]Vote)
	e.proposedThisRound = make(map[uint64]bool)
	e.prevotedThisRound = make(map[uint64]bool)
	e.precommittedThisRound = make(map[uint64]bool)
	e.prevoteTimeoutArmed = make(map[uint64]bool)
	e.precommitTimeoutArmed = make(map[uint64]bool)
	e.decided = false
	e.timeouts.CancelAll()

	return e.enterRound(0)
}

// Height reports the height currently being decided.
func (e *Engine) Height() uint64 { return e.height }

// Round reports the current round within the height.
func (e *Engine) Round() uint64 { return e.round }

// Step reports the current step within the round.
func (e *Engine) Step() Step { return e.step }

func (e *Engine) enterRound(round uint64) EngineOutput {
	e.round = round
	e.step = StepPropose

	var out EngineOutput
	proposer, ok := e.vs.ProposerForRound(e.height, round)
	if !ok {
		return out
	}
	if proposer != e.self {
		e.timeouts.Start(StepPropose, round)
		return out
	}
	if e.proposedThisRound[round] {
		return out
	}
	e.proposedThisRound[round] = true

	var block ProposedBlock
	var validRoundPtr *uint64
	if e.validValue != nil {
		block = *e.validValue
		vr := uint64(e.validRound)
		validRoundPtr = &vr
	} else {
		block = e.proposeFn(e.height, round)
	}

	prop := Proposal{
		Height:     e.height,
		Round:      round,
		Block:      block,
		Proposer:   e.self,
		ValidRound: validRoundPtr,
	}
	e.proposals[round] = prop
	out.Messages = append(out.Messages, OutboundMessage{Proposal: &prop})
	return out
}

// OnProposal delivers a proposal received from the network.
func (e *Engine) OnProposal(p Proposal) EngineOutput {
	if e.vs == nil || e.decided || p.Height != e.height {
		return EngineOutput{}
	}
	proposer, ok := e.vs.ProposerForRound(p.Height, p.Round)
	if !ok || proposer != p.Proposer {
		return EngineOutput{}
	}
	e.proposals[p.Round] = p

	if p.Round != e.round || e.step != StepPropose {
		return EngineOutput{}
	}
	return e.processProposal(p)
}

func (e *Engine) processProposal(p Proposal) EngineOutput {
	blockHash := p.Block.Hash()

	if p.ValidRound == nil {
		e.timeouts.Cancel(StepPropose)
		var vote *BlockHash
		if e.lockedRound == noRound || (e.lockedValue != nil && e.lockedValue.Hash() == blockHash) {
			vote = &blockHash
		}
		return e.castPrevote(vote)
	}

	vr := *p.ValidRound
	if vr >= p.Round || !e.hasPolka(vr, blockHash) {
		// Proposal's claimed polka doesn't check out yet; wait for the
		// propose timeout rather than voting now.
		return EngineOutput{}
	}
	e.timeouts.Cancel(StepPropose)
	var vote *BlockHash
	if e.lockedRound <= int64(vr) || (e.lockedValue != nil && e.lockedValue.Hash() == blockHash) {
		vote = &blockHash
	}
	return e.castPrevote(vote)
}

// hasPolka reports whether round already accumulated 2f+1 prevotes for hash.
func (e *Engine) hasPolka(round uint64, hash BlockHash) bool {
	votes := e.prevotes[round]
	if len(votes) == 0 {
		return false
	}
	stake := big.NewInt(0)
	for id, v := range votes {
		if v.BlockHash != nil && *v.BlockHash == hash {
			stake.Add(stake, e.vs.StakeOf(id))
		}
	}
	return e.vs.HasQuorum(stake)
}

func (e *Engine) castPrevote(hash *BlockHash) EngineOutput {
	if e.prevotedThisRound[e.round] {
		return EngineOutput{}
	}
	e.prevotedThisRound[e.round] = true
	e.step = StepPrevote

	v := Vote{Height: e.height, Round: e.round, BlockHash: hash, Kind: VoteKindPrevote, Voter: e.self}
	out := EngineOutput{Messages: []OutboundMessage{{Vote: &v}}}
	return out.merge(e.recordVote(v))
}

func (e *Engine) castPrecommit(hash *BlockHash) EngineOutput {
	if e.precommittedThisRound[e.round] {
		return EngineOutput{}
	}
	e.precommittedThisRound[e.round] = true
	e.step = StepPrecommit

	v := Vote{Height: e.height, Round: e.round, BlockHash: hash, Kind: VoteKindPrecommit, Voter: e.self}
	out := EngineOutput{Messages: []OutboundMessage{{Vote: &v}}}
	return out.merge(e.recordVote(v))
}

// OnVote delivers a prevote or precommit received from the network (or
// looped back from this engine's own cast*).
func (e *Engine) OnVote(v Vote) EngineOutput {
	if e.vs == nil || e.decided || v.Height != e.height {
		return EngineOutput{}
	}
	if !e.vs.Contains(v.Voter) {
		return EngineOutput{}
	}
	e.evidence.Observe(v)
	return e.recordVote(v)
}

func (e *Engine) recordVote(v Vote) EngineOutput {
	table := e.prevotes
	if v.Kind == VoteKindPrecommit {
		table = e.precommits
	}
	m, ok := table[v.Round]
	if !ok {
		m = make(map[Identity]Vote)
		table[v.Round] = m
	}
	if _, exists := m[v.Voter]; exists {
		// First vote of this kind/round from this voter wins; a differing
		// second vote was already captured as Evidence above.
		return EngineOutput{}
	}
	m[v.Voter] = v

	if v.Kind == VoteKindPrevote {
		return e.checkPrevoteThresholds(v.Round)
	}
	return e.checkPrecommitThresholds(v.Round)
}

func (e *Engine) checkPrevoteThresholds(round uint64) EngineOutput {
	var out EngineOutput
	if round != e.round || e.step != StepPrevote {
		return out
	}

	votes := e.prevotes[round]
	totals := make(map[BlockHash]*big.Int)
	anyStake := big.NewInt(0)
	for id, v := range votes {
		s := e.vs.StakeOf(id)
		anyStake.Add(anyStake, s)
		if v.BlockHash != nil {
			t, ok := totals[*v.BlockHash]
			if !ok {
				t = big.NewInt(0)
				totals[*v.BlockHash] = t
			}
			t.Add(t, s)
		}
	}

	for hash, stake := range totals {
		if e.vs.HasQuorum(stake) {
			block := e.blockForHash(round, hash)
			e.lockedValue = block
			e.lockedRound = int64(round)
			e.validValue = block
			e.validRound = int64(round)
			out = out.merge(e.castPrecommit(&hash))
			return out
		}
	}

	nilStake := big.NewInt(0)
	for _, v := range votes {
		if v.BlockHash == nil {
			nilStake.Add(nilStake, e.vs.StakeOf(v.Voter))
		}
	}
	if e.vs.HasQuorum(nilStake) {
		out = out.merge(e.castPrecommit(nil))
		return out
	}

	if !e.prevoteTimeoutArmed[round] && e.vs.HasQuorum(anyStake) {
		e.prevoteTimeoutArmed[round] = true
		e.timeouts.Start(StepPrevote, round)
	}
	return out
}

func (e *Engine) checkPrecommitThresholds(round uint64) EngineOutput {
	var out EngineOutput
	votes := e.precommits[round]

	totals := make(map[BlockHash]*big.Int)
	anyStake := big.NewInt(0)
	for id, v := range votes {
		s := e.vs.StakeOf(id)
		anyStake.Add(anyStake, s)
		if v.BlockHash != nil {
			t, ok := totals[*v.BlockHash]
			if !ok {
				t = big.NewInt(0)
				totals[*v.BlockHash] = t
			}
			t.Add(t, s)
		}
	}

	for hash, stake := range totals {
		if e.vs.HasQuorum(stake) && !e.decided {
			block := e.blockForHash(round, hash)
			if block == nil {
				continue
			}
			e.decided = true
			e.step = StepCommit
			e.timeouts.CancelAll()

			var sigs []CommitSignature
			for id, v := range votes {
				if v.BlockHash != nil && *v.BlockHash == hash {
					sigs = append(sigs, CommitSignature{Voter: id, Signature: v.Signature})
				}
			}
			out.Committed = &CommittedBlock{Block: *block, CommitSignatures: sigs, CommitRound: round}
			return out
		}
	}

	if round == e.round && !e.precommitTimeoutArmed[round] && e.vs.HasQuorum(anyStake) {
		e.precommitTimeoutArmed[round] = true
		e.timeouts.Start(StepPrecommit, round)
	}
	return out
}

// blockForHash returns the block matching hash, preferring the proposal
// seen in round but falling back to any other round's proposal (a value
// can commit at a round other than the one it was first proposed in, via
// the valid-value/polka carry).
func (e *Engine) blockForHash(round uint64, hash BlockHash) *ProposedBlock {
	if p, ok := e.proposals[round]; ok && p.Block.Hash() == hash {
		b := p.Block
		return &b
	}
	for _, p := range e.proposals {
		if p.Block.Hash() == hash {
			b := p.Block
			return &b
		}
	}
	return nil
}

// OnTimeout delivers a fired timeout for (step, round). Callers typically
// drive this from TimeoutScheduler.CheckExpired.
func (e *Engine) OnTimeout(step Step, round uint64) EngineOutput {
	if e.vs == nil || e.decided || round != e.round {
		return EngineOutput{}
	}
	switch step {
	case StepPropose:
		if e.step == StepPropose {
			return e.castPrevote(nil)
		}
	case StepPrevote:
		if e.step == StepPrevote {
			return e.castPrecommit(nil)
		}
	case StepPrecommit:
		return e.enterRound(e.round + 1)
	}
	return EngineOutput{}
}

// Decided reports whether this height has committed.
func (e *Engine) Decided() bool { return e.decided }
