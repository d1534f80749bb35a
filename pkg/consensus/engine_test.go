package consensus_test

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/lightchain-l1/trv1-core/pkg/consensus"
)

// testNet wires up N engines sharing one validator set and pumps messages
// between them synchronously (no goroutines, no wall-clock sleeping) so
// consensus rounds can be driven deterministically from a test.
type testNet struct {
	vs      *consensus.ValidatorSet
	ids     []common.Address
	engines []*consensus.Engine
}

func newTestNet(t *testing.T, n int) *testNet {
	t.Helper()
	ids := make([]common.Address, n)
	validators := make([]consensus.Validator, n)
	for i := 0; i < n; i++ {
		ids[i] = addr(byte(i + 1))
		validators[i] = consensus.Validator{Identity: ids[i], Stake: big.NewInt(100)}
	}
	vs := consensus.NewValidatorSet(validators)

	nt := &testNet{vs: vs, ids: ids}
	for i := 0; i < n; i++ {
		self := ids[i]
		proposeFn := func(height, round uint64) consensus.ProposedBlock {
			return consensus.ProposedBlock{
				Height:    height,
				Timestamp: time.Unix(int64(height), int64(round)),
				Transactions: [][]byte{
					[]byte(fmt.Sprintf("h%d-r%d-by-%s", height, round, self.Hex())),
				},
				Proposer: self,
			}
		}
		timeouts := consensus.NewTimeoutScheduler(consensus.DefaultTimeoutConfig(), func() time.Time { return time.Time{} })
		e := consensus.NewEngine(self, proposeFn, timeouts, consensus.NewEvidenceCollector())
		nt.engines = append(nt.engines, e)
	}
	return nt
}

// broadcast delivers a single message to every engine in the net (including
// its originator, mirroring a node echoing its own broadcast back to itself)
// and returns every EngineOutput produced.
func (nt *testNet) broadcast(msg consensus.OutboundMessage) []consensus.EngineOutput {
	outs := make([]consensus.EngineOutput, len(nt.engines))
	for i, e := range nt.engines {
		switch {
		case msg.Proposal != nil:
			outs[i] = e.OnProposal(*msg.Proposal)
		case msg.Vote != nil:
			outs[i] = e.OnVote(*msg.Vote)
		}
	}
	return outs
}

// run pumps messages to quiescence, nudging stalled proposers/voters with
// their own expired timeouts in lieu of a real clock. It returns the
// committed block observed by each engine (nil entries mean that engine
// never decided within maxRounds).
func (nt *testNet) run(maxRounds int) []*consensus.CommittedBlock {
	committed := make([]*consensus.CommittedBlock, len(nt.engines))
	var queue []consensus.OutboundMessage

	drain := func() {
		for len(queue) > 0 {
			msg := queue[0]
			queue = queue[1:]
			for i, out := range nt.broadcast(msg) {
				queue = append(queue, out.Messages...)
				if out.Committed != nil {
					committed[i] = out.Committed
				}
			}
		}
	}

	for round := 0; round < maxRounds; round++ {
		drain()

		allDecided := true
		for _, e := range nt.engines {
			if !e.Decided() {
				allDecided = false
			}
		}
		if allDecided {
			break
		}

		// Nobody made progress; force every still-waiting engine's current
		// step to expire and feed the resulting messages back in.
		for _, e := range nt.engines {
			if e.Decided() {
				continue
			}
			out := e.OnTimeout(e.Step(), e.Round())
			queue = append(queue, out.Messages...)
		}
	}
	drain()
	return committed
}

func (nt *testNet) startAll(height uint64) []consensus.OutboundMessage {
	var msgs []consensus.OutboundMessage
	for _, e := range nt.engines {
		out := e.StartHeight(height, nt.vs)
		msgs = append(msgs, out.Messages...)
	}
	return msgs
}

// TestHappyRoundCommitsAtRoundZero is end-to-end scenario 1: four online
// validators, no faults, should commit within round 0.
func TestHappyRoundCommitsAtRoundZero(t *testing.T) {
	r := require.New(t)
	nt := newTestNet(t, 4)

	var queue []consensus.OutboundMessage
	queue = append(queue, nt.startAll(1)...)

	committed := make([]*consensus.CommittedBlock, len(nt.engines))
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]
		for i, out := range nt.broadcast(msg) {
			queue = append(queue, out.Messages...)
			if out.Committed != nil {
				committed[i] = out.Committed
			}
		}
	}

	for i, c := range committed {
		r.NotNil(c, "validator %d should have committed", i)
		r.Equal(uint64(0), c.CommitRound, "no faults: should commit in round 0")
	}
}

// TestSafetyAllValidatorsCommitSameBlock is property P1: no two correct
// validators ever decide different blocks at the same height.
func TestSafetyAllValidatorsCommitSameBlock(t *testing.T) {
	r := require.New(t)
	nt := newTestNet(t, 4)

	var queue []consensus.OutboundMessage
	queue = append(queue, nt.startAll(7)...)
	committed := make([]*consensus.CommittedBlock, len(nt.engines))
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]
		for i, out := range nt.broadcast(msg) {
			queue = append(queue, out.Messages...)
			if out.Committed != nil {
				committed[i] = out.Committed
			}
		}
	}

	first := committed[0]
	r.NotNil(first)
	want := first.Block.Hash()
	for i, c := range committed {
		r.NotNil(c, "validator %d should have committed", i)
		r.Equal(want, c.Block.Hash(), "validator %d committed a divergent block", i)
	}
}

// TestValidityCommittedBlockWasProposedByDesignatedProposer is property P2:
// the committed block must be one that was actually proposed by the correct
// proposer for its commit round (no value is invented out of thin air).
func TestValidityCommittedBlockWasProposedByDesignatedProposer(t *testing.T) {
	r := require.New(t)
	nt := newTestNet(t, 4)

	var queue []consensus.OutboundMessage
	queue = append(queue, nt.startAll(3)...)
	var committed *consensus.CommittedBlock
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]
		for _, out := range nt.broadcast(msg) {
			queue = append(queue, out.Messages...)
			if out.Committed != nil && committed == nil {
				committed = out.Committed
			}
		}
	}

	r.NotNil(committed)
	proposer, ok := nt.vs.ProposerForRound(3, committed.CommitRound)
	r.True(ok)
	r.Equal(proposer, committed.Block.Proposer)
}

// TestLivenessRoundEscalatesWhenProposerIsSilent is end-to-end scenario 2
// and property P3: if the round-0 proposer never sends a proposal, the
// remaining validators still reach a decision after escalating rounds.
func TestLivenessRoundEscalatesWhenProposerIsSilent(t *testing.T) {
	r := require.New(t)
	nt := newTestNet(t, 4)

	height := uint64(1)
	round0Proposer, ok := nt.vs.ProposerForRound(height, 0)
	r.True(ok)

	var queue []consensus.OutboundMessage
	for i, e := range nt.engines {
		out := e.StartHeight(height, nt.vs)
		if nt.ids[i] == round0Proposer {
			// Drop the silent proposer's own proposal message; everyone
			// else still arms its propose timeout.
			continue
		}
		queue = append(queue, out.Messages...)
	}

	committed := nt.run(20)
	for i, c := range committed {
		r.NotNil(c, "validator %d should eventually commit", i)
		r.Greater(c.CommitRound, uint64(0), "should not have committed in the silenced round 0")
	}
}

// TestTimeoutsGrowWithRound is property P5.
func TestTimeoutsGrowWithRound(t *testing.T) {
	r := require.New(t)
	cfg := consensus.DefaultTimeoutConfig()

	r.Less(cfg.Propose(0), cfg.Propose(1))
	r.Less(cfg.Propose(1), cfg.Propose(5))
	r.Less(cfg.Prevote(0), cfg.Prevote(1))
	r.Less(cfg.Precommit(0), cfg.Precommit(1))
}

func TestLinearTimeoutFormula(t *testing.T) {
	r := require.New(t)
	fn := consensus.LinearTimeout(2*time.Second, 250*time.Millisecond)
	r.Equal(2*time.Second, fn(0))
	r.Equal(2*time.Second+500*time.Millisecond, fn(2))
}
