package consensus

// evidenceKey identifies a single vote slot: one identity may cast at most
// one vote of each kind per (height, round).
type evidenceKey struct {
	identity Identity
	height   uint64
	round    uint64
	kind     VoteKind
}

// EvidenceCollector records conflicting votes (double-signs) observed by the
// engine. It never blocks protocol progress — recording is a pure
// side-channel the engine writes to and the runtime drains independently,
// per spec §4.B "Evidence".
type EvidenceCollector struct {
	seen     map[evidenceKey]Vote
	evidence []Evidence
}

// NewEvidenceCollector builds an empty collector.
func NewEvidenceCollector() *EvidenceCollector {
	return &EvidenceCollector{seen: make(map[evidenceKey]Vote)}
}

// Observe records vote v, returning evidence if it conflicts with a
// previously observed vote from the same identity at the same
// (height, round, kind) for a different block hash.
func (c *EvidenceCollector) Observe(v Vote) *Evidence {
	key := evidenceKey{identity: v.Voter, height: v.Height, round: v.Round, kind: v.Kind}
	prior, ok := c.seen[key]
	if !ok {
		c.seen[key] = v
		return nil
	}
	if voteHashEqual(prior, v) {
		return nil
	}

	kind := EvidenceConflictingPrevote
	if v.Kind == VoteKindPrecommit {
		kind = EvidenceConflictingPrecommit
	}
	ev := Evidence{
		Identity: v.Voter,
		Height:   v.Height,
		Round:    v.Round,
		Kind:     kind,
		First:    prior,
		Second:   v,
	}
	c.evidence = append(c.evidence, ev)
	return &ev
}

func voteHashEqual(a, b Vote) bool {
	if (a.BlockHash == nil) != (b.BlockHash == nil) {
		return false
	}
	if a.BlockHash == nil {
		return true
	}
	return *a.BlockHash == *b.BlockHash
}

// Drain returns all collected evidence and clears the collector's buffer
// (the seen-vote map is preserved, so future conflicting votes keep being
// detected).
func (c *EvidenceCollector) Drain() []Evidence {
	out := c.evidence
	c.evidence = nil
	return out
}

// Prune discards evidence and vote records older than minHeight, per spec
// §4.B ("Old evidence (height < current - N) is prunable").
func (c *EvidenceCollector) Prune(minHeight uint64) {
	kept := c.evidence[:0]
	for _, e := range c.evidence {
		if e.Height >= minHeight {
			kept = append(kept, e)
		}
	}
	c.evidence = kept

	for k := range c.seen {
		if k.height < minHeight {
			delete(c.seen, k)
		}
	}
}
