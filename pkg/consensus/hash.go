package consensus

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// hashBlock folds a ProposedBlock's fields into a single SHA-256 digest in a
// fixed order, so the hash is a pure, deterministic function of the block —
// required for cross-implementation agreement (spec §3).
func hashBlock(b *ProposedBlock) BlockHash {
	h := sha256.New()
	h.Write(b.ParentHash.Bytes())

	var heightBuf [8]byte
	binary.LittleEndian.PutUint64(heightBuf[:], b.Height)
	h.Write(heightBuf[:])

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(b.Timestamp.UnixNano()))
	h.Write(tsBuf[:])

	for _, tx := range b.Transactions {
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(tx)))
		h.Write(lenBuf[:])
		h.Write(tx)
	}

	h.Write(b.StateRoot.Bytes())
	h.Write(b.Proposer.Bytes())

	return common.BytesToHash(h.Sum(nil))
}
