package cache

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/common"
)

// combine computes a Merkle parent hash from its two children, per spec §6:
// parent = SHA256(left || right).
func combine(left, right common.Hash) common.Hash {
	h := sha256.New()
	h.Write(left.Bytes())
	h.Write(right.Bytes())
	return common.BytesToHash(h.Sum(nil))
}

// MerkleProof is an inclusion proof for a single leaf: the sibling hash at
// each level from leaf to root, plus the leaf's index (used to pick, at
// each level, which side the sibling sits on).
type MerkleProof struct {
	LeafIndex uint64
	Siblings  []common.Hash
}

// VerifyProof reports whether proof derives root from leaf, selecting each
// sibling's side by the corresponding bit of LeafIndex (LSB first, matching
// spec §6's "leaf siblings chosen by leaf_index bits, LSB-first up the
// tree").
func VerifyProof(leaf common.Hash, proof MerkleProof, root common.Hash) bool {
	cur := leaf
	idx := proof.LeafIndex
	for _, sibling := range proof.Siblings {
		if idx&1 == 0 {
			cur = combine(cur, sibling)
		} else {
			cur = combine(sibling, cur)
		}
		idx >>= 1
	}
	return cur == root
}

// BuildMerkleRoot computes the root of a balanced binary tree over leaves,
// duplicating the last leaf at each level to pad odd counts. It exists to
// let tests and tooling construct proofs/roots consistent with VerifyProof's
// combine order; production root computation against the broader ledger's
// Merkle tree is out of scope (spec §1 non-goals).
func BuildMerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = combine(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

// BuildMerkleProof constructs the sibling path for leaves[index], consistent
// with BuildMerkleRoot's combine order and VerifyProof's bit selection.
func BuildMerkleProof(leaves []common.Hash, index uint64) MerkleProof {
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)

	proof := MerkleProof{LeafIndex: index}
	idx := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		siblingIdx := idx ^ 1
		proof.Siblings = append(proof.Siblings, level[siblingIdx])

		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = combine(level[2*i], level[2*i+1])
		}
		level = next
		idx /= 2
	}
	return proof
}
