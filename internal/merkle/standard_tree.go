package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyTree    = errors.New("expected non-zero number of leaves")
	ErrLeafNotFound = errors.New("leaf is not in tree")
)

// StandardTree a Merkle tree over allocation leaves, compatible with the
// OpenZeppelin StandardMerkleTree for ["uint256", "address", "uint256"].
//
// Nodes live in one array: the root at index 0, children of node i at 2i+1
// and 2i+2. Leaf hashes are sorted and stored in reverse order at the tail.
// The tree is immutable once built and safe for concurrent readers.
type StandardTree struct {
	nodes  []common.Hash
	values []indexedLeaf
	lookup map[common.Hash]int // leaf hash -> index into values
}

type indexedLeaf struct {
	leaf      Leaf
	treeIndex int
}

// Build creates the tree for leaves, kept in the given order for All
func Build(leaves []Leaf) (*StandardTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	type hashedLeaf struct {
		valueIndex int
		hash       common.Hash
	}

	hashed := make([]hashedLeaf, len(leaves))
	for i, leaf := range leaves {
		hashed[i] = hashedLeaf{valueIndex: i, hash: leaf.Hash()}
	}
	sort.SliceStable(hashed, func(i, j int) bool {
		return bytes.Compare(hashed[i].hash[:], hashed[j].hash[:]) < 0
	})

	nodes := make([]common.Hash, 2*len(leaves)-1)
	values := make([]indexedLeaf, len(leaves))
	lookup := make(map[common.Hash]int, len(leaves))

	for i, h := range hashed {
		treeIndex := len(nodes) - 1 - i
		nodes[treeIndex] = h.hash
		values[h.valueIndex] = indexedLeaf{leaf: leaves[h.valueIndex], treeIndex: treeIndex}
		lookup[h.hash] = h.valueIndex
	}

	for i := len(nodes) - 1 - len(leaves); i >= 0; i-- {
		nodes[i] = hashPair(nodes[leftChild(i)], nodes[rightChild(i)])
	}

	return &StandardTree{
		nodes:  nodes,
		values: values,
		lookup: lookup,
	}, nil
}

// Root the Merkle root
func (t *StandardTree) Root() common.Hash {
	return t.nodes[0]
}

// Len number of leaves
func (t *StandardTree) Len() int {
	return len(t.values)
}

// All calls fn for every leaf in insertion order until fn returns false
func (t *StandardTree) All(fn func(index int, leaf Leaf) bool) {
	for i, v := range t.values {
		if !fn(i, v.leaf) {
			return
		}
	}
}

// Proof sibling hashes from leaf up to the root
func (t *StandardTree) Proof(leaf Leaf) ([]common.Hash, error) {
	valueIndex, ok := t.lookup[leaf.Hash()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLeafNotFound, leaf)
	}
	return t.proofAt(t.values[valueIndex].treeIndex), nil
}

// ProofAt proof for the leaf inserted at index
func (t *StandardTree) ProofAt(index int) ([]common.Hash, error) {
	if index < 0 || index >= len(t.values) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrLeafNotFound, index)
	}
	return t.proofAt(t.values[index].treeIndex), nil
}

func (t *StandardTree) proofAt(treeIndex int) []common.Hash {
	proof := make([]common.Hash, 0)
	for i := treeIndex; i > 0; i = parent(i) {
		proof = append(proof, t.nodes[sibling(i)])
	}
	return proof
}

// Verify whether proof proves leaf against this tree's root
func (t *StandardTree) Verify(leaf Leaf, proof []common.Hash) bool {
	return VerifyProof(t.Root(), leaf, proof)
}

// VerifyProof whether proof proves leaf against root, without the tree
func VerifyProof(root common.Hash, leaf Leaf, proof []common.Hash) bool {
	return ProcessProof(leaf.Hash(), proof) == root
}

// ProcessProof folds proof into leafHash, yielding the implied root
func ProcessProof(leafHash common.Hash, proof []common.Hash) common.Hash {
	computed := leafHash
	for _, p := range proof {
		computed = hashPair(computed, p)
	}
	return computed
}

// hashPair commutative keccak256 of two nodes: the smaller one goes first,
// so a proof does not need to say which side each sibling is on
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

func leftChild(i int) int  { return 2*i + 1 }
func rightChild(i int) int { return 2*i + 2 }
func parent(i int) int     { return (i - 1) / 2 }

func sibling(i int) int {
	if i%2 == 1 {
		return i + 1
	}
	return i - 1
}
