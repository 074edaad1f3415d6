// Package merkle implements the keccak-256 domain-separated Merkle
// primitives used to bind verifier sets and message batches to the roots
// that verifiers sign.
package merkle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyTree    = errors.New("merkle: cannot build tree from empty leaves")
	ErrLeafNotFound = errors.New("merkle: leaf not found in tree")
	ErrNotBuilt     = errors.New("merkle: tree not built")
)

// Tree is a binary Merkle tree over 32-byte leaf hashes.
type Tree struct {
	mu     sync.RWMutex
	leaves [][32]byte
	levels [][][32]byte
	root   [32]byte
	built  bool
}

// BuildTree constructs a tree from already-hashed leaves, in leaf order.
// Leaf order fixes each leaf's position, which callers must carry forward
// into the corresponding VerifierSetLeaf/MessageLeaf's Position field.
func BuildTree(leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	t := &Tree{
		leaves: append([][32]byte(nil), leaves...),
	}
	t.build()
	return t, nil
}

func hashPair(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return crypto.Keccak256Hash(buf)
}

func (t *Tree) build() {
	current := t.leaves
	t.levels = append(t.levels, current)

	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, hashPair(current[i], current[i]))
			}
		}
		t.levels = append(t.levels, next)
		current = next
	}

	t.root = current[0]
	t.built = true
}

// Root returns the tree's Merkle root.
func (t *Tree) Root() [32]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// LeafCount returns the number of leaves supplied to BuildTree.
func (t *Tree) LeafCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.leaves)
}

// Proof generates the sibling path from the leaf at index up to the root.
// The path is ordered bottom-to-top; VerifyProof derives left/right
// ordering at each step from the parity of the running index, so no
// explicit direction is stored alongside each sibling.
func (t *Tree) Proof(index int) ([][32]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.built {
		return nil, ErrNotBuilt
	}
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0, %d)", index, len(t.leaves))
	}

	path := make([][32]byte, 0, len(t.levels))
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]

		var siblingIdx int
		if idx%2 == 0 {
			siblingIdx = idx + 1
		} else {
			siblingIdx = idx - 1
		}

		if siblingIdx < len(nodes) {
			path = append(path, nodes[siblingIdx])
		} else {
			path = append(path, nodes[idx])
		}

		idx /= 2
	}

	return path, nil
}

// ProofByHash finds the leaf by value and generates its proof.
func (t *Tree) ProofByHash(leaf [32]byte) ([][32]byte, int, error) {
	t.mu.RLock()
	idx := -1
	for i, l := range t.leaves {
		if l == leaf {
			idx = i
			break
		}
	}
	t.mu.RUnlock()

	if idx == -1 {
		return nil, 0, ErrLeafNotFound
	}
	proof, err := t.Proof(idx)
	return proof, idx, err
}

// VerifyProof walks a leaf hash up a proof path using index-parity ordering
// and reports whether the resulting root matches expectedRoot. position
// comes from the leaf itself (VerifierSetLeaf.Position or
// MessageLeaf.Position) and is not re-derived from the proof; the leaf's
// SetSize is not consulted here.
func VerifyProof(leafHash [32]byte, position uint16, proof [][32]byte, expectedRoot [32]byte) bool {
	current := leafHash
	idx := int(position)

	for _, sibling := range proof {
		if idx%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		idx /= 2
	}

	return current == expectedRoot
}
