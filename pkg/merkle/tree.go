// Package merkle implements the content commitment used by syncx: a
// layered Merkle tree over a set of file blobs, with inclusion proofs
// that carry sibling side flags.
//
// Leaves are the lower-case hex SHA-256 digests of the file contents,
// sorted ascending before the tree is built. Internal nodes hash the
// ASCII concatenation of the two child hex strings. A level of odd
// cardinality promotes its last node by pairing it with itself.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
)

var (
	// ErrNoLeaves is returned when a tree is requested over zero blobs.
	ErrNoLeaves = errors.New("merkle: no leaves")
	// ErrInvalidLeaf is returned when a proof is requested for a hash
	// that is not a leaf of the tree.
	ErrInvalidLeaf = errors.New("merkle: leaf not in tree")
	// ErrOutOfBounds indicates a proof walk escaped a level. It cannot
	// happen on a correctly built tree.
	ErrOutOfBounds = errors.New("merkle: index out of bounds")

	ErrSerialize   = errors.New("merkle: serialize tree")
	ErrDeserialize = errors.New("merkle: deserialize tree")
)

// HashBytes returns the lower-case hex SHA-256 digest of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Tree is the layered representation: Nodes[0] holds the sorted leaf
// hashes, each subsequent level the parents, and the last level the
// single root. Indexes maps every node hash to its (level, position).
type Tree struct {
	Nodes   [][]string        `json:"nodes"`
	Indexes map[string][2]int `json:"indexes"`
}

// NewTree builds a tree over the given blobs. The blobs are hashed,
// the digests sorted ascending, and levels folded bottom-up.
func NewTree(leafBytes [][]byte) (*Tree, error) {
	if len(leafBytes) == 0 {
		return nil, ErrNoLeaves
	}

	leaves := BuildLeafNodes(leafBytes)

	t := &Tree{Indexes: make(map[string][2]int, 2*len(leaves))}
	for i, leaf := range leaves {
		t.Indexes[leaf] = [2]int{0, i}
	}

	level := leaves
	for height := 1; ; height++ {
		t.Nodes = append(t.Nodes, level)
		if len(level) <= 1 {
			break
		}

		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			parent := HashBytes([]byte(left + right))
			t.Indexes[parent] = [2]int{height, len(next)}
			next = append(next, parent)
		}
		level = next
	}

	return t, nil
}

// BuildLeafNodes hashes each blob and returns the digests sorted
// ascending. The sorted order is part of the commitment.
func BuildLeafNodes(leafBytes [][]byte) []string {
	leaves := make([]string, len(leafBytes))
	for i, b := range leafBytes {
		leaves[i] = HashBytes(b)
	}
	sort.Strings(leaves)
	return leaves
}

// LeafNodes returns the sorted leaf hashes (level 0).
func (t *Tree) LeafNodes() []string {
	return t.Nodes[0]
}

// Root returns the root hash.
func (t *Tree) Root() string {
	return t.Nodes[len(t.Nodes)-1][0]
}

// Serialize encodes the tree as JSON. Deserialize(Serialize(t))
// reproduces t exactly.
func (t *Tree) Serialize() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, ErrSerialize
	}
	return data, nil
}

// Deserialize decodes a tree previously produced by Serialize.
func Deserialize(data []byte) (*Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, ErrDeserialize
	}
	if len(t.Nodes) == 0 || len(t.Nodes[0]) == 0 {
		return nil, ErrDeserialize
	}
	return &t, nil
}
