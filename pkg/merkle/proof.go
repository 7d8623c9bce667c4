package merkle

// Sibling side flags. The flag states where the sibling sits in the
// concatenation during verification: SideLeft means sibling first,
// SideRight means running hash first.
const (
	SideLeft  uint32 = 0
	SideRight uint32 = 1
)

// ProofNode is one step of an inclusion proof: a sibling hash and the
// side it concatenates on.
type ProofNode struct {
	Hash string `json:"hash"`
	Flag uint32 `json:"flag"`
}

// Proof generates the inclusion proof for leafHash, ordered from the
// leaf level upward. The root is not part of the proof; verification
// takes it out-of-band.
func (t *Tree) Proof(leafHash string) ([]ProofNode, error) {
	pos, ok := t.Indexes[leafHash]
	if !ok || pos[0] != 0 {
		return nil, ErrInvalidLeaf
	}

	index := pos[1]
	if index >= len(t.Nodes[0]) {
		return nil, ErrOutOfBounds
	}

	proof := make([]ProofNode, 0, len(t.Nodes)-1)
	for _, level := range t.Nodes[:len(t.Nodes)-1] {
		if index >= len(level) {
			return nil, ErrOutOfBounds
		}

		var sibling int
		var flag uint32
		if index%2 == 0 {
			// Right sibling; the node itself when the level ends here.
			sibling = index + 1
			if sibling > len(level)-1 {
				sibling = len(level) - 1
			}
			flag = SideRight
		} else {
			sibling = index - 1
			flag = SideLeft
		}

		proof = append(proof, ProofNode{Hash: level[sibling], Flag: flag})
		index /= 2
	}

	return proof, nil
}

// Verify folds the proof over leafHash and reports whether the result
// equals root, along with the computed root for diagnostics.
func Verify(leafHash string, proof []ProofNode, root string) (bool, string) {
	running := leafHash
	for _, node := range proof {
		if node.Flag == SideLeft {
			running = HashBytes([]byte(node.Hash + running))
		} else {
			running = HashBytes([]byte(running + node.Hash))
		}
	}
	return running == root, running
}
