package merkle

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/hasher"
	"github.com/colorfulnotion/incmerkle/merkleerrors"
)

// ChildLocation says which child of its parent a path node is.
type ChildLocation uint8

const (
	Left  ChildLocation = 0
	Right ChildLocation = 1
)

func (c ChildLocation) String() string {
	if c == Left {
		return "left"
	}
	return "right"
}

func (c ChildLocation) MarshalText() ([]byte, error) {
	if c != Left && c != Right {
		return nil, fmt.Errorf("marker %d: %w", uint8(c), merkleerrors.ErrInvalidProof)
	}
	return []byte(c.String()), nil
}

func (c *ChildLocation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left", "0":
		*c = Left
	case "right", "1":
		*c = Right
	default:
		return fmt.Errorf("marker %q: %w", text, merkleerrors.ErrInvalidProof)
	}
	return nil
}

// Proof is a Merkle path for one leaf. Siblings and PathIndices run from the
// leaf level to the level just below the root.
type Proof struct {
	Index       uint64          `json:"index"`
	Siblings    []field.Element `json:"siblings"`
	PathIndices []ChildLocation `json:"path_indices"`
}

// MerkleProof returns the path for the leaf at index. It runs in O(depth).
func (t *Tree) MerkleProof(index uint64) (*Proof, error) {
	if index >= t.nextIndex {
		return nil, fmt.Errorf("path for leaf %d of %d: %w", index, t.nextIndex, merkleerrors.ErrIndexOutOfRange)
	}

	proof := &Proof{
		Index:       index,
		Siblings:    make([]field.Element, t.depth),
		PathIndices: make([]ChildLocation, t.depth),
	}
	idx := index
	for i := 0; i < t.depth; i++ {
		if idx%2 == 0 {
			proof.Siblings[i] = t.node(i, idx+1)
			proof.PathIndices[i] = Left
		} else {
			proof.Siblings[i] = t.node(i, idx-1)
			proof.PathIndices[i] = Right
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyProof reports whether proof places leaf under the current root.
func (t *Tree) VerifyProof(leaf field.Element, proof *Proof) bool {
	if proof == nil || len(proof.Siblings) != t.depth {
		return false
	}
	return VerifyProof(t.hasher, t.root, leaf, proof)
}

// ComputeRoot folds leaf with the proof's siblings, leaf to root.
func ComputeRoot(h hasher.Hasher, leaf field.Element, proof *Proof) (field.Element, error) {
	if proof == nil || len(proof.Siblings) != len(proof.PathIndices) {
		return field.Element{}, merkleerrors.ErrInvalidProof
	}
	current := leaf
	for i, sibling := range proof.Siblings {
		switch proof.PathIndices[i] {
		case Left:
			current = h.Hash(current, sibling)
		case Right:
			current = h.Hash(sibling, current)
		default:
			return field.Element{}, fmt.Errorf("marker %d at level %d: %w", proof.PathIndices[i], i, merkleerrors.ErrInvalidProof)
		}
	}
	return current, nil
}

// VerifyProof reports whether leaf and proof recombine to root under h.
func VerifyProof(h hasher.Hasher, root, leaf field.Element, proof *Proof) bool {
	computed, err := ComputeRoot(h, leaf, proof)
	if err != nil {
		return false
	}
	return computed == root
}

// proofHeaderLen is [index:8][depth:2]
const proofHeaderLen = 10

// MarshalBinary encodes the proof as
// [index:8][depth:2] followed by depth times [marker:1][sibling:32], big endian.
func (p *Proof) MarshalBinary() ([]byte, error) {
	if len(p.Siblings) != len(p.PathIndices) || len(p.Siblings) > MaxDepth {
		return nil, merkleerrors.ErrInvalidProof
	}
	buf := make([]byte, proofHeaderLen+len(p.Siblings)*(1+field.Bytes))
	binary.BigEndian.PutUint64(buf[0:8], p.Index)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(p.Siblings)))

	offset := proofHeaderLen
	for i, sibling := range p.Siblings {
		buf[offset] = byte(p.PathIndices[i])
		b := sibling.Bytes()
		copy(buf[offset+1:offset+1+field.Bytes], b[:])
		offset += 1 + field.Bytes
	}
	return buf, nil
}

// UnmarshalBinary decodes the MarshalBinary layout.
func (p *Proof) UnmarshalBinary(data []byte) error {
	if len(data) < proofHeaderLen {
		return fmt.Errorf("proof data too short: %d bytes: %w", len(data), merkleerrors.ErrInvalidProof)
	}
	index := binary.BigEndian.Uint64(data[0:8])
	depth := int(binary.BigEndian.Uint16(data[8:10]))
	if depth > MaxDepth {
		return fmt.Errorf("proof depth %d: %w", depth, merkleerrors.ErrInvalidProof)
	}
	if want := proofHeaderLen + depth*(1+field.Bytes); len(data) != want {
		return fmt.Errorf("proof data length mismatch: expected %d, got %d: %w", want, len(data), merkleerrors.ErrInvalidProof)
	}

	siblings := make([]field.Element, depth)
	markers := make([]ChildLocation, depth)
	offset := proofHeaderLen
	for i := 0; i < depth; i++ {
		marker := ChildLocation(data[offset])
		if marker != Left && marker != Right {
			return fmt.Errorf("marker %d at level %d: %w", marker, i, merkleerrors.ErrInvalidProof)
		}
		sibling, err := field.FromBytes(data[offset+1 : offset+1+field.Bytes])
		if err != nil {
			return fmt.Errorf("sibling at level %d: %w", i, err)
		}
		markers[i] = marker
		siblings[i] = sibling
		offset += 1 + field.Bytes
	}

	p.Index = index
	p.Siblings = siblings
	p.PathIndices = markers
	return nil
}
