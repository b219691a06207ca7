package hasher

import (
	"github.com/colorfulnotion/incmerkle/field"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// Poseidon2 is the gnark-crypto BN254 Poseidon2 Merkle-Damgard hasher with
// its default parameters.
type Poseidon2 struct{}

func (Poseidon2) Name() string { return Poseidon2Name }

func (Poseidon2) Hash(left, right field.Element) field.Element {
	h := poseidon2.NewMerkleDamgardHasher()
	if _, err := h.Write(concat(left, right)); err != nil {
		panic(err)
	}
	return mustElement(h.Sum(nil))
}

// HashOne folds the preimage against itself.
func (p Poseidon2) HashOne(preimage field.Element) field.Element {
	return p.Hash(preimage, preimage)
}
