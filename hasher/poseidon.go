package hasher

import (
	"fmt"
	"math/big"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Poseidon is circomlib's BN254 Poseidon as implemented by iden3, matching
// circomlib's Poseidon(2) circuit.
type Poseidon struct{}

func (Poseidon) Name() string { return PoseidonName }

func (Poseidon) Hash(left, right field.Element) field.Element {
	return poseidonSum(left, right)
}

// HashOne folds the preimage against itself, poseidon([x, x]).
func (p Poseidon) HashOne(preimage field.Element) field.Element {
	return p.Hash(preimage, preimage)
}

func poseidonSum(inputs ...field.Element) field.Element {
	in := make([]*big.Int, len(inputs))
	for i, e := range inputs {
		in[i] = e.BigInt()
	}
	out, err := poseidon.Hash(in)
	if err != nil {
		panic(fmt.Sprintf("poseidon: %v", err))
	}
	e, err := field.FromBig(out)
	if err != nil {
		panic(fmt.Sprintf("hasher produced a non-field digest: %v", err))
	}
	return e
}
