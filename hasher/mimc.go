package hasher

import (
	"github.com/colorfulnotion/incmerkle/field"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// MiMC is gnark-crypto's BN254 MiMC, matching gnark's std/hash/mimc circuit
// gadget. It is not circomlib's MiMCSponge; see MiMCSponge for that.
type MiMC struct{}

func (MiMC) Name() string { return MiMCName }

func (MiMC) Hash(left, right field.Element) field.Element {
	return mimcSum(left, right)
}

// HashOne absorbs a single element.
func (MiMC) HashOne(preimage field.Element) field.Element {
	return mimcSum(preimage)
}

func mimcSum(inputs ...field.Element) field.Element {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		b := in.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			panic(err)
		}
	}
	return mustElement(h.Sum(nil))
}
