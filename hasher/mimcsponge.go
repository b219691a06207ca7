package hasher

import (
	"github.com/colorfulnotion/incmerkle/field"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

const mimcSpongeRounds = 220

// c[0] = c[219] = 0; c[i] = keccak256(c[i-1]) mod p, seeded with keccak256("mimcsponge")
var mimcSpongeConstants = func() [mimcSpongeRounds]fr.Element {
	var cts [mimcSpongeRounds]fr.Element
	c := crypto.Keccak256([]byte("mimcsponge"))
	for i := 1; i < mimcSpongeRounds-1; i++ {
		c = crypto.Keccak256(c)
		cts[i].SetBytes(c)
	}
	return cts
}()

// MiMCSponge is circomlib's MiMCSponge(220 rounds, key 0, one output), the
// hash used by Tornado Cash's MerkleTreeWithHistory.
type MiMCSponge struct{}

func (MiMCSponge) Name() string { return MiMCSpongeName }

func (MiMCSponge) Hash(left, right field.Element) field.Element {
	return mimcSpongeMulti(left, right)
}

// HashOne absorbs a single element.
func (MiMCSponge) HashOne(preimage field.Element) field.Element {
	return mimcSpongeMulti(preimage)
}

// mimcSpongeMulti is circomlib multiHash(inputs, 0, 1).
func mimcSpongeMulti(inputs ...field.Element) field.Element {
	var r, c fr.Element
	for _, in := range inputs {
		v := in.Fr()
		r.Add(&r, &v)
		r, c = mimcFeistel(r, c)
	}
	return field.FromFr(r)
}

func mimcFeistel(xL, xR fr.Element) (fr.Element, fr.Element) {
	var t, t5 fr.Element
	for i := 0; i < mimcSpongeRounds; i++ {
		t.Add(&xL, &mimcSpongeConstants[i])
		t5.Square(&t)
		t5.Square(&t5)
		t5.Mul(&t5, &t)
		if i < mimcSpongeRounds-1 {
			var next fr.Element
			next.Add(&xR, &t5)
			xR = xL
			xL = next
		} else {
			xR.Add(&xR, &t5)
		}
	}
	return xL, xR
}
