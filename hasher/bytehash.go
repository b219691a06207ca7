package hasher

import (
	"github.com/colorfulnotion/incmerkle/field"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// Keccak hashes the 64-byte big-endian concatenation with Keccak-256 and
// reduces the digest into the field, as Solidity accumulators do with
// uint256(keccak256(abi.encodePacked(l, r))) % p.
type Keccak struct{}

func (Keccak) Name() string { return KeccakName }

func (Keccak) Hash(left, right field.Element) field.Element {
	return field.FromBytesReduce(crypto.Keccak256(concat(left, right)))
}

func (Keccak) HashOne(preimage field.Element) field.Element {
	b := preimage.Bytes()
	return field.FromBytesReduce(crypto.Keccak256(b[:]))
}

// Blake2b is the Blake2b-256 counterpart of Keccak.
type Blake2b struct{}

func (Blake2b) Name() string { return Blake2bName }

func (Blake2b) Hash(left, right field.Element) field.Element {
	digest := blake2b.Sum256(concat(left, right))
	return field.FromBytesReduce(digest[:])
}

func (Blake2b) HashOne(preimage field.Element) field.Element {
	b := preimage.Bytes()
	digest := blake2b.Sum256(b[:])
	return field.FromBytesReduce(digest[:])
}
