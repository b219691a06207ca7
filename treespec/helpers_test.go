package treespec

import "github.com/ethereum/go-ethereum/crypto"

func keccakTornado() []byte {
	return crypto.Keccak256([]byte("tornado"))
}
