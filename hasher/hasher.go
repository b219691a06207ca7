// Package hasher provides the hashing capabilities a commitment tree is built
// with. Every implementation is a pure function of its inputs: no state is
// kept between calls, so a single value may be shared by any number of trees.
package hasher

import (
	"fmt"
	"sort"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/merkleerrors"
)

const (
	MiMCName       = "mimc"
	MiMCSpongeName = "mimcsponge"
	PoseidonName   = "poseidon"
	Poseidon2Name  = "poseidon2"
	KeccakName     = "keccak"
	Blake2bName    = "blake2b"
)

// Hasher is the two-operation contract consumed by the tree.
type Hasher interface {
	// Hash combines a left and right child into their parent digest.
	Hash(left, right field.Element) field.Element

	// HashOne compresses a single preimage into a leaf digest.
	HashOne(preimage field.Element) field.Element
}

// Named is implemented by hashers that can be recorded and resolved again
// through ByName.
type Named interface {
	Name() string
}

var registry = map[string]func() Hasher{
	MiMCName:       func() Hasher { return MiMC{} },
	MiMCSpongeName: func() Hasher { return MiMCSponge{} },
	PoseidonName:   func() Hasher { return Poseidon{} },
	Poseidon2Name:  func() Hasher { return Poseidon2{} },
	KeccakName:     func() Hasher { return Keccak{} },
	Blake2bName:    func() Hasher { return Blake2b{} },
}

// ByName resolves a registered hasher.
func ByName(name string) (Hasher, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("hasher %q: %w", name, merkleerrors.ErrUnknownHasher)
	}
	return ctor(), nil
}

// Names lists the registered hashers in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameOf returns the registered name of h, or "" for anonymous hashers.
func NameOf(h Hasher) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return ""
}

func concat(left, right field.Element) []byte {
	l, r := left.Bytes(), right.Bytes()
	data := make([]byte, 0, 2*field.Bytes)
	data = append(data, l[:]...)
	return append(data, r[:]...)
}

// mustElement decodes a digest that the underlying primitive guarantees to be
// canonical. A failure means the primitive is misconfigured.
func mustElement(digest []byte) field.Element {
	e, err := field.FromBytes(digest)
	if err != nil {
		panic(fmt.Sprintf("hasher produced a non-field digest: %v", err))
	}
	return e
}
