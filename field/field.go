// Package field represents elements of the BN254 scalar field, the field in
// which every leaf and digest of the commitment tree lives.
package field

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/colorfulnotion/incmerkle/merkleerrors"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/exp/rand"
)

// Bytes is the size of a big-endian encoded element.
const Bytes = fr.Bytes

// Element is an opaque BN254 scalar field element. The zero value is the
// field element 0. Elements are comparable with ==.
type Element struct {
	v fr.Element
}

// Modulus returns the field modulus
// 21888242871839275222246405745257275088548364400416034343698204186575808495617.
func Modulus() *big.Int {
	return fr.Modulus()
}

func Zero() Element {
	return Element{}
}

// NewElement returns x as a field element.
func NewElement(x uint64) Element {
	var e Element
	e.v.SetUint64(x)
	return e
}

func FromFr(v fr.Element) Element {
	return Element{v: v}
}

// FromBig converts a non-negative integer below the modulus.
func FromBig(b *big.Int) (Element, error) {
	if b == nil || b.Sign() < 0 || b.Cmp(fr.Modulus()) >= 0 {
		return Element{}, fmt.Errorf("big integer %v: %w", b, merkleerrors.ErrNotInField)
	}
	var e Element
	e.v.SetBigInt(b)
	return e, nil
}

// FromString parses a decimal literal or a 0x-prefixed hex literal.
func FromString(s string) (Element, error) {
	s = strings.TrimSpace(s)
	var (
		u   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			digits = "0"
		}
		u, err = uint256.FromHex("0x" + digits)
	} else {
		u, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return Element{}, fmt.Errorf("parse %q: %v: %w", s, err, merkleerrors.ErrNotInField)
	}
	b := u.Bytes32()
	return FromBytes(b[:])
}

// MustFromString is FromString for literals known to be valid.
func MustFromString(s string) Element {
	e, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return e
}

// FromBytes decodes a canonical 32-byte big-endian encoding.
func FromBytes(b []byte) (Element, error) {
	if len(b) != Bytes {
		return Element{}, fmt.Errorf("expected %d bytes, got %d: %w", Bytes, len(b), merkleerrors.ErrNotInField)
	}
	var e Element
	if err := e.v.SetBytesCanonical(b); err != nil {
		return Element{}, fmt.Errorf("%x: %w", b, merkleerrors.ErrNotInField)
	}
	return e, nil
}

// FromBytesReduce interprets b as a big-endian integer and reduces it modulo
// the field order.
func FromBytesReduce(b []byte) Element {
	var e Element
	e.v.SetBytes(b)
	return e
}

// Random draws nbytes little-endian random bytes and reduces them into the
// field. nbytes is capped at 32.
func Random(r *rand.Rand, nbytes int) Element {
	if nbytes > Bytes {
		nbytes = Bytes
	}
	le := make([]byte, nbytes)
	r.Read(le)
	be := make([]byte, nbytes)
	for i := range le {
		be[nbytes-1-i] = le[i]
	}
	return FromBytesReduce(be)
}

// Bytes returns the canonical 32-byte big-endian encoding.
func (e Element) Bytes() [Bytes]byte {
	return e.v.Bytes()
}

func (e Element) BigInt() *big.Int {
	return e.v.BigInt(new(big.Int))
}

func (e Element) Fr() fr.Element {
	return e.v
}

func (e Element) Equal(o Element) bool {
	return e.v.Equal(&o.v)
}

func (e Element) IsZero() bool {
	return e.v.IsZero()
}

// String renders the element in decimal.
func (e Element) String() string {
	return e.v.Text(10)
}

// Hex renders the canonical encoding as 0x-prefixed hex.
func (e Element) Hex() string {
	return e.Hash().Hex()
}

// Hash is the canonical encoding as a 32-byte word.
func (e Element) Hash() common.Hash {
	b := e.Bytes()
	return common.BytesToHash(b[:])
}

// Short is an abbreviated hex rendering for logs and tree dumps.
func (e Element) Short() string {
	h := e.Hex()
	return h[:6] + ".." + h[len(h)-4:]
}

func (e Element) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Element) UnmarshalText(text []byte) error {
	v, err := FromString(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
