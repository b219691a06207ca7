package merkle

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/hasher"
	"github.com/colorfulnotion/incmerkle/merkleerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProofSoundness(t *testing.T) {
	var TestingDepths = []int{1, 2, 3, 5}
	for _, depth := range TestingDepths {
		depth := depth
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			h := hasher.Keccak{}
			tree := newTree(t, depth, field.NewElement(3), h)
			for n, leaf := range foldedLeaves(h, 1<<depth) {
				require.NoError(t, tree.Insert(leaf))

				// every inserted leaf must still prove against the new root
				for i := 0; i <= n; i++ {
					proof, err := tree.MerkleProof(uint64(i))
					require.NoError(t, err)
					require.Len(t, proof.Siblings, depth)
					require.Len(t, proof.PathIndices, depth)

					got, err := tree.Leaf(uint64(i))
					require.NoError(t, err)
					computed, err := ComputeRoot(h, got, proof)
					require.NoError(t, err)
					if computed != tree.Root() {
						t.Fatalf("proof of leaf %d after %d inserts: expected root %s, got %s", i, n+1, tree.Root(), computed)
					}
					assert.True(t, tree.VerifyProof(got, proof))
				}
			}
		})
	}
}

func TestProofMarkersFollowIndexBits(t *testing.T) {
	h := hasher.Keccak{}
	tree := newTree(t, 4, zeroValue, h)
	require.NoError(t, tree.InsertBatch(foldedLeaves(h, 16)))
	for i := uint64(0); i < 16; i++ {
		proof, err := tree.MerkleProof(i)
		require.NoError(t, err)
		assert.Equal(t, i, proof.Index)
		for level, marker := range proof.PathIndices {
			assert.Equal(t, ChildLocation((i>>uint(level))&1), marker, "leaf %d level %d", i, level)
		}
	}
}

// depth=2, zero 0, leaves fold(1..4), then Update(1, fold(5)).
func TestDepthTwoScenario(t *testing.T) {
	for _, name := range hasher.Names() {
		name := name
		t.Run(name, func(t *testing.T) {
			h, err := hasher.ByName(name)
			require.NoError(t, err)
			d1 := h.HashOne(field.NewElement(1))
			d2 := h.HashOne(field.NewElement(2))
			d3 := h.HashOne(field.NewElement(3))
			d4 := h.HashOne(field.NewElement(4))
			d5 := h.HashOne(field.NewElement(5))

			tree := newTree(t, 2, field.NewElement(0), h)
			for _, d := range []field.Element{d1, d2, d3, d4} {
				require.NoError(t, tree.Insert(d))
			}
			assert.Equal(t, h.Hash(h.Hash(d1, d2), h.Hash(d3, d4)), tree.Root())

			require.NoError(t, tree.Update(1, d5))
			want := h.Hash(h.Hash(d1, d5), h.Hash(d3, d4))
			assert.Equal(t, want, tree.Root())

			proof, err := tree.MerkleProof(0)
			require.NoError(t, err)
			assert.Equal(t, []field.Element{d5, h.Hash(d3, d4)}, proof.Siblings)
			assert.Equal(t, []ChildLocation{Left, Left}, proof.PathIndices)
			assert.True(t, VerifyProof(h, want, d1, proof))

			proof3, err := tree.MerkleProof(3)
			require.NoError(t, err)
			assert.Equal(t, []field.Element{d3, h.Hash(d1, d5)}, proof3.Siblings)
			assert.Equal(t, []ChildLocation{Right, Right}, proof3.PathIndices)
		})
	}
}

func TestProofOfPartialTreeUsesZeros(t *testing.T) {
	h := hasher.Keccak{}
	tree := newTree(t, 3, zeroValue, h)
	leaf := h.HashOne(field.NewElement(1))
	require.NoError(t, tree.Insert(leaf))

	proof, err := tree.MerkleProof(0)
	require.NoError(t, err)
	assert.Equal(t, tree.Zeros(), proof.Siblings)
	assert.Equal(t, []ChildLocation{Left, Left, Left}, proof.PathIndices)
}

func TestVerifyProofRejects(t *testing.T) {
	h := hasher.Keccak{}
	tree := newTree(t, 3, zeroValue, h)
	leaves := foldedLeaves(h, 5)
	require.NoError(t, tree.InsertBatch(leaves))
	proof, err := tree.MerkleProof(2)
	require.NoError(t, err)

	assert.True(t, tree.VerifyProof(leaves[2], proof))
	assert.False(t, tree.VerifyProof(leaves[3], proof), "wrong leaf")
	assert.False(t, tree.VerifyProof(leaves[2], nil))
	assert.False(t, VerifyProof(hasher.Blake2b{}, tree.Root(), leaves[2], proof), "wrong hasher")

	tampered := *proof
	tampered.PathIndices = append([]ChildLocation(nil), proof.PathIndices...)
	tampered.PathIndices[0] = Right
	assert.False(t, tree.VerifyProof(leaves[2], &tampered))

	short := &Proof{Index: 2, Siblings: proof.Siblings[:2], PathIndices: proof.PathIndices[:2]}
	assert.False(t, tree.VerifyProof(leaves[2], short))

	bad := &Proof{Siblings: proof.Siblings, PathIndices: []ChildLocation{Left, 7, Left}}
	_, err = ComputeRoot(h, leaves[2], bad)
	assert.ErrorIs(t, err, merkleerrors.ErrInvalidProof)
	_, err = ComputeRoot(h, leaves[2], &Proof{Siblings: proof.Siblings})
	assert.ErrorIs(t, err, merkleerrors.ErrInvalidProof)
}

func TestProofSerializationDeserialization(t *testing.T) {
	h := hasher.MiMC{}
	tree := newTree(t, 4, zeroValue, h)
	require.NoError(t, tree.InsertBatch(foldedLeaves(h, 11)))
	proof, err := tree.MerkleProof(10)
	require.NoError(t, err)

	data, err := proof.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, proofHeaderLen+4*(1+field.Bytes))

	var decoded Proof
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, *proof, decoded)

	leaf, err := tree.Leaf(10)
	require.NoError(t, err)
	assert.True(t, tree.VerifyProof(leaf, &decoded))

	js, err := json.Marshal(proof)
	require.NoError(t, err)
	var fromJSON Proof
	require.NoError(t, json.Unmarshal(js, &fromJSON))
	assert.Equal(t, *proof, fromJSON)
}

func TestProofDeserializationErrors(t *testing.T) {
	tree := newTree(t, 2, zeroValue, hasher.Keccak{})
	require.NoError(t, tree.Insert(field.NewElement(1)))
	proof, err := tree.MerkleProof(0)
	require.NoError(t, err)
	data, err := proof.MarshalBinary()
	require.NoError(t, err)

	var p Proof
	assert.ErrorIs(t, p.UnmarshalBinary(data[:5]), merkleerrors.ErrInvalidProof)
	assert.ErrorIs(t, p.UnmarshalBinary(data[:len(data)-1]), merkleerrors.ErrInvalidProof)

	badMarker := append([]byte(nil), data...)
	badMarker[proofHeaderLen] = 2
	assert.ErrorIs(t, p.UnmarshalBinary(badMarker), merkleerrors.ErrInvalidProof)

	notInField := append([]byte(nil), data...)
	for i := proofHeaderLen + 1; i < proofHeaderLen+1+field.Bytes; i++ {
		notInField[i] = 0xff
	}
	assert.ErrorIs(t, p.UnmarshalBinary(notInField), merkleerrors.ErrNotInField)

	_, err = (&Proof{Siblings: proof.Siblings}).MarshalBinary()
	assert.ErrorIs(t, err, merkleerrors.ErrInvalidProof)
}

func TestProofJSONMarkers(t *testing.T) {
	p := Proof{Index: 1, Siblings: []field.Element{field.NewElement(7)}, PathIndices: []ChildLocation{Right}}
	js, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":1,"siblings":["7"],"path_indices":["right"]}`, string(js))

	var back Proof
	require.NoError(t, json.Unmarshal([]byte(`{"index":1,"siblings":["7"],"path_indices":["1"]}`), &back))
	assert.Equal(t, p, back)
	assert.Error(t, json.Unmarshal([]byte(`{"path_indices":["up"]}`), &back))
}
