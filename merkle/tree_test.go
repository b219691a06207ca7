package merkle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/hasher"
	"github.com/colorfulnotion/incmerkle/log"
	"github.com/colorfulnotion/incmerkle/merkleerrors"
	"github.com/nsf/jsondiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

const testDepth = 2

var zeroValue = field.NewElement(0)

// countingHasher counts calls to Hash so insert cost can be asserted.
type countingHasher struct {
	hasher.Hasher
	calls int
}

func (c *countingHasher) Hash(left, right field.Element) field.Element {
	c.calls++
	return c.Hasher.Hash(left, right)
}

func newTree(t *testing.T, depth int, zero field.Element, h hasher.Hasher) *Tree {
	t.Helper()
	tree, err := New(depth, zero, h)
	require.NoError(t, err)
	return tree
}

// naiveRoot hashes the complete binary tree over leaves padded with zero.
func naiveRoot(h hasher.Hasher, depth int, zero field.Element, leaves []field.Element) field.Element {
	level := make([]field.Element, 1<<depth)
	for i := range level {
		level[i] = zero
	}
	copy(level, leaves)
	for d := 0; d < depth; d++ {
		next := make([]field.Element, len(level)/2)
		for i := range next {
			next[i] = h.Hash(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

func foldedLeaves(h hasher.Hasher, n int) []field.Element {
	leaves := make([]field.Element, n)
	for i := range leaves {
		leaves[i] = h.HashOne(field.NewElement(uint64(i + 1)))
	}
	return leaves
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		h     hasher.Hasher
		err   error
	}{
		{"zero depth", 0, hasher.Keccak{}, merkleerrors.ErrInvalidDepth},
		{"negative depth", -3, hasher.Keccak{}, merkleerrors.ErrInvalidDepth},
		{"too deep", MaxDepth + 1, hasher.Keccak{}, merkleerrors.ErrInvalidDepth},
		{"nil hasher", 4, nil, merkleerrors.ErrNilHasher},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.depth, zeroValue, tc.h)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	deep, err := New(MaxDepth, zeroValue, hasher.Keccak{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<MaxDepth, deep.Capacity())
}

// Empty depth 2 tree over circomlib Poseidon with zero leaf 0, as produced by
// circomlibjs.
func TestPoseidonInitialRoot(t *testing.T) {
	tree := newTree(t, 2, field.NewElement(0), hasher.Poseidon{})
	assert.Equal(t, "7423237065226347324353380772367382631490014989348495481811164164159255474657", tree.Root().String())

	h := hasher.Poseidon{}
	leaves := foldedLeaves(h, 4)
	require.NoError(t, tree.InsertBatch(leaves))
	assert.Equal(t, naiveRoot(h, 2, field.NewElement(0), leaves), tree.Root())
}

func TestInitialState(t *testing.T) {
	for _, name := range hasher.Names() {
		name := name
		t.Run(name, func(t *testing.T) {
			h, err := hasher.ByName(name)
			require.NoError(t, err)

			tree := newTree(t, testDepth, zeroValue, h)
			tree2 := newTree(t, testDepth, zeroValue, h)
			tree3 := newTree(t, testDepth, field.NewElement(1), h)

			assert.Equal(t, testDepth, tree.Depth())
			assert.Equal(t, zeroValue, tree.ZeroValue())
			assert.Equal(t, uint64(0), tree.Len())
			assert.Equal(t, uint64(4), tree.Capacity())

			zeros := tree.Zeros()
			require.Len(t, zeros, testDepth)
			assert.Equal(t, zeroValue, zeros[0])
			assert.Equal(t, h.Hash(zeros[0], zeros[0]), zeros[1])
			assert.Equal(t, h.Hash(zeros[1], zeros[1]), tree.Root())
			assert.Equal(t, naiveRoot(h, testDepth, zeroValue, nil), tree.Root())

			assert.Equal(t, tree.Root(), tree2.Root())
			assert.Equal(t, tree.Zeros(), tree2.Zeros())
			assert.NotEqual(t, tree.Root(), tree3.Root())
		})
	}
}

func TestDeterministicState(t *testing.T) {
	h := hasher.Poseidon2{}
	a := newTree(t, 4, zeroValue, h)
	b := newTree(t, 4, zeroValue, h)
	for _, leaf := range foldedLeaves(h, 5) {
		require.NoError(t, a.Insert(leaf))
		require.NoError(t, b.Insert(leaf))
	}

	aj, err := json.Marshal(a)
	require.NoError(t, err)
	bj, err := json.Marshal(b)
	require.NoError(t, err)

	opts := jsondiff.DefaultConsoleOptions()
	diff, explanation := jsondiff.Compare(aj, bj, &opts)
	assert.Equal(t, jsondiff.FullMatch, diff, explanation)

	require.NoError(t, b.Insert(field.NewElement(77)))
	bj, err = json.Marshal(b)
	require.NoError(t, err)
	diff, _ = jsondiff.Compare(aj, bj, &opts)
	assert.NotEqual(t, jsondiff.FullMatch, diff)
}

func TestFillAndOverflow(t *testing.T) {
	for depth := 1; depth <= 5; depth++ {
		depth := depth
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			h := hasher.Keccak{}
			tree := newTree(t, depth, zeroValue, h)
			leaves := foldedLeaves(h, 1<<depth)

			for i, leaf := range leaves {
				assert.False(t, tree.IsFull())
				require.NoError(t, tree.Insert(leaf), "insert %d", i)
				assert.Equal(t, uint64(i+1), tree.Len())
			}
			assert.True(t, tree.IsFull())

			root := tree.Root()
			err := tree.Insert(field.NewElement(12345))
			assert.ErrorIs(t, err, merkleerrors.ErrCapacityExceeded)
			assert.Equal(t, "CapacityExceeded", merkleerrors.GetErrorName(err))
			assert.Equal(t, root, tree.Root())
			assert.Equal(t, leaves, tree.Leaves())
			assert.Equal(t, naiveRoot(h, depth, zeroValue, leaves), root)
		})
	}
}

func TestPaddingSemantics(t *testing.T) {
	h := hasher.Blake2b{}
	zero := field.MustFromString("21663839004416932945382355908790599225266501822907911457504978515578255421292")
	const depth = 4
	tree := newTree(t, depth, zero, h)
	r := rand.New(rand.NewSource(42))

	var leaves []field.Element
	for i := 0; i < 1<<depth; i++ {
		leaf := field.Random(r, 31)
		leaves = append(leaves, leaf)
		require.NoError(t, tree.Insert(leaf))
		assert.Equal(t, naiveRoot(h, depth, zero, leaves), tree.Root(), "after %d leaves", i+1)
	}
}

func TestInsertHashCount(t *testing.T) {
	counter := &countingHasher{Hasher: hasher.Keccak{}}
	const depth = 6
	tree := newTree(t, depth, zeroValue, counter)
	counter.calls = 0
	for i := 0; i < 10; i++ {
		require.NoError(t, tree.Insert(field.NewElement(uint64(i))))
	}
	assert.Equal(t, 10*depth, counter.calls)
}

func TestArchiveBounds(t *testing.T) {
	const depth = 3
	tree := newTree(t, depth, zeroValue, hasher.Keccak{})
	require.NoError(t, tree.InsertBatch(foldedLeaves(hasher.Keccak{}, 1<<depth)))
	for level, nodes := range tree.archive {
		assert.Len(t, nodes, 1<<(depth-level), "level %d", level)
	}
}

func TestInsertBatch(t *testing.T) {
	h := hasher.Keccak{}
	tree := newTree(t, 3, zeroValue, h)
	leaves := foldedLeaves(h, 6)
	require.NoError(t, tree.InsertBatch(leaves))
	assert.Equal(t, uint64(6), tree.Len())

	root := tree.Root()
	err := tree.InsertBatch(foldedLeaves(h, 3))
	assert.ErrorIs(t, err, merkleerrors.ErrCapacityExceeded)
	assert.Equal(t, uint64(6), tree.Len(), "a batch that does not fit must not be partially applied")
	assert.Equal(t, root, tree.Root())

	require.NoError(t, tree.InsertBatch(nil))
	require.NoError(t, tree.InsertBatch(foldedLeaves(h, 2)))
	assert.True(t, tree.IsFull())
}

func TestUpdate(t *testing.T) {
	h := hasher.MiMC{}
	tree1 := newTree(t, testDepth, zeroValue, h)
	tree2 := newTree(t, testDepth, zeroValue, h)
	for _, leaf := range foldedLeaves(h, 1<<testDepth) {
		require.NoError(t, tree1.Insert(leaf))
		require.NoError(t, tree2.Insert(leaf))
	}
	assert.Equal(t, tree1.Root(), tree2.Root())

	const indexToUpdate = 1
	newVal := h.HashOne(field.NewElement(4))
	require.NoError(t, tree1.Update(indexToUpdate, newVal))
	assert.NotEqual(t, tree1.Root(), tree2.Root())

	tree3 := newTree(t, testDepth, zeroValue, h)
	for _, leaf := range tree1.Leaves() {
		require.NoError(t, tree3.Insert(leaf))
	}
	assert.Equal(t, tree3.Root(), tree1.Root())

	got, err := tree3.Leaf(indexToUpdate)
	require.NoError(t, err)
	assert.Equal(t, newVal, got)
	got, err = tree1.Leaf(indexToUpdate)
	require.NoError(t, err)
	assert.Equal(t, newVal, got)

	a, err := json.Marshal(tree1)
	require.NoError(t, err)
	b, err := json.Marshal(tree3)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(a), "update must leave the same state as a full replay")
}

func TestUpdatePartialTree(t *testing.T) {
	h := hasher.Keccak{}
	tree := newTree(t, 4, zeroValue, h)
	leaves := foldedLeaves(h, 5)
	require.NoError(t, tree.InsertBatch(leaves))

	require.NoError(t, tree.Update(4, field.NewElement(9)))
	leaves[4] = field.NewElement(9)
	assert.Equal(t, naiveRoot(h, 4, zeroValue, leaves), tree.Root())
	assert.Equal(t, uint64(5), tree.Len())
	assert.False(t, tree.IsFull())

	// Insert keeps working after a rebuild
	require.NoError(t, tree.Insert(field.NewElement(10)))
	leaves = append(leaves, field.NewElement(10))
	assert.Equal(t, naiveRoot(h, 4, zeroValue, leaves), tree.Root())
}

func TestIndexOutOfRange(t *testing.T) {
	tree := newTree(t, 3, zeroValue, hasher.Keccak{})

	_, err := tree.Leaf(0)
	assert.ErrorIs(t, err, merkleerrors.ErrIndexOutOfRange)
	assert.ErrorIs(t, tree.Update(0, field.NewElement(1)), merkleerrors.ErrIndexOutOfRange)
	_, err = tree.MerkleProof(0)
	assert.ErrorIs(t, err, merkleerrors.ErrIndexOutOfRange)

	require.NoError(t, tree.Insert(field.NewElement(1)))
	root := tree.Root()
	assert.ErrorIs(t, tree.Update(1, field.NewElement(2)), merkleerrors.ErrIndexOutOfRange)
	assert.Equal(t, root, tree.Root())
	assert.Equal(t, []field.Element{field.NewElement(1)}, tree.Leaves())
	_, err = tree.Leaf(1)
	assert.ErrorIs(t, err, merkleerrors.ErrIndexOutOfRange)
}

func TestIndexOf(t *testing.T) {
	tree := newTree(t, 3, zeroValue, hasher.Keccak{})
	require.NoError(t, tree.InsertBatch([]field.Element{field.NewElement(5), field.NewElement(6), field.NewElement(5)}))
	assert.Equal(t, 0, tree.IndexOf(field.NewElement(5)))
	assert.Equal(t, 1, tree.IndexOf(field.NewElement(6)))
	assert.Equal(t, -1, tree.IndexOf(field.NewElement(7)))
}

func TestSnapshotAndLeavesAreCopies(t *testing.T) {
	tree := newTree(t, 3, zeroValue, hasher.Keccak{})
	require.NoError(t, tree.Insert(field.NewElement(1)))
	snap := tree.Snapshot()
	assert.Equal(t, Snapshot{Root: tree.Root(), Size: 1, Depth: 3}, snap)

	leaves := tree.Leaves()
	leaves[0] = field.NewElement(99)
	zeros := tree.Zeros()
	zeros[0] = field.NewElement(99)
	got, err := tree.Leaf(0)
	require.NoError(t, err)
	assert.Equal(t, field.NewElement(1), got)
	assert.Equal(t, zeroValue, tree.ZeroValue())
	assert.Equal(t, zeroValue, tree.Zeros()[0])
}

func TestToTree(t *testing.T) {
	tree := newTree(t, testDepth, zeroValue, hasher.Keccak{})
	require.NoError(t, tree.Insert(field.NewElement(1)))
	out := tree.ToTree().String()
	assert.Contains(t, out, "1/4 leaves, keccak")
	assert.Contains(t, out, "L1[0]")
	assert.Contains(t, out, "L1[1]")
	assert.Contains(t, out, "L0[0] "+field.NewElement(1).Short())
	assert.Contains(t, out, "L0[1]")
	assert.False(t, strings.Contains(out, "L0[2]"))
}

func TestInsertTraceGatedByModule(t *testing.T) {
	prev := log.Root()
	t.Cleanup(func() {
		log.SetDefault(prev)
		log.DisableModule(log.TreeMonitoring)
	})
	var buf bytes.Buffer
	require.NoError(t, log.InitJSONLogger(&buf, "trace"))

	tree := newTree(t, 3, zeroValue, hasher.Keccak{})
	log.DisableModule(log.TreeMonitoring)
	require.NoError(t, tree.Insert(field.NewElement(1)))
	assert.Empty(t, buf.String())

	log.EnableModule(log.TreeMonitoring)
	require.NoError(t, tree.Insert(field.NewElement(2)))
	require.NoError(t, tree.Update(0, field.NewElement(3)))
	out := buf.String()
	assert.Contains(t, out, `"msg":"leaf inserted"`)
	assert.Contains(t, out, `"msg":"leaf updated"`)
	assert.Contains(t, out, `"module":"tree_mod"`)
}
