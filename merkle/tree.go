// Package merkle implements the incremental fixed-depth commitment tree.
//
// The tree keeps three structures alongside the inserted leaves:
//
//   - zeros, the digest of an empty subtree rooted at each level;
//   - the frontier, the most recent left child at each level still waiting
//     for its right sibling;
//   - the archive, every node digest computed so far, addressed by
//     (level, slot) and consulted only when extracting Merkle paths.
//
// Below is how the archive fills for a depth 2 tree. '.' is an empty slot.
//
//	1. empty          2. one leaf       3. two leaves
//	     .                 r                 r
//	   .   .             a   z1            b   z1
//	  . . . .           l0 z0 . .         l0 l1 . .
//
// A Tree is not safe for concurrent use.
package merkle

import (
	"fmt"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/hasher"
	"github.com/colorfulnotion/incmerkle/log"
	"github.com/colorfulnotion/incmerkle/merkleerrors"
)

// MaxDepth keeps the leaf capacity representable as a uint64.
const MaxDepth = 63

// Tree is an append-only binary Merkle tree of fixed depth whose unfilled
// leaves hold a designated zero value.
type Tree struct {
	depth     int
	zeroValue field.Element
	hasher    hasher.Hasher

	// zeros[i] is the root of an empty subtree whose leaves sit i levels below it
	zeros []field.Element

	// frontier[i] is the last left child written at level i
	frontier []field.Element

	// archive[i][slot] holds computed nodes at level i; len(archive[i]) never
	// exceeds 2^(depth-i)
	archive [][]field.Element

	leaves    []field.Element
	nextIndex uint64
	capacity  uint64
	root      field.Element
}

// Snapshot is a point-in-time summary of a tree.
type Snapshot struct {
	Root  field.Element `json:"root"`
	Size  uint64        `json:"size"`
	Depth int           `json:"depth"`
}

// New creates an empty tree of the given depth. The hasher is fixed for the
// lifetime of the tree.
func New(depth int, zeroValue field.Element, h hasher.Hasher) (*Tree, error) {
	if depth <= 0 || depth > MaxDepth {
		return nil, fmt.Errorf("depth %d: %w", depth, merkleerrors.ErrInvalidDepth)
	}
	if h == nil {
		return nil, merkleerrors.ErrNilHasher
	}

	t := &Tree{
		depth:     depth,
		zeroValue: zeroValue,
		hasher:    h,
		zeros:     make([]field.Element, depth),
		frontier:  make([]field.Element, depth),
		archive:   make([][]field.Element, depth),
		leaves:    make([]field.Element, 0),
		capacity:  uint64(1) << uint(depth),
	}

	t.zeros[0] = zeroValue
	for i := 1; i < depth; i++ {
		t.zeros[i] = h.Hash(t.zeros[i-1], t.zeros[i-1])
	}
	// an unpaired level behaves exactly like a pair of empty subtrees
	copy(t.frontier, t.zeros)

	t.root = h.Hash(t.zeros[depth-1], t.zeros[depth-1])
	return t, nil
}

// Insert appends value at the next free leaf slot.
func (t *Tree) Insert(value field.Element) error {
	if t.nextIndex >= t.capacity {
		return fmt.Errorf("insert into depth %d tree holding %d leaves: %w", t.depth, t.nextIndex, merkleerrors.ErrCapacityExceeded)
	}
	t.insert(value)
	return nil
}

// InsertBatch appends values in order. Either every value is inserted or, when
// they do not all fit, none is.
func (t *Tree) InsertBatch(values []field.Element) error {
	if uint64(len(values)) > t.capacity-t.nextIndex {
		return fmt.Errorf("insert %d leaves into depth %d tree holding %d leaves: %w",
			len(values), t.depth, t.nextIndex, merkleerrors.ErrCapacityExceeded)
	}
	for _, v := range values {
		t.insert(v)
	}
	return nil
}

func (t *Tree) insert(value field.Element) {
	idx := t.nextIndex
	t.nextIndex++

	current := value
	var left, right field.Element
	for i := 0; i < t.depth; i++ {
		if idx%2 == 0 {
			left = current
			right = t.zeros[i]

			t.frontier[i] = current
			t.record(i, idx, left)
			t.record(i, idx+1, right)
		} else {
			left = t.frontier[i]
			right = current

			t.record(i, idx-1, left)
			t.record(i, idx, right)
		}

		current = t.hasher.Hash(left, right)
		idx /= 2
	}

	t.root = current
	t.leaves = append(t.leaves, value)
	if log.Enabled(log.TreeMonitoring, log.LevelTrace) {
		log.Trace(log.TreeMonitoring, "leaf inserted", "index", t.nextIndex-1, "root", t.root.Short())
	}
}

// record stores a node digest, growing the level's slot array as needed.
func (t *Tree) record(level int, slot uint64, v field.Element) {
	nodes := t.archive[level]
	for uint64(len(nodes)) <= slot {
		nodes = append(nodes, t.zeros[level])
	}
	nodes[slot] = v
	t.archive[level] = nodes
}

// node returns the archived digest at (level, slot), or the empty subtree
// digest for a slot that was never computed.
func (t *Tree) node(level int, slot uint64) field.Element {
	if slot < uint64(len(t.archive[level])) {
		return t.archive[level][slot]
	}
	return t.zeros[level]
}

// Update replaces the leaf at index and recomputes the tree by replaying every
// leaf into a fresh tree with the same depth, zero value and hasher.
func (t *Tree) Update(index uint64, value field.Element) error {
	if index >= t.nextIndex {
		return fmt.Errorf("update leaf %d of %d: %w", index, t.nextIndex, merkleerrors.ErrIndexOutOfRange)
	}

	leaves := make([]field.Element, len(t.leaves))
	copy(leaves, t.leaves)
	leaves[index] = value

	rebuilt, err := New(t.depth, t.zeroValue, t.hasher)
	if err != nil {
		return err
	}
	for _, leaf := range leaves {
		rebuilt.insert(leaf)
	}

	*t = *rebuilt
	if log.Enabled(log.TreeMonitoring, log.LevelDebug) {
		log.Debug(log.TreeMonitoring, "leaf updated", "index", index, "leaves", t.nextIndex, "root", t.root.Short())
	}
	return nil
}

// Leaf returns the leaf inserted at index.
func (t *Tree) Leaf(index uint64) (field.Element, error) {
	if index >= t.nextIndex {
		return field.Element{}, fmt.Errorf("leaf %d of %d: %w", index, t.nextIndex, merkleerrors.ErrIndexOutOfRange)
	}
	return t.leaves[index], nil
}

// IndexOf returns the index of the first leaf equal to value, or -1.
func (t *Tree) IndexOf(value field.Element) int {
	for i, leaf := range t.leaves {
		if leaf == value {
			return i
		}
	}
	return -1
}

func (t *Tree) Root() field.Element {
	return t.root
}

func (t *Tree) Depth() int {
	return t.depth
}

// Len returns the number of inserted leaves, which is also the next free slot.
func (t *Tree) Len() uint64 {
	return t.nextIndex
}

// Capacity returns 2^depth.
func (t *Tree) Capacity() uint64 {
	return t.capacity
}

func (t *Tree) IsFull() bool {
	return t.nextIndex == t.capacity
}

func (t *Tree) ZeroValue() field.Element {
	return t.zeroValue
}

func (t *Tree) Hasher() hasher.Hasher {
	return t.hasher
}

// Zeros returns a copy of the empty subtree digests, leaf level first.
func (t *Tree) Zeros() []field.Element {
	out := make([]field.Element, len(t.zeros))
	copy(out, t.zeros)
	return out
}

// Leaves returns a copy of the inserted leaves, oldest first.
func (t *Tree) Leaves() []field.Element {
	out := make([]field.Element, len(t.leaves))
	copy(out, t.leaves)
	return out
}

func (t *Tree) Snapshot() Snapshot {
	return Snapshot{Root: t.root, Size: t.nextIndex, Depth: t.depth}
}
