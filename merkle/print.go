package merkle

import (
	"encoding/json"
	"fmt"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/hasher"
	"github.com/xlab/treeprint"
)

// ToTree renders every archived node below the root.
func (t *Tree) ToTree() treeprint.Tree {
	tree := treeprint.NewWithRoot(fmt.Sprintf("root %s (%d/%d leaves, %s)",
		t.root.Short(), t.nextIndex, t.capacity, hasherLabel(t.hasher)))
	t.addChildren(tree, t.depth-1, 0)
	return tree
}

func (t *Tree) addChildren(branch treeprint.Tree, level int, parent uint64) {
	for slot := 2 * parent; slot <= 2*parent+1; slot++ {
		if slot >= uint64(len(t.archive[level])) {
			continue
		}
		label := fmt.Sprintf("L%d[%d] %s", level, slot, t.archive[level][slot].Short())
		if level == 0 {
			branch.AddNode(label)
			continue
		}
		t.addChildren(branch.AddBranch(label), level-1, slot)
	}
}

type treeState struct {
	Depth     int               `json:"depth"`
	Hasher    string            `json:"hasher"`
	ZeroValue field.Element     `json:"zero_value"`
	Root      field.Element     `json:"root"`
	NextIndex uint64            `json:"next_index"`
	Zeros     []field.Element   `json:"zeros"`
	Frontier  []field.Element   `json:"frontier"`
	Archive   [][]field.Element `json:"archive"`
	Leaves    []field.Element   `json:"leaves"`
}

// MarshalJSON dumps the full tree state, archive included.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(treeState{
		Depth:     t.depth,
		Hasher:    hasherLabel(t.hasher),
		ZeroValue: t.zeroValue,
		Root:      t.root,
		NextIndex: t.nextIndex,
		Zeros:     t.zeros,
		Frontier:  t.frontier,
		Archive:   t.archive,
		Leaves:    t.leaves,
	})
}

func hasherLabel(h hasher.Hasher) string {
	if name := hasher.NameOf(h); name != "" {
		return name
	}
	return fmt.Sprintf("%T", h)
}
