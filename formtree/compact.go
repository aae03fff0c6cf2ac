package formtree

import "sort"

// compact densifies every Sequence in the tree, recursing through Mapping
// fields and Sequence elements. Sparse indices collapse in ascending order,
// so only positions that were never assigned disappear; an assigned
// position survives whatever it holds, explicit nil and false included.
// Mappings are traversed but never reshaped. Runs once, after the build
// pass placed every entry.
func compact(n *Node) {
	switch n.kind {
	case KindMapping:
		for _, child := range n.fields {
			compact(child)
		}
	case KindSequence:
		idxs := make([]int, 0, len(n.elems))
		for i := range n.elems {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		n.items = make([]*Node, 0, len(idxs))
		for _, i := range idxs {
			child := n.elems[i]
			compact(child)
			n.items = append(n.items, child)
		}
		n.elems = nil
	}
}
