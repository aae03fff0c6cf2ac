package formtree

import (
	"encoding/json"
	"sort"
)

// Node is one position in a decoded tree: a Scalar carrying a submitted
// value, a Mapping with named children, or a Sequence with indexed children.
// Nodes are built by Decode and are read-only afterwards; a *Node is safe
// for concurrent reads.
type Node struct {
	kind   Kind
	value  any              // KindScalar payload
	fields map[string]*Node // KindMapping children
	elems  map[int]*Node    // KindSequence children, sparse while building
	items  []*Node          // KindSequence children, dense after compaction
}

func newScalar(v any) *Node { return &Node{kind: KindScalar, value: v} }
func newMapping() *Node     { return &Node{kind: KindMapping, fields: make(map[string]*Node)} }
func newSequence() *Node    { return &Node{kind: KindSequence, elems: make(map[int]*Node)} }

func newContainer(kind Kind) *Node {
	if kind == KindSequence {
		return newSequence()
	}
	return newMapping()
}

// Kind reports the node's shape.
func (n *Node) Kind() Kind { return n.kind }

// Value returns the raw submitted value of a Scalar node. It returns nil
// for containers; note that nil is also a legal Scalar value, so callers
// distinguishing the two cases should check Kind first.
func (n *Node) Value() any {
	if n.kind != KindScalar {
		return nil
	}
	return n.value
}

// Field returns the named child of a Mapping node.
func (n *Node) Field(name string) (*Node, bool) {
	if n.kind != KindMapping {
		return nil, false
	}
	child, ok := n.fields[name]
	return child, ok
}

// FieldNames returns the child names of a Mapping node in sorted order.
func (n *Node) FieldNames() []string {
	if n.kind != KindMapping {
		return nil
	}
	names := make([]string, 0, len(n.fields))
	for name := range n.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Item returns the i'th element of a compacted Sequence node.
func (n *Node) Item(i int) (*Node, bool) {
	if n.kind != KindSequence || i < 0 || i >= len(n.items) {
		return nil, false
	}
	return n.items[i], true
}

// Len returns the number of elements of a Sequence or fields of a Mapping.
// Scalars have length zero.
func (n *Node) Len() int {
	switch n.kind {
	case KindMapping:
		return len(n.fields)
	case KindSequence:
		return len(n.items)
	default:
		return 0
	}
}

// Interface materializes the subtree as plain Go values: map[string]any for
// Mappings, []any for Sequences and the raw value for Scalars.
func (n *Node) Interface() any {
	switch n.kind {
	case KindMapping:
		out := make(map[string]any, len(n.fields))
		for name, child := range n.fields {
			out[name] = child.Interface()
		}
		return out
	case KindSequence:
		out := make([]any, len(n.items))
		for i, child := range n.items {
			out[i] = child.Interface()
		}
		return out
	default:
		return n.value
	}
}

// MarshalJSON encodes the subtree in its Interface form.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Interface())
}

var _ json.Marshaler = (*Node)(nil)
