package formtree

//go:generate go tool stringer -type=Kind -trimprefix=Kind -output=kind_string.go

// Kind discriminates the three shapes a node can take. A node's kind is
// fixed by the first key that creates it and never changes afterwards.
type Kind int

const (
	// KindScalar is a leaf carrying a raw submitted value.
	KindScalar Kind = iota
	// KindMapping holds string-named children.
	KindMapping
	// KindSequence holds integer-indexed children.
	KindSequence
)
