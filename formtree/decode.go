package formtree

import "strconv"

// splitKey normalizes bracket notation to dot notation and splits the key
// into path segments. Brackets and dots are both treated as delimiters and
// empty segments are dropped, so "a[0]", "a.0" and "a[0]." all tokenize to
// the same segments.
func splitKey(key string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '[', ']':
			if i > start {
				segs = append(segs, key[start:i])
			}
			start = i + 1
		}
	}
	if start < len(key) {
		segs = append(segs, key[start:])
	}
	return segs
}

// indexSegment reports whether seg addresses a Sequence position: a
// canonical non-negative decimal, so no sign, no leading zero ("0" itself
// excepted) and nothing beyond int range. "01", "-1" and overflowing digit
// runs are all Mapping field names.
func indexSegment(seg string) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}

// insert walks key's segments from the root, creating containers as needed,
// and writes value at the terminal position.
//
// The container kind a position must have is decided by the segment that
// follows it: a strict-index segment demands a Sequence, anything else a
// Mapping. The root is the one exception and is always a Mapping, so a
// leading "0" is a field name. An existing node whose kind disagrees with
// the demanded kind fails the whole decode with a *ConflictError.
func insert(root *Node, key string, value any) error {
	segs := splitKey(key)
	if len(segs) == 0 {
		// Keys like "" or "[]" address no position at all.
		return nil
	}
	node := root
	path := ""
	for i, seg := range segs {
		path = joinPath(path, seg)
		if i == len(segs)-1 {
			return assign(node, key, seg, path, value)
		}
		want := KindMapping
		if _, ok := indexSegment(segs[i+1]); ok {
			want = KindSequence
		}
		child := lookup(node, seg)
		if child == nil {
			child = newContainer(want)
			store(node, seg, child)
		} else if child.kind != want {
			return &ConflictError{Key: key, Segment: seg, Path: path, Have: child.kind, Want: want}
		}
		node = child
	}
	return nil
}

// assign writes a Scalar at seg within container n. Writing over an earlier
// Scalar is the documented last-one-wins case; writing over a container is
// a conflict.
func assign(n *Node, key, seg, path string, value any) error {
	if existing := lookup(n, seg); existing != nil && existing.kind != KindScalar {
		return &ConflictError{Key: key, Segment: seg, Path: path, Have: existing.kind, Want: KindScalar}
	}
	store(n, seg, newScalar(value))
	return nil
}

// lookup and store address seg within a container. When n is a Sequence the
// segment is always a strict index: the sequence only exists because the
// segment that led here classified as one.

func lookup(n *Node, seg string) *Node {
	if n.kind == KindSequence {
		idx, _ := indexSegment(seg)
		return n.elems[idx]
	}
	return n.fields[seg]
}

func store(n *Node, seg string, child *Node) {
	if n.kind == KindSequence {
		idx, _ := indexSegment(seg)
		n.elems[idx] = child
		return
	}
	n.fields[seg] = child
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}
