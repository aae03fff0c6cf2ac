// Package formtree reconstructs nested values from the flat key/value pairs
// produced by HTML form and query-string encodings.
//
// Keys are paths. Bracket and dot notation are interchangeable, so
// "cars[0].model", "cars.0.model" and "cars[0][model]" all address the same
// position. A segment made only of decimal digits addresses a position in a
// Sequence; every other segment addresses a field of a Mapping. Two keys
// that disagree about the shape of a shared position fail decoding with a
// *ConflictError, no matter which of the two is processed first.
//
// Decoding performs no type coercion: values are carried through untouched,
// and it is the caller's schema layer that decides whether "42" is a string
// or a mistake.
package formtree

import "sort"

// Decode builds a nested tree from flat path-keyed entries.
//
// Keys are processed in lexicographic order so that the result, and the
// conflict reported when one exists, never depend on map iteration order.
// When two distinct keys normalize to the same terminal position, the key
// processed last wins.
//
// After all entries are placed the tree is compacted: positions of a
// Sequence that were never assigned are dropped, while explicitly assigned
// values survive whatever they hold (nil, false, 0 and "" included).
func Decode(flat map[string]any) (*Node, error) {
	root := newMapping()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := insert(root, k, flat[k]); err != nil {
			return nil, err
		}
	}
	compact(root)
	return root, nil
}

// DecodeMap is Decode with the result materialized as plain Go values:
// map[string]any for Mappings, []any for Sequences, raw values for Scalars.
func DecodeMap(flat map[string]any) (map[string]any, error) {
	root, err := Decode(flat)
	if err != nil {
		return nil, err
	}
	return root.Interface().(map[string]any), nil
}
