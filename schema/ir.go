package schema

import (
	"regexp"
	"sort"
)

// The reflection and builder front ends both compile down to this little
// node tree, and the engine only ever sees the tree. Node kinds mirror the
// JSON type system the wire formats speak.

type nodeKind int

const (
	nodeString nodeKind = iota
	nodeNumber
	nodeInteger
	nodeBoolean
	nodeObject
	nodeArray
)

var nodeKindNames = map[nodeKind]string{
	nodeString:  "string",
	nodeNumber:  "number",
	nodeInteger: "integer",
	nodeBoolean: "boolean",
	nodeObject:  "object",
	nodeArray:   "array",
}

type node struct {
	kind        nodeKind
	description string

	// object
	fields   map[string]*node
	required map[string]struct{}

	// array
	item     *node
	minItems *int
	maxItems *int

	// string
	enum      []string
	minLength *int
	maxLength *int
	pattern   *regexp.Regexp

	// number, integer
	minimum *float64
	maximum *float64
}

// render emits the node as a plain JSON-schema mapping, the form both
// MarshalJSON and fingerprinting use.
func (n *node) render() map[string]any {
	out := map[string]any{}
	if len(n.enum) > 0 {
		vals := make([]any, len(n.enum))
		for i, v := range n.enum {
			vals[i] = v
		}
		out["enum"] = vals
	} else {
		out["type"] = nodeKindNames[n.kind]
	}
	if n.description != "" {
		out["description"] = n.description
	}
	switch n.kind {
	case nodeObject:
		props := make(map[string]any, len(n.fields))
		for name, f := range n.fields {
			props[name] = f.render()
		}
		out["properties"] = props
		if len(n.required) > 0 {
			req := make([]string, 0, len(n.required))
			for name := range n.required {
				req = append(req, name)
			}
			sort.Strings(req)
			out["required"] = req
		}
	case nodeArray:
		if n.item != nil {
			out["items"] = n.item.render()
		}
		if n.minItems != nil {
			out["minItems"] = *n.minItems
		}
		if n.maxItems != nil {
			out["maxItems"] = *n.maxItems
		}
	case nodeString:
		if n.minLength != nil {
			out["minLength"] = *n.minLength
		}
		if n.maxLength != nil {
			out["maxLength"] = *n.maxLength
		}
		if n.pattern != nil {
			out["pattern"] = n.pattern.String()
		}
	case nodeNumber, nodeInteger:
		if n.minimum != nil {
			out["minimum"] = *n.minimum
		}
		if n.maximum != nil {
			out["maximum"] = *n.maximum
		}
	}
	return out
}
