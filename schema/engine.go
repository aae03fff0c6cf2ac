package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/ggoodman/httpkit-go/issues"
)

// validate runs value against the compiled tree and encodes any failures
// in the configured vendor's issue shape.
func validate(root *node, cfg config, value any) Result {
	e := engine{strict: cfg.strict}
	e.check(root, nil, value)
	if len(e.out) == 0 {
		return Result{Value: value}
	}
	return Result{Issues: encode(cfg.vendor, e.out)}
}

// step records one descent during validation. The container each key was
// looked up in is kept so vendor encoders can reproduce their libraries'
// path conventions.
type step struct {
	key   any // string field name or int element index
	input any // the container key was looked up in
	value any // the value found there, nil for a missing key
}

type violation struct {
	steps   []step
	code    string
	message string
	// value is the offending value: the leaf for leaf checks, the
	// enclosing container for missing and extraneous keys.
	value any
}

type engine struct {
	strict bool
	out    []violation
}

func (e *engine) check(n *node, steps []step, value any) {
	switch n.kind {
	case nodeObject:
		m, ok := value.(map[string]any)
		if !ok {
			e.typeViolation(n, steps, value)
			return
		}
		// Names are visited sorted so issue order never depends on map
		// iteration: required misses first, then declared fields, then
		// undeclared keys.
		for _, name := range sortedKeys(n.required) {
			if _, present := m[name]; !present {
				s := appendStep(steps, step{key: name, input: m})
				e.emit(violation{steps: s, code: "missing", message: pathText(s) + " is required", value: m})
			}
		}
		for _, name := range sortedKeys(n.fields) {
			v, present := m[name]
			if !present {
				continue
			}
			e.check(n.fields[name], appendStep(steps, step{key: name, input: m, value: v}), v)
		}
		if e.strict {
			for _, name := range sortedKeys(m) {
				if _, declared := n.fields[name]; !declared {
					s := appendStep(steps, step{key: name, input: m, value: m[name]})
					e.emit(violation{steps: s, code: "extraneous", message: pathText(s) + " must not be present", value: m})
				}
			}
		}

	case nodeArray:
		arr, ok := value.([]any)
		if !ok {
			e.typeViolation(n, steps, value)
			return
		}
		if n.minItems != nil && len(arr) < *n.minItems {
			e.emit(violation{steps: steps, code: "min_items", message: fmt.Sprintf("%s must have at least %d items", pathText(steps), *n.minItems), value: arr})
		}
		if n.maxItems != nil && len(arr) > *n.maxItems {
			e.emit(violation{steps: steps, code: "max_items", message: fmt.Sprintf("%s must have at most %d items", pathText(steps), *n.maxItems), value: arr})
		}
		if n.item == nil {
			return
		}
		for i, elem := range arr {
			e.check(n.item, appendStep(steps, step{key: i, input: arr, value: elem}), elem)
		}

	case nodeString:
		sv, ok := value.(string)
		if !ok {
			e.typeViolation(n, steps, value)
			return
		}
		if len(n.enum) > 0 && !slices.Contains(n.enum, sv) {
			e.emit(violation{steps: steps, code: "enum", message: fmt.Sprintf("%s must be one of %s", pathText(steps), strings.Join(n.enum, ", ")), value: sv})
			return
		}
		if n.minLength != nil && len(sv) < *n.minLength {
			e.emit(violation{steps: steps, code: "min_length", message: fmt.Sprintf("%s must be at least %d characters", pathText(steps), *n.minLength), value: sv})
		}
		if n.maxLength != nil && len(sv) > *n.maxLength {
			e.emit(violation{steps: steps, code: "max_length", message: fmt.Sprintf("%s must be at most %d characters", pathText(steps), *n.maxLength), value: sv})
		}
		if n.pattern != nil && !n.pattern.MatchString(sv) {
			e.emit(violation{steps: steps, code: "pattern", message: fmt.Sprintf("%s must match %s", pathText(steps), n.pattern), value: sv})
		}

	case nodeNumber, nodeInteger:
		f, ok := toFloat(value)
		if !ok || (n.kind == nodeInteger && f != math.Trunc(f)) {
			e.typeViolation(n, steps, value)
			return
		}
		if n.minimum != nil && f < *n.minimum {
			e.emit(violation{steps: steps, code: "minimum", message: fmt.Sprintf("%s must be at least %g", pathText(steps), *n.minimum), value: value})
		}
		if n.maximum != nil && f > *n.maximum {
			e.emit(violation{steps: steps, code: "maximum", message: fmt.Sprintf("%s must be at most %g", pathText(steps), *n.maximum), value: value})
		}

	case nodeBoolean:
		if _, ok := value.(bool); !ok {
			e.typeViolation(n, steps, value)
		}
	}
}

func (e *engine) emit(v violation) { e.out = append(e.out, v) }

var kindArticles = map[nodeKind]string{
	nodeString:  "a string",
	nodeNumber:  "a number",
	nodeInteger: "an integer",
	nodeBoolean: "a boolean",
	nodeObject:  "an object",
	nodeArray:   "an array",
}

func (e *engine) typeViolation(n *node, steps []step, value any) {
	e.emit(violation{steps: steps, code: "type", message: pathText(steps) + " must be " + kindArticles[n.kind], value: value})
}

// appendStep extends a step chain without aliasing the parent's backing
// array across sibling branches.
func appendStep(steps []step, s step) []step {
	return append(slices.Clip(steps), s)
}

func pathText(steps []step) string {
	if len(steps) == 0 {
		return "value"
	}
	var b strings.Builder
	for i, s := range steps {
		switch k := s.key.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(k)
		case int:
			fmt.Fprintf(&b, "[%d]", k)
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(n).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(n).Uint()), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// --- Vendor encodings ---

func encode(vendor issues.Vendor, viols []violation) []issues.Issue {
	out := make([]issues.Issue, len(viols))
	for i, v := range viols {
		if vendor == issues.VendorValibot {
			out[i] = encodeValibot(v)
		} else {
			out[i] = encodeArkType(v)
		}
	}
	return out
}

// encodeArkType lays a failure out the way arktype's ArkErrors serialize:
// a flat issue whose "data" carries the value at the failing scope, which
// for key-level failures is the enclosing object.
func encodeArkType(v violation) issues.Issue {
	path := make([]any, len(v.steps))
	for i, s := range v.steps {
		path[i] = s.key
	}
	return issues.Issue{
		"code":    v.code,
		"path":    path,
		"message": v.message,
		"data":    v.value,
	}
}

// encodeValibot lays a failure out the way valibot's issues serialize: an
// ordered path whose entries each keep the container they descended
// through under "input".
func encodeValibot(v violation) issues.Issue {
	kind := "validation"
	switch v.code {
	case "missing", "type", "extraneous":
		kind = "schema"
	}
	iss := issues.Issue{
		"kind":    kind,
		"type":    v.code,
		"message": v.message,
		"input":   v.value,
	}
	if len(v.steps) == 0 {
		return iss
	}
	entries := make([]any, len(v.steps))
	for i, s := range v.steps {
		entry := map[string]any{
			"origin": "value",
			"key":    s.key,
			"input":  s.input,
		}
		switch s.input.(type) {
		case map[string]any:
			entry["type"] = "object"
		case []any:
			entry["type"] = "array"
		}
		if s.value != nil {
			entry["value"] = s.value
		}
		entries[i] = entry
	}
	iss["path"] = entries
	return iss
}
