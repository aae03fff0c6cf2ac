package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"

	js "github.com/invopop/jsonschema"

	"github.com/ggoodman/httpkit-go/issues"
)

// StructSchema validates decoded values against the JSON projection of a
// struct type, and decodes passing values into that type.
type StructSchema[T any] struct {
	cfg  config
	root *node
	json []byte
	fp   string
}

var _ Schema = (*StructSchema[struct{}])(nil)

// ForStruct reflects T into a validation schema. Property names follow
// json tags and constraints come from jsonschema tags (enum, minimum,
// maximum, minLength, maxLength, pattern, minItems, maxItems); a field is
// required unless its json tag says omitempty. Nested structs, slices and
// maps of the supported shapes project recursively.
func ForStruct[T any](opts ...Option) (*StructSchema[T], error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %s is not a struct type", t)
	}

	r := &js.Reflector{DoNotReference: true, ExpandedStruct: true}
	projected := r.Reflect(reflect.New(t).Interface())
	if projected == nil || projected.Type != "object" {
		return nil, fmt.Errorf("schema: %s did not project to an object", t)
	}
	root, err := compileProjection(projected)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", t, err)
	}

	rendered, err := json.Marshal(root.render())
	if err != nil {
		return nil, fmt.Errorf("schema: render %s: %w", t, err)
	}
	return &StructSchema[T]{
		cfg:  newConfig(opts),
		root: root,
		json: rendered,
		fp:   fingerprintBytes(rendered),
	}, nil
}

// MustStruct is ForStruct panicking on error, for package-level schema
// variables.
func MustStruct[T any](opts ...Option) *StructSchema[T] {
	s, err := ForStruct[T](opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Vendor implements Schema.
func (s *StructSchema[T]) Vendor() issues.Vendor { return s.cfg.vendor }

// Validate implements Schema.
func (s *StructSchema[T]) Validate(value any) Result { return validate(s.root, s.cfg, value) }

// Decode copies a validated value into a T through the JSON round trip.
// It performs no validation of its own; run Validate first.
func (s *StructSchema[T]) Decode(value any) (T, error) {
	var out T
	b, err := json.Marshal(value)
	if err != nil {
		return out, fmt.Errorf("schema: encode value: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("schema: decode into %T: %w", out, err)
	}
	return out, nil
}

// MarshalJSON renders the schema as plain JSON schema.
func (s *StructSchema[T]) MarshalJSON() ([]byte, error) {
	return append([]byte(nil), s.json...), nil
}

// Fingerprint is a stable content hash of the rendered schema, usable as a
// cache key by clients that persist schemas.
func (s *StructSchema[T]) Fingerprint() string { return s.fp }

// compileProjection converts the reflected JSON schema into the engine's
// node tree, rejecting the constructs validation cannot enforce.
func compileProjection(s *js.Schema) (*node, error) {
	if s.Ref != "" || len(s.AllOf) > 0 || len(s.AnyOf) > 0 || len(s.OneOf) > 0 || s.Not != nil {
		return nil, fmt.Errorf("unsupported composition keyword")
	}

	n := &node{description: s.Description}
	switch s.Type {
	case "object":
		n.kind = nodeObject
		n.fields = make(map[string]*node)
		if s.Properties != nil {
			for el := s.Properties.Oldest(); el != nil; el = el.Next() {
				child, err := compileProjection(el.Value)
				if err != nil {
					return nil, fmt.Errorf("property %s: %w", el.Key, err)
				}
				n.fields[el.Key] = child
			}
		}
		n.required = make(map[string]struct{}, len(s.Required))
		for _, name := range s.Required {
			n.required[name] = struct{}{}
		}
	case "array":
		n.kind = nodeArray
		if s.Items == nil {
			return nil, fmt.Errorf("array without item schema")
		}
		item, err := compileProjection(s.Items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		n.item = item
		if s.MinItems != nil {
			v := int(*s.MinItems)
			n.minItems = &v
		}
		if s.MaxItems != nil {
			v := int(*s.MaxItems)
			n.maxItems = &v
		}
	case "string":
		n.kind = nodeString
		for _, ev := range s.Enum {
			sv, ok := ev.(string)
			if !ok {
				return nil, fmt.Errorf("non-string enum value %v", ev)
			}
			n.enum = append(n.enum, sv)
		}
		if s.MinLength != nil {
			v := int(*s.MinLength)
			n.minLength = &v
		}
		if s.MaxLength != nil {
			v := int(*s.MaxLength)
			n.maxLength = &v
		}
		if s.Pattern != "" {
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", s.Pattern, err)
			}
			n.pattern = re
		}
	case "integer", "number":
		if s.Type == "integer" {
			n.kind = nodeInteger
		} else {
			n.kind = nodeNumber
		}
		if s.Minimum != "" {
			if f, err := strconv.ParseFloat(string(s.Minimum), 64); err == nil {
				n.minimum = &f
			}
		}
		if s.Maximum != "" {
			if f, err := strconv.ParseFloat(string(s.Maximum), 64); err == nil {
				n.maximum = &f
			}
		}
	case "boolean":
		n.kind = nodeBoolean
	default:
		return nil, fmt.Errorf("unsupported type %q", s.Type)
	}
	return n, nil
}
