package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ggoodman/httpkit-go/issues"
)

// Builder constructs an object schema programmatically.
// Usage:
//
//	b := schema.NewBuilder().
//	    String("name", schema.Required(), schema.MinLength(1)).
//	    EnumString("role", []string{"admin", "user"}, schema.Required()).
//	    Object("address", schema.NewBuilder().String("city", schema.Required()))
//	sch := b.MustBuild(schema.WithVendor(issues.VendorValibot))
//
// A Builder is not safe for concurrent use and may be built once.
type Builder struct {
	props map[string]*bProperty
	order []string
	built bool
	mu    sync.Mutex
}

type bProperty struct {
	name        string
	ptype       string // string|number|integer|boolean|object|string-array|object-array
	required    bool
	description string
	enumVals    []string
	nested      *Builder
	constraints propConstraints
}

type propConstraints struct {
	MinLength *int
	MaxLength *int
	Minimum   *float64
	Maximum   *float64
	Pattern   string
	MinItems  *int
	MaxItems  *int
}

// NewBuilder returns a new Builder instance.
func NewBuilder() *Builder { return &Builder{props: make(map[string]*bProperty)} }

// String adds a string property.
func (b *Builder) String(name string, opts ...PropOption) *Builder {
	return b.add(name, "string", opts...)
}

// Number adds a number property.
func (b *Builder) Number(name string, opts ...PropOption) *Builder {
	return b.add(name, "number", opts...)
}

// Integer adds an integer property. Values must be whole numbers.
func (b *Builder) Integer(name string, opts ...PropOption) *Builder {
	return b.add(name, "integer", opts...)
}

// Boolean adds a boolean property.
func (b *Builder) Boolean(name string, opts ...PropOption) *Builder {
	return b.add(name, "boolean", opts...)
}

// EnumString adds an enum-typed string property (enum constraint rather than type=string).
func (b *Builder) EnumString(name string, values []string, opts ...PropOption) *Builder {
	bp := b.ensure(name)
	bp.ptype = "string" // still string type; enum slice present signals enum
	bp.enumVals = append([]string(nil), values...)
	for _, o := range opts {
		if o != nil {
			o(bp)
		}
	}
	return b
}

// Object adds a nested object property described by its own Builder. The
// nested builder is compiled when the outer Build runs.
func (b *Builder) Object(name string, nested *Builder, opts ...PropOption) *Builder {
	bp := b.ensure(name)
	bp.ptype = "object"
	bp.nested = nested
	for _, o := range opts {
		if o != nil {
			o(bp)
		}
	}
	return b
}

// StringArray adds an array-of-strings property. MinItems and MaxItems
// bound the array; MinLength, MaxLength and Pattern apply to each element.
func (b *Builder) StringArray(name string, opts ...PropOption) *Builder {
	return b.add(name, "string-array", opts...)
}

// ObjectArray adds an array property whose elements follow the nested
// Builder's object schema.
func (b *Builder) ObjectArray(name string, nested *Builder, opts ...PropOption) *Builder {
	bp := b.ensure(name)
	bp.ptype = "object-array"
	bp.nested = nested
	for _, o := range opts {
		if o != nil {
			o(bp)
		}
	}
	return b
}

func (b *Builder) add(name, ptype string, opts ...PropOption) *Builder {
	bp := b.ensure(name)
	bp.ptype = ptype
	for _, o := range opts {
		if o != nil {
			o(bp)
		}
	}
	return b
}

func (b *Builder) ensure(name string) *bProperty {
	if strings.TrimSpace(name) == "" {
		panic("schema: empty property name")
	}
	if b.props[name] == nil {
		b.props[name] = &bProperty{name: name}
		b.order = append(b.order, name)
	}
	return b.props[name]
}

// PropOption mutates a property configuration.
type PropOption func(*bProperty)

// Required marks the property required.
func Required() PropOption { return func(p *bProperty) { p.required = true } }

// Optional marks the property optional.
func Optional() PropOption { return func(p *bProperty) { p.required = false } }

// Description adds a human-readable description.
func Description(desc string) PropOption { return func(p *bProperty) { p.description = desc } }

// MinLength sets the string minimum length.
func MinLength(n int) PropOption { return func(p *bProperty) { p.constraints.MinLength = &n } }

// MaxLength sets the string maximum length.
func MaxLength(n int) PropOption { return func(p *bProperty) { p.constraints.MaxLength = &n } }

// Minimum sets the numeric minimum.
func Minimum(f float64) PropOption { return func(p *bProperty) { p.constraints.Minimum = &f } }

// Maximum sets the numeric maximum.
func Maximum(f float64) PropOption { return func(p *bProperty) { p.constraints.Maximum = &f } }

// Pattern sets a regular expression the string must match. The expression
// is compiled during Build.
func Pattern(expr string) PropOption { return func(p *bProperty) { p.constraints.Pattern = expr } }

// MinItems sets the array minimum length.
func MinItems(n int) PropOption { return func(p *bProperty) { p.constraints.MinItems = &n } }

// MaxItems sets the array maximum length.
func MaxItems(n int) PropOption { return func(p *bProperty) { p.constraints.MaxItems = &n } }

// Built is a finalized builder schema.
type Built struct {
	cfg  config
	root *node
	json []byte
	fp   string
}

var _ Schema = (*Built)(nil)

// Build finalizes the builder into a Schema.
func (b *Builder) Build(opts ...Option) (*Built, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return nil, errors.New("schema: builder reused after Build")
	}
	root, err := b.compile()
	if err != nil {
		return nil, err
	}
	rendered, err := json.Marshal(root.render())
	if err != nil {
		return nil, fmt.Errorf("schema: render: %w", err)
	}
	b.built = true
	return &Built{
		cfg:  newConfig(opts),
		root: root,
		json: rendered,
		fp:   fingerprintBytes(rendered),
	}, nil
}

// MustBuild panics on error.
func (b *Builder) MustBuild(opts ...Option) *Built {
	s, err := b.Build(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// compile assembles the object node from the current properties. Empty
// object schemas are legal.
func (b *Builder) compile() (*node, error) {
	names := append([]string(nil), b.order...)
	sort.Strings(names)

	root := &node{
		kind:     nodeObject,
		fields:   make(map[string]*node, len(names)),
		required: make(map[string]struct{}),
	}
	for _, name := range names {
		p := b.props[name]
		n, err := p.compile()
		if err != nil {
			return nil, err
		}
		root.fields[name] = n
		if p.required {
			root.required[name] = struct{}{}
		}
	}
	return root, nil
}

func (p *bProperty) compile() (*node, error) {
	if p.ptype == "" {
		return nil, fmt.Errorf("schema: property %s missing type", p.name)
	}
	if err := p.checkConstraints(); err != nil {
		return nil, err
	}

	n := &node{description: p.description}
	c := p.constraints
	switch p.ptype {
	case "string":
		n.kind = nodeString
		n.enum = append([]string(nil), p.enumVals...)
		n.minLength = c.MinLength
		n.maxLength = c.MaxLength
		if c.Pattern != "" {
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				return nil, fmt.Errorf("schema: property %s pattern: %w", p.name, err)
			}
			n.pattern = re
		}
	case "number", "integer":
		if p.ptype == "integer" {
			n.kind = nodeInteger
		} else {
			n.kind = nodeNumber
		}
		n.minimum = c.Minimum
		n.maximum = c.Maximum
	case "boolean":
		n.kind = nodeBoolean
	case "object":
		if p.nested == nil {
			return nil, fmt.Errorf("schema: object property %s has no nested builder", p.name)
		}
		nested, err := p.nested.compile()
		if err != nil {
			return nil, err
		}
		nested.description = p.description
		return nested, nil
	case "string-array":
		item := &node{kind: nodeString, minLength: c.MinLength, maxLength: c.MaxLength}
		if c.Pattern != "" {
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				return nil, fmt.Errorf("schema: property %s pattern: %w", p.name, err)
			}
			item.pattern = re
		}
		n.kind = nodeArray
		n.item = item
		n.minItems = c.MinItems
		n.maxItems = c.MaxItems
	case "object-array":
		if p.nested == nil {
			return nil, fmt.Errorf("schema: array property %s has no nested builder", p.name)
		}
		item, err := p.nested.compile()
		if err != nil {
			return nil, err
		}
		n.kind = nodeArray
		n.item = item
		n.minItems = c.MinItems
		n.maxItems = c.MaxItems
	default:
		return nil, fmt.Errorf("schema: property %s has unsupported type %s", p.name, p.ptype)
	}
	return n, nil
}

// checkConstraints rejects self-contradictory bounds and duplicate enum
// values before they become a schema no value can satisfy.
func (p *bProperty) checkConstraints() error {
	c := p.constraints
	if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
		return fmt.Errorf("schema: property %s min length greater than max length", p.name)
	}
	if c.Minimum != nil && c.Maximum != nil && *c.Minimum > *c.Maximum {
		return fmt.Errorf("schema: property %s minimum greater than maximum", p.name)
	}
	if c.MinItems != nil && c.MaxItems != nil && *c.MinItems > *c.MaxItems {
		return fmt.Errorf("schema: property %s min items greater than max items", p.name)
	}
	if len(p.enumVals) > 1 {
		seen := make(map[string]struct{}, len(p.enumVals))
		for _, v := range p.enumVals {
			if _, dup := seen[v]; dup {
				return fmt.Errorf("schema: duplicate enum value %q for property %s", v, p.name)
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}

// Vendor implements Schema.
func (s *Built) Vendor() issues.Vendor { return s.cfg.vendor }

// Validate implements Schema.
func (s *Built) Validate(value any) Result { return validate(s.root, s.cfg, value) }

// MarshalJSON renders the schema as plain JSON schema.
func (s *Built) MarshalJSON() ([]byte, error) {
	return append([]byte(nil), s.json...), nil
}

// Fingerprint is a stable content hash of the rendered schema.
func (s *Built) Fingerprint() string { return s.fp }

func fingerprintBytes(b []byte) string { sum := sha256.Sum256(b); return hex.EncodeToString(sum[:]) }
