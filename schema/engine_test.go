package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/ggoodman/httpkit-go/issues"
)

func TestValidate_OK(t *testing.T) {
	sch := NewBuilder().
		String("name", Required(), MinLength(1)).
		Integer("age", Optional(), Minimum(13)).
		MustBuild()

	val := map[string]any{"name": "Alice", "age": 30}
	res := sch.Validate(val)
	if !res.OK() {
		t.Fatalf("expected no issues, got %s", spew.Sdump(res.Issues))
	}
	if !reflect.DeepEqual(res.Value, val) {
		t.Fatalf("value not passed through: %s", spew.Sdump(res.Value))
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	sch := NewBuilder().String("authorization", Required()).MustBuild()

	val := map[string]any{"x-request-id": "abc"}
	res := sch.Validate(val)
	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %s", spew.Sdump(res.Issues))
	}
	iss := res.Issues[0]
	if iss["code"] != "missing" {
		t.Fatalf("code = %v", iss["code"])
	}
	if iss["message"] != "authorization is required" {
		t.Fatalf("message = %v", iss["message"])
	}
	if got := iss["path"].([]any); len(got) != 1 || got[0] != "authorization" {
		t.Fatalf("path = %v", got)
	}
	// The payload carries the enclosing object so callers can see what was
	// actually sent.
	if !reflect.DeepEqual(iss["data"], val) {
		t.Fatalf("data = %s", spew.Sdump(iss["data"]))
	}
}

func TestValidate_RootTypeMismatch(t *testing.T) {
	sch := NewBuilder().String("name").MustBuild()

	res := sch.Validate("not an object")
	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(res.Issues))
	}
	iss := res.Issues[0]
	if iss["code"] != "type" || iss["message"] != "value must be an object" {
		t.Fatalf("issue = %s", spew.Sdump(iss))
	}
	if got := iss["path"].([]any); len(got) != 0 {
		t.Fatalf("expected empty path, got %v", got)
	}
	if iss["data"] != "not an object" {
		t.Fatalf("data = %v", iss["data"])
	}
}

func TestValidate_NestedPathText(t *testing.T) {
	sch := NewBuilder().
		Object("user", NewBuilder().
			StringArray("roles", Required()).
			EnumString("plan", []string{"free", "pro"}, Required())).
		MustBuild()

	val := map[string]any{
		"user": map[string]any{
			"plan":  "enterprise",
			"roles": []any{"admin", 7},
		},
	}
	res := sch.Validate(val)
	if len(res.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %s", spew.Sdump(res.Issues))
	}
	if msg := res.Issues[0]["message"]; msg != "user.plan must be one of free, pro" {
		t.Fatalf("enum message = %v", msg)
	}
	if msg := res.Issues[1]["message"]; msg != "user.roles[1] must be a string" {
		t.Fatalf("element message = %v", msg)
	}
	if path := res.Issues[1]["path"].([]any); !reflect.DeepEqual(path, []any{"user", "roles", 1}) {
		t.Fatalf("path = %v", path)
	}
}

func TestValidate_StringConstraints(t *testing.T) {
	sch := NewBuilder().
		String("slug", Required(), MinLength(3), MaxLength(8), Pattern("^[a-z-]+$")).
		MustBuild()

	res := sch.Validate(map[string]any{"slug": "A"})
	if len(res.Issues) != 2 {
		t.Fatalf("expected min_length and pattern, got %s", spew.Sdump(res.Issues))
	}
	if res.Issues[0]["code"] != "min_length" || res.Issues[1]["code"] != "pattern" {
		t.Fatalf("codes = %v, %v", res.Issues[0]["code"], res.Issues[1]["code"])
	}

	if res := sch.Validate(map[string]any{"slug": "ok-slug"}); !res.OK() {
		t.Fatalf("valid slug rejected: %s", spew.Sdump(res.Issues))
	}
}

func TestValidate_NumberConstraints(t *testing.T) {
	sch := NewBuilder().
		Integer("age", Required(), Minimum(13), Maximum(130)).
		Number("score", Optional()).
		MustBuild()

	if res := sch.Validate(map[string]any{"age": 2.5}); res.Issues[0]["code"] != "type" {
		t.Fatalf("fractional integer: %s", spew.Sdump(res.Issues))
	}
	if res := sch.Validate(map[string]any{"age": 7}); res.Issues[0]["code"] != "minimum" {
		t.Fatalf("below minimum: %s", spew.Sdump(res.Issues))
	}
	if res := sch.Validate(map[string]any{"age": json.Number("30"), "score": 1.25}); !res.OK() {
		t.Fatalf("json.Number rejected: %s", spew.Sdump(res.Issues))
	}
}

func TestValidate_ArrayBounds(t *testing.T) {
	sch := NewBuilder().
		StringArray("tags", Required(), MinItems(1), MaxItems(2)).
		MustBuild()

	if res := sch.Validate(map[string]any{"tags": []any{}}); res.Issues[0]["code"] != "min_items" {
		t.Fatalf("empty array: %s", spew.Sdump(res.Issues))
	}
	if res := sch.Validate(map[string]any{"tags": []any{"a", "b", "c"}}); res.Issues[0]["code"] != "max_items" {
		t.Fatalf("oversized array: %s", spew.Sdump(res.Issues))
	}
	if res := sch.Validate(map[string]any{"tags": []any{"a"}}); !res.OK() {
		t.Fatalf("valid array rejected: %s", spew.Sdump(res.Issues))
	}
}

func TestValidate_StrictKeys(t *testing.T) {
	loose := NewBuilder().String("name").MustBuild()
	if res := loose.Validate(map[string]any{"name": "x", "extra": 1}); !res.OK() {
		t.Fatalf("loose schema rejected extra key: %s", spew.Sdump(res.Issues))
	}

	strict := NewBuilder().String("name").MustBuild(WithStrictKeys())
	res := strict.Validate(map[string]any{"name": "x", "extra": 1})
	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %s", spew.Sdump(res.Issues))
	}
	iss := res.Issues[0]
	if iss["code"] != "extraneous" || iss["message"] != "extra must not be present" {
		t.Fatalf("issue = %s", spew.Sdump(iss))
	}
}

func TestValidate_DeterministicIssueOrder(t *testing.T) {
	sch := NewBuilder().
		String("alpha", Required()).
		String("beta", Required()).
		MustBuild()

	for range 20 {
		res := sch.Validate(map[string]any{})
		if len(res.Issues) != 2 {
			t.Fatalf("expected 2 issues, got %d", len(res.Issues))
		}
		first := res.Issues[0]["path"].([]any)[0]
		second := res.Issues[1]["path"].([]any)[0]
		if first != "alpha" || second != "beta" {
			t.Fatalf("order = %v, %v", first, second)
		}
	}
}

func TestValidate_ValibotShape(t *testing.T) {
	sch := NewBuilder().
		Object("user", NewBuilder().String("name", Required(), MinLength(2))).
		MustBuild(WithVendor(issues.VendorValibot))

	inner := map[string]any{"name": "x"}
	outer := map[string]any{"user": inner}
	res := sch.Validate(outer)
	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %s", spew.Sdump(res.Issues))
	}
	iss := res.Issues[0]
	if iss["kind"] != "validation" || iss["type"] != "min_length" {
		t.Fatalf("issue = %s", spew.Sdump(iss))
	}
	if iss["input"] != "x" {
		t.Fatalf("input = %v", iss["input"])
	}

	path := iss["path"].([]any)
	if len(path) != 2 {
		t.Fatalf("path = %s", spew.Sdump(path))
	}
	top := path[0].(map[string]any)
	if top["origin"] != "value" || top["key"] != "user" || top["type"] != "object" {
		t.Fatalf("top entry = %s", spew.Sdump(top))
	}
	if !reflect.DeepEqual(top["input"], outer) || !reflect.DeepEqual(top["value"], inner) {
		t.Fatalf("top entry containers = %s", spew.Sdump(top))
	}
	leaf := path[1].(map[string]any)
	if leaf["key"] != "name" || !reflect.DeepEqual(leaf["input"], inner) || leaf["value"] != "x" {
		t.Fatalf("leaf entry = %s", spew.Sdump(leaf))
	}
}

func TestValidate_ValibotMissingIsSchemaKind(t *testing.T) {
	sch := NewBuilder().String("name", Required()).MustBuild(WithVendor(issues.VendorValibot))

	res := sch.Validate(map[string]any{})
	iss := res.Issues[0]
	if iss["kind"] != "schema" || iss["type"] != "missing" {
		t.Fatalf("issue = %s", spew.Sdump(iss))
	}
	entry := iss["path"].([]any)[0].(map[string]any)
	if _, ok := entry["value"]; ok {
		t.Fatalf("missing key must not carry a value: %s", spew.Sdump(entry))
	}
}

// Issues produced for a header-shaped value can be redacted by the
// sanitizer because key-level failures carry the whole header object.
func TestValidate_SanitizedHeaderIssues(t *testing.T) {
	sch := NewBuilder().String("authorization", Required()).MustBuild()

	headers := map[string]any{"cookie": "secret", "x-request-id": "abc"}
	res := sch.Validate(headers)
	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %s", spew.Sdump(res.Issues))
	}

	clean := issues.NewSanitizer(nil).Sanitize(res.Issues, sch.Vendor(), issues.TargetHeader)
	data := clean[0]["data"].(map[string]any)
	if _, ok := data["cookie"]; ok {
		t.Fatalf("cookie survived sanitization: %s", spew.Sdump(data))
	}
	if data["x-request-id"] != "abc" {
		t.Fatalf("unrestricted field lost: %s", spew.Sdump(data))
	}
	if res.Issues[0]["data"].(map[string]any)["cookie"] != "secret" {
		t.Fatalf("original issue mutated")
	}
	if headers["cookie"] != "secret" {
		t.Fatalf("original headers mutated")
	}
}

func TestFunc(t *testing.T) {
	sch := Func(issues.VendorValibot, func(value any) Result {
		if value == nil {
			return Result{Issues: []issues.Issue{{"kind": "schema", "type": "missing"}}}
		}
		return Result{Value: value}
	})
	if sch.Vendor() != issues.VendorValibot {
		t.Fatalf("vendor = %v", sch.Vendor())
	}
	if res := sch.Validate(nil); res.OK() {
		t.Fatalf("expected issue")
	}
	if res := sch.Validate("ok"); !res.OK() || res.Value != "ok" {
		t.Fatalf("result = %s", spew.Sdump(res))
	}
}
