package formtree

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func decodeMap(t *testing.T, flat map[string]any) map[string]any {
	t.Helper()
	got, err := DecodeMap(flat)
	if err != nil {
		t.Fatalf("DecodeMap failed: %v", err)
	}
	return got
}

func wantTree(t *testing.T, got, want map[string]any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded tree mismatch:\ngot: %swant: %s", spew.Sdump(got), spew.Sdump(want))
	}
}

func TestDecode_NestedMappings(t *testing.T) {
	got := decodeMap(t, map[string]any{
		"user.name":                  "Alice",
		"user.details.email":         "alice@example.com",
		"user[preferences].language": "ja",
	})
	wantTree(t, got, map[string]any{
		"user": map[string]any{
			"name":        "Alice",
			"details":     map[string]any{"email": "alice@example.com"},
			"preferences": map[string]any{"language": "ja"},
		},
	})
}

func TestDecode_SparseSequencesCompact(t *testing.T) {
	got := decodeMap(t, map[string]any{
		"users[0].name":     "John",
		"users[0].roles[0]": "admin",
		"users[0].roles[2]": "editor",
		"users[1].name":     "Jane",
		"users[1].roles[1]": "viewer",
	})
	wantTree(t, got, map[string]any{
		"users": []any{
			map[string]any{"name": "John", "roles": []any{"admin", "editor"}},
			map[string]any{"name": "Jane", "roles": []any{"viewer"}},
		},
	})
}

func TestDecode_HolesDropped(t *testing.T) {
	got := decodeMap(t, map[string]any{
		"values[0]": "first",
		"values[2]": "third",
	})
	wantTree(t, got, map[string]any{"values": []any{"first", "third"}})
}

func TestDecode_FalsyValuesSurvive(t *testing.T) {
	got := decodeMap(t, map[string]any{
		"list[1]": nil,
		"list[3]": false,
	})
	wantTree(t, got, map[string]any{"list": []any{nil, false}})

	got = decodeMap(t, map[string]any{
		"row[0]": 0,
		"row[2]": "",
	})
	wantTree(t, got, map[string]any{"row": []any{0, ""}})
}

func TestDecode_ConflictMappingVsSequence(t *testing.T) {
	_, err := Decode(map[string]any{
		"user.name": "Alice",
		"user[0]":   "first",
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Path != "user" || ce.Have != KindMapping || ce.Want != KindSequence {
		t.Fatalf("unexpected conflict detail: %+v", ce)
	}
	if ce.Key != "user[0]" {
		t.Fatalf("expected offending key user[0], got %q", ce.Key)
	}
}

func TestDecode_ConflictSequenceVsMapping(t *testing.T) {
	// Spelled so the sequence-creating key sorts first; the conflict must
	// surface no matter which of the two paths built the node.
	_, err := Decode(map[string]any{
		"user.0":    "first",
		"user.name": "Alice",
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Path != "user" || ce.Have != KindSequence || ce.Want != KindMapping {
		t.Fatalf("unexpected conflict detail: %+v", ce)
	}
}

func TestDecode_ConflictScalarVsContainer(t *testing.T) {
	_, err := Decode(map[string]any{
		"a":   "x",
		"a.b": "y",
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Have != KindScalar || ce.Want != KindMapping {
		t.Fatalf("unexpected conflict detail: %+v", ce)
	}
}

func TestDecode_ConflictContainerVsScalar(t *testing.T) {
	// "a]" normalizes to the bare segment "a", so this terminal write lands
	// on a position an earlier key already made a Mapping.
	_, err := Decode(map[string]any{
		"a.b": "y",
		"a]":  "x",
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Have != KindMapping || ce.Want != KindScalar {
		t.Fatalf("unexpected conflict detail: %+v", ce)
	}
}

func TestDecode_LastProcessedWins(t *testing.T) {
	// Both keys address a.b; keys are processed in lexicographic order, so
	// the bracket spelling lands last and wins.
	got := decodeMap(t, map[string]any{
		"a.b":  "first",
		"a[b]": "second",
	})
	wantTree(t, got, map[string]any{"a": map[string]any{"b": "second"}})
}

func TestDecode_StrictIndexGrammar(t *testing.T) {
	// Only canonical non-negative decimals address sequence positions.
	// Signs, leading zeros and digit runs beyond int range are field names.
	got := decodeMap(t, map[string]any{
		"a[0]":                    "idx",
		"b[01]":                   "zero-padded",
		"c[-1]":                   "signed",
		"d[99999999999999999999]": "overflow",
	})
	wantTree(t, got, map[string]any{
		"a": []any{"idx"},
		"b": map[string]any{"01": "zero-padded"},
		"c": map[string]any{"-1": "signed"},
		"d": map[string]any{"99999999999999999999": "overflow"},
	})
}

func TestDecode_LeadingZeroConflictsWithIndex(t *testing.T) {
	// a.0 sorts before a.01, so the canonical index builds the sequence and
	// the zero-padded spelling then demands a mapping of the same node.
	_, err := Decode(map[string]any{
		"a.0":  "x",
		"a.01": "y",
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Have != KindSequence || ce.Want != KindMapping {
		t.Fatalf("unexpected conflict detail: %+v", ce)
	}
}

func TestDecode_RootIsAlwaysMapping(t *testing.T) {
	got := decodeMap(t, map[string]any{
		"0":      "zero",
		"1.name": "one",
	})
	wantTree(t, got, map[string]any{
		"0": "zero",
		"1": map[string]any{"name": "one"},
	})
}

func TestDecode_EmptySegmentsDropped(t *testing.T) {
	got := decodeMap(t, map[string]any{
		"values[]": "x",
		"a..b":     "y",
	})
	wantTree(t, got, map[string]any{
		"values": "x",
		"a":      map[string]any{"b": "y"},
	})

	// A key with no addressable segments assigns nothing.
	got = decodeMap(t, map[string]any{"": "ignored"})
	wantTree(t, got, map[string]any{})
}

func TestDecodeMap_Empty(t *testing.T) {
	got := decodeMap(t, map[string]any{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty mapping, got %v", got)
	}
}

func TestNode_Accessors(t *testing.T) {
	root, err := Decode(map[string]any{
		"user.name":    "Alice",
		"user.tags[0]": "a",
		"user.tags[1]": "b",
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if root.Kind() != KindMapping {
		t.Fatalf("root kind = %s", root.Kind())
	}
	user, ok := root.Field("user")
	if !ok {
		t.Fatalf("missing user field")
	}
	if names := user.FieldNames(); !reflect.DeepEqual(names, []string{"name", "tags"}) {
		t.Fatalf("unexpected field names %v", names)
	}
	name, _ := user.Field("name")
	if name.Kind() != KindScalar || name.Value() != "Alice" {
		t.Fatalf("unexpected name node %v", name)
	}
	tags, _ := user.Field("tags")
	if tags.Kind() != KindSequence || tags.Len() != 2 {
		t.Fatalf("unexpected tags node, kind=%s len=%d", tags.Kind(), tags.Len())
	}
	second, ok := tags.Item(1)
	if !ok || second.Value() != "b" {
		t.Fatalf("unexpected second tag")
	}
	if _, ok := tags.Item(2); ok {
		t.Fatalf("out of range item must not resolve")
	}
}

func TestNode_MarshalJSON(t *testing.T) {
	root, err := Decode(map[string]any{
		"n[0]": "a",
		"n[2]": "b",
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	b, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `{"n":["a","b"]}` {
		t.Fatalf("unexpected JSON %s", b)
	}
}

func TestConflictError_Message(t *testing.T) {
	_, err := Decode(map[string]any{
		"user.name": "Alice",
		"user[0]":   "first",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	for _, frag := range []string{"user[0]", "Sequence", "Mapping"} {
		if !strings.Contains(msg, frag) {
			t.Fatalf("error message %q missing %q", msg, frag)
		}
	}
}
