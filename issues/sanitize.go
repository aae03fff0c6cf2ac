package issues

import "maps"

var defaultSanitizer = NewSanitizer(nil)

// Sanitize redacts restricted fields using the default table. See
// Sanitizer.Sanitize for the contract.
func Sanitize(list []Issue, vendor Vendor, target Target) []Issue {
	return defaultSanitizer.Sanitize(list, vendor, target)
}

// Sanitizer strips restricted fields from issue payloads according to each
// vendor's issue shape.
type Sanitizer struct {
	table Table
}

// Table supplies the restricted-field list for a target. RestrictedFields
// implements it directly; Ruleset implements it with a reloadable file.
type Table interface {
	FieldsFor(target Target) []string
}

// FieldsFor returns the restricted fields configured for target.
func (rf RestrictedFields) FieldsFor(target Target) []string { return rf[target] }

// NewSanitizer returns a Sanitizer reading from table, or from
// DefaultRestrictedFields when table is nil.
func NewSanitizer(table Table) *Sanitizer {
	if table == nil {
		table = DefaultRestrictedFields()
	}
	return &Sanitizer{table: table}
}

// Sanitize redacts the restricted fields configured for target from every
// issue in list. It never fails and always returns a slice of the same
// length and order as its input.
//
// When target has no restricted fields, or vendor is not recognized, the
// input slice itself is returned with nothing copied or touched. Otherwise
// the transform follows the vendor's conventions:
//
//   - VendorArkType: a fresh slice of fresh issues is returned. Each issue
//     is shallow-cloned with its "data" payload replaced by a copy minus
//     the restricted fields; the caller's issues stay unmodified.
//   - VendorValibot: restricted fields are deleted in place from the
//     "input" object of every path entry, and the input slice itself is
//     returned.
//
// Because the valibot transform mutates, issue lists handed to Sanitize
// must be call-scoped: produced by the validate call immediately before,
// not shared across in-flight requests.
func (s *Sanitizer) Sanitize(list []Issue, vendor Vendor, target Target) []Issue {
	fields := s.table.FieldsFor(target)
	if len(fields) == 0 {
		return list
	}
	switch vendor {
	case VendorArkType:
		return sanitizeArkType(list, fields)
	case VendorValibot:
		return sanitizeValibot(list, fields)
	default:
		// Fails open: an unknown vendor's issue shape is unknowable, so
		// nothing is redacted rather than guessing at payload locations.
		return list
	}
}

// sanitizeArkType clones. Issues whose "data" is not an object carry no
// redactable payload and are passed through by reference.
func sanitizeArkType(list []Issue, fields []string) []Issue {
	out := make([]Issue, len(list))
	for i, issue := range list {
		data, ok := issue["data"].(map[string]any)
		if !ok {
			out[i] = issue
			continue
		}
		clean := maps.Clone(data)
		for _, f := range fields {
			delete(clean, f)
		}
		clone := maps.Clone(issue)
		clone["data"] = clean
		out[i] = clone
	}
	return out
}

// sanitizeValibot mutates the caller's issues and returns the same slice.
func sanitizeValibot(list []Issue, fields []string) []Issue {
	for _, issue := range list {
		path, ok := issue["path"].([]any)
		if !ok {
			continue
		}
		for _, entry := range path {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			input, ok := em["input"].(map[string]any)
			if !ok {
				continue
			}
			for _, f := range fields {
				delete(input, f)
			}
		}
	}
	return list
}
