// Package issues carries validation failures between a schema's validate
// call and the client-facing error response, and redacts sensitive request
// fields from them on the way out.
//
// Issue payloads are vendor-shaped: each supported schema library lays out
// its failures differently, and the sanitizer recognizes those layouts
// rather than imposing one of its own. Which fields get redacted for which
// validation target is plain data, so new target/field pairs are added to
// the table, never to the dispatch code.
package issues

// Issue is one validation failure as produced by a schema vendor, in its
// decoded-JSON form. The layout is vendor-defined; this package only ever
// touches the fields a vendor transform knows about.
type Issue map[string]any

// Vendor identifies the schema library whose issue shape the sanitizer must
// recognize. Unrecognized vendors pass through Sanitize untouched.
type Vendor string

const (
	// VendorArkType marks issues that carry the rejected input as a flat
	// object under "data".
	VendorArkType Vendor = "arktype"
	// VendorValibot marks issues that carry ordered path entries, each
	// holding the value observed at that step under "input".
	VendorValibot Vendor = "valibot"
)

// Target names the request surface a validator is bound to.
type Target string

const (
	TargetJSON   Target = "json"
	TargetForm   Target = "form"
	TargetHeader Target = "header"
	TargetQuery  Target = "query"
	TargetParam  Target = "param"
	TargetCookie Target = "cookie"
)

// RestrictedFields maps a validation target to the payload field names that
// must never leave the server in an error response. Targets absent from the
// map are not touched at all.
type RestrictedFields map[Target][]string

// DefaultRestrictedFields returns the stock redaction table. Header
// validation echoes the submitted header set back in its issues, so the
// cookie header is stripped there; no other target is restricted.
func DefaultRestrictedFields() RestrictedFields {
	return RestrictedFields{
		TargetHeader: {"cookie"},
	}
}
