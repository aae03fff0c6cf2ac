package formtree

import "fmt"

// ConflictError reports two keys that disagree about the shape of a shared
// position. Key is the flat input key whose insertion failed, Segment the
// token at the point of disagreement and Path the dot-joined position it
// addresses. Have is the kind an earlier key established there and Want the
// kind this key requires.
type ConflictError struct {
	Key     string
	Segment string
	Path    string
	Have    Kind
	Want    Kind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("formtree: key %q requires %s at %q but an earlier key made it a %s", e.Key, e.Want, e.Path, e.Have)
}
