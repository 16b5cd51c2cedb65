package analyzer

import (
	"fmt"
	"sort"
	"time"
)

// FieldValue is one flattened, analyzer-ready field extracted from a
// document source: a dotted field path plus the normalized string form
// to tokenize, and a position gap to apply before this value; it is
// set on the first value of each array element after the first that
// shares the same path (SPEC_FULL.md §4.3).
type FieldValue struct {
	Path      string
	Text      string
	GapBefore int
}

// Flatten walks an arbitrary JSON-shaped document, normalizing
// non-string scalars (numbers to decimal string, booleans to
// "true"/"false", RFC3339 dates to ISO-8601) and recursing into objects
// (indexed under "parent.child") and arrays (elements share one field
// path, concatenated with a position gap of 1 between them).
func Flatten(source map[string]interface{}) []FieldValue {
	var out []FieldValue
	flattenInto(source, "", &out)
	return out
}

func flattenInto(v interface{}, path string, out *[]FieldValue) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			flattenInto(val[k], child, out)
		}
	case []interface{}:
		for i, item := range val {
			gap := 0
			if i > 0 {
				gap = 1
			}
			sub := []FieldValue{}
			flattenInto(item, path, &sub)
			for j, fv := range sub {
				if j == 0 {
					fv.GapBefore = gap
				}
				*out = append(*out, fv)
			}
		}
	case nil:
		// absent value contributes nothing
	default:
		*out = append(*out, FieldValue{Path: path, Text: NormalizeScalar(val)})
	}
}

// NormalizeScalar renders a non-string scalar into the textual form the
// analyzer tokenizes, per SPEC_FULL.md §4.3.
func NormalizeScalar(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case float32:
		return NormalizeScalar(float64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
