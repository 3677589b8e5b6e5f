package domain

import "encoding/json"

// Reserved document fields. The engine treats the rest of a plan document as
// an opaque tree.
const (
	FieldID            = "id"
	FieldSchemaVersion = "schemaVersion"
)

// Document is the JSON-like tree for one plan: maps, ordered lists and
// scalars. Documents are treated as immutable values at every component
// boundary; mutations always go through CloneValue / ApplyPatch so that no
// mutable alias crosses packages.
type Document map[string]any

// ID returns the stable document identifier, or empty when absent.
func (d Document) ID() string {
	if v, ok := d[FieldID].(string); ok {
		return v
	}
	return ""
}

// SchemaVersion returns the stored schema version. Numbers read back from a
// JSON round trip arrive as float64 or json.Number; all integer encodings
// are accepted. Missing or malformed versions read as zero.
func (d Document) SchemaVersion() int {
	switch v := d[FieldSchemaVersion].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// WithSchemaVersion returns a copy of the document carrying the given
// schema version. The receiver is left untouched.
func (d Document) WithSchemaVersion(v int) Document {
	out := d.Clone()
	out[FieldSchemaVersion] = v
	return out
}

// Clone deep-copies the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-like value. Scalars are returned as-is;
// maps and slices are copied recursively.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case Document:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ValueAt resolves the node addressed by path, reporting whether every
// container along the way exists and the final segment resolves.
func ValueAt(d Document, path Path) (any, bool) {
	var node any = map[string]any(d)
	for _, seg := range path {
		switch c := node.(type) {
		case map[string]any:
			child, ok := c[seg.String()]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			if !seg.IsIndex() {
				return nil, false
			}
			i := seg.IndexValue()
			if i < 0 || i >= len(c) {
				return nil, false
			}
			node = c[i]
		default:
			return nil, false
		}
	}
	return node, true
}
