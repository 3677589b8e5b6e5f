package domain

// ApplyPatch returns a new document with the patch applied. The input is
// never mutated: containers along the edited path are copied, untouched
// branches are shared structurally.
//
// Application is no-op-safe in the JSON-patch/Immer style: removing an
// absent key, replacing through a missing container, or indexing outside an
// array's bounds leaves the document unchanged rather than erroring. This
// keeps replay tolerant of patches whose paths no longer exist in the tree.
func ApplyPatch(doc Document, p Patch) Document {
	if len(p.Path) == 0 {
		// Whole-document add/replace swaps in the value; a root remove
		// has nothing meaningful to do.
		if p.Op == OpAdd || p.Op == OpReplace {
			if m, ok := CloneValue(p.Value).(map[string]any); ok {
				return Document(m)
			}
		}
		return doc
	}
	next, changed := applyAt(map[string]any(doc), p.Path, 0, p.Op, p.Value)
	if !changed {
		return doc
	}
	return Document(next.(map[string]any))
}

// ApplyPatches applies each patch in order, feeding every step the result
// of the previous one.
func ApplyPatches(doc Document, ps []Patch) Document {
	for _, p := range ps {
		doc = ApplyPatch(doc, p)
	}
	return doc
}

func applyAt(node any, path Path, depth int, op PatchOp, value any) (any, bool) {
	seg := path[depth]
	last := depth == len(path)-1

	switch c := node.(type) {
	case map[string]any:
		k := seg.String()
		if last {
			return applyToMap(c, k, op, value)
		}
		child, ok := c[k]
		if !ok {
			return node, false
		}
		next, changed := applyAt(child, path, depth+1, op, value)
		if !changed {
			return node, false
		}
		out := make(map[string]any, len(c))
		for key, v := range c {
			out[key] = v
		}
		out[k] = next
		return out, true
	case []any:
		if !seg.IsIndex() {
			return node, false
		}
		i := seg.IndexValue()
		if last {
			return applyToSlice(c, i, op, value)
		}
		if i < 0 || i >= len(c) {
			return node, false
		}
		next, changed := applyAt(c[i], path, depth+1, op, value)
		if !changed {
			return node, false
		}
		out := make([]any, len(c))
		copy(out, c)
		out[i] = next
		return out, true
	default:
		return node, false
	}
}

func applyToMap(m map[string]any, key string, op PatchOp, value any) (any, bool) {
	switch op {
	case OpAdd, OpReplace:
		out := make(map[string]any, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		out[key] = CloneValue(value)
		return out, true
	case OpRemove:
		if _, ok := m[key]; !ok {
			return m, false
		}
		out := make(map[string]any, len(m))
		for k, v := range m {
			if k != key {
				out[k] = v
			}
		}
		return out, true
	}
	return m, false
}

func applyToSlice(s []any, i int, op PatchOp, value any) (any, bool) {
	switch op {
	case OpAdd:
		// add inserts; index == len appends.
		if i < 0 || i > len(s) {
			return s, false
		}
		out := make([]any, 0, len(s)+1)
		out = append(out, s[:i]...)
		out = append(out, CloneValue(value))
		out = append(out, s[i:]...)
		return out, true
	case OpReplace:
		if i < 0 || i >= len(s) {
			return s, false
		}
		out := make([]any, len(s))
		copy(out, s)
		out[i] = CloneValue(value)
		return out, true
	case OpRemove:
		if i < 0 || i >= len(s) {
			return s, false
		}
		out := make([]any, 0, len(s)-1)
		out = append(out, s[:i]...)
		out = append(out, s[i+1:]...)
		return out, true
	}
	return s, false
}
