package migrate

import (
	"sort"

	"plancore/internal/pathmatch"
	"plancore/pkg/domain"
)

// ApplyToPlan executes one operation directly against a materialized
// document, expanding the pattern's wildcards against the keys and indices
// actually present. Missing containers and empty arrays yield zero matches
// and leave the document untouched; migrations must be safe to run on
// heterogeneous historical documents. The input document is never mutated.
func ApplyToPlan(doc domain.Document, op Operation) domain.Document {
	switch op.kind {
	case KindRenamePath:
		for _, path := range expand(doc, op.from) {
			doc = renameAt(doc, path, op.from, op.to)
		}
	case KindDeletePath:
		for _, path := range expand(doc, op.path) {
			doc = domain.ApplyPatch(doc, domain.Patch{Op: domain.OpRemove, Path: path})
		}
	case KindTransformValue:
		for _, path := range expand(doc, op.path) {
			v, ok := domain.ValueAt(doc, path)
			if !ok {
				continue
			}
			doc = domain.ApplyPatch(doc, domain.Patch{Op: domain.OpReplace, Path: path, Value: op.fn(v)})
		}
	}
	return doc
}

// ApplyAllToPlan threads the document through each operation in order.
func ApplyAllToPlan(doc domain.Document, ops []Operation) domain.Document {
	for _, op := range ops {
		doc = ApplyToPlan(doc, op)
	}
	return doc
}

func renameAt(doc domain.Document, path domain.Path, from, to pathmatch.Pattern) domain.Document {
	target, ok := pathmatch.Transform(path, from, to)
	if !ok {
		return doc
	}
	v, ok := domain.ValueAt(doc, path)
	if !ok {
		return doc
	}
	moved := domain.ApplyPatch(doc, domain.Patch{Op: domain.OpAdd, Path: target, Value: v})
	if _, landed := domain.ValueAt(moved, target); !landed {
		// Target container does not exist; leave the value where it was
		// rather than dropping it.
		return doc
	}
	return domain.ApplyPatch(moved, domain.Patch{Op: domain.OpRemove, Path: path})
}

// expand resolves a pattern to every concrete path present in the document,
// in descending path order so effects are deterministic regardless of map
// iteration order and array removals run back to front, keeping earlier
// removals from shifting the indices of later matches.
func expand(doc domain.Document, pattern pathmatch.Pattern) []domain.Path {
	var out []domain.Path
	expandAt(map[string]any(doc), pattern, 0, nil, &out)
	sort.Slice(out, func(i, j int) bool {
		return pathLess(out[j], out[i])
	})
	return out
}

func pathLess(a, b domain.Path) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		as, bs := a[i], b[i]
		if as.IsIndex() && bs.IsIndex() {
			if as.IndexValue() != bs.IndexValue() {
				return as.IndexValue() < bs.IndexValue()
			}
			continue
		}
		if as.String() != bs.String() {
			return as.String() < bs.String()
		}
	}
	return len(a) < len(b)
}

func expandAt(node any, pattern pathmatch.Pattern, depth int, prefix domain.Path, out *[]domain.Path) {
	if depth == pattern.Len() {
		if pattern.Matches(prefix) {
			*out = append(*out, prefix.Clone())
		}
		return
	}
	switch c := node.(type) {
	case map[string]any:
		for k, v := range c {
			expandAt(v, pattern, depth+1, append(prefix, domain.Key(k)), out)
		}
	case []any:
		for i, v := range c {
			expandAt(v, pattern, depth+1, append(prefix, domain.Index(i)), out)
		}
	}
}
