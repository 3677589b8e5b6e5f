// Package patchdiff derives forward/inverse patch pairs from two document
// states, so callers can mutate a document freely and record the result as
// an undoable log entry.
package patchdiff

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wI2L/jsondiff"

	"plancore/pkg/domain"
)

// Diff computes the patches that turn before into after, together with the
// patches that turn after back into before. Both lists are empty when the
// documents are equal.
func Diff(before, after domain.Document) (forward, inverse []domain.Patch, err error) {
	ops, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, nil, err
	}
	if len(ops) == 0 {
		return nil, nil, nil
	}

	// Paths come back as JSON pointers. Each token is typed against the
	// document as it looks when that operation applies, so the working copy
	// advances op by op.
	working := before.Clone()
	for _, op := range ops {
		path, perr := resolvePointer(working, op.Path)
		if perr != nil {
			return nil, nil, perr
		}

		var fwd domain.Patch
		switch op.Type {
		case jsondiff.OperationAdd:
			fwd = domain.Patch{Op: domain.OpAdd, Path: path, Value: domain.CloneValue(op.Value)}
			inverse = append(inverse, domain.Patch{Op: domain.OpRemove, Path: path.Clone()})
		case jsondiff.OperationRemove:
			old, _ := domain.ValueAt(working, path)
			fwd = domain.Patch{Op: domain.OpRemove, Path: path}
			inverse = append(inverse, domain.Patch{Op: domain.OpAdd, Path: path.Clone(), Value: domain.CloneValue(old)})
		case jsondiff.OperationReplace:
			old, _ := domain.ValueAt(working, path)
			fwd = domain.Patch{Op: domain.OpReplace, Path: path, Value: domain.CloneValue(op.Value)}
			inverse = append(inverse, domain.Patch{Op: domain.OpReplace, Path: path.Clone(), Value: domain.CloneValue(old)})
		default:
			return nil, nil, fmt.Errorf("unexpected diff operation %q at %s", op.Type, op.Path)
		}
		forward = append(forward, fwd)
		working = domain.ApplyPatch(working, fwd)
	}

	// Inverse patches undo the forward list when applied in reverse order;
	// flip them so ApplyPatches can run them front to back.
	for i, j := 0, len(inverse)-1; i < j; i, j = i+1, j-1 {
		inverse[i], inverse[j] = inverse[j], inverse[i]
	}
	return forward, inverse, nil
}

// DraftEntry packages Diff output as a PatchDraft ready for the log.
func DraftEntry(before, after domain.Document, description string) (domain.PatchDraft, error) {
	forward, inverse, err := Diff(before, after)
	if err != nil {
		return domain.PatchDraft{}, err
	}
	return domain.PatchDraft{
		Forward:     forward,
		Inverse:     inverse,
		Description: description,
	}, nil
}

// resolvePointer converts an RFC 6901 JSON pointer into a typed path by
// walking the document: tokens addressing maps become keys, tokens
// addressing slices become indices ("-" means one past the end).
func resolvePointer(doc domain.Document, pointer string) (domain.Path, error) {
	if pointer == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("invalid JSON pointer %q", pointer)
	}
	tokens := strings.Split(pointer[1:], "/")
	path := make(domain.Path, 0, len(tokens))
	var node any = map[string]any(doc)
	for _, raw := range tokens {
		token := strings.ReplaceAll(strings.ReplaceAll(raw, "~1", "/"), "~0", "~")
		switch n := node.(type) {
		case map[string]any:
			path = append(path, domain.Key(token))
			node = n[token]
		case domain.Document:
			path = append(path, domain.Key(token))
			node = n[token]
		case []any:
			if token == "-" {
				path = append(path, domain.Index(len(n)))
				node = nil
				continue
			}
			i, err := strconv.Atoi(token)
			if err != nil {
				return nil, fmt.Errorf("non-numeric index %q in pointer %q", token, pointer)
			}
			path = append(path, domain.Index(i))
			if i >= 0 && i < len(n) {
				node = n[i]
			} else {
				node = nil
			}
		default:
			// Pointer runs past a leaf; keep key tokens so add operations
			// that create nested structure still map cleanly.
			path = append(path, domain.Key(token))
			node = nil
		}
	}
	return path, nil
}
