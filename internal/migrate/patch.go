package migrate

import (
	"plancore/internal/pathmatch"
	"plancore/pkg/domain"
)

// MigratePatch threads a single patch through the ops pipeline in order.
// Ops are cumulative: a later op's pattern is evaluated against the path as
// rewritten by earlier ops, not the original path.
//
//   - RenamePath rewrites the path when it matches.
//   - DeletePath marks the patch no-op and halts: a patch that touched a
//     field no longer part of the schema cannot meaningfully carry a
//     rewritten path.
//   - TransformValue replaces the patch value when the path matches and the
//     patch carries a value (add/replace).
//
// The second return is true when the patch has been marked no-op.
func MigratePatch(p domain.Patch, ops []Operation) (domain.Patch, bool) {
	cur := p
	for _, op := range ops {
		switch op.kind {
		case KindRenamePath:
			if rewritten, ok := pathmatch.Transform(cur.Path, op.from, op.to); ok {
				cur.Path = rewritten
			}
		case KindDeletePath:
			if op.path.Matches(cur.Path) {
				return cur, true
			}
		case KindTransformValue:
			if op.path.Matches(cur.Path) && cur.Op != domain.OpRemove {
				cur.Value = op.fn(cur.Value)
			}
		}
	}
	return cur, false
}

// MigratePatches applies MigratePatch to every patch and filters out the
// no-op results, preserving the relative order of survivors.
func MigratePatches(ps []domain.Patch, ops []Operation) []domain.Patch {
	out := make([]domain.Patch, 0, len(ps))
	for _, p := range ps {
		migrated, noop := MigratePatch(p, ops)
		if noop {
			continue
		}
		out = append(out, migrated)
	}
	return out
}

// MigrateEntries rewrites a patch log after a schema change: each entry's
// forward and inverse lists are migrated, and entries whose forward list is
// emptied entirely by DeletePath rules are dropped. Entries that were
// appended with zero-length patch lists (structural markers) survive
// untouched. Ids are preserved; survivor order is unchanged.
//
// This is what keeps historical patches valid after a migration renames or
// removes fields: replaying the rewritten log against a migrated baseline
// reproduces the same logical edits.
func MigrateEntries(entries []domain.PatchEntry, ops []Operation) []domain.PatchEntry {
	out := make([]domain.PatchEntry, 0, len(entries))
	for _, e := range entries {
		migrated := e
		migrated.Forward = MigratePatches(e.Forward, ops)
		migrated.Inverse = MigratePatches(e.Inverse, ops)
		if len(e.Forward) > 0 && len(migrated.Forward) == 0 {
			continue
		}
		out = append(out, migrated)
	}
	return out
}
