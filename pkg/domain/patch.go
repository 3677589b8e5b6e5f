package domain

import "time"

// PatchOp identifies one of the three primitive tree edits.
type PatchOp string

const (
	OpAdd     PatchOp = "add"
	OpRemove  PatchOp = "remove"
	OpReplace PatchOp = "replace"
)

// Patch is one primitive tree edit: an operation, a path, and (for add and
// replace) a value.
type Patch struct {
	Op    PatchOp `json:"op"`
	Path  Path    `json:"path"`
	Value any     `json:"value,omitempty"`
}

// Clone returns an independent copy of the patch, deep-copying the value.
func (p Patch) Clone() Patch {
	return Patch{Op: p.Op, Path: p.Path.Clone(), Value: CloneValue(p.Value)}
}

// ClonePatches deep-copies a patch list.
func ClonePatches(ps []Patch) []Patch {
	if ps == nil {
		return nil
	}
	out := make([]Patch, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}

// PatchDraft is what a caller hands to the write path: a forward/inverse
// patch pair it has already derived from its own edit operation, plus a
// human-readable description.
type PatchDraft struct {
	Forward     []Patch `json:"forward"`
	Inverse     []Patch `json:"inverse"`
	Description string  `json:"description"`
}

// PatchEntry is one committed log entry. Entries are immutable once
// appended; ids are strictly increasing per plan and never reused, and id
// order is the only meaning of before/after.
type PatchEntry struct {
	ID          int64     `json:"id"`
	Forward     []Patch   `json:"forward"`
	Inverse     []Patch   `json:"inverse"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns an independent copy of the entry.
func (e PatchEntry) Clone() PatchEntry {
	return PatchEntry{
		ID:          e.ID,
		Forward:     ClonePatches(e.Forward),
		Inverse:     ClonePatches(e.Inverse),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

// RedoEntry is a log entry moved aside by undo. It carries the entry
// unchanged; redo re-appends it under a fresh id.
type RedoEntry = PatchEntry

// CheckpointMetadata describes one named full-state snapshot.
// LastPatchID records the highest patch id already folded into the
// snapshot; hydration replays only entries with greater ids.
type CheckpointMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	LastPatchID int64     `json:"last_patch_id"`
	// ArtifactKey locates the archived snapshot copy in the blob store,
	// when an archive is configured.
	ArtifactKey string `json:"artifact_key,omitempty"`
}

// Checkpoint pairs metadata with its self-contained snapshot. Checkpoints
// never reference each other; each one is a complete baseline on its own.
type Checkpoint struct {
	Metadata CheckpointMetadata `json:"metadata"`
	State    Document           `json:"state"`
}

// Clone returns an independent copy of the checkpoint.
func (c Checkpoint) Clone() Checkpoint {
	return Checkpoint{Metadata: c.Metadata, State: c.State.Clone()}
}
