package domain

import "context"

// TransactionView provides read-only access to a consistent snapshot of
// store state.
type TransactionView interface {
	GetPlan(id string) (Document, bool)
	ListPlanIDs() []string
	Patches(planID string) []PatchEntry
	PatchesAfter(planID string, afterID int64) []PatchEntry
	LastPatch(planID string) (PatchEntry, bool)
	RedoDepth(planID string) int
	Checkpoints(planID string) []CheckpointMetadata
	GetCheckpoint(planID, checkpointID string) (Checkpoint, bool)
	LatestCheckpoint(planID string) (Checkpoint, bool)
}

// Transaction exposes the mutation operations a persistence implementation
// must support within an atomic scope. All mutation entry points run under
// a per-plan single-writer discipline; a transaction either commits as a
// whole or leaves the store untouched.
type Transaction interface {
	TransactionView
	PutPlan(doc Document) error
	DeletePlan(id string) error
	// AppendPatch assigns the next id for the plan and stores the entry.
	AppendPatch(planID string, entry PatchEntry) (int64, error)
	DeletePatch(planID string, id int64) error
	ClearPatches(planID string)
	// ReplacePatches swaps the plan's whole log for the given entries,
	// preserving their ids. Used by schema migration to rewrite history.
	ReplacePatches(planID string, entries []PatchEntry) error
	PushRedo(planID string, entry RedoEntry)
	PopRedo(planID string) (RedoEntry, bool)
	ClearRedo(planID string)
	PutCheckpoint(planID string, cp Checkpoint) error
	DeleteCheckpoint(planID, checkpointID string) error
}

// PlanStore is the minimal abstraction over durable backends. Reads outside
// a transaction observe the latest committed state.
type PlanStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPlan(id string) (Document, bool)
	ListPlanIDs() []string
	Patches(planID string) []PatchEntry
	PatchesAfter(planID string, afterID int64) []PatchEntry
	Checkpoints(planID string) []CheckpointMetadata
	LatestCheckpoint(planID string) (Checkpoint, bool)
}
