package core

import "plancore/pkg/domain"

type (
	// Document aliases domain.Document for service operations.
	Document = domain.Document
	// Patch aliases domain.Patch.
	Patch = domain.Patch
	// PatchDraft aliases domain.PatchDraft.
	PatchDraft = domain.PatchDraft
	// PatchEntry aliases domain.PatchEntry.
	PatchEntry = domain.PatchEntry
	// RedoEntry aliases domain.RedoEntry.
	RedoEntry = domain.RedoEntry
	// Checkpoint aliases domain.Checkpoint.
	Checkpoint = domain.Checkpoint
	// CheckpointMetadata aliases domain.CheckpointMetadata.
	CheckpointMetadata = domain.CheckpointMetadata
	// PlanStore aliases domain.PlanStore.
	PlanStore = domain.PlanStore
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
)
