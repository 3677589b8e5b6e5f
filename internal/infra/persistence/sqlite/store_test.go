package sqlite

import (
	"context"
	"path/filepath"
	"plancore/internal/infra/persistence/memory"
	"testing"
	"time"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %q", store.Path())
	}

	ctx := context.Background()
	err = store.RunInTransaction(ctx, func(tx memory.Transaction) error {
		if err := tx.PutPlan(memory.Document{"id": "plan-1", "schemaVersion": 1}); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if _, err := tx.AppendPatch("plan-1", memory.PatchEntry{Description: "edit", CreatedAt: time.Now().UTC()}); err != nil {
				return err
			}
		}
		return tx.PutCheckpoint("plan-1", memory.Checkpoint{
			Metadata: memory.CheckpointMetadata{ID: "cp-1", Name: "base", LastPatchID: 3, CreatedAt: time.Now().UTC()},
			State:    memory.Document{"id": "plan-1", "schemaVersion": 1},
		})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	doc, ok := reopened.GetPlan("plan-1")
	if !ok || doc.SchemaVersion() != 1 {
		t.Fatalf("plan not reloaded: %v (ok=%v)", doc, ok)
	}
	if got := reopened.Patches("plan-1"); len(got) != 3 {
		t.Fatalf("expected 3 patches after reload, got %d", len(got))
	}
	cp, ok := reopened.LatestCheckpoint("plan-1")
	if !ok || cp.Metadata.ID != "cp-1" || cp.Metadata.LastPatchID != 3 {
		t.Fatalf("checkpoint not reloaded: %+v (ok=%v)", cp.Metadata, ok)
	}

	// Id sequence must survive the reload.
	err = reopened.RunInTransaction(ctx, func(tx memory.Transaction) error {
		id, err := tx.AppendPatch("plan-1", memory.PatchEntry{})
		if err != nil {
			return err
		}
		if id != 4 {
			t.Fatalf("sequence not restored: got %d want 4", id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append after reload: %v", err)
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	wantErr := context.Canceled
	err = store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		if err := tx.PutPlan(memory.Document{"id": "plan-x", "schemaVersion": 1}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if _, ok := reopened.GetPlan("plan-x"); ok {
		t.Fatalf("failed transaction was persisted")
	}
}
