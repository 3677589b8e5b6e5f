package core

import (
	"context"
	"fmt"

	"plancore/internal/migrate"
	"plancore/pkg/domain"
)

// HydratePlan reconstructs the current plan document: latest checkpoint
// state (or the stored row when no checkpoint exists) plus replay of all
// newer forward patches. Plans stored at an older schema version are
// migrated in place first, including the patch log and all checkpoint
// states, so replay always happens in current-version terms.
func (s *Service) HydratePlan(ctx context.Context, planID string) (Document, error) {
	var doc Document
	err := s.instrument(ctx, "hydrate_plan", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		var err error
		doc, err = s.hydrate(ctx, planID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) hydrate(ctx context.Context, planID string) (Document, error) {
	doc, stale, err := s.assemble(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !stale {
		return doc, nil
	}

	// Stored state lags the current schema version. Migrate everything at
	// rest, then assemble again from the migrated state so the result and
	// any later replay agree.
	if err := s.migrateStored(ctx, planID); err != nil {
		return nil, err
	}
	doc, stale, err = s.assemble(ctx, planID)
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, fmt.Errorf("plan %s still stale after migration", planID)
	}
	s.logger.Info("migrated plan", "plan_id", planID, "schema_version", s.migrations.Current())
	return doc, nil
}

// assemble builds the hydrated document from a consistent store view. It
// reports stale=true when the persisted state needs migration; in that
// case the returned document is already migrated in memory, but the store
// has not been touched.
func (s *Service) assemble(ctx context.Context, planID string) (Document, bool, error) {
	var (
		baseline Document
		after    int64
		entries  []domain.PatchEntry
		artifact string
	)
	err := s.store.View(ctx, func(v TransactionView) error {
		row, ok := v.GetPlan(planID)
		if !ok {
			return domain.ErrNotFound{Entity: "plan", ID: planID}
		}
		if cp, ok := v.LatestCheckpoint(planID); ok {
			baseline = cp.State
			after = cp.Metadata.LastPatchID
			artifact = cp.Metadata.ArtifactKey
		} else {
			baseline = row
			after = 0
		}
		entries = v.PatchesAfter(planID, after)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if baseline == nil {
		// Checkpoint state offloaded to the archive.
		baseline, err = s.fetchArchivedState(ctx, artifact)
		if err != nil {
			return nil, false, fmt.Errorf("fetch checkpoint artifact: %w", err)
		}
	}

	current := s.migrations.Current()
	stored := baseline.SchemaVersion()
	if stored > current {
		return nil, false, domain.ErrFutureSchema{PlanID: planID, Stored: stored, Current: current}
	}

	stale := stored < current
	if stale {
		baseline, err = s.migrations.MigratePlan(baseline)
		if err != nil {
			return nil, false, err
		}
		entries = migrate.MigrateEntries(entries, s.migrations.OpsBetween(stored, current))
	}

	doc := baseline.Clone()
	for _, entry := range entries {
		doc = domain.ApplyPatches(doc, entry.Forward)
	}
	return doc, stale, nil
}

// migrateStored rewrites all persisted state of a plan to the current
// schema version: the stored row, every checkpoint state and the whole
// patch log. The redo stack is cleared since its entries reference the old
// schema.
func (s *Service) migrateStored(ctx context.Context, planID string) error {
	// Archived checkpoint states are fetched outside the transaction.
	restored := make(map[string]Document)
	err := s.store.View(ctx, func(v TransactionView) error {
		for _, meta := range v.Checkpoints(planID) {
			cp, ok := v.GetCheckpoint(planID, meta.ID)
			if !ok || cp.State != nil {
				continue
			}
			state, err := s.fetchArchivedState(ctx, meta.ArtifactKey)
			if err != nil {
				return fmt.Errorf("fetch checkpoint artifact: %w", err)
			}
			restored[meta.ID] = state
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.store.RunInTransaction(ctx, func(tx Transaction) error {
		row, ok := tx.GetPlan(planID)
		if !ok {
			return domain.ErrNotFound{Entity: "plan", ID: planID}
		}
		rowVersion := row.SchemaVersion()
		migrated, err := s.migrations.MigratePlan(row)
		if err != nil {
			return err
		}
		if err := tx.PutPlan(migrated); err != nil {
			return err
		}

		for _, meta := range tx.Checkpoints(planID) {
			cp, ok := tx.GetCheckpoint(planID, meta.ID)
			if !ok {
				continue
			}
			state := cp.State
			if state == nil {
				state = restored[meta.ID]
			}
			if state == nil {
				continue
			}
			migratedState, err := s.migrations.MigratePlan(state)
			if err != nil {
				return err
			}
			cp.State = migratedState
			if err := tx.PutCheckpoint(planID, cp); err != nil {
				return err
			}
		}

		ops := s.migrations.OpsBetween(rowVersion, s.migrations.Current())
		entries := migrate.MigrateEntries(tx.Patches(planID), ops)
		if err := tx.ReplacePatches(planID, entries); err != nil {
			return err
		}
		tx.ClearRedo(planID)
		return nil
	})
}
