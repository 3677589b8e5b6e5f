// Package core implements the plan persistence service: patch log
// management, undo/redo, checkpoints, schema migration and hydration on
// top of a PlanStore.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"plancore/internal/blob"
	"plancore/internal/migrate"
	"plancore/pkg/domain"
)

// Service coordinates all plan operations. Mutating operations on a plan
// are serialized per plan id; operations on distinct plans proceed
// concurrently.
type Service struct {
	store      domain.PlanStore
	migrations *migrate.Registry
	archive    blob.Store

	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customizes Service construction.
type Option func(*Service)

// WithLogger installs a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithArchive installs a blob store for checkpoint snapshot artifacts.
// Without an archive, checkpoints are stored inline only.
func WithArchive(a blob.Store) Option {
	return func(s *Service) {
		s.archive = a
	}
}

// NewService validates the migration registry and builds a Service.
func NewService(store domain.PlanStore, migrations *migrate.Registry, opts ...Option) (*Service, error) {
	if migrations == nil {
		migrations = migrate.NewRegistry(1)
	}
	if err := migrations.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		store:      store,
		migrations: migrations,
		logger:     noopLogger{},
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SchemaVersion returns the current schema version documents are migrated
// to.
func (s *Service) SchemaVersion() int { return s.migrations.Current() }

// planLock returns the mutex guarding mutations of one plan.
func (s *Service) planLock(planID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[planID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[planID] = l
	}
	return l
}

// instrument wraps an operation with tracing, metrics and error logging.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	}
	return err
}

// CreatePlan stores a fresh plan document seeded at the current schema
// version. An existing plan with the same id is an error.
func (s *Service) CreatePlan(ctx context.Context, planID string) (Document, error) {
	var doc Document
	err := s.instrument(ctx, "create_plan", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.GetPlan(planID); ok {
				return fmt.Errorf("plan %s already exists", planID)
			}
			doc = newPlanDocument(planID, s.migrations.Current())
			return tx.PutPlan(doc)
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// newPlanDocument seeds the baseline shape every plan starts from.
func newPlanDocument(planID string, schemaVersion int) Document {
	return Document{
		domain.FieldID:            planID,
		domain.FieldSchemaVersion: schemaVersion,
		"plantings":               []any{},
		"crops":                   map[string]any{},
		"varieties":               map[string]any{},
		"settings":                map[string]any{},
	}
}

// DeletePlan removes a plan and all its associated state.
func (s *Service) DeletePlan(ctx context.Context, planID string) error {
	return s.instrument(ctx, "delete_plan", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeletePlan(planID)
		})
	})
}

// ListPlanIDs returns the ids of all stored plans.
func (s *Service) ListPlanIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.instrument(ctx, "list_plans", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			ids = v.ListPlanIDs()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AppendPatch records a forward/inverse patch pair against a plan and
// clears the redo stack. It returns the persisted entry with its assigned
// id.
func (s *Service) AppendPatch(ctx context.Context, planID string, draft PatchDraft) (PatchEntry, error) {
	var stored PatchEntry
	err := s.instrument(ctx, "append_patch", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.GetPlan(planID); !ok {
				return domain.ErrNotFound{Entity: "plan", ID: planID}
			}
			tx.ClearRedo(planID)
			entry := PatchEntry{
				Forward:     domain.ClonePatches(draft.Forward),
				Inverse:     domain.ClonePatches(draft.Inverse),
				Description: draft.Description,
				CreatedAt:   time.Now().UTC(),
			}
			id, err := tx.AppendPatch(planID, entry)
			if err != nil {
				return err
			}
			entry.ID = id
			stored = entry
			return nil
		})
	})
	if err != nil {
		return PatchEntry{}, err
	}
	return stored, nil
}

// UndoPatch removes the newest log entry and pushes it onto the redo
// stack. The second return is false when the log is empty.
func (s *Service) UndoPatch(ctx context.Context, planID string) (PatchEntry, bool, error) {
	var (
		undone PatchEntry
		ok     bool
	)
	err := s.instrument(ctx, "undo_patch", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, found := tx.GetPlan(planID); !found {
				return domain.ErrNotFound{Entity: "plan", ID: planID}
			}
			last, found := tx.LastPatch(planID)
			if !found {
				return nil
			}
			if err := tx.DeletePatch(planID, last.ID); err != nil {
				return err
			}
			tx.PushRedo(planID, last)
			undone = last
			ok = true
			return nil
		})
	})
	if err != nil {
		return PatchEntry{}, false, err
	}
	return undone, ok, nil
}

// RedoPatch pops the newest redo entry and re-appends it to the log under
// a fresh id. The second return is false when the redo stack is empty.
func (s *Service) RedoPatch(ctx context.Context, planID string) (PatchEntry, bool, error) {
	var (
		redone PatchEntry
		ok     bool
	)
	err := s.instrument(ctx, "redo_patch", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, found := tx.GetPlan(planID); !found {
				return domain.ErrNotFound{Entity: "plan", ID: planID}
			}
			entry, found := tx.PopRedo(planID)
			if !found {
				return nil
			}
			entry.ID = 0
			id, err := tx.AppendPatch(planID, entry)
			if err != nil {
				return err
			}
			entry.ID = id
			redone = entry
			ok = true
			return nil
		})
	})
	if err != nil {
		return PatchEntry{}, false, err
	}
	return redone, ok, nil
}

// RedoDepth reports the number of entries on the redo stack.
func (s *Service) RedoDepth(ctx context.Context, planID string) (int, error) {
	var depth int
	err := s.instrument(ctx, "redo_depth", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			depth = v.RedoDepth(planID)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return depth, nil
}

// Patches returns the full patch log, oldest first.
func (s *Service) Patches(ctx context.Context, planID string) ([]PatchEntry, error) {
	var entries []PatchEntry
	err := s.instrument(ctx, "list_patches", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			entries = v.Patches(planID)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PatchesAfter returns log entries with ids strictly greater than afterID,
// oldest first.
func (s *Service) PatchesAfter(ctx context.Context, planID string, afterID int64) ([]PatchEntry, error) {
	var entries []PatchEntry
	err := s.instrument(ctx, "list_patches_after", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			entries = v.PatchesAfter(planID, afterID)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LastPatch returns the newest log entry, if any.
func (s *Service) LastPatch(ctx context.Context, planID string) (PatchEntry, bool, error) {
	var (
		entry PatchEntry
		found bool
	)
	err := s.instrument(ctx, "last_patch", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			entry, found = v.LastPatch(planID)
			return nil
		})
	})
	if err != nil {
		return PatchEntry{}, false, err
	}
	return entry, found, nil
}

// DeletePatch removes a single log entry by id. Entries around it keep
// their ids; use with care since it rewrites history.
func (s *Service) DeletePatch(ctx context.Context, planID string, id int64) error {
	return s.instrument(ctx, "delete_patch", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeletePatch(planID, id)
		})
	})
}

// ClearPatches drops the whole patch log for a plan.
func (s *Service) ClearPatches(ctx context.Context, planID string) error {
	return s.instrument(ctx, "clear_patches", func(ctx context.Context) error {
		lock := s.planLock(planID)
		lock.Lock()
		defer lock.Unlock()
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.ClearPatches(planID)
			return nil
		})
	})
}
