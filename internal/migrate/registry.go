package migrate

import (
	"fmt"

	"plancore/pkg/domain"
)

// Transform is a bespoke structural step for changes the rewrite DSL cannot
// express, e.g. introducing a new top-level collection with defaults. It
// must return a new document and be idempotent for its version step.
type Transform func(domain.Document) (domain.Document, error)

type step struct {
	ops       []Operation
	transform Transform
}

// Registry is the ordered table of schema-version steps, populated by the
// surrounding application as its schema evolves. Each step carries either a
// list of rewrite operations or a bespoke transform and migrates a document
// from version v to v+1. Schema versions start at 1.
type Registry struct {
	current int
	steps   map[int]step
}

// NewRegistry creates a registry targeting the given current engine
// version.
func NewRegistry(current int) *Registry {
	return &Registry{current: current, steps: make(map[int]step)}
}

// Current returns the engine's current schema version.
func (r *Registry) Current() int { return r.current }

// RegisterOps installs a rewrite-op step migrating fromVersion to
// fromVersion+1.
func (r *Registry) RegisterOps(fromVersion int, ops ...Operation) error {
	return r.register(fromVersion, step{ops: ops})
}

// RegisterTransform installs a bespoke step migrating fromVersion to
// fromVersion+1.
func (r *Registry) RegisterTransform(fromVersion int, fn Transform) error {
	if fn == nil {
		return domain.ErrMigrationConfig{Reason: fmt.Sprintf("version %d: nil transform", fromVersion)}
	}
	return r.register(fromVersion, step{transform: fn})
}

func (r *Registry) register(fromVersion int, s step) error {
	if fromVersion < 1 || fromVersion >= r.current {
		return domain.ErrMigrationConfig{Reason: fmt.Sprintf("step version %d outside [1,%d)", fromVersion, r.current)}
	}
	if _, dup := r.steps[fromVersion]; dup {
		return domain.ErrMigrationConfig{Reason: fmt.Sprintf("duplicate step for version %d", fromVersion)}
	}
	r.steps[fromVersion] = s
	return nil
}

// Validate checks the table is gapless: every intermediate version between
// 1 and the current version has a registered step. Fatal at startup, so
// replay never discovers a hole mid-migration.
func (r *Registry) Validate() error {
	for v := 1; v < r.current; v++ {
		if _, ok := r.steps[v]; !ok {
			return domain.ErrMigrationConfig{Reason: fmt.Sprintf("missing step for version %d (current %d)", v, r.current)}
		}
	}
	return nil
}

// OpsBetween concatenates the rewrite operations of every step in
// [from, to), in version order. Bespoke transforms contribute no patch
// rewrite rules; patches predating such a step keep their paths.
func (r *Registry) OpsBetween(from, to int) []Operation {
	var out []Operation
	for v := from; v < to; v++ {
		out = append(out, r.steps[v].ops...)
	}
	return out
}

// MigratePlan walks a document from its stored version up to the current
// version, one step at a time, stamping the new version after each step.
// A stored version greater than the current engine version is fatal and
// names both versions; the document comes from a newer build.
func (r *Registry) MigratePlan(doc domain.Document) (domain.Document, error) {
	v := doc.SchemaVersion()
	if v > r.current {
		return nil, domain.ErrFutureSchema{PlanID: doc.ID(), Stored: v, Current: r.current}
	}
	for ; v < r.current; v++ {
		st, ok := r.steps[v]
		if !ok {
			return nil, domain.ErrMigrationConfig{Reason: fmt.Sprintf("missing step for version %d", v)}
		}
		if st.transform != nil {
			next, err := st.transform(doc)
			if err != nil {
				return nil, fmt.Errorf("migrate version %d: %w", v, err)
			}
			doc = next
		} else {
			doc = ApplyAllToPlan(doc, st.ops)
		}
		doc = doc.WithSchemaVersion(v + 1)
	}
	return doc, nil
}
