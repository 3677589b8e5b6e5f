package migrate

import (
	"plancore/pkg/domain"
	"testing"
)

func registryV3(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(3)
	if err := r.RegisterOps(1,
		mustOp(t)(RenamePath("plantings.*.beds", "plantings.*.bedCount")),
	); err != nil {
		t.Fatalf("register v1: %v", err)
	}
	if err := r.RegisterTransform(2, func(doc domain.Document) (domain.Document, error) {
		out := doc.Clone()
		if _, ok := out["varieties"]; !ok {
			out["varieties"] = map[string]any{}
		}
		return out, nil
	}); err != nil {
		t.Fatalf("register v2: %v", err)
	}
	return r
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry(3)
	if err := r.Validate(); !domain.IsMigrationConfig(err) {
		t.Fatalf("expected gap error, got %v", err)
	}
	full := registryV3(t)
	if err := full.Validate(); err != nil {
		t.Fatalf("gapless registry must validate: %v", err)
	}
}

func TestRegistryRejectsBadSteps(t *testing.T) {
	r := NewRegistry(3)
	if err := r.RegisterOps(0); !domain.IsMigrationConfig(err) {
		t.Fatalf("version 0 must be rejected, got %v", err)
	}
	if err := r.RegisterOps(3); !domain.IsMigrationConfig(err) {
		t.Fatalf("version == current must be rejected, got %v", err)
	}
	if err := r.RegisterOps(1); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterOps(1); !domain.IsMigrationConfig(err) {
		t.Fatalf("duplicate step must be rejected, got %v", err)
	}
	if err := r.RegisterTransform(2, nil); !domain.IsMigrationConfig(err) {
		t.Fatalf("nil transform must be rejected, got %v", err)
	}
}

func TestRegistryMigratePlanStepwise(t *testing.T) {
	r := registryV3(t)
	doc := domain.Document{
		"id": "plan-1", "schemaVersion": 1,
		"plantings": []any{map[string]any{"crop": "carrot", "beds": 2.0}},
	}
	got, err := r.MigratePlan(doc)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if got.SchemaVersion() != 3 {
		t.Fatalf("expected version 3, got %d", got.SchemaVersion())
	}
	if v, ok := domain.ValueAt(got, domain.Path{domain.Key("plantings"), domain.Index(0), domain.Key("bedCount")}); !ok || v != 2.0 {
		t.Fatalf("v1 step not applied: %v (ok=%v)", v, ok)
	}
	if _, ok := got["varieties"]; !ok {
		t.Fatalf("v2 transform step not applied")
	}
	if doc.SchemaVersion() != 1 {
		t.Fatalf("input document mutated")
	}
}

func TestRegistryMigratePlanAlreadyCurrent(t *testing.T) {
	r := registryV3(t)
	doc := domain.Document{"id": "p", "schemaVersion": 3}
	got, err := r.MigratePlan(doc)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if got.SchemaVersion() != 3 {
		t.Fatalf("current document must pass through, got %d", got.SchemaVersion())
	}
}

func TestRegistryMigratePlanFutureSchema(t *testing.T) {
	r := registryV3(t)
	doc := domain.Document{"id": "p", "schemaVersion": 4}
	_, err := r.MigratePlan(doc)
	if !domain.IsFutureSchema(err) {
		t.Fatalf("expected future schema error, got %v", err)
	}
}

func TestRegistryOpsBetween(t *testing.T) {
	r := registryV3(t)
	if got := r.OpsBetween(1, 3); len(got) != 1 {
		t.Fatalf("transform steps contribute no ops; expected 1, got %d", len(got))
	}
	if got := r.OpsBetween(2, 3); len(got) != 0 {
		t.Fatalf("expected no ops between 2 and 3, got %d", len(got))
	}
	if got := r.OpsBetween(3, 3); len(got) != 0 {
		t.Fatalf("empty range must yield no ops, got %d", len(got))
	}
}
