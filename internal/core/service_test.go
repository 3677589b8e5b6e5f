package core

import (
	"context"
	"plancore/internal/infra/persistence/memory"
	"plancore/internal/migrate"
	"plancore/pkg/domain"
	"testing"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(memory.NewStore(), migrate.NewRegistry(1), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// setBedFeet builds a draft that sets plantings[i].bedFeet, with an inverse
// restoring the previous value.
func setBedFeet(i int, next, prev any) PatchDraft {
	path := domain.Path{domain.Key("plantings"), domain.Index(i), domain.Key("bedFeet")}
	return PatchDraft{
		Forward:     []Patch{{Op: domain.OpReplace, Path: path, Value: next}},
		Inverse:     []Patch{{Op: domain.OpReplace, Path: path.Clone(), Value: prev}},
		Description: "set bed feet",
	}
}

// addPlanting builds a draft appending a planting at index i.
func addPlanting(i int, crop string) PatchDraft {
	path := domain.Path{domain.Key("plantings"), domain.Index(i)}
	return PatchDraft{
		Forward:     []Patch{{Op: domain.OpAdd, Path: path, Value: map[string]any{"crop": crop, "bedFeet": 10.0}}},
		Inverse:     []Patch{{Op: domain.OpRemove, Path: path.Clone()}},
		Description: "add " + crop,
	}
}

func TestCreatePlanSeedsDocument(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	doc, err := svc.CreatePlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID() != "plan-1" || doc.SchemaVersion() != 1 {
		t.Fatalf("unexpected seed: id=%q version=%d", doc.ID(), doc.SchemaVersion())
	}
	for _, field := range []string{"plantings", "crops", "varieties", "settings"} {
		if _, ok := doc[field]; !ok {
			t.Fatalf("seed missing %q", field)
		}
	}
	if _, err := svc.CreatePlan(ctx, "plan-1"); err == nil {
		t.Fatalf("duplicate create must fail")
	}
	ids, err := svc.ListPlanIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "plan-1" {
		t.Fatalf("list: %v %v", ids, err)
	}
}

func TestAppendPatchAssignsIDsAndClearsRedo(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreatePlan(ctx, "plan-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.AppendPatch(ctx, "plan-1", addPlanting(0, "carrot"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := svc.AppendPatch(ctx, "plan-1", setBedFeet(0, 20.0, 10.0))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("ids not increasing: %d then %d", first.ID, second.ID)
	}

	if _, ok, err := svc.UndoPatch(ctx, "plan-1"); err != nil || !ok {
		t.Fatalf("undo: ok=%v err=%v", ok, err)
	}
	depth, err := svc.RedoDepth(ctx, "plan-1")
	if err != nil || depth != 1 {
		t.Fatalf("redo depth: %d err=%v", depth, err)
	}

	// A fresh edit invalidates the redo history.
	if _, err := svc.AppendPatch(ctx, "plan-1", setBedFeet(0, 30.0, 10.0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	depth, err = svc.RedoDepth(ctx, "plan-1")
	if err != nil || depth != 0 {
		t.Fatalf("append must clear redo, depth=%d err=%v", depth, err)
	}
	if _, ok, err := svc.RedoPatch(ctx, "plan-1"); err != nil || ok {
		t.Fatalf("redo after invalidation must be empty, ok=%v err=%v", ok, err)
	}
}

func TestAppendPatchMissingPlan(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AppendPatch(context.Background(), "nope", addPlanting(0, "carrot"))
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreatePlan(ctx, "plan-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	const edits = 100
	const undos = 50
	if _, err := svc.AppendPatch(ctx, "plan-1", addPlanting(0, "carrot")); err != nil {
		t.Fatalf("append: %v", err)
	}
	for i := 1; i < edits; i++ {
		if _, err := svc.AppendPatch(ctx, "plan-1", setBedFeet(0, float64(10+i), float64(10+i-1))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	before, err := svc.HydratePlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	for i := 0; i < undos; i++ {
		if _, ok, err := svc.UndoPatch(ctx, "plan-1"); err != nil || !ok {
			t.Fatalf("undo %d: ok=%v err=%v", i, ok, err)
		}
	}
	mid, err := svc.HydratePlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("hydrate mid: %v", err)
	}
	if v, _ := domain.ValueAt(mid, domain.Path{domain.Key("plantings"), domain.Index(0), domain.Key("bedFeet")}); v != float64(10+edits-undos-1) {
		t.Fatalf("mid state wrong: %v", v)
	}

	for i := 0; i < undos; i++ {
		if _, ok, err := svc.RedoPatch(ctx, "plan-1"); err != nil || !ok {
			t.Fatalf("redo %d: ok=%v err=%v", i, ok, err)
		}
	}
	after, err := svc.HydratePlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("hydrate after: %v", err)
	}
	bv, _ := domain.ValueAt(before, domain.Path{domain.Key("plantings"), domain.Index(0), domain.Key("bedFeet")})
	av, _ := domain.ValueAt(after, domain.Path{domain.Key("plantings"), domain.Index(0), domain.Key("bedFeet")})
	if bv != av {
		t.Fatalf("redo did not restore state: %v vs %v", bv, av)
	}

	entries, err := svc.Patches(ctx, "plan-1")
	if err != nil {
		t.Fatalf("patches: %v", err)
	}
	if len(entries) != edits {
		t.Fatalf("expected %d entries after round trip, got %d", edits, len(entries))
	}
	// Redone entries get fresh ids past the originals.
	if entries[len(entries)-1].ID <= int64(edits) {
		t.Fatalf("expected fresh ids for redone entries, tail id %d", entries[len(entries)-1].ID)
	}
}

func TestUndoOnEmptyLog(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreatePlan(ctx, "plan-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, err := svc.UndoPatch(ctx, "plan-1"); err != nil || ok {
		t.Fatalf("undo on empty log: ok=%v err=%v", ok, err)
	}
	if _, ok, err := svc.RedoPatch(ctx, "plan-1"); err != nil || ok {
		t.Fatalf("redo on empty stack: ok=%v err=%v", ok, err)
	}
}

func TestPatchMaintenance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreatePlan(ctx, "plan-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	var ids []int64
	for i := 0; i < 5; i++ {
		entry, err := svc.AppendPatch(ctx, "plan-1", setBedFeet(0, float64(i), float64(i-1)))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, entry.ID)
	}

	entries, err := svc.PatchesAfter(ctx, "plan-1", ids[2])
	if err != nil || len(entries) != 2 {
		t.Fatalf("patches after: %d err=%v", len(entries), err)
	}
	last, ok, err := svc.LastPatch(ctx, "plan-1")
	if err != nil || !ok || last.ID != ids[4] {
		t.Fatalf("last patch: %+v ok=%v err=%v", last, ok, err)
	}

	if err := svc.DeletePatch(ctx, "plan-1", ids[1]); err != nil {
		t.Fatalf("delete patch: %v", err)
	}
	entries, err = svc.Patches(ctx, "plan-1")
	if err != nil || len(entries) != 4 {
		t.Fatalf("after delete: %d err=%v", len(entries), err)
	}

	if err := svc.ClearPatches(ctx, "plan-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err = svc.Patches(ctx, "plan-1")
	if err != nil || len(entries) != 0 {
		t.Fatalf("after clear: %d err=%v", len(entries), err)
	}
}

func TestDeletePlan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreatePlan(ctx, "plan-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeletePlan(ctx, "plan-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.HydratePlan(ctx, "plan-1"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestNewServiceValidatesRegistry(t *testing.T) {
	if _, err := NewService(memory.NewStore(), migrate.NewRegistry(2)); !domain.IsMigrationConfig(err) {
		t.Fatalf("expected registry validation error, got %v", err)
	}
}
