package patchdiff

import (
	"plancore/pkg/domain"
	"reflect"
	"testing"
)

func base() domain.Document {
	return domain.Document{
		"id":            "plan-1",
		"schemaVersion": 1,
		"plantings": []any{
			map[string]any{"crop": "carrot", "bedFeet": 10.0},
			map[string]any{"crop": "beet", "bedFeet": 20.0},
		},
		"settings": map[string]any{"rowSpacing": 12.0},
	}
}

func assertRoundTrip(t *testing.T, before, after domain.Document) {
	t.Helper()
	forward, inverse, err := Diff(before, after)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	got := domain.ApplyPatches(before, forward)
	if !reflect.DeepEqual(map[string]any(got), map[string]any(after)) {
		t.Fatalf("forward patches do not reproduce target:\n got %v\nwant %v", got, after)
	}
	back := domain.ApplyPatches(got, inverse)
	if !reflect.DeepEqual(map[string]any(back), map[string]any(before)) {
		t.Fatalf("inverse patches do not restore source:\n got %v\nwant %v", back, before)
	}
}

func TestDiffEqualDocuments(t *testing.T) {
	forward, inverse, err := Diff(base(), base())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(forward) != 0 || len(inverse) != 0 {
		t.Fatalf("expected empty diff, got %v / %v", forward, inverse)
	}
}

func TestDiffScalarChange(t *testing.T) {
	after := base()
	after["settings"] = map[string]any{"rowSpacing": 18.0}
	assertRoundTrip(t, base(), after)
}

func TestDiffAddAndRemoveKeys(t *testing.T) {
	after := base()
	after["notes"] = "frost expected"
	delete(after, "settings")
	assertRoundTrip(t, base(), after)
}

func TestDiffArrayEdits(t *testing.T) {
	t.Run("append element", func(t *testing.T) {
		after := base()
		after["plantings"] = append(after["plantings"].([]any), map[string]any{"crop": "kale", "bedFeet": 5.0})
		assertRoundTrip(t, base(), after)
	})
	t.Run("remove element", func(t *testing.T) {
		after := base()
		after["plantings"] = after["plantings"].([]any)[:1]
		assertRoundTrip(t, base(), after)
	})
	t.Run("edit nested field", func(t *testing.T) {
		after := base()
		after["plantings"].([]any)[1].(map[string]any)["bedFeet"] = 25.0
		assertRoundTrip(t, base(), after)
	})
}

func TestDiffTypedPaths(t *testing.T) {
	after := base()
	after["plantings"].([]any)[0].(map[string]any)["bedFeet"] = 15.0
	forward, _, err := Diff(base(), after)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(forward) != 1 {
		t.Fatalf("expected single patch, got %v", forward)
	}
	path := forward[0].Path
	if len(path) != 3 || !path[1].IsIndex() || path[1].IndexValue() != 0 {
		t.Fatalf("array position must be an index segment: %v", path)
	}
	if path[0].IsIndex() || path[2].IsIndex() {
		t.Fatalf("map keys must stay key segments: %v", path)
	}
}

func TestDiffKeysWithSpecialCharacters(t *testing.T) {
	before := domain.Document{"id": "p", "crops": map[string]any{"a/b": 1.0, "c~d": 2.0}}
	after := domain.Document{"id": "p", "crops": map[string]any{"a/b": 3.0, "c~d": 2.0}}
	forward, _, err := Diff(before, after)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(forward) != 1 || forward[0].Path[1].KeyValue() != "a/b" {
		t.Fatalf("pointer unescaping failed: %v", forward)
	}
	assertRoundTrip(t, before, after)
}

func TestDraftEntry(t *testing.T) {
	after := base()
	after["settings"] = map[string]any{"rowSpacing": 18.0}
	draft, err := DraftEntry(base(), after, "widen rows")
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Description != "widen rows" {
		t.Fatalf("description lost: %q", draft.Description)
	}
	if len(draft.Forward) == 0 || len(draft.Inverse) == 0 {
		t.Fatalf("expected populated draft: %+v", draft)
	}
}
