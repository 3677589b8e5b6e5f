package domain

import (
	"encoding/json"
	"testing"
)

func TestDocumentSchemaVersionEncodings(t *testing.T) {
	cases := []struct {
		name string
		v    any
		want int
	}{
		{"int", 3, 3},
		{"int64", int64(4), 4},
		{"float64", 5.0, 5},
		{"json number", json.Number("6"), 6},
		{"missing", nil, 0},
		{"string", "7", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := Document{"id": "p"}
			if tc.v != nil {
				doc[FieldSchemaVersion] = tc.v
			}
			if got := doc.SchemaVersion(); got != tc.want {
				t.Fatalf("schema version %v: got %d want %d", tc.v, got, tc.want)
			}
		})
	}
}

func TestDocumentCloneIsDeep(t *testing.T) {
	doc := Document{
		"id":        "p",
		"plantings": []any{map[string]any{"crop": "carrot"}},
	}
	cp := doc.Clone()
	cp["plantings"].([]any)[0].(map[string]any)["crop"] = "beet"
	if doc["plantings"].([]any)[0].(map[string]any)["crop"] != "carrot" {
		t.Fatalf("clone shares nested containers")
	}
}

func TestWithSchemaVersionLeavesReceiver(t *testing.T) {
	doc := Document{"id": "p", FieldSchemaVersion: 1}
	next := doc.WithSchemaVersion(2)
	if next.SchemaVersion() != 2 || doc.SchemaVersion() != 1 {
		t.Fatalf("got %d/%d, want 2/1", next.SchemaVersion(), doc.SchemaVersion())
	}
}

func TestValueAt(t *testing.T) {
	doc := Document{
		"plantings": []any{map[string]any{"crop": "carrot"}},
	}
	if v, ok := ValueAt(doc, Path{Key("plantings"), Index(0), Key("crop")}); !ok || v != "carrot" {
		t.Fatalf("expected carrot, got %v (ok=%v)", v, ok)
	}
	if _, ok := ValueAt(doc, Path{Key("plantings"), Index(1)}); ok {
		t.Fatalf("out of range index should not resolve")
	}
	if _, ok := ValueAt(doc, Path{Key("plantings"), Key("crop")}); ok {
		t.Fatalf("key segment against array should not resolve")
	}
	if v, ok := ValueAt(doc, nil); !ok || v == nil {
		t.Fatalf("empty path should resolve to the root")
	}
}
