package domain

import (
	"encoding/json"
	"testing"
)

func TestPathStringAndEqual(t *testing.T) {
	p := Path{Key("plantings"), Index(0), Key("bedFeet")}
	if got := p.String(); got != "plantings.0.bedFeet" {
		t.Fatalf("unexpected path string %q", got)
	}
	if !p.Equal(Path{Key("plantings"), Index(0), Key("bedFeet")}) {
		t.Fatalf("expected paths equal")
	}
	if p.Equal(Path{Key("plantings"), Key("0"), Key("bedFeet")}) {
		t.Fatalf("index and key segments must not compare equal")
	}
	if p.Equal(p[:2]) {
		t.Fatalf("length mismatch must not compare equal")
	}
}

func TestSegmentJSONRoundTrip(t *testing.T) {
	in := Path{Key("plantings"), Index(3), Key("7seeds"), Key("crop")}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["plantings",3,"7seeds","crop"]` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var out Path
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !in.Equal(out) {
		t.Fatalf("round trip mismatch: %v vs %v", in, out)
	}
	if !out[1].IsIndex() || out[1].IndexValue() != 3 {
		t.Fatalf("index segment lost its type: %+v", out[1])
	}
	if out[2].IsIndex() {
		t.Fatalf("string segment decoded as index")
	}
}

func TestSegmentUnmarshalRejectsNonIntegral(t *testing.T) {
	var s Segment
	if err := json.Unmarshal([]byte(`1.5`), &s); err == nil {
		t.Fatalf("expected error for fractional segment")
	}
	if err := json.Unmarshal([]byte(`true`), &s); err == nil {
		t.Fatalf("expected error for boolean segment")
	}
}

func TestPathCloneIndependence(t *testing.T) {
	p := Path{Key("a"), Index(1)}
	c := p.Clone()
	c[0] = Key("b")
	if p[0].KeyValue() != "a" {
		t.Fatalf("clone shares backing array")
	}
	if Path(nil).Clone() != nil {
		t.Fatalf("nil clone should stay nil")
	}
}
