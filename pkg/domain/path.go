package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step in a patch path: either an object key or an array
// index. The two cases are kept distinct so that array indices survive
// serialization and pattern rewriting as integers rather than strings.
type Segment struct {
	key     string
	index   int
	isIndex bool
}

// Key returns a string-key segment.
func Key(k string) Segment { return Segment{key: k} }

// Index returns an array-index segment.
func Index(i int) Segment { return Segment{index: i, isIndex: true} }

// IsIndex reports whether the segment addresses an array position.
func (s Segment) IsIndex() bool { return s.isIndex }

// KeyValue returns the string key; empty for index segments.
func (s Segment) KeyValue() string { return s.key }

// IndexValue returns the array index; zero for key segments.
func (s Segment) IndexValue() int { return s.index }

// String renders the segment the way it appears in a dotted path.
func (s Segment) String() string {
	if s.isIndex {
		return strconv.Itoa(s.index)
	}
	return s.key
}

// Equal reports segment equality including the key/index distinction.
func (s Segment) Equal(o Segment) bool {
	if s.isIndex != o.isIndex {
		return false
	}
	if s.isIndex {
		return s.index == o.index
	}
	return s.key == o.key
}

// MarshalJSON encodes index segments as JSON numbers and key segments as
// JSON strings, so the distinction round-trips through storage.
func (s Segment) MarshalJSON() ([]byte, error) {
	if s.isIndex {
		return json.Marshal(s.index)
	}
	return json.Marshal(s.key)
}

// UnmarshalJSON decodes a JSON number into an index segment and a JSON
// string into a key segment.
func (s *Segment) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*s = Key(t)
		return nil
	case json.Number:
		i, err := strconv.Atoi(t.String())
		if err != nil {
			return fmt.Errorf("path segment %q is not an integer index", t.String())
		}
		*s = Index(i)
		return nil
	default:
		return fmt.Errorf("path segment must be a string or integer, got %T", v)
	}
}

// Path is an ordered sequence of segments addressing one node in a document
// tree.
type Path []Segment

// String renders the path in dotted form, e.g. "plantings.0.bedFeet".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Equal reports element-wise path equality.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !p[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}
