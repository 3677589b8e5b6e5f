package memory

// Snapshot captures a point-in-time clone of the full store state. Durable
// backends marshal it to JSON after each successful transaction and feed it
// back through ImportState on startup.
type Snapshot struct {
	Plans       map[string]Document     `json:"plans"`
	Patches     map[string][]PatchEntry `json:"patches"`
	Redo        map[string][]RedoEntry  `json:"redo"`
	Checkpoints map[string][]Checkpoint `json:"checkpoints"`
	Sequences   map[string]int64        `json:"sequences"`
}

// ExportState returns a deep copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Plans:       make(map[string]Document, len(s.plans)),
		Patches:     make(map[string][]PatchEntry, len(s.plans)),
		Redo:        make(map[string][]RedoEntry, len(s.plans)),
		Checkpoints: make(map[string][]Checkpoint, len(s.plans)),
		Sequences:   make(map[string]int64, len(s.plans)),
	}
	for id, ps := range s.plans {
		if ps.doc != nil {
			snap.Plans[id] = ps.doc.Clone()
		}
		if len(ps.patches) > 0 {
			snap.Patches[id] = clonePatchSlice(ps.patches)
		}
		if len(ps.redo) > 0 {
			snap.Redo[id] = clonePatchSlice(ps.redo)
		}
		if len(ps.checkpoints) > 0 {
			cps := make([]Checkpoint, len(ps.checkpoints))
			for i, cp := range ps.checkpoints {
				cps[i] = cp.Clone()
			}
			snap.Checkpoints[id] = cps
		}
		snap.Sequences[id] = ps.nextPatchID
	}
	return snap
}

// ImportState replaces the store's state with the snapshot contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plans := make(map[string]*planState)
	ensure := func(id string) *planState {
		if ps, ok := plans[id]; ok {
			return ps
		}
		ps := &planState{}
		plans[id] = ps
		return ps
	}
	for id, doc := range snap.Plans {
		ensure(id).doc = doc.Clone()
	}
	for id, entries := range snap.Patches {
		ensure(id).patches = clonePatchSlice(entries)
	}
	for id, entries := range snap.Redo {
		ensure(id).redo = clonePatchSlice(entries)
	}
	for id, cps := range snap.Checkpoints {
		ps := ensure(id)
		ps.checkpoints = make([]Checkpoint, len(cps))
		for i, cp := range cps {
			ps.checkpoints[i] = cp.Clone()
		}
	}
	for id, seq := range snap.Sequences {
		ps := ensure(id)
		ps.nextPatchID = seq
		// Guard against a snapshot whose sequence lags its log tail; ids
		// must never be reused.
		if n := len(ps.patches); n > 0 && ps.patches[n-1].ID > ps.nextPatchID {
			ps.nextPatchID = ps.patches[n-1].ID
		}
	}
	s.plans = plans
}
