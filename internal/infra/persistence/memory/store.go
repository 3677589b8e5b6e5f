// Package memory provides the canonical in-memory implementation of the
// plan persistence store. Durable backends embed it and snapshot its state
// after every successful transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"plancore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PlanStore = (*Store)(nil)

type (
	// Document aliases domain.Document for in-memory persistence operations.
	Document = domain.Document
	// PatchEntry aliases domain.PatchEntry.
	PatchEntry = domain.PatchEntry
	// RedoEntry aliases domain.RedoEntry.
	RedoEntry = domain.RedoEntry
	// Checkpoint aliases domain.Checkpoint.
	Checkpoint = domain.Checkpoint
	// CheckpointMetadata aliases domain.CheckpointMetadata.
	CheckpointMetadata = domain.CheckpointMetadata
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
)

// DefaultMaxLogEntries caps the per-plan patch log. Entries past the cap
// are evicted oldest-first, but never past the latest checkpoint's
// LastPatchID: a patch not yet folded into any checkpoint is still needed
// to reach current state from the baseline, so the log may exceed the cap
// until a checkpoint subsumes the overflow.
const DefaultMaxLogEntries = 1000

type planState struct {
	doc         Document
	patches     []PatchEntry // ascending by ID
	redo        []RedoEntry  // LIFO, top at the end
	checkpoints []Checkpoint // creation order
	nextPatchID int64
}

func (ps *planState) clone() *planState {
	out := &planState{
		doc:         ps.doc.Clone(),
		patches:     make([]PatchEntry, len(ps.patches)),
		redo:        make([]RedoEntry, len(ps.redo)),
		checkpoints: make([]Checkpoint, len(ps.checkpoints)),
		nextPatchID: ps.nextPatchID,
	}
	for i, e := range ps.patches {
		out.patches[i] = e.Clone()
	}
	for i, e := range ps.redo {
		out.redo[i] = e.Clone()
	}
	for i, c := range ps.checkpoints {
		out.checkpoints[i] = c.Clone()
	}
	return out
}

// Option configures the store.
type Option func(*Store)

// WithMaxLogEntries overrides the patch log cap. Zero disables eviction.
func WithMaxLogEntries(n int) Option {
	return func(s *Store) { s.maxLog = n }
}

// Store keeps all plan state in process memory. Different plans are fully
// independent; the store-wide mutex only serializes transaction commit.
type Store struct {
	mu     sync.RWMutex
	plans  map[string]*planState
	maxLog int
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{plans: make(map[string]*planState), maxLog: DefaultMaxLogEntries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cloneStateMap(in map[string]*planState) map[string]*planState {
	out := make(map[string]*planState, len(in))
	for k, v := range in {
		out[k] = v.clone()
	}
	return out
}

// RunInTransaction applies fn to a staged copy of the state and swaps it in
// only when fn succeeds, so a failed transaction leaves the store
// untouched.
func (s *Store) RunInTransaction(_ context.Context, fn func(domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := cloneStateMap(s.plans)
	tx := &memTx{plans: staged, maxLog: s.maxLog}
	if err := fn(tx); err != nil {
		return err
	}
	s.plans = staged
	return nil
}

// View runs fn against a read-only snapshot of committed state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	staged := cloneStateMap(s.plans)
	s.mu.RUnlock()
	return fn(&memTx{plans: staged, maxLog: s.maxLog})
}

// GetPlan returns the stored baseline row for a plan.
func (s *Store) GetPlan(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.plans[id]
	if !ok || ps.doc == nil {
		return nil, false
	}
	return ps.doc.Clone(), true
}

// ListPlanIDs returns the ids of all stored plans, ascending.
func (s *Store) ListPlanIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.plans))
	for id, ps := range s.plans {
		if ps.doc != nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Patches returns all log entries for a plan, ascending by id.
func (s *Store) Patches(planID string) []PatchEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePatchSlice(s.patchesLocked(planID))
}

// PatchesAfter returns entries with id > afterID, ascending. This is the
// hydration hot path; the log is ordered so the cut point is found by
// binary search.
func (s *Store) PatchesAfter(planID string, afterID int64) []PatchEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePatchSlice(patchesAfter(s.patchesLocked(planID), afterID))
}

// Checkpoints returns checkpoint metadata, most recent first.
func (s *Store) Checkpoints(planID string) []CheckpointMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.plans[planID]
	if !ok {
		return nil
	}
	return checkpointMetadata(ps.checkpoints)
}

// LatestCheckpoint returns the most recently created checkpoint.
func (s *Store) LatestCheckpoint(planID string) (Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.plans[planID]
	if !ok || len(ps.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return ps.checkpoints[len(ps.checkpoints)-1].Clone(), true
}

func (s *Store) patchesLocked(planID string) []PatchEntry {
	ps, ok := s.plans[planID]
	if !ok {
		return nil
	}
	return ps.patches
}

func patchesAfter(entries []PatchEntry, afterID int64) []PatchEntry {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].ID > afterID })
	return entries[i:]
}

func clonePatchSlice(entries []PatchEntry) []PatchEntry {
	out := make([]PatchEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

func checkpointMetadata(cps []Checkpoint) []CheckpointMetadata {
	out := make([]CheckpointMetadata, 0, len(cps))
	for i := len(cps) - 1; i >= 0; i-- {
		out = append(out, cps[i].Metadata)
	}
	return out
}

// memTx implements domain.Transaction over a staged state map.
type memTx struct {
	plans  map[string]*planState
	maxLog int
}

var _ domain.Transaction = (*memTx)(nil)

func (t *memTx) state(planID string) (*planState, bool) {
	ps, ok := t.plans[planID]
	return ps, ok
}

func (t *memTx) ensure(planID string) *planState {
	if ps, ok := t.plans[planID]; ok {
		return ps
	}
	ps := &planState{}
	t.plans[planID] = ps
	return ps
}

func (t *memTx) GetPlan(id string) (Document, bool) {
	ps, ok := t.state(id)
	if !ok || ps.doc == nil {
		return nil, false
	}
	return ps.doc.Clone(), true
}

func (t *memTx) ListPlanIDs() []string {
	out := make([]string, 0, len(t.plans))
	for id, ps := range t.plans {
		if ps.doc != nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (t *memTx) PutPlan(doc Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("put plan: document has no id")
	}
	t.ensure(id).doc = doc.Clone()
	return nil
}

func (t *memTx) DeletePlan(id string) error {
	if _, ok := t.plans[id]; !ok {
		return domain.ErrNotFound{Entity: "plan", ID: id}
	}
	delete(t.plans, id)
	return nil
}

func (t *memTx) Patches(planID string) []PatchEntry {
	ps, ok := t.state(planID)
	if !ok {
		return nil
	}
	return clonePatchSlice(ps.patches)
}

func (t *memTx) PatchesAfter(planID string, afterID int64) []PatchEntry {
	ps, ok := t.state(planID)
	if !ok {
		return nil
	}
	return clonePatchSlice(patchesAfter(ps.patches, afterID))
}

func (t *memTx) LastPatch(planID string) (PatchEntry, bool) {
	ps, ok := t.state(planID)
	if !ok || len(ps.patches) == 0 {
		return PatchEntry{}, false
	}
	return ps.patches[len(ps.patches)-1].Clone(), true
}

func (t *memTx) AppendPatch(planID string, entry PatchEntry) (int64, error) {
	ps := t.ensure(planID)
	ps.nextPatchID++
	entry = entry.Clone()
	entry.ID = ps.nextPatchID
	ps.patches = append(ps.patches, entry)
	t.evict(ps)
	return entry.ID, nil
}

// evict trims the oldest log entries past the cap, stopping at the latest
// checkpoint boundary: entries not yet subsumed by a checkpoint are kept
// even when the log stays over the cap.
func (t *memTx) evict(ps *planState) {
	if t.maxLog <= 0 || len(ps.patches) <= t.maxLog {
		return
	}
	var boundary int64
	if n := len(ps.checkpoints); n > 0 {
		boundary = ps.checkpoints[n-1].Metadata.LastPatchID
	}
	excess := len(ps.patches) - t.maxLog
	cut := 0
	for cut < excess && ps.patches[cut].ID <= boundary {
		cut++
	}
	if cut > 0 {
		ps.patches = append([]PatchEntry(nil), ps.patches[cut:]...)
	}
}

func (t *memTx) DeletePatch(planID string, id int64) error {
	ps, ok := t.state(planID)
	if !ok {
		return domain.ErrNotFound{Entity: "plan", ID: planID}
	}
	for i, e := range ps.patches {
		if e.ID == id {
			ps.patches = append(ps.patches[:i], ps.patches[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("patch %d not in log for plan %s", id, planID)
}

func (t *memTx) ClearPatches(planID string) {
	if ps, ok := t.state(planID); ok {
		ps.patches = nil
	}
}

func (t *memTx) ReplacePatches(planID string, entries []PatchEntry) error {
	ps, ok := t.state(planID)
	if !ok {
		return domain.ErrNotFound{Entity: "plan", ID: planID}
	}
	replacement := clonePatchSlice(entries)
	for i := 1; i < len(replacement); i++ {
		if replacement[i].ID <= replacement[i-1].ID {
			return fmt.Errorf("replace patches: ids not strictly increasing at %d", replacement[i].ID)
		}
	}
	ps.patches = replacement
	return nil
}

func (t *memTx) RedoDepth(planID string) int {
	ps, ok := t.state(planID)
	if !ok {
		return 0
	}
	return len(ps.redo)
}

func (t *memTx) PushRedo(planID string, entry RedoEntry) {
	ps := t.ensure(planID)
	ps.redo = append(ps.redo, entry.Clone())
}

func (t *memTx) PopRedo(planID string) (RedoEntry, bool) {
	ps, ok := t.state(planID)
	if !ok || len(ps.redo) == 0 {
		return RedoEntry{}, false
	}
	top := ps.redo[len(ps.redo)-1]
	ps.redo = ps.redo[:len(ps.redo)-1]
	return top, true
}

func (t *memTx) ClearRedo(planID string) {
	if ps, ok := t.state(planID); ok {
		ps.redo = nil
	}
}

func (t *memTx) Checkpoints(planID string) []CheckpointMetadata {
	ps, ok := t.state(planID)
	if !ok {
		return nil
	}
	return checkpointMetadata(ps.checkpoints)
}

func (t *memTx) GetCheckpoint(planID, checkpointID string) (Checkpoint, bool) {
	ps, ok := t.state(planID)
	if !ok {
		return Checkpoint{}, false
	}
	for _, cp := range ps.checkpoints {
		if cp.Metadata.ID == checkpointID {
			return cp.Clone(), true
		}
	}
	return Checkpoint{}, false
}

func (t *memTx) LatestCheckpoint(planID string) (Checkpoint, bool) {
	ps, ok := t.state(planID)
	if !ok || len(ps.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return ps.checkpoints[len(ps.checkpoints)-1].Clone(), true
}

func (t *memTx) PutCheckpoint(planID string, cp Checkpoint) error {
	if cp.Metadata.ID == "" {
		return fmt.Errorf("put checkpoint: empty id")
	}
	ps := t.ensure(planID)
	for i, existing := range ps.checkpoints {
		if existing.Metadata.ID == cp.Metadata.ID {
			ps.checkpoints[i] = cp.Clone()
			return nil
		}
	}
	ps.checkpoints = append(ps.checkpoints, cp.Clone())
	return nil
}

func (t *memTx) DeleteCheckpoint(planID, checkpointID string) error {
	ps, ok := t.state(planID)
	if !ok {
		return domain.ErrNotFound{Entity: "plan", ID: planID}
	}
	for i, cp := range ps.checkpoints {
		if cp.Metadata.ID == checkpointID {
			ps.checkpoints = append(ps.checkpoints[:i], ps.checkpoints[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound{Entity: "checkpoint", ID: checkpointID}
}
