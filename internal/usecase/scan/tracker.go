package scan

import "github.com/kailas-cloud/toxfilter/internal/dom"

// Tracker is the explicit processed-unit marker set. Loop-owned.
type Tracker struct {
	marked map[dom.UnitID]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{marked: make(map[dom.UnitID]struct{})}
}

// Mark records a unit as processed. Returns false if it already was.
func (t *Tracker) Mark(id dom.UnitID) bool {
	if _, ok := t.marked[id]; ok {
		return false
	}
	t.marked[id] = struct{}{}
	return true
}

// IsMarked reports whether a unit was processed.
func (t *Tracker) IsMarked(id dom.UnitID) bool {
	_, ok := t.marked[id]
	return ok
}

// Forget drops units that left the document.
func (t *Tracker) Forget(ids ...dom.UnitID) {
	for _, id := range ids {
		delete(t.marked, id)
	}
}

// Len returns the number of marked units.
func (t *Tracker) Len() int { return len(t.marked) }
