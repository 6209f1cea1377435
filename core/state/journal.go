package state

import "cdpchain/core/types"

type journalEntry struct {
	undo func()
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every change recorded after the snapshot was taken,
// newest first. Unknown or stale identifiers are ignored.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		m.journal[i].undo()
	}
	m.journal = m.journal[:id]
}

// Journal registers an undo callback for an in-memory side effect (for example
// an index kept outside the KV store) so it is rolled back together with
// state.
func (m *Manager) Journal(undo func()) {
	if undo == nil {
		return
	}
	m.journal = append(m.journal, journalEntry{undo: undo})
}

// AppendEvent records an event. Events are journaled, so a reverted operation
// also drops the events it emitted.
func (m *Manager) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	m.events = append(m.events, *evt.Clone())
	size := len(m.events) - 1
	m.journal = append(m.journal, journalEntry{undo: func() {
		if size <= len(m.events) {
			m.events = m.events[:size]
		}
	}})
}

// Events returns a copy of the events emitted since the last drain.
func (m *Manager) Events() []types.Event {
	out := make([]types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// DrainEvents returns and clears the buffered events.
func (m *Manager) DrainEvents() []types.Event {
	out := m.events
	m.events = nil
	return out
}
