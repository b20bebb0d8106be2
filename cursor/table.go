/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package cursor

// Table maps each remote peer to the last event received from it.
//
// Table does no locking of its own. Its owner serializes every mutation and
// hands renderers copies from Snapshot.
type Table struct {
	entries map[PeerID]Event
}

func NewTable() *Table {
	return &Table{entries: make(map[PeerID]Event)}
}

// Upsert records e as the latest event for its peer.
func (t *Table) Upsert(e Event) {
	t.entries[e.Peer.ID] = e
}

// Remove deletes the entry for id and reports whether one existed.
func (t *Table) Remove(id PeerID) bool {
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)

	return true
}

func (t *Table) Get(id PeerID) (Event, bool) {
	e, ok := t.entries[id]
	return e, ok
}

func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) Clear() {
	clear(t.entries)
}

// Snapshot returns a copy of every entry.
func (t *Table) Snapshot() map[PeerID]Event {
	out := make(map[PeerID]Event, len(t.entries))
	for id, e := range t.entries {
		out[id] = e
	}

	return out
}
