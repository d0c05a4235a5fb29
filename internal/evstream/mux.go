package evstream

import "echse/internal/instant"

// Mux merges several child streams into one ascending-ordered stream.
// Events sharing an equal (from, task) key across children deduplicate:
// Pop advances every child currently parked on that key, so only one copy
// of the occurrence is ever observed through the mux.
type Mux struct {
	children []Stream
	valid    instant.Range
}

// NewMux returns a Mux over children. Each child must itself yield events
// in ascending (From, Task) order.
func NewMux(children ...Stream) *Mux {
	return &Mux{children: children, valid: instant.Max}
}

func (m *Mux) Next() Event {
	best := Null
	for _, c := range m.children {
		e := c.Next()
		if e.IsNull() {
			continue
		}
		if best.IsNull() || Before(e, best) {
			best = e
		}
	}
	return best
}

func (m *Mux) Pop() {
	best := m.Next()
	if best.IsNull() {
		return
	}
	for _, c := range m.children {
		if e := c.Next(); !e.IsNull() && Equal(e, best) {
			c.Pop()
		}
	}
}

func (m *Mux) Clone() Stream {
	children := make([]Stream, len(m.children))
	for i, c := range m.children {
		children[i] = c.Clone()
	}
	return &Mux{children: children, valid: m.valid}
}

// SetValid propagates the validity window to every child, so each child's
// own Next filtering stays consistent with the mux's.
func (m *Mux) SetValid(r instant.Range) {
	m.valid = r
	for _, c := range m.children {
		c.SetValid(r)
	}
}

func (m *Mux) Valid() instant.Range { return m.valid }

// Serialize merges every child's terms into one Fields, in child order.
func (m *Mux) Serialize() Fields {
	var out Fields
	for _, c := range m.children {
		out = merge(out, c.Serialize())
	}
	return out
}
