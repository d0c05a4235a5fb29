// Package daemon implements the scheduler process: a task hash table, a
// per-task timer driven by each task's event stream, checkpointing of the
// per-user queue files, and the connection protocol (§4.4).
package daemon

import (
	"echse/internal/intern"
	"echse/internal/task"
)

// Table is an open-addressed hash table keyed on task oid, quadratic-probe
// growth: doubling when a first probe run of length 16 finds neither the
// sought key nor an empty slot (§3, §4.4).
type Table struct {
	slots []tableSlot
	count int
}

type slotState uint8

const (
	slotEmpty slotState = iota // never occupied; ends a probe chain
	slotUsed
	slotTomb // previously occupied, now deleted; probe chains continue through it
)

type tableSlot struct {
	state slotState
	oid   intern.Handle
	task  *task.Task
}

const initialTableSize = 64
const probeRunLimit = 16

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{slots: make([]tableSlot, initialTableSize)}
}

// lookup finds the slot currently holding oid, if any. Tombstones are
// skipped rather than treated as chain-enders, so a delete can never hide
// a later entry that probed past it.
func (t *Table) lookup(oid intern.Handle, slots []tableSlot) (int, bool) {
	mask := len(slots) - 1
	h := int(oid) & mask
	for i := 0; i < probeRunLimit; i++ {
		idx := (h + i*i) & mask
		switch slots[idx].state {
		case slotEmpty:
			return 0, false
		case slotUsed:
			if slots[idx].oid == oid {
				return idx, true
			}
		}
	}
	return 0, false
}

// insertSlot finds where oid belongs: its existing live slot if already
// present, otherwise the first tombstone or empty slot seen while probing
// past any entries for other keys. ok is false once the probe run is
// exhausted without finding anywhere to place it, signaling the caller to
// grow.
func (t *Table) insertSlot(oid intern.Handle, slots []tableSlot) (int, bool) {
	mask := len(slots) - 1
	h := int(oid) & mask
	firstFree := -1
	for i := 0; i < probeRunLimit; i++ {
		idx := (h + i*i) & mask
		switch slots[idx].state {
		case slotEmpty:
			if firstFree < 0 {
				firstFree = idx
			}
			return firstFree, true
		case slotTomb:
			if firstFree < 0 {
				firstFree = idx
			}
		case slotUsed:
			if slots[idx].oid == oid {
				return idx, true
			}
		}
	}
	if firstFree >= 0 {
		return firstFree, true
	}
	return 0, false
}

func (t *Table) grow() {
	newSlots := make([]tableSlot, len(t.slots)*2)
	for {
		ok := true
		for _, s := range t.slots {
			if s.state != slotUsed {
				continue
			}
			idx, found := t.insertSlot(s.oid, newSlots)
			if !found {
				ok = false
				break
			}
			newSlots[idx] = s
		}
		if ok {
			break
		}
		newSlots = make([]tableSlot, len(newSlots)*2)
	}
	t.slots = newSlots
}

// Put inserts or replaces the task stored under oid.
func (t *Table) Put(oid intern.Handle, tk *task.Task) {
	for {
		idx, ok := t.insertSlot(oid, t.slots)
		if ok {
			if t.slots[idx].state != slotUsed {
				t.count++
			}
			t.slots[idx] = tableSlot{state: slotUsed, oid: oid, task: tk}
			return
		}
		t.grow()
	}
}

// Get returns the task stored under oid, if any.
func (t *Table) Get(oid intern.Handle) (*task.Task, bool) {
	idx, ok := t.lookup(oid, t.slots)
	if !ok {
		return nil, false
	}
	return t.slots[idx].task, true
}

// Delete removes the task stored under oid, if any, leaving a tombstone
// behind so later entries' probe chains stay intact.
func (t *Table) Delete(oid intern.Handle) {
	idx, ok := t.lookup(oid, t.slots)
	if !ok {
		return
	}
	t.slots[idx] = tableSlot{state: slotTomb}
	t.count--
}

// Len returns the number of stored tasks.
func (t *Table) Len() int { return t.count }

// Each calls f for every stored task, in unspecified but stable-within-run
// slot order (§5 ordering guarantees).
func (t *Table) Each(f func(oid intern.Handle, tk *task.Task)) {
	for _, s := range t.slots {
		if s.state == slotUsed {
			f(s.oid, s.task)
		}
	}
}
