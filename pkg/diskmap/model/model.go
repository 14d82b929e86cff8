// Package model provides a deliberately simple, in-memory state model of
// diskmap's publicly observable behavior.
//
// The model is intentionally easy to audit: slots are plain maps and every
// lookup scans all of them. It shares only the [diskmap.Locator] with the
// real implementation, since placement is defined by the probe sequence.
package model

import (
	"slices"

	"github.com/calvinalkan/diskmap/pkg/diskmap"
)

// Entry mirrors [diskmap.Entry].
type Entry = diskmap.Entry

// Map models a [diskmap.Map].
type Map struct {
	Capacity int
	Locator  diskmap.Locator

	// Memory holds in-memory entries in insertion order.
	Memory []Entry
	Slots  []map[string]string
}

// New returns an empty model. Panics on non-positive sizes.
func New(memoryCapacity, slotCount int) *Map {
	if memoryCapacity < 1 {
		panic("model: memory capacity must be >= 1")
	}

	slots := make([]map[string]string, slotCount)
	for i := range slots {
		slots[i] = map[string]string{}
	}

	return &Map{
		Capacity: memoryCapacity,
		Locator:  diskmap.NewLocator(slotCount),
		Slots:    slots,
	}
}

// Put applies the placement policy documented on [diskmap.Map.Put].
func (m *Map) Put(key, value string) (string, bool, error) {
	if i := m.memoryIndex(key); i >= 0 {
		prev := m.Memory[i].Value
		m.Memory[i].Value = value

		return prev, true, nil
	}

	if slot := m.slotOf(key); slot >= 0 {
		prev := m.Slots[slot][key]
		m.Slots[slot][key] = value

		return prev, true, nil
	}

	if len(m.Memory) < m.Capacity {
		m.Memory = append(m.Memory, Entry{Key: key, Value: value})

		return "", false, nil
	}

	for index := range m.Locator.Probe(key) {
		if len(m.Slots[index]) < m.Capacity {
			m.Slots[index][key] = value

			return "", false, nil
		}
	}

	return "", false, &diskmap.CapacityError{Key: key, Value: value}
}

// Get returns the value under key.
func (m *Map) Get(key string) (string, bool) {
	if i := m.memoryIndex(key); i >= 0 {
		return m.Memory[i].Value, true
	}

	if slot := m.slotOf(key); slot >= 0 {
		return m.Slots[slot][key], true
	}

	return "", false
}

// Remove deletes key.
func (m *Map) Remove(key string) (string, bool) {
	if i := m.memoryIndex(key); i >= 0 {
		prev := m.Memory[i].Value
		m.Memory = slices.Delete(m.Memory, i, i+1)

		return prev, true
	}

	if slot := m.slotOf(key); slot >= 0 {
		prev := m.Slots[slot][key]
		delete(m.Slots[slot], key)

		return prev, true
	}

	return "", false
}

// Dump returns memory entries in insertion order, then slots in index order
// with keys sorted.
func (m *Map) Dump() []Entry {
	out := slices.Clone(m.Memory)

	for _, slot := range m.Slots {
		keys := make([]string, 0, len(slot))
		for key := range slot {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		for _, key := range keys {
			out = append(out, Entry{Key: key, Value: slot[key]})
		}
	}

	return out
}

// SlotLens returns the entry count of every slot.
func (m *Map) SlotLens() []int {
	lens := make([]int, len(m.Slots))
	for i, slot := range m.Slots {
		lens[i] = len(slot)
	}

	return lens
}

// SlotOf returns the slot holding key, or -1.
func (m *Map) SlotOf(key string) int {
	return m.slotOf(key)
}

func (m *Map) memoryIndex(key string) int {
	return slices.IndexFunc(m.Memory, func(e Entry) bool { return e.Key == key })
}

// slotOf scans every slot. Uniqueness means at most one can match.
func (m *Map) slotOf(key string) int {
	for i, slot := range m.Slots {
		if _, ok := slot[key]; ok {
			return i
		}
	}

	return -1
}
