// Package diskmap provides a bounded string→string store that keeps a small
// working set in memory and spills overflow into a fixed number of slot files.
//
// Capacity is planned up front: a map opened with MemoryCapacity c and
// SlotCount n holds at most c + n*c entries. Slots never grow, split or
// rebalance.
//
// # Basic Usage
//
//	m, err := diskmap.Open(diskmap.Options{
//	    Dir:            "/var/lib/myapp/overflow",
//	    MemoryCapacity: 10,
//	    SlotCount:      8,
//	})
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	_, _, err = m.Put("k", "v")
//	if errors.Is(err, diskmap.ErrCapacityExceeded) {
//	    // evict or reject
//	}
//
//	v, found, err := m.Get("k")
//
// # Placement
//
// Keys go to memory until it is full. After that each new key is placed in
// the first slot of its probe sequence with room. The probe sequence starts
// at FNV-1a(key) mod SlotCount and wraps around, visiting every slot once.
// A key that already exists is always updated where it lives, so a key is
// never held by two tiers at once.
//
// # Persistence
//
// Each slot is a single file rewritten in full on every change, via temp
// file and rename. The in-memory tier is not persisted. Open resets all slots
// unless [Options.Preserve] is set.
//
// # Concurrency
//
// All methods are safe for concurrent use; they are serialized by one
// store-wide mutex held across slot I/O. Open takes an exclusive flock on the
// storage directory, so a second process fails with [ErrLocked].
package diskmap
