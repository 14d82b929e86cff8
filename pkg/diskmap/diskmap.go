package diskmap

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/calvinalkan/diskmap/pkg/fs"
)

// LockFileName is the lock file [Open] holds inside the storage directory.
const LockFileName = ".diskmap.lock"

// Options configure [Open].
type Options struct {
	// Dir is the storage directory for slot files. Created if missing.
	Dir string

	// MemoryCapacity bounds the in-memory tier and every slot. Must be >= 1.
	MemoryCapacity int

	// SlotCount is the number of slot files. Must be >= 1. A power of two
	// lets the locator use a bitmask instead of a modulo.
	SlotCount int

	// Preserve keeps slot files left by a previous run instead of resetting
	// them to empty. The in-memory tier always starts empty.
	Preserve bool

	// FS is the filesystem used for slot and lock files. Default: [fs.NewReal].
	FS fs.FS

	// Logger receives debug and warn events. Default: discard.
	Logger *zerolog.Logger

	// Registerer, if set, receives the map's Prometheus collectors.
	// They are unregistered on Close.
	Registerer prometheus.Registerer
}

// Entry is one key/value pair returned by [Map.Dump].
type Entry struct {
	Key   string
	Value string
}

// Stats reports how many entries each tier holds.
type Stats struct {
	MemoryEntries int
	SlotEntries   []int // indexed by slot
	Capacity      int
}

// Map is a bounded string→string store with an in-memory tier and a fixed
// number of slot files for overflow.
//
// A key lives in exactly one place: the in-memory tier or one slot. Every
// method holds a single store-wide mutex for its whole duration, slot I/O
// included, so calls are fully serialized.
//
// A Map must be obtained via [Open]; the zero value is not usable.
type Map struct {
	_ [0]func() // prevent external construction

	mu sync.Mutex

	memory   *orderedmap.OrderedMap[string, string]
	slots    *SlotStore
	locator  Locator
	capacity int

	// slotLens caches the entry count of every slot. Only this Map writes
	// the slots while it holds the directory lock, so the cache is exact.
	slotLens []int

	lock     *fs.Lock
	log      zerolog.Logger
	metrics  *metrics
	registry prometheus.Registerer
	closed   bool
}

// Open validates opts, locks the storage directory and prepares every slot
// file. Without [Options.Preserve] all slots are reset to empty.
//
// Returns [ErrInvalidInput] for bad options, [ErrLocked] if another process
// holds the directory, and [ErrStorageInit] or [ErrCorruptSlot] if the slots
// cannot be prepared.
func Open(opts Options) (*Map, error) {
	if opts.MemoryCapacity < 1 {
		return nil, fmt.Errorf("memory capacity must be >= 1, got %d: %w", opts.MemoryCapacity, ErrInvalidInput)
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	slots, err := NewSlotStore(fsys, opts.Dir, opts.SlotCount)
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "diskmap").Str("dir", opts.Dir).Logger()
	}

	lockPath := filepath.Join(opts.Dir, LockFileName)

	lock, err := fs.NewLocker(fsys).TryLock(lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, opts.Dir)
		}

		return nil, fmt.Errorf("%w: locking %s: %w", ErrStorageInit, lockPath, err)
	}

	slotLens := make([]int, opts.SlotCount)

	if opts.Preserve {
		slotLens, err = slots.Recover()
	} else {
		err = slots.Initialize()
	}

	if err != nil {
		_ = lock.Close()

		return nil, err
	}

	mtr, err := newMetrics(opts.Registerer, slots)
	if err != nil {
		_ = lock.Close()

		return nil, err
	}

	m := &Map{
		memory:   orderedmap.New[string, string](opts.MemoryCapacity),
		slots:    slots,
		locator:  NewLocator(opts.SlotCount),
		capacity: opts.MemoryCapacity,
		slotLens: slotLens,
		lock:     lock,
		log:      log,
		metrics:  mtr,
		registry: opts.Registerer,
	}

	m.metrics.setEntries(0, sum(slotLens))

	log.Debug().
		Int("memory_capacity", opts.MemoryCapacity).
		Int("slot_count", opts.SlotCount).
		Bool("preserve", opts.Preserve).
		Int("slot_entries", sum(slotLens)).
		Msg("opened")

	return m, nil
}

// Capacity returns the maximum number of entries the map can hold:
// MemoryCapacity + SlotCount*MemoryCapacity.
func (m *Map) Capacity() int {
	return m.capacity * (1 + len(m.slotLens))
}

// Put stores value under key and returns the previous value, if any.
//
// Placement order:
//  1. key already in memory: overwrite there, no disk access
//  2. key already in a slot: overwrite in that slot (even if it is full)
//  3. memory has room: insert into memory
//  4. first slot in the key's probe sequence with room
//
// If nothing has room, Put returns a [*CapacityError] and changes nothing.
func (m *Map) Put(key, value string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", false, ErrClosed
	}

	prev, existed, err := m.put(key, value)
	m.metrics.observe(opPut, existed, err)
	m.refreshEntries()

	return prev, existed, err
}

func (m *Map) put(key, value string) (string, bool, error) {
	if prev, ok := m.memory.Get(key); ok {
		m.memory.Set(key, value)

		return prev, true, nil
	}

	prev, found, err := m.overwriteInSlots(key, value)
	if err != nil || found {
		return prev, found, err
	}

	if m.memory.Len() < m.capacity {
		m.memory.Set(key, value)

		return "", false, nil
	}

	placed, err := m.spill(key, value)
	if err != nil {
		return "", false, err
	}

	if !placed {
		m.log.Warn().Str("key", key).Msg("capacity exceeded")

		return "", false, &CapacityError{Key: key, Value: value}
	}

	return "", false, nil
}

// overwriteInSlots replaces key's value in whichever slot holds it.
func (m *Map) overwriteInSlots(key, value string) (string, bool, error) {
	var (
		prev  string
		found bool
	)

	for index := range m.locator.Probe(key) {
		if m.slotLens[index] == 0 {
			continue
		}

		err := m.slots.Transform(index, func(entries map[string]string) (bool, error) {
			prev, found = entries[key]
			if !found {
				return false, nil
			}

			entries[key] = value

			return true, nil
		})
		if err != nil {
			return "", false, m.storageFailed(opPut, index, err)
		}

		if found {
			m.log.Debug().Str("key", key).Int("slot", index).Msg("overwrote entry in slot")

			return prev, true, nil
		}
	}

	return "", false, nil
}

// spill writes a new key into the first slot of its probe sequence that has
// room. Reports false if every slot is full.
func (m *Map) spill(key, value string) (bool, error) {
	for index := range m.locator.Probe(key) {
		if m.slotLens[index] >= m.capacity {
			continue
		}

		newLen := 0

		err := m.slots.Transform(index, func(entries map[string]string) (bool, error) {
			if len(entries) >= m.capacity {
				newLen = len(entries)

				return false, nil
			}

			entries[key] = value
			newLen = len(entries)

			return true, nil
		})
		if err != nil {
			return false, m.storageFailed(opPut, index, err)
		}

		placed := newLen > m.slotLens[index]
		m.slotLens[index] = newLen

		if placed {
			m.log.Debug().Str("key", key).Int("slot", index).Msg("spilled entry to slot")

			return true, nil
		}
	}

	return false, nil
}

// Get returns the value stored under key. A missing key is not an error.
func (m *Map) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", false, ErrClosed
	}

	value, found, err := m.get(key)
	m.metrics.observe(opGet, found, err)

	return value, found, err
}

func (m *Map) get(key string) (string, bool, error) {
	if value, ok := m.memory.Get(key); ok {
		return value, true, nil
	}

	for index := range m.locator.Probe(key) {
		if m.slotLens[index] == 0 {
			continue
		}

		entries, err := m.slots.ReadSlot(index)
		if err != nil {
			return "", false, m.storageFailed(opGet, index, err)
		}

		if value, ok := entries[key]; ok {
			return value, true, nil
		}
	}

	return "", false, nil
}

// Remove deletes key and returns the value it held, if any.
func (m *Map) Remove(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", false, ErrClosed
	}

	prev, found, err := m.remove(key)
	m.metrics.observe(opRemove, found, err)
	m.refreshEntries()

	return prev, found, err
}

func (m *Map) remove(key string) (string, bool, error) {
	if prev, ok := m.memory.Delete(key); ok {
		return prev, true, nil
	}

	for index := range m.locator.Probe(key) {
		if m.slotLens[index] == 0 {
			continue
		}

		var (
			prev   string
			found  bool
			newLen int
		)

		err := m.slots.Transform(index, func(entries map[string]string) (bool, error) {
			prev, found = entries[key]
			if found {
				delete(entries, key)
			}

			newLen = len(entries)

			return found, nil
		})
		if err != nil {
			return "", false, m.storageFailed(opRemove, index, err)
		}

		if found {
			m.slotLens[index] = newLen
			m.log.Debug().Str("key", key).Int("slot", index).Msg("removed entry from slot")

			return prev, true, nil
		}
	}

	return "", false, nil
}

// Dump returns every entry: the in-memory tier in insertion order, then each
// slot in index order with keys sorted. It does not modify the map.
func (m *Map) Dump() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	entries, err := m.dump()
	m.metrics.observe(opDump, true, err)

	return entries, err
}

func (m *Map) dump() ([]Entry, error) {
	out := make([]Entry, 0, m.memory.Len()+sum(m.slotLens))

	for pair := m.memory.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{Key: pair.Key, Value: pair.Value})
	}

	for index := range m.slots.Count() {
		slot, err := m.slots.ReadSlot(index)
		if err != nil {
			return nil, m.storageFailed(opDump, index, err)
		}

		keys := make([]string, 0, len(slot))
		for key := range slot {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		for _, key := range keys {
			out = append(out, Entry{Key: key, Value: slot[key]})
		}
	}

	return out, nil
}

// Len returns the total number of entries across all tiers.
func (m *Map) Len() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	return m.memory.Len() + sum(m.slotLens), nil
}

// Stats returns per-tier entry counts.
func (m *Map) Stats() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Stats{}, ErrClosed
	}

	return Stats{
		MemoryEntries: m.memory.Len(),
		SlotEntries:   slices.Clone(m.slotLens),
		Capacity:      m.Capacity(),
	}, nil
}

// Close releases the storage directory lock and unregisters metrics.
// Slot files stay on disk. Further calls return [ErrClosed].
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.closed = true
	m.metrics.unregister(m.registry)

	err := m.lock.Close()
	if err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}

	m.log.Debug().Msg("closed")

	return nil
}

// storageFailed logs a slot failure and returns err unchanged.
func (m *Map) storageFailed(op string, index int, err error) error {
	m.log.Warn().Err(err).Str("op", op).Int("slot", index).Msg("slot access failed")

	return err
}

func (m *Map) refreshEntries() {
	m.metrics.setEntries(m.memory.Len(), sum(m.slotLens))
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}

	return total
}
