package diskmap

import "iter"

// FNV-1a 64-bit hash constants.
const (
	fnv1aOffsetBasis = 14695981039346656037
	fnv1aPrime       = 1099511628211
)

// fnv1a64 computes the FNV-1a 64-bit hash of key.
func fnv1a64(key string) uint64 {
	hash := uint64(fnv1aOffsetBasis)
	for i := range len(key) {
		hash ^= uint64(key[i])
		hash *= fnv1aPrime
	}

	return hash
}

// Locator maps keys to slot indexes. It holds no store state, so every
// caller computes the same probe sequence for the same key.
type Locator struct {
	count uint64
	mask  uint64 // count-1 when count is a power of two, else 0
}

// NewLocator returns a Locator over count slots. Panics if count <= 0.
func NewLocator(count int) Locator {
	if count <= 0 {
		panic("diskmap: locator slot count must be positive")
	}

	loc := Locator{count: uint64(count)}
	if count&(count-1) == 0 {
		loc.mask = loc.count - 1
	}

	return loc
}

// Count returns the number of slots the locator covers.
func (l Locator) Count() int {
	return int(l.count)
}

// Start returns the first slot probed for key: hash(key) mod count.
func (l Locator) Start(key string) int {
	hash := fnv1a64(key)
	if l.mask != 0 {
		return int(hash & l.mask)
	}

	return int(hash % l.count)
}

// Probe yields Start(key), Start(key)+1, … wrapping modulo Count, visiting
// every slot exactly once.
func (l Locator) Probe(key string) iter.Seq[int] {
	start := uint64(l.Start(key))

	return func(yield func(int) bool) {
		for probeCount := range l.count {
			if !yield(int((start + probeCount) % l.count)) {
				return
			}
		}
	}
}
