package diskmap

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by diskmap operations.
//
// Callers should use [errors.Is] to check error kinds:
//
//	_, _, err := m.Put(key, value)
//	if errors.Is(err, diskmap.ErrCapacityExceeded) {
//	    // evict, resize or reject
//	}
var (
	// ErrCapacityExceeded indicates the in-memory tier and every slot in the
	// key's probe sequence are full.
	//
	// The store is unchanged. The concrete error is a [*CapacityError].
	//
	// Recovery: remove entries, or reopen with a larger configuration.
	ErrCapacityExceeded = errors.New("diskmap: capacity exceeded")

	// ErrStorageInit indicates a slot file could not be created during [Open].
	//
	// The store is not usable.
	ErrStorageInit = errors.New("diskmap: storage init failed")

	// ErrStorageRead indicates a slot file is missing or unreadable.
	//
	// Not retried automatically.
	ErrStorageRead = errors.New("diskmap: storage read failed")

	// ErrStorageWrite indicates a slot file could not be written.
	//
	// The slot keeps its previous contents. Not retried automatically.
	ErrStorageWrite = errors.New("diskmap: storage write failed")

	// ErrCorruptSlot indicates a slot file's bytes do not decode.
	//
	// No automatic repair is attempted.
	ErrCorruptSlot = errors.New("diskmap: corrupt slot")

	// ErrInvalidInput indicates invalid options or arguments.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("diskmap: invalid input")

	// ErrClosed indicates the [Map] has already been closed.
	ErrClosed = errors.New("diskmap: closed")

	// ErrLocked indicates another process holds the storage directory.
	ErrLocked = errors.New("diskmap: storage directory locked")
)

// CapacityError is returned by [Map.Put] when an entry cannot be stored.
//
// It matches [ErrCapacityExceeded] via [errors.Is].
type CapacityError struct {
	Key   string
	Value string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%v: cannot add %q = %q", ErrCapacityExceeded, e.Key, e.Value)
}

// Unwrap returns [ErrCapacityExceeded].
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}
