package diskmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/calvinalkan/diskmap/pkg/fs"
)

const (
	slotFilePrefix = "diskedMap_"
	slotFileExt    = ".slot"
	slotFilePerm   = 0o644
	storageDirPerm = 0o755
)

// SlotPath returns the location of slot index inside dir.
func SlotPath(dir string, index int) string {
	return filepath.Join(dir, slotFilePrefix+strconv.Itoa(index)+slotFileExt)
}

// SlotStore owns a fixed list of slot files and provides whole-slot reads
// and writes. Every mutation replaces the full slot file.
//
// SlotStore does no locking of its own; [Map] serializes access.
type SlotStore struct {
	fs    fs.FS
	dir   string
	paths []string

	reads  atomic.Int64
	writes atomic.Int64
}

// NewSlotStore returns a store over count slots in dir. It does not touch
// the filesystem; call [SlotStore.Initialize] or [SlotStore.Recover].
func NewSlotStore(fsys fs.FS, dir string, count int) (*SlotStore, error) {
	if fsys == nil {
		return nil, fmt.Errorf("fs is required: %w", ErrInvalidInput)
	}

	if dir == "" {
		return nil, fmt.Errorf("dir is required: %w", ErrInvalidInput)
	}

	if count < 1 {
		return nil, fmt.Errorf("slot count must be >= 1, got %d: %w", count, ErrInvalidInput)
	}

	paths := make([]string, count)
	for i := range paths {
		paths[i] = SlotPath(dir, i)
	}

	return &SlotStore{fs: fsys, dir: dir, paths: paths}, nil
}

// Count returns the number of slots.
func (s *SlotStore) Count() int {
	return len(s.paths)
}

// Dir returns the storage directory.
func (s *SlotStore) Dir() string {
	return s.dir
}

// Path returns the file backing slot index.
func (s *SlotStore) Path(index int) string {
	return s.paths[index]
}

// Reads returns how many slot files were read successfully.
func (s *SlotStore) Reads() int64 {
	return s.reads.Load()
}

// Writes returns how many slot files were written successfully.
func (s *SlotStore) Writes() int64 {
	return s.writes.Load()
}

// Initialize creates the storage directory and writes an empty slot to every
// index, discarding any previous contents.
//
// Any failure is reported as [ErrStorageInit].
func (s *SlotStore) Initialize() error {
	err := s.fs.MkdirAll(s.dir, storageDirPerm)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrStorageInit, s.dir, err)
	}

	empty := EncodeSlot(nil)

	for i, path := range s.paths {
		err := s.fs.WriteFileAtomic(path, empty, slotFilePerm)
		if err != nil {
			return fmt.Errorf("%w: slot %d: %w", ErrStorageInit, i, err)
		}

		s.writes.Add(1)
	}

	return nil
}

// Recover keeps existing slot files and creates missing ones empty. It
// returns the entry count of every slot.
//
// An existing slot that does not decode fails with [ErrCorruptSlot]; I/O
// failures are reported as [ErrStorageInit].
func (s *SlotStore) Recover() ([]int, error) {
	err := s.fs.MkdirAll(s.dir, storageDirPerm)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", ErrStorageInit, s.dir, err)
	}

	lens := make([]int, len(s.paths))

	for i, path := range s.paths {
		data, readErr := s.fs.ReadFile(path)
		if errors.Is(readErr, os.ErrNotExist) {
			writeErr := s.fs.WriteFileAtomic(path, EncodeSlot(nil), slotFilePerm)
			if writeErr != nil {
				return nil, fmt.Errorf("%w: slot %d: %w", ErrStorageInit, i, writeErr)
			}

			s.writes.Add(1)

			continue
		}

		if readErr != nil {
			return nil, fmt.Errorf("%w: slot %d: %w", ErrStorageInit, i, readErr)
		}

		s.reads.Add(1)

		entries, decodeErr := DecodeSlot(data)
		if decodeErr != nil {
			return nil, fmt.Errorf("slot %d (%s): %w", i, path, decodeErr)
		}

		lens[i] = len(entries)
	}

	return lens, nil
}

// ReadSlot loads and decodes the full contents of slot index.
//
// Returns [ErrStorageRead] if the file is missing or unreadable and
// [ErrCorruptSlot] if it does not decode.
func (s *SlotStore) ReadSlot(index int) (map[string]string, error) {
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}

	data, err := s.fs.ReadFile(s.paths[index])
	if err != nil {
		return nil, fmt.Errorf("%w: slot %d: %w", ErrStorageRead, index, err)
	}

	s.reads.Add(1)

	entries, err := DecodeSlot(data)
	if err != nil {
		return nil, fmt.Errorf("slot %d (%s): %w", index, s.paths[index], err)
	}

	return entries, nil
}

// WriteSlot replaces the contents of slot index with entries.
//
// The file is replaced via rename, so a failed write leaves the previous
// contents in place. Failures are reported as [ErrStorageWrite].
func (s *SlotStore) WriteSlot(index int, entries map[string]string) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}

	err := s.fs.WriteFileAtomic(s.paths[index], EncodeSlot(entries), slotFilePerm)
	if err != nil {
		return fmt.Errorf("%w: slot %d: %w", ErrStorageWrite, index, err)
	}

	s.writes.Add(1)

	return nil
}

// Transform reads slot index, passes its entries to fn, and writes the
// result back if fn reports a change.
//
// If fn returns an error, nothing is written and the error is returned.
// The entries map is private to this call; a failed write discards it.
func (s *SlotStore) Transform(index int, fn func(entries map[string]string) (bool, error)) error {
	entries, err := s.ReadSlot(index)
	if err != nil {
		return err
	}

	changed, err := fn(entries)
	if err != nil {
		return err
	}

	if !changed {
		return nil
	}

	return s.WriteSlot(index, entries)
}

func (s *SlotStore) checkIndex(index int) error {
	if index < 0 || index >= len(s.paths) {
		return fmt.Errorf("slot index %d out of range [0, %d): %w", index, len(s.paths), ErrInvalidInput)
	}

	return nil
}
