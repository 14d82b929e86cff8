package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
)

// PathState is the injected fault state of a path.
type PathState int

const (
	// PathNormal passes every operation through. This is the zero value.
	PathNormal PathState = iota
	// PathIOError fails reads and writes with EIO ("bad sector").
	PathIOError
	// PathReadOnly fails writes with EROFS; reads pass through.
	PathReadOnly
	// PathNoPermission fails reads and writes with EACCES.
	PathNoPermission
)

// InjectedError marks an error as injected by [Faulty].
//
// It wraps an *os.PathError carrying a syscall.Errno, so errors.Is with the
// errno and os.IsPermission keep working.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and fails operations on paths that were marked with
// [Faulty.SetPathState]. Unmarked paths behave exactly like the wrapped FS.
//
// Faults are deterministic and sticky until cleared, which lets tests break a
// single slot file and assert on the exact error path.
type Faulty struct {
	fs FS

	mu         sync.RWMutex
	pathStates map[string]PathState

	readFails  atomic.Int64
	writeFails atomic.Int64
}

// NewFaulty creates a Faulty filesystem wrapping fs.
func NewFaulty(fs FS) *Faulty {
	return &Faulty{
		fs:         fs,
		pathStates: make(map[string]PathState),
	}
}

// SetPathState sets the fault state for path. [PathNormal] clears it.
func (f *Faulty) SetPathState(path string, state PathState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path = filepath.Clean(path)

	if state == PathNormal {
		delete(f.pathStates, path)

		return
	}

	f.pathStates[path] = state
}

// ReadFails returns the number of injected read failures.
func (f *Faulty) ReadFails() int64 {
	return f.readFails.Load()
}

// WriteFails returns the number of injected write failures.
func (f *Faulty) WriteFails() int64 {
	return f.writeFails.Load()
}

func (f *Faulty) state(path string) PathState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.pathStates[filepath.Clean(path)]
}

func (f *Faulty) readErr(op, path string) error {
	var errno syscall.Errno

	switch f.state(path) {
	case PathIOError:
		errno = syscall.EIO
	case PathNoPermission:
		errno = syscall.EACCES
	default:
		return nil
	}

	f.readFails.Add(1)

	return &InjectedError{Err: &os.PathError{Op: op, Path: path, Err: errno}}
}

func (f *Faulty) writeErr(op, path string) error {
	var errno syscall.Errno

	switch f.state(path) {
	case PathIOError:
		errno = syscall.EIO
	case PathReadOnly:
		errno = syscall.EROFS
	case PathNoPermission:
		errno = syscall.EACCES
	default:
		return nil
	}

	f.writeFails.Add(1)

	return &InjectedError{Err: &os.PathError{Op: op, Path: path, Err: errno}}
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	var err error
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		err = f.writeErr("open", path)
	} else {
		err = f.readErr("open", path)
	}

	if err != nil {
		return nil, err
	}

	return f.fs.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.readErr("read", path); err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.writeErr("write", path); err != nil {
		return err
	}

	return f.fs.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.writeErr("mkdir", path); err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.readErr("stat", path); err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.readErr("stat", path); err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.writeErr("remove", path); err != nil {
		return err
	}

	return f.fs.Remove(path)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
