// Package scratch owns temporary audio files for the lifetime of one process.
//
// Every file is created through an Arena and deleted through exactly one code
// path: File.Release. Arena.Close releases whatever is still live through that
// same path, so concurrent owners and the shutdown pass never delete twice.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrClosed is returned by Create after the arena has been closed.
var ErrClosed = errors.New("scratch arena closed")

// Arena is a per-process scratch directory with tracked files.
type Arena struct {
	dir string

	mu     sync.Mutex
	live   map[*File]struct{}
	closed bool
}

// New creates a fresh scratch directory under parent (os.TempDir when empty).
func New(parent string) (*Arena, error) {
	dir, err := os.MkdirTemp(parent, "murmur-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Arena{dir: dir, live: make(map[*File]struct{})}, nil
}

// Dir returns the arena directory.
func (a *Arena) Dir() string {
	return a.dir
}

// Create opens a new tracked file whose name matches pattern (see os.CreateTemp).
func (a *Arena) Create(pattern string) (*File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	f, err := os.CreateTemp(a.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	file := &File{File: f, arena: a}
	a.live[file] = struct{}{}
	return file, nil
}

// Live reports how many files are still unreleased.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Close releases every live file and removes the directory. Safe to call more than once.
func (a *Arena) Close() error {
	a.mu.Lock()
	a.closed = true
	pending := make([]*File, 0, len(a.live))
	for f := range a.live {
		pending = append(pending, f)
	}
	a.mu.Unlock()

	var errs []error
	for _, f := range pending {
		if err := f.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(a.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove scratch dir: %w", err))
	}
	return errors.Join(errs...)
}

func (a *Arena) forget(f *File) {
	a.mu.Lock()
	delete(a.live, f)
	a.mu.Unlock()
}

// File is one tracked scratch file. The embedded *os.File may be used freely
// until Release.
type File struct {
	*os.File

	arena *Arena
	once  sync.Once
	err   error
}

// Path returns the file location on disk.
func (f *File) Path() string {
	return f.Name()
}

// Release closes and deletes the file. Only the first call has any effect;
// later calls return the first result.
func (f *File) Release() error {
	f.once.Do(func() {
		closeErr := f.File.Close()
		if closeErr != nil && errors.Is(closeErr, os.ErrClosed) {
			closeErr = nil
		}
		removeErr := os.Remove(f.Name())
		if removeErr != nil && errors.Is(removeErr, os.ErrNotExist) {
			removeErr = nil
		}
		f.err = errors.Join(closeErr, removeErr)
		f.arena.forget(f)
	})
	return f.err
}
