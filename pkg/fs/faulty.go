package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"strings"
	"sync"
	"syscall"
)

// Op names a filesystem operation on [FS].
type Op string

// Operations that [Faulty] can fail and count.
const (
	OpOpen            Op = "open"
	OpOpenFile        Op = "openfile"
	OpReadFile        Op = "readfile"
	OpWriteFileAtomic Op = "writefileatomic"
	OpReadDir         Op = "readdir"
	OpMkdirAll        Op = "mkdirall"
	OpStat            Op = "stat"
	OpExists          Op = "exists"
	OpRemove          Op = "remove"
	OpRename          Op = "rename"
)

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying *fs.PathError or *os.LinkError so errors.Is/As
// and helpers like [os.IsPermission] keep working.
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
	if err == nil {
		return false
	}

	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS], failing operations that match registered rules and
// counting every call per [Op].
//
// Unlike a random fault injector it is fully deterministic: a rule fails
// every matching call until [Faulty.Clear] is called.
//
//	fsys := fs.NewFaulty(fs.NewReal())
//	fsys.Fail(fs.OpWriteFileAtomic, "users.json", syscall.ENOSPC)
//	// every atomic write to a path ending in users.json now fails
type Faulty struct {
	fs FS

	mu     sync.Mutex
	rules  []faultRule
	counts map[Op]int
}

type faultRule struct {
	op     Op
	suffix string
	errno  syscall.Errno
}

// NewFaulty creates a [Faulty] filesystem wrapping underlying.
// Panics if underlying is nil.
func NewFaulty(underlying FS) *Faulty {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Faulty{
		fs:     underlying,
		counts: make(map[Op]int),
	}
}

// Fail makes every call of op on a path ending in suffix fail with errno.
// An empty suffix matches every path.
func (f *Faulty) Fail(op Op, suffix string, errno syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = append(f.rules, faultRule{op: op, suffix: suffix, errno: errno})
}

// Clear removes all fault rules. Counters are kept.
func (f *Faulty) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = nil
}

// Count returns how many times op was called, including failed calls.
func (f *Faulty) Count(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.counts[op]
}

// Open opens a file for reading unless a rule fails it.
func (f *Faulty) Open(path string) (File, error) {
	err := f.check(OpOpen, path)
	if err != nil {
		return nil, err
	}

	return f.fs.Open(path)
}

// OpenFile opens a file unless a rule fails it.
func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	err := f.check(OpOpenFile, path)
	if err != nil {
		return nil, err
	}

	return f.fs.OpenFile(path, flag, perm)
}

// ReadFile reads a file unless a rule fails it.
func (f *Faulty) ReadFile(path string) ([]byte, error) {
	err := f.check(OpReadFile, path)
	if err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

// WriteFileAtomic writes a file unless a rule fails it.
// A failed write leaves the target untouched, like a failed rename would.
func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	err := f.check(OpWriteFileAtomic, path)
	if err != nil {
		return err
	}

	return f.fs.WriteFileAtomic(path, data, perm)
}

// ReadDir reads a directory unless a rule fails it.
func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	err := f.check(OpReadDir, path)
	if err != nil {
		return nil, err
	}

	return f.fs.ReadDir(path)
}

// MkdirAll creates directories unless a rule fails it.
func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	err := f.check(OpMkdirAll, path)
	if err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

// Stat returns file info unless a rule fails it.
func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	err := f.check(OpStat, path)
	if err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

// Exists reports whether path exists unless a rule fails it.
func (f *Faulty) Exists(path string) (bool, error) {
	err := f.check(OpExists, path)
	if err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}

// Remove deletes a file unless a rule fails it.
func (f *Faulty) Remove(path string) error {
	err := f.check(OpRemove, path)
	if err != nil {
		return err
	}

	return f.fs.Remove(path)
}

// Rename renames a file unless a rule fails it. Rules match oldpath.
func (f *Faulty) Rename(oldpath, newpath string) error {
	errno, failed := f.record(OpRename, oldpath)
	if failed {
		return &InjectedError{Err: &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errno}}
	}

	return f.fs.Rename(oldpath, newpath)
}

// check counts the call and returns an injected *fs.PathError if a rule matches.
func (f *Faulty) check(op Op, path string) error {
	errno, failed := f.record(op, path)
	if !failed {
		return nil
	}

	return &InjectedError{Err: &iofs.PathError{Op: string(op), Path: path, Err: errno}}
}

func (f *Faulty) record(op Op, path string) (syscall.Errno, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counts[op]++

	for _, rule := range f.rules {
		if rule.op == op && strings.HasSuffix(path, rule.suffix) {
			return rule.errno, true
		}
	}

	return 0, false
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
