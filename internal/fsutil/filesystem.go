// Package fsutil abstracts the few filesystem operations the publisher
// needs so config and journal setup can be tested without touching disk.
package fsutil

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"
)

// FileSystem is the subset of os used to load configuration and prepare
// state directories.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// Stat returns a FileInfo describing the named file.
	Stat(name string) (fs.FileInfo, error)

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(path string, perm os.FileMode) error
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// MemoryFileSystem is an in-memory FileSystem for tests. Paths are cleaned
// with filepath.Clean before lookup.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]os.FileMode
}

// NewMemoryFileSystem returns an empty filesystem containing only "/" and ".".
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string][]byte),
		dirs:  map[string]os.FileMode{"/": 0o755, ".": 0o755},
	}
}

// WriteFile stores data at name, creating parent directories.
func (m *MemoryFileSystem) WriteFile(name string, data []byte) {
	name = filepath.Clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(filepath.Dir(name), 0o755)
	m.files[name] = append([]byte(nil), data...)
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	name = filepath.Clean(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	name = filepath.Clean(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if data, ok := m.files[name]; ok {
		return &memFileInfo{name: path.Base(name), size: int64(len(data)), mode: 0o644}, nil
	}
	if mode, ok := m.dirs[name]; ok {
		return &memFileInfo{name: path.Base(name), mode: mode | fs.ModeDir, isDir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (m *MemoryFileSystem) MkdirAll(p string, perm os.FileMode) error {
	p = filepath.Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := p; ; dir = filepath.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return &fs.PathError{Op: "mkdir", Path: dir, Err: fs.ErrExist}
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	m.mkdirAllLocked(p, perm)
	return nil
}

func (m *MemoryFileSystem) mkdirAllLocked(p string, perm os.FileMode) {
	for dir := p; ; dir = filepath.Dir(dir) {
		if _, ok := m.dirs[dir]; !ok {
			m.dirs[dir] = perm
		}
		if dir == filepath.Dir(dir) {
			return
		}
	}
}

// IsDir reports whether p exists as a directory.
func (m *MemoryFileSystem) IsDir(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.dirs[filepath.Clean(p)]
	return ok
}

type memFileInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	isDir bool
}

func (i *memFileInfo) Name() string       { return i.name }
func (i *memFileInfo) Size() int64        { return i.size }
func (i *memFileInfo) Mode() os.FileMode  { return i.mode }
func (i *memFileInfo) ModTime() time.Time { return time.Time{} }
func (i *memFileInfo) IsDir() bool        { return i.isDir }
func (i *memFileInfo) Sys() any           { return nil }
