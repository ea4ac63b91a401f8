package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"dedupe-go/internal/dedup"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Parent directories are created implicitly. Safe for concurrent use.
type MockFilesystemManager struct {
	mu        sync.Mutex
	files     map[string]*MockFile
	openErrs  map[string]error
	statErrs  map[string]error
	walkErrs  map[string]error
	removeErr map[string]error
	removed   []string
	opens     map[string]int
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:     make(map[string]*MockFile),
		openErrs:  make(map[string]error),
		statErrs:  make(map[string]error),
		walkErrs:  make(map[string]error),
		removeErr: make(map[string]error),
		opens:     make(map[string]int),
	}
}

// AddFile adds or replaces a file, creating parent directories.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddLink makes path a second name for the file at target, like a hard
// link. Removing either name leaves the other in place.
func (m *MockFilesystemManager) AddLink(path, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = m.files[target]
}

// AddDirectory adds a directory and its parents.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.addDir(path)
}

func (m *MockFilesystemManager) addParents(path string) {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		m.addDir(dir)
		if dir == filepath.Dir(dir) {
			return
		}
	}
}

func (m *MockFilesystemManager) addDir(path string) {
	if _, ok := m.files[path]; ok {
		return
	}
	m.files[path] = &MockFile{Permissions: 0755, ModTime: time.Now(), IsDirectory: true}
}

// DeleteFile removes a file behind the engine's back.
func (m *MockFilesystemManager) DeleteFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// SetOpenError makes Open fail for path.
func (m *MockFilesystemManager) SetOpenError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs[path] = err
}

// SetStatError makes Stat fail for path.
func (m *MockFilesystemManager) SetStatError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statErrs[path] = err
}

// SetWalkError reports err for path during Walk and prunes it.
func (m *MockFilesystemManager) SetWalkError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walkErrs[path] = err
}

// SetRemoveError makes Remove fail for path.
func (m *MockFilesystemManager) SetRemoveError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeErr[path] = err
}

// Exists reports whether path is present.
func (m *MockFilesystemManager) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

// Removed returns paths deleted through Remove, in order.
func (m *MockFilesystemManager) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.removed)
}

// Opens returns how many times path was opened.
func (m *MockFilesystemManager) Opens(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[path]
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*dedup.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("stat path: %w", &fs.PathError{Op: "stat", Path: absPath, Err: fs.ErrNotExist})
	}
	return dedup.NewPath(absPath, file.IsDirectory, newFileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path string) (dedup.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[path]++
	if err := m.openErrs[path]; err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	file, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return mockReader{bytes.NewReader(file.Content)}, nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.statErrs[path]; err != nil {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	file, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return newFileInfo(path, file), nil
}

// SameFile reports whether both stats were taken from the same mock file.
func (m *MockFilesystemManager) SameFile(a, b fs.FileInfo) bool {
	ai, ok := a.(*mockFileInfo)
	if !ok {
		return false
	}
	bi, ok := b.(*mockFileInfo)
	if !ok {
		return false
	}
	return ai.file != nil && ai.file == bi.file
}

type mockEntry struct {
	dedup.WalkEntry
	err error
}

// Walk visits entries depth-first in lexical order per directory, like
// filepath.WalkDir.
func (m *MockFilesystemManager) Walk(root string, fn dedup.WalkFunc) error {
	m.mu.Lock()
	file, ok := m.files[root]
	m.mu.Unlock()
	if !ok {
		return &fs.PathError{Op: "lstat", Path: root, Err: fs.ErrNotExist}
	}
	if !file.IsDirectory {
		return fmt.Errorf("not a directory: %s", root)
	}
	err := m.walkDir(root, fn)
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func (m *MockFilesystemManager) walkDir(dir string, fn dedup.WalkFunc) error {
	for _, child := range m.children(dir) {
		if child.err != nil {
			if err := fn(child.WalkEntry, child.err); err != nil && !errors.Is(err, fs.SkipDir) {
				return err
			}
			continue
		}
		err := fn(child.WalkEntry, nil)
		if errors.Is(err, fs.SkipDir) {
			if child.IsDir {
				continue
			}
			return nil
		}
		if err != nil {
			return err
		}
		if child.IsDir {
			if err := m.walkDir(child.Path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// children snapshots the direct children of dir sorted by name.
func (m *MockFilesystemManager) children(dir string) []mockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []mockEntry
	for p, f := range m.files {
		if p == dir || filepath.Dir(p) != dir {
			continue
		}
		e := mockEntry{WalkEntry: dedup.WalkEntry{Path: p, Name: filepath.Base(p), IsDir: f.IsDirectory}}
		if !f.IsDirectory {
			e.Size = int64(len(f.Content))
		}
		e.err = m.walkErrs[p]
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b mockEntry) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

func (m *MockFilesystemManager) Remove(target dedup.Deletable) error {
	if !target.IsValid() {
		return errors.New("refusing to remove unverified path")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	path := target.Path()
	if err := m.removeErr[path]; err != nil {
		return &fs.PathError{Op: "remove", Path: path, Err: err}
	}
	file, ok := m.files[path]
	if !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	if file.IsDirectory {
		return fmt.Errorf("refusing to remove non-regular file: %s", path)
	}
	delete(m.files, path)
	m.removed = append(m.removed, path)
	return nil
}

type mockReader struct {
	*bytes.Reader
}

func (mockReader) Close() error { return nil }

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
	file    *MockFile
}

func newFileInfo(path string, f *MockFile) *mockFileInfo {
	mode := f.Permissions
	if f.IsDirectory {
		mode |= fs.ModeDir
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    mode,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
		file:    f,
	}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ dedup.FilesystemManager = (*MockFilesystemManager)(nil)
