package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"dedupe-go/internal/dedup"
)

// MemoryArchive keeps archived objects in memory. Safe for concurrent use.
type MemoryArchive struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	versions map[string]int64
}

// NewMemoryArchive creates an empty MemoryArchive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		objects:  make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryArchive) Put(name string, r io.Reader, size int64, version int64) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch for %s: expected %d bytes, got %d", name, size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if version < m.versions[name] {
		return fmt.Errorf("%w: %s has version %d, refusing %d", ErrStaleVersion, name, m.versions[name], version)
	}
	m.objects[name] = data
	m.versions[name] = version
	return nil
}

func (m *MemoryArchive) Get(name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (m *MemoryArchive) Version(name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[name], nil
}

func (m *MemoryArchive) ValidateSetup() error {
	return nil
}

var _ dedup.Archive = (*MemoryArchive)(nil)
