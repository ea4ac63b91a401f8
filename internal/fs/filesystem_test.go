package fs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"dedupe-go/internal/dedup"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
}

func TestOSFilesystemManager_Resolve(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	writeFile(t, file, "hello")

	t.Run("directory", func(t *testing.T) {
		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !p.IsDir() {
			t.Error("expected directory")
		}
	})

	realFile, err := filepath.EvalSymlinks(file)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("file", func(t *testing.T) {
		p, err := m.Resolve(file)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsDir() || p.String() != realFile {
			t.Errorf("Resolve() = %s (dir=%v)", p.String(), p.IsDir())
		}
	})

	t.Run("symlinked parent replaced by its target", func(t *testing.T) {
		parent := filepath.Join(t.TempDir(), "parent")
		if err := os.Symlink(dir, parent); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		p, err := m.Resolve(filepath.Join(parent, "a.txt"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.String() != realFile {
			t.Errorf("Resolve() = %s, want %s", p.String(), realFile)
		}
	})

	t.Run("symlink rejected", func(t *testing.T) {
		link := filepath.Join(dir, "link")
		if err := os.Symlink(file, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		if _, err := m.Resolve(link); err == nil {
			t.Error("expected error for symlink")
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := m.Resolve(filepath.Join(dir, "missing")); err == nil {
			t.Error("expected error for missing path")
		}
	})
}

func TestOSFilesystemManager_Walk(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "bb")
	writeFile(t, filepath.Join(dir, "a", "one.bin"), "1")
	writeFile(t, filepath.Join(dir, "skip", "hidden.bin"), "xxx")
	if err := os.Symlink(filepath.Join(dir, "b.txt"), filepath.Join(dir, "c-link")); err != nil {
		t.Logf("symlinks unavailable: %v", err)
	}

	var files []string
	var dirs []string
	sizes := map[string]int64{}
	err := m.Walk(dir, func(e dedup.WalkEntry, err error) error {
		if err != nil {
			t.Fatalf("unexpected walk error: %v", err)
		}
		if e.IsDir {
			dirs = append(dirs, e.Name)
			if e.Name == "skip" {
				return fs.SkipDir
			}
			return nil
		}
		files = append(files, e.Name)
		sizes[e.Name] = e.Size
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if want := []string{"one.bin", "b.txt"}; !slices.Equal(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
	if want := []string{"a", "skip"}; !slices.Equal(dirs, want) {
		t.Errorf("dirs = %v, want %v", dirs, want)
	}
	if sizes["b.txt"] != 2 {
		t.Errorf("size of b.txt = %d, want 2", sizes["b.txt"])
	}
}

func TestOSFilesystemManager_WalkAbort(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	stop := errors.New("stop")
	err := m.Walk(dir, func(dedup.WalkEntry, error) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("Walk() error = %v, want %v", err, stop)
	}
}

func TestOSFilesystemManager_Open(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	writeFile(t, file, "hello world")

	f, err := m.Open(file)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	buf := make([]byte, 5)
	if _, err := f.ReadAt(buf, 6); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != "world" {
		t.Errorf("ReadAt() = %q, want world", buf)
	}

	if _, err := m.Open(dir); err == nil {
		t.Error("expected error opening directory")
	}
}

func TestOSFilesystemManager_Remove(t *testing.T) {
	m := NewOSFilesystemManager()
	vol := t.TempDir()
	scopeDir := filepath.Join(vol, "scope")
	file := filepath.Join(scopeDir, "a.txt")
	writeFile(t, file, "hello")

	root, err := m.Resolve(scopeDir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	scope, err := dedup.NewScope(root)
	if err != nil {
		t.Fatalf("NewScope() error = %v", err)
	}

	t.Run("zero value refused", func(t *testing.T) {
		if err := m.Remove(dedup.Deletable{}); err == nil {
			t.Error("expected error for zero Deletable")
		}
		if _, err := os.Stat(file); err != nil {
			t.Errorf("file should still exist: %v", err)
		}
	})

	t.Run("candidate removed", func(t *testing.T) {
		d, err := scope.Deletable(dedup.NewFileRecord(file, 5))
		if err != nil {
			t.Fatalf("Deletable() error = %v", err)
		}
		if err := m.Remove(d); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, err := os.Stat(file); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("file should be gone, stat error = %v", err)
		}
	})

	t.Run("missing candidate", func(t *testing.T) {
		d, err := scope.Deletable(dedup.NewFileRecord(file, 5))
		if err != nil {
			t.Fatalf("Deletable() error = %v", err)
		}
		if err := m.Remove(d); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Remove() error = %v, want not exist", err)
		}
	})
}

func TestOSFilesystemManager_SameFile(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	copyOfA := filepath.Join(dir, "copy.bin")
	writeFile(t, a, "same bytes")
	writeFile(t, copyOfA, "same bytes")
	linked := filepath.Join(dir, "linked.bin")
	if err := os.Link(a, linked); err != nil {
		t.Skipf("hard links unavailable: %v", err)
	}

	stat := func(p string) fs.FileInfo {
		t.Helper()
		info, err := m.Stat(p)
		if err != nil {
			t.Fatalf("Stat(%s) error = %v", p, err)
		}
		return info
	}

	if !m.SameFile(stat(a), stat(linked)) {
		t.Error("hard link should be the same file")
	}
	if m.SameFile(stat(a), stat(copyOfA)) {
		t.Error("identical copy should not be the same file")
	}
}
