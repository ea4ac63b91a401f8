package dedup

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Scope is the protected subtree of a reconcile run. Only files inside it
// can ever become deletion candidates.
type Scope struct {
	root string
}

// NewScope builds a scope rooted at an existing directory.
func NewScope(root *Path) (*Scope, error) {
	if root == nil {
		return nil, fmt.Errorf("scope root is required")
	}
	if !root.IsDir() {
		return nil, fmt.Errorf("scope root %s is not a directory", root)
	}
	return &Scope{root: filepath.Clean(root.String())}, nil
}

// Root returns the absolute scope root.
func (s *Scope) Root() string {
	return s.root
}

// Contains reports whether path lies strictly below the scope root.
// Relative paths are never contained.
func (s *Scope) Contains(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Covers reports whether path is the scope root or lies below it.
func (s *Scope) Covers(path string) bool {
	return filepath.Clean(path) == s.root || s.Contains(path)
}

// Deletable wraps rec as a deletion candidate. It fails with
// ErrOutsideScope unless rec lies inside the scope.
func (s *Scope) Deletable(rec *FileRecord) (Deletable, error) {
	if rec == nil || !s.Contains(rec.Path) {
		return Deletable{}, fmt.Errorf("%w: %s", ErrOutsideScope, recordPath(rec))
	}
	return Deletable{path: filepath.Clean(rec.Path), size: rec.Size, scope: s.root}, nil
}

// Keeper wraps rec as a surviving copy. It fails with ErrInsideScope
// when rec lies inside the scope.
func (s *Scope) Keeper(rec *FileRecord) (Keeper, error) {
	if rec == nil || rec.Path == "" || s.Covers(rec.Path) {
		return Keeper{}, fmt.Errorf("%w: %s", ErrInsideScope, recordPath(rec))
	}
	return Keeper{path: filepath.Clean(rec.Path), size: rec.Size}, nil
}

func recordPath(rec *FileRecord) string {
	if rec == nil {
		return "<nil>"
	}
	return rec.Path
}

// Deletable is a file proven to lie inside a protected scope. The zero
// value is invalid and is refused by FilesystemManager.Remove.
type Deletable struct {
	path  string
	size  int64
	scope string
}

// Path returns the absolute path of the candidate.
func (d Deletable) Path() string { return d.path }

// Size returns the size observed when the candidate was enumerated.
func (d Deletable) Size() int64 { return d.size }

// ScopeRoot returns the root of the scope that produced the candidate.
func (d Deletable) ScopeRoot() string { return d.scope }

// IsValid reports whether d was produced by Scope.Deletable.
func (d Deletable) IsValid() bool { return d.path != "" && d.scope != "" }

// Keeper is a file outside the protected scope. Keepers are only read,
// never modified.
type Keeper struct {
	path string
	size int64
}

// Path returns the absolute path of the keeper.
func (k Keeper) Path() string { return k.path }

// Size returns the size observed when the keeper was enumerated.
func (k Keeper) Size() int64 { return k.size }
