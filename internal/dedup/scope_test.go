package dedup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe-go/internal/dedup"
	"dedupe-go/internal/testutil"
)

func newScope(t *testing.T, fsmgr *testutil.MockFilesystemManager, root string) *dedup.Scope {
	t.Helper()
	fsmgr.AddDirectory(root)
	p, err := fsmgr.Resolve(root)
	require.NoError(t, err)
	s, err := dedup.NewScope(p)
	require.NoError(t, err)
	return s
}

func TestNewScope(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	fsmgr.AddFile("/vol/file", []byte("x"))
	p, err := fsmgr.Resolve("/vol/file")
	require.NoError(t, err)

	_, err = dedup.NewScope(p)
	assert.Error(t, err, "a file cannot be a scope")

	_, err = dedup.NewScope(nil)
	assert.Error(t, err)
}

func TestScope_Deletable(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	scope := newScope(t, fsmgr, "/vol/scope")

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{name: "direct child", path: "/vol/scope/a.mov", ok: true},
		{name: "nested", path: "/vol/scope/x/y/a.mov", ok: true},
		{name: "unclean path inside", path: "/vol/scope/x/../a.mov", ok: true},
		{name: "scope root itself", path: "/vol/scope"},
		{name: "sibling with shared prefix", path: "/vol/scope2/a.mov"},
		{name: "parent", path: "/vol/a.mov"},
		{name: "escapes via dot-dot", path: "/vol/scope/../keep/a.mov"},
		{name: "relative", path: "scope/a.mov"},
		{name: "dot-dot prefixed name stays inside", path: "/vol/scope/..hidden", ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := scope.Deletable(dedup.NewFileRecord(tt.path, 10))
			if tt.ok {
				require.NoError(t, err)
				assert.True(t, d.IsValid())
				assert.Equal(t, int64(10), d.Size())
				assert.Equal(t, "/vol/scope", d.ScopeRoot())
				return
			}
			assert.ErrorIs(t, err, dedup.ErrOutsideScope)
			assert.False(t, d.IsValid())
		})
	}

	_, err := scope.Deletable(nil)
	assert.ErrorIs(t, err, dedup.ErrOutsideScope)
}

func TestScope_Keeper(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	scope := newScope(t, fsmgr, "/vol/scope")

	k, err := scope.Keeper(dedup.NewFileRecord("/vol/keep/a.mov", 10))
	require.NoError(t, err)
	assert.Equal(t, "/vol/keep/a.mov", k.Path())

	_, err = scope.Keeper(dedup.NewFileRecord("/vol/scope2/a.mov", 10))
	assert.NoError(t, err, "a sibling sharing the name prefix is outside")

	for _, p := range []string{"/vol/scope/a.mov", "/vol/scope", "/vol/scope/deep/a.mov"} {
		_, err := scope.Keeper(dedup.NewFileRecord(p, 10))
		assert.ErrorIs(t, err, dedup.ErrInsideScope, p)
	}
}

func TestScope_ZeroDeletableIsInvalid(t *testing.T) {
	var d dedup.Deletable
	assert.False(t, d.IsValid())

	fsmgr := testutil.NewMockFilesystemManager()
	assert.Error(t, fsmgr.Remove(d))
}
