package dedup_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe-go/internal/dedup"
	"dedupe-go/internal/testutil"
)

func TestIndexer_BuildSizeIndex(t *testing.T) {
	ctx := context.Background()

	setup := func() *testutil.MockFilesystemManager {
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddFile("/vol/a/one.bin", make([]byte, 100))
		fsmgr.AddFile("/vol/b/two.bin", make([]byte, 100))
		fsmgr.AddFile("/vol/b/three.bin", make([]byte, 300))
		fsmgr.AddFile("/vol/tiny.txt", make([]byte, 5))
		fsmgr.AddFile("/vol/.cache/hidden.bin", make([]byte, 100))
		fsmgr.AddFile("/vol/.DS_Store", make([]byte, 100))
		fsmgr.AddFile("/vol/skip/excluded.bin", make([]byte, 100))
		return fsmgr
	}

	t.Run("indexes by size with pruning", func(t *testing.T) {
		fsmgr := setup()
		ix := dedup.NewIndexer(fsmgr, nil, dedup.IndexOptions{
			MinSize:      10,
			HiddenPrefix: ".",
			Exclude:      []string{"skip"},
		})

		idx, err := ix.BuildSizeIndex(ctx, "/vol")
		require.NoError(t, err)

		stats := idx.Stats()
		assert.Equal(t, 4, stats.FilesSeen)
		assert.Equal(t, 3, stats.FilesIndexed)
		assert.Equal(t, 1, stats.BelowMinSize)
		assert.Equal(t, int64(505), stats.BytesSeen)
		assert.Equal(t, int64(500), stats.BytesIndexed)
		assert.Equal(t, 3, idx.Len())

		bucket := idx.Bucket(100)
		require.Len(t, bucket, 2)
		assert.Equal(t, "/vol/a/one.bin", bucket[0].Path, "discovery order is preserved")
		assert.Equal(t, "/vol/b/two.bin", bucket[1].Path)

		cands := idx.Candidates()
		require.Len(t, cands, 1)
		assert.Equal(t, int64(100), cands[0].Size)
	})

	t.Run("absolute excludes and ignore matcher", func(t *testing.T) {
		fsmgr := setup()
		ix := dedup.NewIndexer(fsmgr, nil, dedup.IndexOptions{
			Exclude: []string{"/vol/b"},
			Ignore: func(rel string, isDir bool) bool {
				return strings.HasSuffix(rel, ".txt")
			},
		})

		idx, err := ix.BuildSizeIndex(ctx, "/vol")
		require.NoError(t, err)

		var paths []string
		for _, size := range []int64{5, 100, 300} {
			for _, r := range idx.Bucket(size) {
				paths = append(paths, r.Path)
			}
		}
		assert.ElementsMatch(t, []string{
			"/vol/.DS_Store",
			"/vol/.cache/hidden.bin",
			"/vol/a/one.bin",
			"/vol/skip/excluded.bin",
		}, paths)
	})

	t.Run("unreadable entries are skipped, not fatal", func(t *testing.T) {
		fsmgr := setup()
		fsmgr.SetWalkError("/vol/b", errors.New("permission denied"))
		ix := dedup.NewIndexer(fsmgr, nil, dedup.IndexOptions{HiddenPrefix: "."})

		idx, err := ix.BuildSizeIndex(ctx, "/vol")
		require.NoError(t, err)

		require.Len(t, idx.Skipped(), 1)
		assert.Equal(t, "/vol/b", idx.Skipped()[0].Path)
		assert.Contains(t, idx.Skipped()[0].Reason, "permission denied")
		assert.Empty(t, idx.Bucket(300))
	})

	t.Run("missing root is fatal", func(t *testing.T) {
		fsmgr := setup()
		ix := dedup.NewIndexer(fsmgr, nil, dedup.IndexOptions{})
		_, err := ix.BuildSizeIndex(ctx, "/nope")
		assert.Error(t, err)
	})

	t.Run("cancellation aborts the walk", func(t *testing.T) {
		fsmgr := setup()
		ix := dedup.NewIndexer(fsmgr, nil, dedup.IndexOptions{})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ix.BuildSizeIndex(cctx, "/vol")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSizeIndex_CandidatesOrder(t *testing.T) {
	idx := dedup.NewSizeIndex()
	for _, r := range []*dedup.FileRecord{
		dedup.NewFileRecord("/a", 10),
		dedup.NewFileRecord("/b", 10),
		dedup.NewFileRecord("/c", 30),
		dedup.NewFileRecord("/d", 30),
		dedup.NewFileRecord("/e", 20),
	} {
		idx.Add(r)
	}

	cands := idx.Candidates()
	require.Len(t, cands, 2)
	assert.Equal(t, int64(30), cands[0].Size)
	assert.Equal(t, int64(10), cands[1].Size)
}
