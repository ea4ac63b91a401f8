package dedup_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe-go/internal/dedup"
	"dedupe-go/internal/testutil"
)

func newTestService(t *testing.T, fsmgr dedup.FilesystemManager, policy dedup.HashPolicy) (*dedup.DedupService, dedup.Database) {
	t.Helper()
	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t, clock)
	svc, err := dedup.NewDedupService(db, fsmgr, dedup.NewNopLogger(), clock, testutil.NewStubIDGenerator(), nil,
		dedup.Options{Hash: policy, Workers: 4})
	require.NoError(t, err)
	return svc, db
}

func resolve(t *testing.T, fsmgr dedup.FilesystemManager, path string) *dedup.Path {
	t.Helper()
	p, err := fsmgr.Resolve(path)
	require.NoError(t, err)
	return p
}

func TestDedupService_Scan(t *testing.T) {
	ctx := context.Background()

	t.Run("five copies of a 4 MB file form one cluster", func(t *testing.T) {
		const size = 4 * 1024 * 1024
		fsmgr := testutil.NewMockFilesystemManager()
		dup := testutil.Bytes(size, 1)
		for i := range 5 {
			fsmgr.AddFile(fmt.Sprintf("/media/dir%d/clip.mov", i), dup)
		}
		fsmgr.AddFile("/media/unique.mov", testutil.Bytes(size, 2))

		svc, _ := newTestService(t, fsmgr, dedup.DefaultHashPolicy())
		report, err := svc.Scan(ctx, resolve(t, fsmgr, "/media"), dedup.IndexOptions{MinSize: 1024})
		require.NoError(t, err)

		require.Len(t, report.Clusters, 1)
		c := report.Clusters[0]
		assert.Equal(t, 5, c.Count)
		assert.Equal(t, int64(4*size), c.WastedBytes)
		assert.Equal(t, dedup.TierQuick, c.Fingerprint.Tier, "4 MB is below the escalation threshold")
		assert.Equal(t, "/media/dir0/clip.mov", c.Paths[0])

		assert.Equal(t, 6, report.Totals.FilesScanned)
		assert.Equal(t, 4, report.Totals.DuplicateFiles)
		assert.Equal(t, int64(4*size), report.Totals.WastedBytes)
		assert.Equal(t, testutil.FixedClock().Now(), report.GeneratedAt)

		require.Len(t, report.ByExtension, 1)
		assert.Equal(t, dedup.BreakdownRow{Key: ".mov", Files: 5, Bytes: 4 * size}, report.ByExtension[0])
		require.Len(t, report.ByDirectory, 5, "every member is attributed to its directory")
		assert.Equal(t, dedup.BreakdownRow{Key: "dir0", Files: 1, Bytes: size}, report.ByDirectory[0])
	})

	t.Run("same size different content is never merged", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddFile("/d/a", testutil.Bytes(50, 1))
		fsmgr.AddFile("/d/b", testutil.Bytes(50, 2))

		svc, _ := newTestService(t, fsmgr, smallPolicy())
		report, err := svc.Scan(ctx, resolve(t, fsmgr, "/d"), dedup.IndexOptions{})
		require.NoError(t, err)
		assert.Empty(t, report.Clusters)
	})

	t.Run("middle-byte difference above escalation threshold is split", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		base := testutil.Bytes(1000, 9)
		other := append([]byte(nil), base...)
		other[500] ^= 0xff
		fsmgr.AddFile("/d/a", base)
		fsmgr.AddFile("/d/b", base)
		fsmgr.AddFile("/d/c", other)

		svc, _ := newTestService(t, fsmgr, smallPolicy())
		report, err := svc.Scan(ctx, resolve(t, fsmgr, "/d"), dedup.IndexOptions{})
		require.NoError(t, err)

		require.Len(t, report.Clusters, 1)
		assert.Equal(t, []string{"/d/a", "/d/b"}, report.Clusters[0].Paths)
		assert.Equal(t, dedup.TierFull, report.Clusters[0].Fingerprint.Tier)
	})

	t.Run("unreadable file is reported as skipped", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		data := testutil.Bytes(40, 4)
		fsmgr.AddFile("/d/a", data)
		fsmgr.AddFile("/d/b", data)
		fsmgr.AddFile("/d/c", data)
		fsmgr.SetOpenError("/d/c", errors.New("input/output error"))

		svc, _ := newTestService(t, fsmgr, smallPolicy())
		report, err := svc.Scan(ctx, resolve(t, fsmgr, "/d"), dedup.IndexOptions{})
		require.NoError(t, err)

		require.Len(t, report.Clusters, 1)
		assert.Equal(t, 2, report.Clusters[0].Count)
		require.Len(t, report.Skipped, 1)
		assert.Equal(t, "/d/c", report.Skipped[0].Path)
		assert.Equal(t, 1, report.Totals.Skipped)
	})

	t.Run("clusters are ordered by wasted bytes", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		small := testutil.Bytes(10, 1)
		big := testutil.Bytes(20, 2)
		for i := range 4 {
			fsmgr.AddFile(fmt.Sprintf("/d/s%d", i), small)
		}
		fsmgr.AddFile("/d/b0", big)
		fsmgr.AddFile("/d/b1", big)

		svc, _ := newTestService(t, fsmgr, smallPolicy())
		report, err := svc.Scan(ctx, resolve(t, fsmgr, "/d"), dedup.IndexOptions{})
		require.NoError(t, err)

		require.Len(t, report.Clusters, 2)
		assert.Equal(t, int64(30), report.Clusters[0].WastedBytes)
		assert.Equal(t, int64(20), report.Clusters[1].WastedBytes)
		assert.Equal(t, dedup.RootDirectoryKey, report.ByDirectory[0].Key)
		assert.Equal(t, dedup.NoExtensionKey, report.ByExtension[0].Key)
	})

	t.Run("breakdowns follow every member and the first member's extension", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		data := testutil.Bytes(100, 5)
		fsmgr.AddFile("/d/originals/a.MOV", data)
		fsmgr.AddFile("/d/originals/b.mov", data)
		fsmgr.AddFile("/d/backup/z.mp4", data)
		other := testutil.Bytes(40, 6)
		fsmgr.AddFile("/d/originals/c.jpg", other)
		fsmgr.AddFile("/d/loose.jpg", other)

		svc, _ := newTestService(t, fsmgr, smallPolicy())
		report, err := svc.Scan(ctx, resolve(t, fsmgr, "/d"), dedup.IndexOptions{})
		require.NoError(t, err)
		require.Len(t, report.Clusters, 2)
		assert.Equal(t, "/d/backup/z.mp4", report.Clusters[0].Paths[0])

		assert.Equal(t, []dedup.BreakdownRow{
			{Key: "originals", Files: 3, Bytes: 240},
			{Key: "backup", Files: 1, Bytes: 100},
			{Key: dedup.RootDirectoryKey, Files: 1, Bytes: 40},
		}, report.ByDirectory)
		assert.Equal(t, []dedup.BreakdownRow{
			{Key: ".mp4", Files: 3, Bytes: 200},
			{Key: ".jpg", Files: 2, Bytes: 40},
		}, report.ByExtension)
	})

	t.Run("scan never touches the filesystem or audit log", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		data := testutil.Bytes(40, 4)
		fsmgr.AddFile("/d/a", data)
		fsmgr.AddFile("/d/b", data)

		svc, db := newTestService(t, fsmgr, smallPolicy())
		first, err := svc.Scan(ctx, resolve(t, fsmgr, "/d"), dedup.IndexOptions{})
		require.NoError(t, err)
		second, err := svc.Scan(ctx, resolve(t, fsmgr, "/d"), dedup.IndexOptions{})
		require.NoError(t, err)

		assert.Equal(t, first, second, "reporting is idempotent")
		assert.Empty(t, fsmgr.Removed())
		all, err := db.ListDecisions(dedup.DecisionFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("root must be a directory", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddFile("/d/a", []byte("x"))
		svc, _ := newTestService(t, fsmgr, smallPolicy())
		_, err := svc.Scan(ctx, resolve(t, fsmgr, "/d/a"), dedup.IndexOptions{})
		assert.Error(t, err)
	})
}

func TestSortClusters_TieBreaks(t *testing.T) {
	clusters := []dedup.DuplicateCluster{
		{Size: 10, WastedBytes: 20, Fingerprint: dedup.Fingerprint{Tier: dedup.TierFull, Sum: "bb"}, Paths: []string{"/z"}},
		{Size: 20, WastedBytes: 20, Fingerprint: dedup.Fingerprint{Tier: dedup.TierFull, Sum: "cc"}, Paths: []string{"/y"}},
		{Size: 10, WastedBytes: 20, Fingerprint: dedup.Fingerprint{Tier: dedup.TierFull, Sum: "aa"}, Paths: []string{"/x"}},
	}
	dedup.SortClusters(clusters)

	assert.Equal(t, "cc", clusters[0].Fingerprint.Sum, "larger size wins a wasted-bytes tie")
	assert.Equal(t, "aa", clusters[1].Fingerprint.Sum)
	assert.Equal(t, "bb", clusters[2].Fingerprint.Sum)
}
