package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"dedupe-go/internal/dedup"
)

var generated = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func sampleReport(clusters int) *dedup.ScanReport {
	var cs []dedup.DuplicateCluster
	for i := range clusters {
		size := int64(1000 - i)
		cs = append(cs, dedup.DuplicateCluster{
			Size:        size,
			Fingerprint: dedup.Fingerprint{Tier: dedup.TierFull, Sum: fmt.Sprintf("%064x", i)},
			Count:       2,
			WastedBytes: size,
			Paths:       []string{fmt.Sprintf("/media/a/f%d.mov", i), fmt.Sprintf("/media/b/f%d.mov", i)},
		})
	}
	stats := dedup.IndexStats{FilesSeen: 2*clusters + 1, FilesIndexed: 2 * clusters, BytesSeen: 123456}
	r := dedup.NewScanReport("/media", generated, stats, cs, []dedup.SkippedEntry{{Path: "/media/bad", Reason: "permission denied"}})
	r.MinSize = 1024
	return r
}

func TestScanFileNames(t *testing.T) {
	names := ScanFileNames(generated, FormatYAML)
	assert.Equal(t, "20240115_103000_duplicates.yaml", names.Machine)
	assert.Equal(t, "20240115_103000_duplicate_report.md", names.Markdown)
	assert.Equal(t, "20240115_103000_reconcile_summary.txt", ReconcileFileName(generated))
}

func TestEncodeMachine_JSON(t *testing.T) {
	r := sampleReport(3)
	var buf bytes.Buffer
	require.NoError(t, EncodeMachine(&buf, r, FormatJSON))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/media", doc["root"])
	assert.EqualValues(t, 3, doc["clusters_listed"])
	totals := doc["totals"].(map[string]any)
	assert.EqualValues(t, 3, totals["clusters"])
	assert.EqualValues(t, 1, totals["skipped"])
	clusters := doc["clusters"].([]any)
	first := clusters[0].(map[string]any)
	assert.EqualValues(t, 1000, first["size"])
	assert.Equal(t, "full", first["fingerprint"].(map[string]any)["tier"])
}

func TestEncodeMachine_YAML(t *testing.T) {
	r := sampleReport(2)
	var buf bytes.Buffer
	require.NoError(t, EncodeMachine(&buf, r, FormatYAML))

	var doc struct {
		Root           string `yaml:"root"`
		ClustersListed int    `yaml:"clusters_listed"`
		Totals         struct {
			WastedBytes int64 `yaml:"wasted_bytes"`
		} `yaml:"totals"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/media", doc.Root)
	assert.Equal(t, 2, doc.ClustersListed)
	assert.Equal(t, int64(1000+999), doc.Totals.WastedBytes)
}

func TestEncodeMachine_CapsClusters(t *testing.T) {
	r := sampleReport(MaxMachineClusters + 5)
	doc := NewMachineReport(r)

	assert.Len(t, doc.Clusters, MaxMachineClusters)
	assert.Equal(t, MaxMachineClusters+5, doc.Totals.Clusters, "totals stay exact")
	assert.Len(t, r.Clusters, MaxMachineClusters+5, "the source report is untouched")
}

func TestEncodeMachine_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, EncodeMachine(&buf, sampleReport(1), "xml"))
}

func TestRenderMarkdown(t *testing.T) {
	r := sampleReport(25)
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, r, MarkdownOptions{Top: 5, MachineFile: "x_duplicates.json"}))
	out := buf.String()

	assert.Contains(t, out, "# Duplicate Files Report: /media")
	assert.Contains(t, out, "**Generated:** 2024-01-15 10:30:00")
	assert.Contains(t, out, "| **Total Files Scanned** | 51 |")
	assert.Contains(t, out, "| **Files Indexed (>= 1.0 KiB)** | 50 |")
	assert.Contains(t, out, "| **Errors/Skipped** | 1 |")
	assert.Contains(t, out, "## Top 5 Largest Duplicate Groups")
	assert.Contains(t, out, "| 1 | 1000 B | 2 | 1000 B | f0.mov |")
	assert.NotContains(t, out, "| 6 | ")
	assert.Contains(t, out, "## Sample Duplicate Details (Top 20)")
	assert.Contains(t, out, "### Duplicate Group #20")
	assert.NotContains(t, out, "### Duplicate Group #21")
	assert.Contains(t, out, "- `a/f0.mov`")
	assert.Contains(t, out, "| b | 25 |")
	assert.Contains(t, out, "| .mov | 25 |")
	assert.Contains(t, out, "Complete duplicate data saved to: `x_duplicates.json`")
}

func TestRenderMarkdown_LongClusterAndKeys(t *testing.T) {
	var paths []string
	for i := range 13 {
		paths = append(paths, fmt.Sprintf("/r/%s/f.bin", strings.Repeat("d", 50)+fmt.Sprint(i)))
	}
	c := dedup.DuplicateCluster{Size: 10, Count: 13, WastedBytes: 120, Paths: paths,
		Fingerprint: dedup.Fingerprint{Tier: dedup.TierQuick, Sum: "ab"}}
	r := dedup.NewScanReport("/r", generated, dedup.IndexStats{}, []dedup.DuplicateCluster{c}, nil)

	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, r, MarkdownOptions{}))
	out := buf.String()

	assert.Contains(t, out, "- ... and 3 more")
	assert.Contains(t, out, "`quick:ab`")
	assert.Contains(t, out, "| "+strings.Repeat("d", 40)+" |")
	assert.NotContains(t, out, "Complete duplicate data saved to")
}

func TestRenderMarkdown_Empty(t *testing.T) {
	r := dedup.NewScanReport("/r", generated, dedup.IndexStats{FilesSeen: 3}, nil, nil)
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, r, MarkdownOptions{}))
	assert.Contains(t, buf.String(), "## Top 0 Largest Duplicate Groups")
}

func sampleResult(mode dedup.Mode) (*dedup.ReconcileResult, []*dedup.DeletionDecision) {
	outcome := dedup.OutcomeWouldDelete
	if mode == dedup.ModeLive {
		outcome = dedup.OutcomeDeleted
	}
	summary := dedup.NewAuditSummary()
	summary.ByOutcome[outcome] = dedup.OutcomeTotals{Count: 2, Bytes: 2_000_000}
	summary.ByOutcome[dedup.OutcomeRejected] = dedup.OutcomeTotals{Count: 1, Bytes: 1_000_000}

	res := &dedup.ReconcileResult{
		RunID: 7, Mode: mode, Scope: "/vol/scope", Volume: "/vol",
		Candidates: 3, Decided: 3, Summary: summary,
		StartedAt: generated, FinishedAt: generated.Add(90 * time.Second),
	}
	decisions := []*dedup.DeletionDecision{
		{SourcePath: "/vol/scope/a.mov", KeeperPath: "/vol/keep/a.mov", Size: 1_000_000, Fingerprint: "aa", Outcome: outcome},
		{SourcePath: "/vol/scope/b.mov", KeeperPath: "/vol/keep/b.mov", Size: 1_000_000, Fingerprint: "bb", Outcome: outcome},
		{SourcePath: "/vol/scope/c.mov", KeeperPath: "/vol/keep/c.mov", Size: 1_000_000, Outcome: dedup.OutcomeRejected, Reason: dedup.ReasonMismatch},
	}
	return res, decisions
}

func TestRenderReconcileSummary(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		res, decisions := sampleResult(dedup.ModeLive)
		var buf bytes.Buffer
		require.NoError(t, RenderReconcileSummary(&buf, res, decisions))
		out := buf.String()

		assert.Contains(t, out, "Mode: LIVE DELETION")
		assert.Contains(t, out, "Run: 7")
		assert.Contains(t, out, "- DELETED: 2 (1.9 MiB)")
		assert.Contains(t, out, "- REJECTED: 1 (977 KiB)")
		assert.Contains(t, out, "- Space freed: 1.9 MiB (2,000,000 bytes)")
		assert.Contains(t, out, "- Duration: 1m30s")
		assert.Contains(t, out, "FILES DELETED:")
		assert.Contains(t, out, "  /vol/scope/a.mov\n    Size: 1,000,000 bytes\n    Kept at: /vol/keep/a.mov\n    Fingerprint: aa")
		assert.NotContains(t, out, "/vol/scope/c.mov")
	})

	t.Run("dry run", func(t *testing.T) {
		res, decisions := sampleResult(dedup.ModeDryRun)
		res.Interrupted = true
		var buf bytes.Buffer
		require.NoError(t, RenderReconcileSummary(&buf, res, decisions))
		out := buf.String()

		assert.Contains(t, out, "Mode: DRY RUN")
		assert.Contains(t, out, "FILES THAT WOULD BE DELETED:")
		assert.Contains(t, out, "- Space that would be freed: 1.9 MiB (2,000,000 bytes)")
		assert.Contains(t, out, "INTERRUPTED")
	})

	t.Run("nothing removed", func(t *testing.T) {
		res, _ := sampleResult(dedup.ModeLive)
		var buf bytes.Buffer
		require.NoError(t, RenderReconcileSummary(&buf, res, nil))
		assert.Contains(t, buf.String(), "(none)")
	})

	t.Run("missing summary", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, RenderReconcileSummary(&buf, &dedup.ReconcileResult{}, nil))
	})
}

func TestWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w, err := NewWriter(dir)
	require.NoError(t, err)

	files, err := w.WriteScan(sampleReport(2), FormatJSON, 10)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20240115_103000_duplicates.json"), files.Machine)
	assert.FileExists(t, files.Machine)
	assert.FileExists(t, files.Markdown)

	res, decisions := sampleResult(dedup.ModeDryRun)
	path, err := w.WriteReconcile(res, decisions)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20240115_103130_reconcile_summary.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DUPLICATE RECONCILE SUMMARY")
}
