package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dedupe-go/internal/dedup"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.FilesIndexed(10)
	r.FilesIndexed(5)
	r.FileHashed(dedup.TierQuick, 100)
	r.FileHashed(dedup.TierQuick, 50)
	r.FileHashed(dedup.TierFull, 1000)
	r.ScanCompleted(3, 4096)
	r.DecisionRecorded(dedup.OutcomeDeleted, 700)
	r.DecisionRecorded(dedup.OutcomeRejected, 300)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"files indexed", testutil.ToFloat64(r.FilesIndexedTotal), 15},
		{"quick hashes", testutil.ToFloat64(r.FilesHashedTotal.WithLabelValues("quick")), 2},
		{"quick bytes", testutil.ToFloat64(r.BytesHashedTotal.WithLabelValues("quick")), 150},
		{"full bytes", testutil.ToFloat64(r.BytesHashedTotal.WithLabelValues("full")), 1000},
		{"clusters", testutil.ToFloat64(r.DuplicateClusters), 3},
		{"wasted", testutil.ToFloat64(r.WastedBytes), 4096},
		{"deleted", testutil.ToFloat64(r.DecisionsTotal.WithLabelValues("deleted")), 1},
		{"deleted bytes", testutil.ToFloat64(r.DecisionBytesTotal.WithLabelValues("deleted")), 700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.DecisionRecorded(dedup.OutcomeWouldDelete, 42)

	path := filepath.Join(t.TempDir(), "dedupe.prom")
	if err := r.WriteTextfile(path, 1700000000); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`dedupe_decisions_total{outcome="would_delete"} 1`,
		`dedupe_decision_bytes_total{outcome="would_delete"} 42`,
		"dedupe_last_run_timestamp_seconds 1.7e+09",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}

func TestRecorder_WriteTextfileBadPath(t *testing.T) {
	r := NewRecorder()
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"), 0); err == nil {
		t.Error("WriteTextfile() into a missing directory succeeded")
	}
}
