// Package report renders scan results and reconcile runs as files for
// people and for other programs.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dedupe-go/internal/dedup"
)

// TimestampLayout prefixes every report file name.
const TimestampLayout = "20060102_150405"

// Formats accepted for the machine-readable scan document.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ScanFiles names the files written for one scan.
type ScanFiles struct {
	Machine  string
	Markdown string
}

// ScanFileNames returns the report file names for a scan finished at ts.
func ScanFileNames(ts time.Time, format string) ScanFiles {
	prefix := ts.Format(TimestampLayout)
	return ScanFiles{
		Machine:  prefix + "_duplicates." + format,
		Markdown: prefix + "_duplicate_report.md",
	}
}

// ReconcileFileName returns the summary file name for a run finished at ts.
func ReconcileFileName(ts time.Time) string {
	return ts.Format(TimestampLayout) + "_reconcile_summary.txt"
}

// Writer places report files in one directory.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// WriteScan writes the machine document and the Markdown report and
// returns their paths.
func (w *Writer) WriteScan(r *dedup.ScanReport, format string, top int) (ScanFiles, error) {
	names := ScanFileNames(r.GeneratedAt, format)
	files := ScanFiles{
		Machine:  filepath.Join(w.dir, names.Machine),
		Markdown: filepath.Join(w.dir, names.Markdown),
	}

	var machine bytes.Buffer
	if err := EncodeMachine(&machine, r, format); err != nil {
		return ScanFiles{}, err
	}
	if err := os.WriteFile(files.Machine, machine.Bytes(), 0644); err != nil {
		return ScanFiles{}, fmt.Errorf("writing %s: %w", files.Machine, err)
	}

	var md bytes.Buffer
	if err := RenderMarkdown(&md, r, MarkdownOptions{Top: top, MachineFile: names.Machine}); err != nil {
		return ScanFiles{}, err
	}
	if err := os.WriteFile(files.Markdown, md.Bytes(), 0644); err != nil {
		return ScanFiles{}, fmt.Errorf("writing %s: %w", files.Markdown, err)
	}
	return files, nil
}

// WriteReconcile writes the plain-text summary of a run and returns its path.
func (w *Writer) WriteReconcile(res *dedup.ReconcileResult, decisions []*dedup.DeletionDecision) (string, error) {
	path := filepath.Join(w.dir, ReconcileFileName(res.FinishedAt))
	var buf bytes.Buffer
	if err := RenderReconcileSummary(&buf, res, decisions); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
