package report

import (
	"fmt"
	"io"
	"path/filepath"
	"text/template"

	"github.com/dustin/go-humanize"

	"dedupe-go/internal/dedup"
)

// Section limits of the Markdown report.
const (
	DefaultTop      = 100
	MaxDirectories  = 30
	MaxExtensions   = 20
	MaxSamples      = 20
	MaxSamplePaths  = 10
	maxDirKeyLength = 40
)

// MarkdownOptions tunes the Markdown report.
type MarkdownOptions struct {
	// Top is the number of clusters in the ranked table.
	Top int
	// MachineFile is the name of the matching machine document.
	MachineFile string
}

const markdownTemplate = `# Duplicate Files Report: {{.Root}}

**Generated:** {{.GeneratedAt.Format "2006-01-02 15:04:05"}}

---

## Executive Summary

| Metric | Value |
|--------|-------|
| **Total Files Scanned** | {{comma .Totals.FilesScanned}} |
| **Files Indexed (>= {{bytes .MinSize}})** | {{comma .Totals.FilesIndexed}} |
| **Total Data Scanned** | {{bytes .Totals.BytesScanned}} |
| **Duplicate Groups Found** | {{comma .Totals.Clusters}} |
| **Total Duplicate Files** | {{comma .Totals.DuplicateFiles}} |
| **Space Wasted by Duplicates** | **{{bytes .Totals.WastedBytes}}** |
| **Errors/Skipped** | {{comma .Totals.Skipped}} |

---

## NO FILES DELETED

This is a **report only**. No files have been deleted.
Review it, then use ` + "`dedupe reconcile`" + ` to remove verified copies.

---

## Top {{len .Top}} Largest Duplicate Groups

| # | File Size | Copies | Wasted | Sample Filename |
|---|-----------|--------|--------|-----------------|
{{range $i, $c := .Top -}}
| {{inc $i}} | {{bytes $c.Size}} | {{$c.Count}} | {{bytes $c.WastedBytes}} | {{base (index $c.Paths 0)}} |
{{end}}
---

## Duplicates by Directory

| Directory | Duplicate Files | Space Held |
|-----------|-----------------|------------|
{{range .Directories -}}
| {{truncate .Key}} | {{comma .Files}} | {{bytes .Bytes}} |
{{end}}
---

## Sample Duplicate Details (Top {{len .Samples}})
{{range $i, $c := .Samples}}
### Duplicate Group #{{inc $i}}

- **File Size:** {{bytes $c.Size}}
- **Copies:** {{$c.Count}}
- **Wasted Space:** {{bytes $c.WastedBytes}}
- **Fingerprint:** ` + "`{{$c.Fingerprint}}`" + `

**Locations:**
{{range paths $c.Paths}}- ` + "`{{rel $.Root .}}`" + `
{{end}}{{if gt (len $c.Paths) $.MaxPaths}}- ... and {{sub (len $c.Paths) $.MaxPaths}} more
{{end}}{{end}}
---

## File Type Distribution

| Extension | Duplicate Files | Wasted Space |
|-----------|-----------------|--------------|
{{range .Extensions -}}
| {{.Key}} | {{comma .Files}} | {{bytes .Bytes}} |
{{end}}
---

## Full Details

{{if .MachineFile}}Complete duplicate data saved to: ` + "`{{.MachineFile}}`" + `

{{end}}**Total duplicate groups:** {{comma .Totals.Clusters}}
**Total recoverable space:** {{bytes .Totals.WastedBytes}}
`

var markdown = template.Must(template.New("markdown").Funcs(template.FuncMap{
	"bytes": func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"inc":   func(i int) int { return i + 1 },
	"sub":   func(a, b int) int { return a - b },
	"base":  filepath.Base,
	"rel": func(root, p string) string {
		if rel, err := filepath.Rel(root, p); err == nil {
			return rel
		}
		return p
	},
	"truncate": func(s string) string {
		if r := []rune(s); len(r) > maxDirKeyLength {
			return string(r[:maxDirKeyLength])
		}
		return s
	},
	"paths": func(ps []string) []string { return ps[:min(len(ps), MaxSamplePaths)] },
}).Parse(markdownTemplate))

type markdownData struct {
	*dedup.ScanReport
	Top         []dedup.DuplicateCluster
	Directories []dedup.BreakdownRow
	Extensions  []dedup.BreakdownRow
	Samples     []dedup.DuplicateCluster
	MaxPaths    int
	MachineFile string
}

// RenderMarkdown writes the human-readable report for r.
func RenderMarkdown(w io.Writer, r *dedup.ScanReport, opts MarkdownOptions) error {
	top := opts.Top
	if top <= 0 {
		top = DefaultTop
	}
	data := markdownData{
		ScanReport:  r,
		Top:         r.Clusters[:min(len(r.Clusters), top)],
		Directories: r.ByDirectory[:min(len(r.ByDirectory), MaxDirectories)],
		Extensions:  r.ByExtension[:min(len(r.ByExtension), MaxExtensions)],
		Samples:     r.Clusters[:min(len(r.Clusters), MaxSamples)],
		MaxPaths:    MaxSamplePaths,
		MachineFile: opts.MachineFile,
	}
	if err := markdown.Execute(w, data); err != nil {
		return fmt.Errorf("rendering markdown report: %w", err)
	}
	return nil
}
