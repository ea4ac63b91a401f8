package report

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"dedupe-go/internal/dedup"
)

var rule = strings.Repeat("=", 80)

const summaryTemplate = `{{.Rule}}
DUPLICATE RECONCILE SUMMARY
Run: {{.RunID}}
Mode: {{if .Live}}LIVE DELETION{{else}}DRY RUN{{end}}
{{.Rule}}

RESULTS:
- Candidates: {{.Candidates}}
- Decided this run: {{.Decided}}
- Already decided earlier: {{.AlreadyDecided}}
{{- if .InProgress}}
- Deletion in progress elsewhere: {{.InProgress}}
{{- end}}
{{- if .Recovered}}
- Recovered interrupted deletions: {{.Recovered}}
{{- end}}
{{range .Outcomes}}- {{.Name}}: {{.Count}} ({{bytes .Bytes}})
{{end -}}
- Space freed: {{bytes .Summary.BytesFreed}} ({{comma .Summary.BytesFreed}} bytes)
- Space that would be freed: {{bytes .Summary.BytesWouldFree}} ({{comma .Summary.BytesWouldFree}} bytes)
- Unreadable paths skipped during walk: {{.Skipped}}
- Duration: {{.Duration}}
{{- if .Interrupted}}
- INTERRUPTED before all candidates were examined
{{- end}}

SCOPE (files are deleted only from here):
{{.Scope}}

VOLUME:
{{.Volume}}

{{if .Live}}FILES DELETED:{{else}}FILES THAT WOULD BE DELETED:{{end}}
{{range .Removed}}
  {{.SourcePath}}
    Size: {{comma .Size}} bytes
    Kept at: {{.KeeperPath}}
    Fingerprint: {{.Fingerprint}}
{{else}}
  (none)
{{end}}
{{.Rule}}
`

var summary = template.Must(template.New("summary").Funcs(template.FuncMap{
	"bytes": func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
	"comma": humanize.Comma,
}).Parse(summaryTemplate))

type outcomeLine struct {
	Name  string
	Count int
	Bytes int64
}

type summaryData struct {
	*dedup.ReconcileResult
	Rule     string
	Live     bool
	Outcomes []outcomeLine
	Removed  []*dedup.DeletionDecision
	Duration time.Duration
}

// RenderReconcileSummary writes the plain-text summary of a run. Only the
// deleted (or, in a dry run, would-be-deleted) entries of decisions are
// listed.
func RenderReconcileSummary(w io.Writer, res *dedup.ReconcileResult, decisions []*dedup.DeletionDecision) error {
	if res.Summary == nil {
		return fmt.Errorf("reconcile result has no summary")
	}
	data := summaryData{
		ReconcileResult: res,
		Rule:            rule,
		Live:            res.Mode == dedup.ModeLive,
		Duration:        res.FinishedAt.Sub(res.StartedAt).Round(time.Second),
	}
	for _, o := range dedup.Outcomes {
		data.Outcomes = append(data.Outcomes, outcomeLine{
			Name:  strings.ToUpper(string(o)),
			Count: res.Summary.Count(o),
			Bytes: res.Summary.Bytes(o),
		})
	}
	want := dedup.OutcomeWouldDelete
	if data.Live {
		want = dedup.OutcomeDeleted
	}
	for _, d := range decisions {
		if d.Outcome == want {
			data.Removed = append(data.Removed, d)
		}
	}

	if err := summary.Execute(w, data); err != nil {
		return fmt.Errorf("rendering reconcile summary: %w", err)
	}
	return nil
}
