package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"dedupe-go/internal/dedup"
)

// MaxMachineClusters caps the clusters listed in the machine document.
// Totals always describe every cluster.
const MaxMachineClusters = 1000

// MachineReport is the document behind `<ts>_duplicates.{json,yaml}`.
type MachineReport struct {
	dedup.ScanReport `yaml:",inline"`
	ClustersListed   int `json:"clusters_listed" yaml:"clusters_listed"`
}

// NewMachineReport limits r to the largest MaxMachineClusters clusters.
// r is expected to be sorted already.
func NewMachineReport(r *dedup.ScanReport) *MachineReport {
	capped := *r
	if len(capped.Clusters) > MaxMachineClusters {
		capped.Clusters = capped.Clusters[:MaxMachineClusters]
	}
	return &MachineReport{ScanReport: capped, ClustersListed: len(capped.Clusters)}
}

// EncodeMachine writes r as JSON or YAML.
func EncodeMachine(w io.Writer, r *dedup.ScanReport, format string) error {
	doc := NewMachineReport(r)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
	return nil
}
