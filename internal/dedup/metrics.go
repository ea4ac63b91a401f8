package dedup

// Metrics receives counters from scans and reconcile runs.
type Metrics interface {
	FilesIndexed(n int)
	FileHashed(tier Tier, bytes int64)
	ScanCompleted(clusters int, wastedBytes int64)
	DecisionRecorded(outcome Outcome, bytes int64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) FilesIndexed(int)                {}
func (NopMetrics) FileHashed(Tier, int64)          {}
func (NopMetrics) ScanCompleted(int, int64)        {}
func (NopMetrics) DecisionRecorded(Outcome, int64) {}
