package dedup

import "fmt"

// GetHistory returns the most recent runs, newest first.
func (s *DedupService) GetHistory(limit int) ([]*Run, error) {
	runs, err := s.database.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Summarize derives outcome totals from the audit log.
func (s *DedupService) Summarize(filter DecisionFilter) (*AuditSummary, error) {
	summary, err := s.database.SummarizeDecisions(filter)
	if err != nil {
		return nil, fmt.Errorf("summarizing decisions: %w", err)
	}
	return summary, nil
}

// ListDecisions returns audit log entries, newest first.
func (s *DedupService) ListDecisions(filter DecisionFilter) ([]*DeletionDecision, error) {
	decisions, err := s.database.ListDecisions(filter)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	return decisions, nil
}
