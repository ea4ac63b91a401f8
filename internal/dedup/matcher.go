package dedup

import (
	"context"
	"fmt"
)

// CandidatePair is a file inside the scope together with the same-named,
// same-sized files found outside it, in discovery order.
type CandidatePair struct {
	Source  Deletable
	Keepers []Keeper
}

// MatchResult is the output of a cross-scope match.
type MatchResult struct {
	Pairs       []CandidatePair
	ScopeStats  IndexStats
	VolumeStats IndexStats
	Skipped     []SkippedEntry
}

// Matcher pairs files inside a scope with same-named, same-sized files
// elsewhere on a volume.
type Matcher struct {
	indexer *Indexer
	logger  Logger
}

// NewMatcher creates a Matcher that enumerates through indexer.
func NewMatcher(indexer *Indexer, logger Logger) *Matcher {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Matcher{indexer: indexer, logger: logger}
}

// Match indexes the scope by name, then walks volume without descending
// into the scope and keeps every outside file whose name and size match
// a scope file.
func (m *Matcher) Match(ctx context.Context, volume string, scope *Scope) (*MatchResult, error) {
	if scope.Covers(volume) {
		return nil, fmt.Errorf("volume root %s lies inside scope %s", volume, scope.Root())
	}

	var sources []*FileRecord
	byName := make(map[string][]*FileRecord)
	scopeStats, scopeSkipped, err := m.indexer.walk(ctx, scope.Root(), nil, func(rec *FileRecord) {
		sources = append(sources, rec)
		byName[rec.Name()] = append(byName[rec.Name()], rec)
	})
	if err != nil {
		return nil, fmt.Errorf("indexing scope: %w", err)
	}
	m.logger.Info("scope indexed", "scope", scope.Root(), "files", len(sources), "names", len(byName))

	outside := make(map[string][]*FileRecord)
	volumeStats, volumeSkipped, err := m.indexer.walk(ctx, volume, []string{scope.Root()}, func(rec *FileRecord) {
		if _, ok := byName[rec.Name()]; ok {
			outside[rec.Name()] = append(outside[rec.Name()], rec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("walking volume: %w", err)
	}

	result := &MatchResult{
		ScopeStats:  scopeStats,
		VolumeStats: volumeStats,
		Skipped:     append(scopeSkipped, volumeSkipped...),
	}

	for _, src := range sources {
		var keepers []Keeper
		for _, rec := range outside[src.Name()] {
			if rec.Size != src.Size {
				continue
			}
			k, err := scope.Keeper(rec)
			if err != nil {
				m.logger.Warn("dropping keeper", "path", rec.Path, "error", err)
				continue
			}
			keepers = append(keepers, k)
		}
		if len(keepers) == 0 {
			continue
		}
		d, err := scope.Deletable(src)
		if err != nil {
			m.logger.Warn("dropping source", "path", src.Path, "error", err)
			continue
		}
		result.Pairs = append(result.Pairs, CandidatePair{Source: d, Keepers: keepers})
	}

	m.logger.Info("candidates matched",
		"scope", scope.Root(),
		"volume", volume,
		"pairs", len(result.Pairs),
		"volume_files", volumeStats.FilesSeen)
	return result, nil
}
