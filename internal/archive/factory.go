package archive

import (
	"context"
	"fmt"

	"dedupe-go/internal/config"
	"dedupe-go/internal/dedup"
)

// NewArchiveFromConfig returns the configured Archive, or nil when
// archiving is disabled.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig) (dedup.Archive, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return NewMemoryArchive(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		a, err := NewFileSystemArchive(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "s3":
		a, err := NewS3ArchiveFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
