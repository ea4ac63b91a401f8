package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Default hashing thresholds.
const (
	DefaultQuickThreshold      int64 = 2 * 1024 * 1024
	DefaultSampleSize          int64 = 1 * 1024 * 1024
	DefaultEscalationThreshold int64 = 10 * 1024 * 1024
	DefaultChunkSize                 = 8 * 1024 * 1024
)

// HashPolicy holds the thresholds of the two-tier fingerprint strategy.
// The same policy is applied by the Resolver and the Reconciler; the
// Reconciler additionally ignores it and always uses full fingerprints.
type HashPolicy struct {
	// Files strictly larger than QuickThreshold get a quick fingerprint.
	QuickThreshold int64 `json:"quick_threshold" yaml:"quick_threshold"`
	// Bytes sampled from both the head and the tail for a quick fingerprint.
	SampleSize int64 `json:"sample_size" yaml:"sample_size"`
	// Quick matches for files strictly larger than this are re-hashed in full.
	EscalationThreshold int64 `json:"escalation_threshold" yaml:"escalation_threshold"`
	// Read size for full fingerprints.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`
}

// DefaultHashPolicy returns the policy built from the default thresholds.
func DefaultHashPolicy() HashPolicy {
	return HashPolicy{
		QuickThreshold:      DefaultQuickThreshold,
		SampleSize:          DefaultSampleSize,
		EscalationThreshold: DefaultEscalationThreshold,
		ChunkSize:           DefaultChunkSize,
	}
}

// Validate checks that the thresholds are usable.
func (p HashPolicy) Validate() error {
	if p.SampleSize <= 0 {
		return fmt.Errorf("sample size must be positive, got %d", p.SampleSize)
	}
	if p.QuickThreshold < p.SampleSize {
		return fmt.Errorf("quick threshold %d is smaller than sample size %d", p.QuickThreshold, p.SampleSize)
	}
	if p.EscalationThreshold < 0 {
		return fmt.Errorf("escalation threshold must not be negative, got %d", p.EscalationThreshold)
	}
	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", p.ChunkSize)
	}
	return nil
}

// UsesQuick reports whether files of this size are quick-fingerprinted.
func (p HashPolicy) UsesQuick(size int64) bool {
	return size > p.QuickThreshold
}

// RequiresFull reports whether a quick match at this size must be escalated.
func (p HashPolicy) RequiresFull(size int64) bool {
	return size > p.EscalationThreshold
}

type hashKey struct {
	tier Tier
	path string
}

// Hasher computes and caches fingerprints.
// Concurrent requests for the same (tier, path) share one read.
type Hasher struct {
	fsmgr   FilesystemManager
	policy  HashPolicy
	metrics Metrics

	flight singleflight.Group
	mu     sync.Mutex
	cache  map[hashKey]Fingerprint
}

// NewHasher creates a Hasher reading through fsmgr.
func NewHasher(fsmgr FilesystemManager, policy HashPolicy, metrics Metrics) *Hasher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Hasher{
		fsmgr:   fsmgr,
		policy:  policy,
		metrics: metrics,
		cache:   make(map[hashKey]Fingerprint),
	}
}

// Policy returns the hashing policy.
func (h *Hasher) Policy() HashPolicy {
	return h.policy
}

// Quick returns the cheapest fingerprint the policy allows for rec: a quick
// fingerprint above the quick threshold, a full one otherwise.
func (h *Hasher) Quick(ctx context.Context, rec *FileRecord) (Fingerprint, error) {
	if !h.policy.UsesQuick(rec.Size) {
		return h.Full(ctx, rec)
	}
	return h.cached(ctx, TierQuick, rec)
}

// Full returns the full-content fingerprint for rec.
func (h *Hasher) Full(ctx context.Context, rec *FileRecord) (Fingerprint, error) {
	return h.cached(ctx, TierFull, rec)
}

// Verify computes a full fingerprint from the current file contents,
// bypassing the cache. size is the expected length; a file that no longer
// has that length is an error.
func (h *Hasher) Verify(ctx context.Context, path string, size int64) (Fingerprint, error) {
	key := hashKey{tier: TierFull, path: path}
	v, err, _ := h.flight.Do("verify\x00"+path, func() (any, error) {
		return h.compute(ctx, key, size)
	})
	if err != nil {
		return Fingerprint{}, err
	}
	return v.(Fingerprint), nil
}

func (h *Hasher) cached(ctx context.Context, tier Tier, rec *FileRecord) (Fingerprint, error) {
	key := hashKey{tier: tier, path: rec.Path}

	h.mu.Lock()
	fp, ok := h.cache[key]
	h.mu.Unlock()
	if ok {
		return fp, nil
	}

	v, err, _ := h.flight.Do(string(tier)+"\x00"+rec.Path, func() (any, error) {
		fp, err := h.compute(ctx, key, rec.Size)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.cache[key] = fp
		h.mu.Unlock()
		return fp, nil
	})
	if err != nil {
		return Fingerprint{}, err
	}
	return v.(Fingerprint), nil
}

func (h *Hasher) compute(ctx context.Context, key hashKey, size int64) (Fingerprint, error) {
	f, err := h.fsmgr.Open(key.path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("opening %s: %w", key.path, err)
	}
	defer f.Close()

	var sum string
	var read int64
	switch key.tier {
	case TierQuick:
		sum, read, err = h.quickSum(f, size)
	default:
		sum, read, err = h.fullSum(ctx, f, size)
	}
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hashing %s: %w", key.path, err)
	}

	h.metrics.FileHashed(key.tier, read)
	return Fingerprint{Tier: key.tier, Sum: sum}, nil
}

// quickSum digests the head sample, the tail sample and the decimal size.
func (h *Hasher) quickSum(f File, size int64) (string, int64, error) {
	n := min(h.policy.SampleSize, size)
	buf := make([]byte, n)
	digest := sha256.New()

	if _, err := io.ReadFull(io.NewSectionReader(f, 0, n), buf); err != nil {
		return "", 0, fmt.Errorf("reading head: %w", err)
	}
	digest.Write(buf)

	if _, err := io.ReadFull(io.NewSectionReader(f, size-n, n), buf); err != nil {
		return "", 0, fmt.Errorf("reading tail: %w", err)
	}
	digest.Write(buf)

	digest.Write([]byte(strconv.FormatInt(size, 10)))
	return hex.EncodeToString(digest.Sum(nil)), 2 * n, nil
}

// fullSum digests the whole stream in ChunkSize reads.
func (h *Hasher) fullSum(ctx context.Context, f File, size int64) (string, int64, error) {
	buf := make([]byte, h.policy.ChunkSize)
	digest := sha256.New()
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return "", total, err
		}
		n, err := f.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", total, fmt.Errorf("reading: %w", err)
		}
	}

	if total != size {
		return "", total, fmt.Errorf("size changed while hashing: expected %d bytes, read %d", size, total)
	}
	return hex.EncodeToString(digest.Sum(nil)), total, nil
}
