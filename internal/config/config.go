package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults applied to unset settings.
const (
	DefaultScanMinSize         int64 = 1024
	DefaultReconcileMinSize    int64 = 1
	DefaultHiddenPrefix              = "."
	DefaultWorkers                   = 1
	DefaultFormat                    = "json"
	DefaultTop                       = 100
	DefaultQuickThreshold      int64 = 2 * 1024 * 1024
	DefaultSampleSize          int64 = 1024 * 1024
	DefaultEscalationThreshold int64 = 10 * 1024 * 1024
	DefaultChunkSize                 = 8 * 1024 * 1024
)

// Config represents the main configuration for dedupe.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	ReportDir  string           `toml:"report_dir"`
	Scan       ScanConfig       `toml:"scan"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Hashing    HashingConfig    `toml:"hashing"`
	Database   DatabaseConfig   `toml:"database"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// ScanConfig holds walk and report settings for `dedupe scan`.
// MinSize and HiddenPrefix are pointers so an explicit 0 or "" survives
// ApplyDefaults.
type ScanConfig struct {
	MinSize      *int64   `toml:"min_size,omitempty"`      // files smaller than this are not indexed
	Workers      int      `toml:"workers"`                 // hashing workers; 1 hashes sequentially
	HiddenPrefix *string  `toml:"hidden_prefix,omitempty"` // entries starting with this are pruned; "" prunes nothing
	Exclude      []string `toml:"exclude"`                 // paths pruned from every walk
	Ignore       []string `toml:"ignore"`                  // glob patterns pruned from every walk
	Format       string   `toml:"format"`                  // "json" or "yaml"
	Top          int      `toml:"top"`                     // clusters listed in the Markdown report
}

// ReconcileConfig holds settings for `dedupe reconcile`.
type ReconcileConfig struct {
	MinSize *int64 `toml:"min_size,omitempty"`
}

// HashingConfig holds the two-tier fingerprint thresholds, in bytes.
type HashingConfig struct {
	QuickThreshold      int64 `toml:"quick_threshold"`
	SampleSize          int64 `toml:"sample_size"`
	EscalationThreshold int64 `toml:"escalation_threshold"`
	ChunkSize           int   `toml:"chunk_size"`
}

// DatabaseConfig represents configuration for the audit log database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig represents where audit log snapshots are copied after
// each mutating run.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type    string `toml:"type"` // "none", "memory", "filesystem" or "s3"
	Encrypt bool   `toml:"encrypt"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for archive encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path"` // empty disables
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:    hostID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		ReportDir: filepath.Join(baseDir, "reports"),
		Database:  DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Archive:   ArchiveConfig{Type: "none"},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dedupe.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dedupe.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset settings with their defaults.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.ReportDir == "" && c.BaseDir != "" {
		c.ReportDir = filepath.Join(c.BaseDir, "reports")
	}
	if c.Scan.MinSize == nil {
		c.Scan.MinSize = ptr(DefaultScanMinSize)
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = DefaultWorkers
	}
	if c.Scan.HiddenPrefix == nil {
		c.Scan.HiddenPrefix = ptr(DefaultHiddenPrefix)
	}
	if c.Scan.Format == "" {
		c.Scan.Format = DefaultFormat
	}
	if c.Scan.Top == 0 {
		c.Scan.Top = DefaultTop
	}
	if c.Reconcile.MinSize == nil {
		c.Reconcile.MinSize = ptr(DefaultReconcileMinSize)
	}
	if c.Hashing.QuickThreshold == 0 {
		c.Hashing.QuickThreshold = DefaultQuickThreshold
	}
	if c.Hashing.SampleSize == 0 {
		c.Hashing.SampleSize = DefaultSampleSize
	}
	if c.Hashing.EscalationThreshold == 0 {
		c.Hashing.EscalationThreshold = DefaultEscalationThreshold
	}
	if c.Hashing.ChunkSize == 0 {
		c.Hashing.ChunkSize = DefaultChunkSize
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Archive.Type == "" {
		c.Archive.Type = "none"
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = "none"
	}
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.HostID == "" {
		return fmt.Errorf("host_id is required")
	}
	switch c.Scan.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown scan format: %s", c.Scan.Format)
	}
	for _, v := range []*int64{c.Scan.MinSize, c.Reconcile.MinSize} {
		if v != nil && *v < 0 {
			return fmt.Errorf("min_size must not be negative")
		}
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1")
	}
	if c.Archive.Encrypt && c.Encryption.Type == "none" {
		return fmt.Errorf("archive.encrypt requires an encryption type other than none")
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file. It refuses to overwrite an existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
