package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"dedupe-go/internal/archive"
	"dedupe-go/internal/config"
	"dedupe-go/internal/database"
	"dedupe-go/internal/encryption"
)

// PullAuditLog installs the archived audit log for this host. It refuses to
// overwrite a local audit log. passphrase is only called when the archive
// is encrypted. It returns the path of the installed database.
func PullAuditLog(ctx context.Context, cfg *config.Config, passphrase func() (string, error)) (string, error) {
	if cfg.Database.Type != "sqlite" {
		return "", fmt.Errorf("audit pull requires a sqlite database, got %s", cfg.Database.Type)
	}
	dest := filepath.Join(cfg.Database.DataDir, database.DBFileName(cfg.HostID))
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("local audit log already exists at %s", dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking local audit log: %w", err)
	}

	arch, err := archive.NewArchiveFromConfig(ctx, cfg.Archive)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	if arch == nil {
		return "", fmt.Errorf("no archive configured")
	}

	if err := os.MkdirAll(cfg.Database.DataDir, 0700); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	tmp, err := os.CreateTemp(cfg.Database.DataDir, ".pull-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := fetch(cfg, arch.Get, tmp, passphrase); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing audit log: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("installing audit log: %w", err)
	}
	return dest, nil
}

// fetch writes the archived snapshot to w, decrypting it when the archive
// is encrypted.
func fetch(cfg *config.Config, get func(string, io.Writer) error, w io.Writer, passphrase func() (string, error)) error {
	name := archive.SnapshotName(cfg.HostID)
	if !cfg.Archive.Encrypt {
		if err := get(name, w); err != nil {
			return fmt.Errorf("downloading audit log: %w", err)
		}
		return nil
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return err
	}
	if enc == nil || !enc.IsConfigured() {
		return fmt.Errorf("archive is encrypted but no keys are configured")
	}
	pass, err := passphrase()
	if err != nil {
		return err
	}
	dc, err := enc.Unlock(pass)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(get(name, pw))
	}()
	if err := dc.Decrypt(pr, w); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("decrypting audit log: %w", err)
	}
	return nil
}

// SetupKeys creates the age key pair, sealing the private key with
// passphrase, and returns the public key.
func SetupKeys(cfg *config.Config, passphrase string) (string, error) {
	enc := encryption.NewAgeEncryptor(cfg.Encryption)
	if err := enc.Setup(passphrase); err != nil {
		return "", err
	}
	return enc.PublicKey()
}
