package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/dedupe.toml")
		t.Setenv(EnvHome, "/custom/dedupe")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if d.ConfigPath != "/custom/dedupe.toml" {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, "/custom/dedupe.toml")
		}
		if d.BaseDir != "/custom/dedupe" {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, "/custom/dedupe")
		}
		if d.LogDir != "/custom/dedupe/log" {
			t.Errorf("LogDir = %q, want %q", d.LogDir, "/custom/dedupe/log")
		}
		if d.ReportDir != "/custom/dedupe/reports" {
			t.Errorf("ReportDir = %q, want %q", d.ReportDir, "/custom/dedupe/reports")
		}
		if d.LockPath != "/custom/dedupe/dedupe.lock" {
			t.Errorf("LockPath = %q, want %q", d.LockPath, "/custom/dedupe/dedupe.lock")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "dedupe.toml")
		if d.ConfigPath != wantConfig {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, wantConfig)
		}
		wantBase := filepath.Join(homeDir, ".local", "share", "dedupe")
		if d.BaseDir != wantBase {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, wantBase)
		}
		if want := filepath.Join(wantBase, "log"); d.LogDir != want {
			t.Errorf("LogDir = %q, want %q", d.LogDir, want)
		}
	})
}
