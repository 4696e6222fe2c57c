package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/krypto"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.KDF.Params() != krypto.DefaultKDFParams() {
		t.Fatalf("unexpected default kdf: %+v", cfg.KDF)
	}
	if filepath.Base(cfg.VaultDir) != "nivault" {
		t.Fatalf("unexpected default vault dir %q", cfg.VaultDir)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvVaultDir, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MinPasswordScore != Default().MinPasswordScore {
		t.Fatalf("expected default score, got %d", cfg.MinPasswordScore)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
vault_dir = "/srv/vaults"
log_level = "debug"
min_password_score = 2

[kdf]
memory_kib = 16384
iterations = 2
parallelism = 4
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	t.Setenv(EnvVaultDir, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.VaultDir != "/srv/vaults" || cfg.LogLevel != "debug" || cfg.MinPasswordScore != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	want := krypto.KDFParams{MemoryKiB: 16384, Iterations: 2, Parallelism: 4}
	if cfg.KDF.Params() != want {
		t.Fatalf("unexpected kdf: %+v", cfg.KDF)
	}

	t.Setenv(EnvVaultDir, filepath.Join(dir, "override"))
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.VaultDir != filepath.Join(dir, "override") {
		t.Fatalf("env did not override vault dir: %q", cfg.VaultDir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(EnvVaultDir, "")
	cases := map[string]string{
		"zero iterations":   "[kdf]\nmemory_kib = 1024\niterations = 0\nparallelism = 1\n",
		"memory past int32": "[kdf]\nmemory_kib = 4294967295\niterations = 1\nparallelism = 1\n",
		"score too high":    "min_password_score = 9\n",
		"unknown key":       "colour = \"blue\"\n",
		"bad syntax":        "vault_dir = \n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("WriteFile returned error: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv(EnvVaultDir, "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.VaultDir = "/tmp/vaults"
	cfg.MinPasswordScore = 1
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != cfg {
		t.Fatalf("round trip mismatch: %+v != %+v", got, cfg)
	}
}

func TestSaveReportsWriteFailureAndKeepsOldFile(t *testing.T) {
	t.Setenv(EnvVaultDir, "")
	dir := t.TempDir()

	// A directory in the target's place makes the final replace fail.
	blocked := filepath.Join(dir, "blocked.toml")
	if err := os.Mkdir(blocked, 0o700); err != nil {
		t.Fatalf("Mkdir returned error: %v", err)
	}
	if err := Default().Save(blocked); err == nil {
		t.Fatal("expected Save over a directory to fail")
	}

	path := filepath.Join(dir, "config.toml")
	first := Default()
	first.MinPasswordScore = 2
	if err := first.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	second := Default()
	second.MinPasswordScore = 4
	if err := second.Save(path); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.MinPasswordScore != 4 {
		t.Fatalf("expected the second save to win, got score %d", got.MinPasswordScore)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected only blocked.toml and config.toml, found %d entries", len(entries))
	}
}

func TestValidateEmptyDir(t *testing.T) {
	cfg := Default()
	cfg.VaultDir = ""
	if err := cfg.Validate(); !errors.Is(err, nerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
