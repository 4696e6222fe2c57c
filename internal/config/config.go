// Package config loads the nivault settings file.
//
// Settings come from three layers, later ones winning: built-in defaults, the
// TOML file, and the NIVAULT_DIR environment variable for the vault directory.
// Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/krypto"
	"github.com/Hussein-Mazeh/nivault/store"
)

// EnvVaultDir overrides the vault storage directory.
const EnvVaultDir = "NIVAULT_DIR"

// KDFConfig is the Argon2id cost applied to newly created vaults.
type KDFConfig struct {
	MemoryKiB   uint32 `toml:"memory_kib"`
	Iterations  uint32 `toml:"iterations"`
	Parallelism uint8  `toml:"parallelism"`
}

// Params converts the config into KDF parameters.
func (k KDFConfig) Params() krypto.KDFParams {
	return krypto.KDFParams{
		MemoryKiB:   k.MemoryKiB,
		Iterations:  k.Iterations,
		Parallelism: k.Parallelism,
	}
}

// Config is the on-disk settings file.
type Config struct {
	VaultDir         string    `toml:"vault_dir"`
	LogLevel         string    `toml:"log_level"`
	MinPasswordScore int       `toml:"min_password_score"`
	KDF              KDFConfig `toml:"kdf"`
}

// Default returns the built-in settings.
func Default() Config {
	kdf := krypto.DefaultKDFParams()
	return Config{
		VaultDir:         defaultVaultDir(),
		LogLevel:         "warn",
		MinPasswordScore: 3,
		KDF: KDFConfig{
			MemoryKiB:   kdf.MemoryKiB,
			Iterations:  kdf.Iterations,
			Parallelism: kdf.Parallelism,
		},
	}
}

func defaultVaultDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "nivault")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "nivault")
}

// DefaultPath returns the settings file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "nivault", "config.toml"), nil
}

// Load reads path over the defaults and applies the environment. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		default:
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return Config{}, fmt.Errorf("config %s: unknown key %q: %w", path, undecoded[0].String(), nerrors.ErrInvalidArgument)
			}
		}
	}

	if dir := os.Getenv(EnvVaultDir); dir != "" {
		cfg.VaultDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML with owner-only permissions. The file is
// replaced atomically, so a failed save leaves any previous settings intact.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := store.WriteAtomic(context.Background(), path, buf.Bytes(), false); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings the vault cannot run with.
func (c Config) Validate() error {
	if c.VaultDir == "" {
		return fmt.Errorf("vault_dir is empty: %w", nerrors.ErrInvalidArgument)
	}
	if c.MinPasswordScore < 0 || c.MinPasswordScore > 4 {
		return fmt.Errorf("min_password_score %d outside 0..4: %w", c.MinPasswordScore, nerrors.ErrInvalidArgument)
	}
	if err := c.KDF.Params().Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	return nil
}
