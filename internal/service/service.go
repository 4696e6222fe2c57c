package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/nivault/auth"
	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/internal/vault"
)

// ErrLocked is returned by secret operations when no vault is unlocked.
var ErrLocked = errors.New("vault locked")

// Service exposes high-level vault operations for the CLI. It enforces the
// master password policy on creation and re-verifies the password before
// destructive changes.
type Service struct {
	manager *vault.Manager
	policy  auth.ValidateOptions
	log     *zap.Logger
	vault   *vault.Vault
}

// New returns a service bound to manager.
func New(manager *vault.Manager, policy auth.ValidateOptions, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{manager: manager, policy: policy, log: log}
}

// Close locks the current vault, if any.
func (s *Service) Close() error {
	if s.vault == nil {
		return nil
	}
	err := s.vault.Close()
	s.vault = nil
	return err
}

// IsUnlocked reports whether a vault is open.
func (s *Service) IsUnlocked() bool { return s.vault != nil && !s.vault.IsClosed() }

// Vaults lists the vault names in the storage directory.
func (s *Service) Vaults() ([]string, error) {
	return s.manager.List()
}

// Create validates master against the policy, creates the vault and leaves it unlocked.
func (s *Service) Create(ctx context.Context, name string, master []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("vault name is required: %w", nerrors.ErrInvalidArgument)
	}
	if len(master) == 0 {
		return fmt.Errorf("master password cannot be empty: %w", nerrors.ErrInvalidArgument)
	}

	opts := s.policy
	opts.UserInputs = append(append([]string{}, opts.UserInputs...), name)
	if err := auth.ValidateMasterPasswordAdvanced(string(master), opts); err != nil {
		return fmt.Errorf("validate master password: %w", err)
	}

	v, err := s.manager.CreateNew(ctx, master, name)
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}
	s.swap(v)
	return nil
}

// Unlock opens the named vault with master.
func (s *Service) Unlock(ctx context.Context, name string, master []byte) error {
	v, err := s.manager.OpenExisting(ctx, master, name)
	if err != nil {
		s.log.Warn("unlock failed", zap.String("vault", name), zap.Error(err))
		return fmt.Errorf("unlock vault: %w", err)
	}
	s.swap(v)
	return nil
}

func (s *Service) swap(v *vault.Vault) {
	if s.vault != nil {
		_ = s.vault.Close()
	}
	s.vault = v
}

func (s *Service) current() (*vault.Vault, error) {
	if !s.IsUnlocked() {
		return nil, ErrLocked
	}
	return s.vault, nil
}

// Add stores a new secret.
func (s *Service) Add(ctx context.Context, name, value string) error {
	v, err := s.current()
	if err != nil {
		return err
	}
	if _, err := v.AddSecret(ctx, name, value); err != nil {
		return fmt.Errorf("add secret: %w", err)
	}
	return nil
}

// Get returns the decrypted value of a secret.
func (s *Service) Get(ctx context.Context, name string) (string, error) {
	v, err := s.current()
	if err != nil {
		return "", err
	}
	value, err := v.GetSecret(ctx, name)
	if err != nil {
		return "", fmt.Errorf("get secret: %w", err)
	}
	return value, nil
}

// List returns the secrets without their values.
func (s *Service) List(ctx context.Context) ([]vault.SecretInfo, error) {
	v, err := s.current()
	if err != nil {
		return nil, err
	}
	return v.ListSecrets(ctx)
}

// Update replaces a secret's value after confirming master.
func (s *Service) Update(ctx context.Context, master []byte, name, value string) error {
	v, err := s.current()
	if err != nil {
		return err
	}
	if err := s.confirm(ctx, v, master); err != nil {
		return err
	}
	if err := v.UpdateSecret(ctx, name, value); err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	return nil
}

// Delete removes a secret after confirming master.
func (s *Service) Delete(ctx context.Context, master []byte, name string) error {
	v, err := s.current()
	if err != nil {
		return err
	}
	if err := s.confirm(ctx, v, master); err != nil {
		return err
	}
	if err := v.DeleteSecret(ctx, name); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

func (s *Service) confirm(ctx context.Context, v *vault.Vault, master []byte) error {
	ok, err := v.VerifyPassword(ctx, master)
	if err != nil {
		return fmt.Errorf("verify master password: %w", err)
	}
	if !ok {
		s.log.Warn("password confirmation failed", zap.String("vault", v.Name()))
		return nerrors.ErrPasswordMismatch
	}
	return nil
}

// Info describes the unlocked vault.
func (s *Service) Info(ctx context.Context) (vault.Info, error) {
	v, err := s.current()
	if err != nil {
		return vault.Info{}, err
	}
	return v.Info(ctx)
}

// VerifyPassword reports whether master unlocks the current vault.
func (s *Service) VerifyPassword(ctx context.Context, master []byte) (bool, error) {
	v, err := s.current()
	if err != nil {
		return false, err
	}
	return v.VerifyPassword(ctx, master)
}

// DeleteVault removes the named vault file after proving master opens it.
func (s *Service) DeleteVault(ctx context.Context, name string, master []byte) error {
	if s.vault != nil && s.vault.Name() == name {
		if err := s.Close(); err != nil {
			return err
		}
	}
	if err := s.manager.Delete(ctx, master, name); err != nil {
		return fmt.Errorf("delete vault: %w", err)
	}
	return nil
}
