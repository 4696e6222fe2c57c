package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math"

	"golang.org/x/crypto/argon2"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

// SaltSize is the minimum and default salt length in bytes.
const SaltSize = 16

// KDFParams captures the tunable Argon2id cost parameters. They are persisted
// with each vault so later opens reproduce the same key even when defaults change.
type KDFParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the cost profile stamped on new vaults.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 1,
	}
}

// Validate reports whether every cost parameter is positive.
func (p KDFParams) Validate() error {
	if p.MemoryKiB == 0 {
		return fmt.Errorf("memory parameter must be positive: %w", nerrors.ErrInvalidArgument)
	}
	if p.Iterations == 0 {
		return fmt.Errorf("iterations parameter must be positive: %w", nerrors.ErrInvalidArgument)
	}
	if p.Parallelism == 0 {
		return fmt.Errorf("parallelism parameter must be positive: %w", nerrors.ErrInvalidArgument)
	}
	// Memory and iterations are persisted as signed 32-bit integers.
	if p.MemoryKiB > math.MaxInt32 {
		return fmt.Errorf("memory parameter %d exceeds %d: %w", p.MemoryKiB, math.MaxInt32, nerrors.ErrInvalidArgument)
	}
	if p.Iterations > math.MaxInt32 {
		return fmt.Errorf("iterations parameter %d exceeds %d: %w", p.Iterations, math.MaxInt32, nerrors.ErrInvalidArgument)
	}
	return nil
}

// DeriveKey derives a KeySize key from password using Argon2id (version 0x13).
// The result is deterministic for identical inputs.
func DeriveKey(password, salt []byte, p KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("password is required: %w", nerrors.ErrInvalidArgument)
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes: %w", SaltSize, nerrors.ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := argon2.IDKey(password, salt, p.Iterations, p.MemoryKiB, p.Parallelism, KeySize)
	if len(key) != KeySize {
		return nil, fmt.Errorf("derived key has unexpected length %d", len(key))
	}
	return key, nil
}

// VerifyKey re-derives a key from password and compares it with expected over
// the full length, without an early exit.
func VerifyKey(password, salt []byte, p KDFParams, expected []byte) (bool, error) {
	candidate, err := DeriveKey(password, salt, p)
	if err != nil {
		return false, err
	}
	defer Wipe(candidate)
	return subtle.ConstantTimeCompare(candidate, expected) == 1, nil
}

// NewRandomSalt returns a cryptographically secure random salt of n bytes.
// Lengths below SaltSize are raised to SaltSize.
func NewRandomSalt(n int) ([]byte, error) {
	if n < SaltSize {
		n = SaltSize
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
