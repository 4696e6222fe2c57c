package krypto

import (
	"crypto/subtle"
	"fmt"

	"github.com/awnumar/memguard"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

// SecretKey holds a master key sealed in a memguard enclave. The plaintext
// key only exists in guarded memory for the duration of an Open callback.
type SecretKey struct {
	enclave *memguard.Enclave
}

// NewSecretKey seals key and wipes the caller's slice.
func NewSecretKey(key []byte) (*SecretKey, error) {
	if len(key) != KeySize {
		Wipe(key)
		return nil, fmt.Errorf("master key must be %d bytes: %w", KeySize, nerrors.ErrInvalidKeyLength)
	}
	return &SecretKey{enclave: memguard.NewEnclave(key)}, nil
}

// Open exposes the key to fn. The slice must not be retained after fn returns;
// its backing memory is destroyed immediately afterwards.
func (k *SecretKey) Open(fn func(key []byte) error) error {
	if k == nil || k.enclave == nil {
		return fmt.Errorf("master key destroyed: %w", nerrors.ErrInvalidArgument)
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Equal compares candidate with the sealed key in constant time.
func (k *SecretKey) Equal(candidate []byte) (bool, error) {
	var equal bool
	err := k.Open(func(key []byte) error {
		equal = subtle.ConstantTimeCompare(key, candidate) == 1
		return nil
	})
	return equal, err
}

// Destroy drops the enclave so further Open and Equal calls fail. The sealed
// ciphertext itself stays on the heap until it is collected; it can only be
// opened with memguard's session key, which memguard.Purge destroys along
// with every other enclave in the process. Callers that are done with all
// keys should Purge, as the CLI does on exit through memguard.SafeExit.
func (k *SecretKey) Destroy() {
	if k == nil {
		return
	}
	k.enclave = nil
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}
